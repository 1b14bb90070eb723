// Package reconcile decides what moves between the library and the device
// and drives the push and pull pipelines.
package reconcile

import "paperbridge/internal/models"

// Matches reports whether libraryName names the same document as the device
// entry deviceName. The device name is the root; the library name must equal
// it exactly or one of its annotated or .pdf-suffixed variants.
func Matches(deviceName, libraryName string) bool {
	if deviceName == "" || libraryName == "" {
		return false
	}
	switch libraryName {
	case deviceName,
		models.AnnotatedPrefix + deviceName,
		deviceName + ".pdf",
		models.AnnotatedPrefix + deviceName + ".pdf":
		return true
	}
	return false
}
