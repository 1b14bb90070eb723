package models

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// DeviceEntry is a document file inside a device folder.
type DeviceEntry struct {
	Name   string `json:"name"`
	Folder string `json:"folder"`
}

// Path returns the entry's full path on the device.
func (e DeviceEntry) Path() string {
	return path.Join(e.Folder, e.Name)
}

// DeviceMetadata is the subset of device document metadata the sync uses.
type DeviceMetadata struct {
	ID             string `json:"ID"`
	Name           string `json:"VissibleName"`
	ModifiedClient string `json:"ModifiedClient"`
}

var naiveTimeLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses an ISO-8601 timestamp. Values without a zone are UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range naiveTimeLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", raw)
}

// ModifiedTime returns the parsed client-side modification time.
func (m DeviceMetadata) ModifiedTime() (time.Time, error) {
	return ParseTimestamp(m.ModifiedClient)
}
