package models

import (
	"path/filepath"
	"strings"
	"time"
)

const (
	MediaTypePDF = "application/pdf"

	// LinkModeLinkedURL attachments point at a web page and carry no file.
	LinkModeLinkedURL = "linked_url"

	// AnnotatedPrefix marks a PDF that was pulled back from the device.
	AnnotatedPrefix = "(Annot) "
)

// Attachment is a file child of a library item.
type Attachment struct {
	Key          string     `json:"key"`
	ParentKey    string     `json:"parent_key,omitempty"`
	Version      int        `json:"version"`
	Title        string     `json:"title,omitempty"`
	Filename     string     `json:"filename,omitempty"`
	ContentType  string     `json:"content_type,omitempty"`
	LinkMode     string     `json:"link_mode,omitempty"`
	MD5          string     `json:"md5,omitempty"`
	DateModified *time.Time `json:"date_modified,omitempty"`
}

// IsPDF reports whether the attachment holds a PDF.
func (a Attachment) IsPDF() bool {
	return strings.EqualFold(strings.TrimSpace(a.ContentType), MediaTypePDF)
}

// HasFile reports whether the library stores a file for the attachment.
func (a Attachment) HasFile() bool {
	return a.LinkMode != LinkModeLinkedURL
}

// AnnotatedName returns the logical filename of an annotated copy of filename.
func AnnotatedName(filename string) string {
	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	return AnnotatedPrefix + stem + ext
}
