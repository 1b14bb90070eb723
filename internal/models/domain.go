package models

import (
	"fmt"
	"strings"
)

// Tag is a library tag used as a control-plane signal between runs.
type Tag string

const (
	TagToSync Tag = "to_sync"
	TagSynced Tag = "synced"
	TagRead   Tag = "read"
)

var validTags = map[Tag]struct{}{
	TagToSync: {},
	TagSynced: {},
	TagRead:   {},
}

// ParseTag normalizes and validates a control tag.
func ParseTag(raw string) (Tag, error) {
	value := Tag(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return "", fmt.Errorf("tag is required")
	}
	if _, ok := validTags[value]; !ok {
		return "", fmt.Errorf("invalid tag: %s", value)
	}
	return value, nil
}

// LibraryItem is a bibliographic record in the library.
type LibraryItem struct {
	Key     string   `json:"key"`
	Version int      `json:"version"`
	Title   string   `json:"title,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// HasTag reports whether the item carries tag.
func (i LibraryItem) HasTag(tag Tag) bool {
	for _, t := range i.Tags {
		if t == string(tag) {
			return true
		}
	}
	return false
}

// WithTags returns the item's tag set extended by tags, without duplicates.
func (i LibraryItem) WithTags(tags ...Tag) []string {
	out := append([]string(nil), i.Tags...)
	for _, tag := range tags {
		if !i.HasTag(tag) {
			out = append(out, string(tag))
		}
	}
	return out
}

// WithoutTag returns the item's tag set minus tag.
func (i LibraryItem) WithoutTag(tag Tag) []string {
	out := make([]string, 0, len(i.Tags))
	for _, t := range i.Tags {
		if t != string(tag) {
			out = append(out, t)
		}
	}
	return out
}
