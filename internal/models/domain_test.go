package models

import (
	"testing"
	"time"
)

func TestParseTag(t *testing.T) {
	got, err := ParseTag(" READ ")
	if err != nil {
		t.Fatalf("parse tag: %v", err)
	}
	if got != TagRead {
		t.Fatalf("expected %q, got %q", TagRead, got)
	}

	if _, err := ParseTag("archived"); err == nil {
		t.Fatal("expected invalid tag error")
	}
	if _, err := ParseTag(" "); err == nil {
		t.Fatal("expected empty tag error")
	}
}

func TestLibraryItemTags(t *testing.T) {
	item := LibraryItem{Key: "I1", Tags: []string{"to_sync", "physics"}}
	if !item.HasTag(TagToSync) {
		t.Fatal("expected to_sync tag")
	}
	if item.HasTag(TagSynced) {
		t.Fatal("did not expect synced tag")
	}

	added := item.WithTags(TagSynced, TagToSync)
	if len(added) != 3 || added[2] != "synced" {
		t.Fatalf("unexpected tags after add: %v", added)
	}
	removed := item.WithoutTag(TagToSync)
	if len(removed) != 1 || removed[0] != "physics" {
		t.Fatalf("unexpected tags after remove: %v", removed)
	}
	if len(item.Tags) != 2 {
		t.Fatalf("original tags mutated: %v", item.Tags)
	}
}

func TestAnnotatedName(t *testing.T) {
	tests := map[string]string{
		"paper.pdf":      "(Annot) paper.pdf",
		"paper":          "(Annot) paper",
		"a.b.pdf":        "(Annot) a.b.pdf",
		"Notes 2024.pdf": "(Annot) Notes 2024.pdf",
	}
	for in, want := range tests {
		if got := AnnotatedName(in); got != want {
			t.Fatalf("AnnotatedName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAttachmentIsPDF(t *testing.T) {
	if !(Attachment{ContentType: "application/PDF"}).IsPDF() {
		t.Fatal("expected case-insensitive pdf match")
	}
	if (Attachment{ContentType: "text/html"}).IsPDF() {
		t.Fatal("did not expect html to be pdf")
	}
}

func TestAttachmentHasFile(t *testing.T) {
	if !(Attachment{LinkMode: "imported_file"}).HasFile() {
		t.Fatal("imported file should have a file")
	}
	if !(Attachment{}).HasFile() {
		t.Fatal("unknown link mode should be treated as a file")
	}
	if (Attachment{LinkMode: LinkModeLinkedURL}).HasFile() {
		t.Fatal("linked url has no file")
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    time.Time
		wantErr bool
	}{
		{name: "zulu", raw: "2024-01-05T10:00:00Z", want: time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)},
		{name: "offset", raw: "2024-01-05T12:00:00+02:00", want: time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)},
		{name: "naive", raw: "2024-01-05T10:00:00", want: time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)},
		{name: "naive fraction", raw: "2024-01-05T10:00:00.250", want: time.Date(2024, 1, 5, 10, 0, 0, 250000000, time.UTC)},
		{name: "fraction zulu", raw: "2024-01-05T10:00:00.123456789Z", want: time.Date(2024, 1, 5, 10, 0, 0, 123456789, time.UTC)},
		{name: "empty", raw: "", wantErr: true},
		{name: "garbage", raw: "yesterday", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestDeviceEntryPath(t *testing.T) {
	entry := DeviceEntry{Name: "paper", Folder: "/Zotero/read/"}
	if got := entry.Path(); got != "/Zotero/read/paper" {
		t.Fatalf("unexpected path %q", got)
	}
}
