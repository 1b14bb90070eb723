package reconcile

import (
	"testing"
	"time"

	"paperbridge/internal/models"
)

func snapshotWith(attachments ...models.Attachment) []SyncedItem {
	return []SyncedItem{{
		Item:        models.LibraryItem{Key: "I1", Tags: []string{"synced"}},
		Attachments: attachments,
	}}
}

func TestDecide(t *testing.T) {
	device := *ts("2024-01-05T10:00:00")

	tests := []struct {
		name     string
		snapshot []SyncedItem
		want     Decision
	}{
		{
			name:     "no match is ambiguous",
			snapshot: snapshotWith(models.Attachment{Filename: "other.pdf", DateModified: ts("2024-01-01T00:00:00Z")}),
			want:     Ambiguous,
		},
		{
			name:     "empty snapshot is ambiguous",
			snapshot: nil,
			want:     Ambiguous,
		},
		{
			name:     "device newer pulls",
			snapshot: snapshotWith(models.Attachment{Filename: "paper.pdf", DateModified: ts("2024-01-01T00:00:00Z")}),
			want:     NeedsPull,
		},
		{
			name:     "library newer skips",
			snapshot: snapshotWith(models.Attachment{Filename: "paper.pdf", DateModified: ts("2024-02-01T00:00:00Z")}),
			want:     Skip,
		},
		{
			name:     "equal times skip",
			snapshot: snapshotWith(models.Attachment{Filename: "paper.pdf", DateModified: ts("2024-01-05T10:00:00Z")}),
			want:     Skip,
		},
		{
			name:     "match without timestamp always pulls",
			snapshot: snapshotWith(models.Attachment{Filename: "paper.pdf"}),
			want:     AlwaysPull,
		},
		{
			name: "newest match across items wins",
			snapshot: []SyncedItem{
				{Attachments: []models.Attachment{{Filename: "paper.pdf", DateModified: ts("2024-01-01T00:00:00Z")}}},
				{Attachments: []models.Attachment{{Filename: "(Annot) paper.pdf", DateModified: ts("2024-01-06T00:00:00Z")}}},
			},
			want: Skip,
		},
		{
			name: "timestamp on one match is enough",
			snapshot: snapshotWith(
				models.Attachment{Filename: "paper.pdf"},
				models.Attachment{Filename: "(Annot) paper.pdf", DateModified: ts("2024-01-02T00:00:00Z")},
			),
			want: NeedsPull,
		},
		{
			name:     "zoned library time compared in UTC",
			snapshot: snapshotWith(models.Attachment{Filename: "paper.pdf", DateModified: ts("2024-01-05T11:30:00+02:00")}),
			want:     NeedsPull,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Decide("paper", device, tc.snapshot); got != tc.want {
				t.Fatalf("Decide = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDecideBoundary(t *testing.T) {
	library := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	snapshot := snapshotWith(models.Attachment{Filename: "paper.pdf", DateModified: &library})

	if got := Decide("paper", library.Add(time.Nanosecond), snapshot); got != NeedsPull {
		t.Fatalf("strictly newer device = %v, want NeedsPull", got)
	}
	if got := Decide("paper", library.Add(-time.Second), snapshot); got != Skip {
		t.Fatalf("older device = %v, want Skip", got)
	}
}
