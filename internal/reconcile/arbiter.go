package reconcile

import (
	"time"

	"paperbridge/internal/models"
)

// Decision is the arbiter's verdict for one device entry.
type Decision int

const (
	// Ambiguous means no synced attachment matches the entry.
	Ambiguous Decision = iota
	// NeedsPull means the device copy is newer than every matching attachment.
	NeedsPull
	// AlwaysPull means matches exist but none carries a modification time.
	AlwaysPull
	// Skip means the library already holds a copy at least as new.
	Skip
)

func (d Decision) String() string {
	switch d {
	case NeedsPull:
		return "needs_pull"
	case AlwaysPull:
		return "always_pull"
	case Skip:
		return "skip"
	default:
		return "ambiguous"
	}
}

// SyncedItem is a library item tagged synced together with its attachments,
// as captured at the start of a pull pass.
type SyncedItem struct {
	Item        models.LibraryItem
	Attachments []models.Attachment
}

// Decide compares the device entry's client modification time against the
// newest matching attachment in snapshot.
func Decide(entryName string, deviceModified time.Time, snapshot []SyncedItem) Decision {
	latest, found := latestMatch(entryName, snapshot)
	switch {
	case !found:
		return Ambiguous
	case latest.IsZero():
		return AlwaysPull
	case deviceModified.After(latest):
		return NeedsPull
	default:
		return Skip
	}
}

// latestMatch returns the newest modification time among attachments matching
// entryName, and whether any attachment matched at all.
func latestMatch(entryName string, snapshot []SyncedItem) (time.Time, bool) {
	var (
		latest time.Time
		found  bool
	)
	for _, synced := range snapshot {
		for _, att := range synced.Attachments {
			if !Matches(entryName, att.Filename) {
				continue
			}
			found = true
			if att.DateModified != nil && att.DateModified.After(latest) {
				latest = *att.DateModified
			}
		}
	}
	return latest, found
}
