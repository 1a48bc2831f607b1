package legs

import (
	"sort"
	"time"

	"github.com/jengzang/legs-backend-go/internal/models"
)

// ResolveAttachments decides which of a user's committed legs join the user's timeline.
// Scanning legs in end order from the earliest eligible start, a leg attaches when it
// starts no earlier than the end of the last attached one, so shorter recent legs of
// one device win over a long leg of another device covering the same interval.
// Legs already attached stay attached. Returns the ids of legs to attach.
func ResolveAttachments(userID int64, legs []models.Leg) []int64 {
	var t0 time.Time
	found := false
	for _, l := range legs {
		if l.AttachedTo(userID) || coveredByAttached(userID, l, legs) {
			continue
		}
		if !found || l.TimeStart.Before(t0) {
			t0, found = l.TimeStart, true
		}
	}
	if !found {
		return nil
	}

	var scan []models.Leg
	for _, l := range legs {
		if l.TimeEnd.After(t0) {
			scan = append(scan, l)
		}
	}
	sort.SliceStable(scan, func(i, j int) bool {
		a, b := scan[i], scan[j]
		if !a.TimeEnd.Equal(b.TimeEnd) {
			return a.TimeEnd.Before(b.TimeEnd)
		}
		if !a.TimeStart.Equal(b.TimeStart) {
			return a.TimeStart.After(b.TimeStart)
		}
		if a.DeviceID != b.DeviceID {
			return a.DeviceID < b.DeviceID
		}
		return a.ID < b.ID
	})

	var attach []int64
	lastEnd := t0
	for _, l := range scan {
		if l.TimeStart.Before(lastEnd) {
			continue
		}
		if !l.AttachedTo(userID) {
			attach = append(attach, l.ID)
		}
		lastEnd = l.TimeEnd
	}
	return attach
}

// coveredByAttached reports whether l ends inside a leg already attached to the user
func coveredByAttached(userID int64, l models.Leg, legs []models.Leg) bool {
	for _, a := range legs {
		if a.ID == l.ID || !a.AttachedTo(userID) {
			continue
		}
		if a.TimeStart.Before(l.TimeEnd) && !l.TimeEnd.After(a.TimeEnd) {
			return true
		}
	}
	return false
}
