package legs

import (
	"sort"
	"time"

	"github.com/jengzang/legs-backend-go/internal/models"
)

// MaxDifferentDeviceTimeDifference is the window in which points of two devices
// of the same user are considered duplicates of each other
const MaxDifferentDeviceTimeDifference = 40 * time.Second

// SortPoints orders a user's merged stream by time, device and id
func SortPoints(points []models.RawPoint) {
	sort.SliceStable(points, func(i, j int) bool {
		a, b := points[i], points[j]
		if !a.Time.Equal(b.Time) {
			return a.Time.Before(b.Time)
		}
		if a.DeviceID != b.DeviceID {
			return a.DeviceID < b.DeviceID
		}
		return a.ID < b.ID
	})
}

// FilterCollisions drops cross-device duplicates from a user's merged stream.
// When a point follows the last kept point of another device within the window,
// the lower device id wins: a higher-id newcomer is dropped, a lower-id newcomer
// replaces the kept point. seed, if given, is the last kept point before the
// stream; seedReplaced reports that the newcomer displaced it.
func FilterCollisions(seed *models.RawPoint, points []models.RawPoint) (kept []models.RawPoint, seedReplaced bool) {
	SortPoints(points)

	var last models.RawPoint
	hasLast := seed != nil
	if hasLast {
		last = *seed
	}

	for _, p := range points {
		if hasLast && last.DeviceID != p.DeviceID && p.Time.Sub(last.Time) <= MaxDifferentDeviceTimeDifference {
			if p.DeviceID > last.DeviceID {
				continue
			}
			if len(kept) > 0 {
				kept[len(kept)-1] = p
			} else {
				seedReplaced = true
				kept = append(kept, p)
			}
			last = p
			continue
		}
		kept = append(kept, p)
		last, hasLast = p, true
	}
	return kept, seedReplaced
}
