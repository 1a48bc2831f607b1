package legs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jengzang/legs-backend-go/internal/models"
)

func point(id, deviceID int64, at time.Duration) models.RawPoint {
	return models.RawPoint{ID: id, DeviceID: deviceID, Time: t0.Add(at)}
}

func ids(points []models.RawPoint) []int64 {
	out := make([]int64, len(points))
	for i, p := range points {
		out[i] = p.ID
	}
	return out
}

func TestFilterCollisions(t *testing.T) {
	points := []models.RawPoint{
		point(6, 1, 250*time.Second),
		point(1, 2, 0),
		point(2, 1, 10*time.Second),  // lower device replaces id 1
		point(3, 2, 30*time.Second),  // higher device within window, dropped
		point(4, 1, 60*time.Second),  // same device, kept
		point(5, 2, 200*time.Second), // outside window, kept
		point(7, 2, 210*time.Second), // replaced by id 6 exactly 40s later
	}

	kept, seedReplaced := FilterCollisions(nil, points)
	assert.False(t, seedReplaced)
	assert.Equal(t, []int64{2, 4, 5, 6}, ids(kept))
}

func TestFilterCollisionsWindowIsInclusive(t *testing.T) {
	kept, _ := FilterCollisions(nil, []models.RawPoint{point(1, 1, 0), point(2, 2, 40*time.Second)})
	assert.Equal(t, []int64{1}, ids(kept))

	kept, _ = FilterCollisions(nil, []models.RawPoint{point(1, 1, 0), point(2, 2, 41*time.Second)})
	assert.Equal(t, []int64{1, 2}, ids(kept))
}

func TestFilterCollisionsWithSeed(t *testing.T) {
	seed := point(1, 2, 0)
	kept, seedReplaced := FilterCollisions(&seed, []models.RawPoint{point(2, 1, 5*time.Second)})
	assert.True(t, seedReplaced)
	assert.Equal(t, []int64{2}, ids(kept))

	seed = point(1, 1, 0)
	kept, seedReplaced = FilterCollisions(&seed, []models.RawPoint{point(2, 2, 5*time.Second)})
	assert.False(t, seedReplaced)
	assert.Empty(t, kept)
}
