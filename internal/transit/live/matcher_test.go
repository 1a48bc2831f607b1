package live

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/legs-backend-go/internal/models"
)

// fakeFeed returns the samples inside the queried window and bound
type fakeFeed struct {
	samples []models.VehicleSample
	err     error
	calls   int
}

func (f *fakeFeed) VehiclesNear(_ context.Context, at time.Time, window time.Duration, bound orb.Bound) ([]models.VehicleSample, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []models.VehicleSample
	for _, s := range f.samples {
		if s.Time.Before(at.Add(-window)) || s.Time.After(at.Add(window)) {
			continue
		}
		if !bound.Contains(orb.Point{s.Coordinate.Lon, s.Coordinate.Lat}) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

var t0 = time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)

// route returns n points heading north one ~111 m step per minute
func route(n int) []models.RawPoint {
	points := make([]models.RawPoint, n)
	for i := range points {
		points[i] = models.RawPoint{
			ID:         int64(i + 1),
			DeviceID:   1,
			Time:       t0.Add(time.Duration(i) * time.Minute),
			Coordinate: models.Coordinate{Lat: 60.0 + float64(i)*0.001, Lon: 25.0},
		}
	}
	return points
}

// follow reports a vehicle next to the given points, offset east by dLon degrees
func follow(ref, lineType, line string, points []models.RawPoint, dLon float64) []models.VehicleSample {
	var out []models.VehicleSample
	for _, p := range points {
		out = append(out, models.VehicleSample{
			VehicleRef: ref,
			LineType:   lineType,
			LineName:   line,
			Time:       p.Time.Add(10 * time.Second),
			Coordinate: models.Coordinate{Lat: p.Coordinate.Lat, Lon: p.Coordinate.Lon + dLon},
		})
	}
	return out
}

func TestSamplePoints(t *testing.T) {
	points := route(10)

	samples := SamplePoints(points, 4)
	require.Len(t, samples, 4)
	assert.Equal(t, []int64{1, 4, 7, 10}, []int64{samples[0].ID, samples[1].ID, samples[2].ID, samples[3].ID})

	assert.Len(t, SamplePoints(points[:3], 4), 3)
	assert.Empty(t, SamplePoints(nil, 4))
}

func TestMatchPicksLowestDistanceAmongThreeOfFour(t *testing.T) {
	points := route(10)
	samples := SamplePoints(points, 4)

	// both vehicles are seen in 3 of 4 samples; "far" is ~40 m away, "near" ~10 m
	feed := &fakeFeed{}
	feed.samples = append(feed.samples, follow("far", "BUS", "550", samples[:3], 0.0007)...)
	feed.samples = append(feed.samples, follow("near", "TRAM", "4", samples[1:], 0.0002)...)

	m, ok, err := NewMatcher(feed).Match(context.Background(), points)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "near", m.VehicleRef)
	assert.Equal(t, "TRAM", m.LineType)
	assert.Equal(t, "4", m.LineName)
	assert.Equal(t, 3, m.Matches)
	assert.Equal(t, 4, feed.calls)
}

func TestMatchRejectsVehicleMissingTwoSamples(t *testing.T) {
	points := route(10)
	samples := SamplePoints(points, 4)

	feed := &fakeFeed{samples: follow("v1", "BUS", "550", samples[:2], 0.0002)}

	_, ok, err := NewMatcher(feed).Match(context.Background(), points)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatchIgnoresVehiclesOutOfRange(t *testing.T) {
	points := route(10)
	samples := SamplePoints(points, 4)

	// ~170 m east is beyond the distance limit
	feed := &fakeFeed{samples: follow("v1", "BUS", "550", samples, 0.003)}
	_, ok, err := NewMatcher(feed).Match(context.Background(), points)
	require.NoError(t, err)
	assert.False(t, ok)

	// reported two minutes late is beyond the time limit
	late := follow("v2", "BUS", "550", samples, 0.0001)
	for i := range late {
		late[i].Time = late[i].Time.Add(2 * time.Minute)
	}
	feed = &fakeFeed{samples: late}
	_, ok, err = NewMatcher(feed).Match(context.Background(), points)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatchKeepsNearestReportPerSample(t *testing.T) {
	points := route(4)

	feed := &fakeFeed{}
	feed.samples = append(feed.samples, follow("v1", "BUS", "550", points, 0.0005)...)
	// a second, closer report of the same vehicle at every sample
	feed.samples = append(feed.samples, follow("v1", "BUS", "550", points, 0.0001)...)
	for i := len(points); i < len(feed.samples); i++ {
		feed.samples[i].Time = feed.samples[i].Time.Add(5 * time.Second)
	}

	m, ok, err := NewMatcher(feed).Match(context.Background(), points)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4, m.Matches)
	// four reports ~5.6 m away each
	assert.InDelta(t, 22, m.TotalDistance, 2)
}

func TestMatchPropagatesFeedErrors(t *testing.T) {
	feed := &fakeFeed{err: errors.New("db closed")}
	_, ok, err := NewMatcher(feed).Match(context.Background(), route(5))
	assert.Error(t, err)
	assert.False(t, ok)
}
