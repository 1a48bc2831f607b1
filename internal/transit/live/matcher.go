package live

import (
	"context"
	"fmt"
	"time"

	"github.com/paulmach/orb"

	"github.com/jengzang/legs-backend-go/internal/models"
	"github.com/jengzang/legs-backend-go/internal/spatial"
)

const (
	NumberOfMassTransitMatchSamples  = 4
	MaxMassTransitTimeDifference     = 60 * time.Second
	MaxMassTransitDistanceDifference = 100.0 // meters
	MaximumMassTransitMisses         = 1
)

// VehicleFeed is the live vehicle position source
type VehicleFeed interface {
	VehiclesNear(ctx context.Context, at time.Time, window time.Duration, bound orb.Bound) ([]models.VehicleSample, error)
}

// Match is the vehicle that best followed a leg
type Match struct {
	VehicleRef    string
	LineType      string
	LineName      string
	Matches       int
	TotalDistance float64
}

// Matcher correlates a leg's points with live vehicle positions
type Matcher struct {
	feed VehicleFeed
}

// NewMatcher creates a live matcher over a vehicle feed
func NewMatcher(feed VehicleFeed) *Matcher {
	return &Matcher{feed: feed}
}

type candidate struct {
	sample   models.VehicleSample
	matches  int
	distance float64
}

// Match samples the leg's points and returns the vehicle seen near most of them
// with the lowest accumulated distance. ok is false when no vehicle qualifies.
func (m *Matcher) Match(ctx context.Context, points []models.RawPoint) (Match, bool, error) {
	samples := SamplePoints(points, NumberOfMassTransitMatchSamples)
	if len(samples) == 0 {
		return Match{}, false, nil
	}

	candidates := make(map[string]*candidate)
	for _, p := range samples {
		nearest, err := m.nearestVehicles(ctx, p)
		if err != nil {
			return Match{}, false, err
		}
		for ref, near := range nearest {
			c, ok := candidates[ref]
			if !ok {
				c = &candidate{sample: near.sample}
				candidates[ref] = c
			}
			c.matches++
			c.distance += near.distance
		}
	}

	required := len(samples) - MaximumMassTransitMisses
	var best *candidate
	for ref, c := range candidates {
		if c.matches < required {
			continue
		}
		if best == nil || c.distance < best.distance ||
			(c.distance == best.distance && ref < best.sample.VehicleRef) {
			best = c
		}
	}
	if best == nil {
		return Match{}, false, nil
	}
	return Match{
		VehicleRef:    best.sample.VehicleRef,
		LineType:      best.sample.LineType,
		LineName:      best.sample.LineName,
		Matches:       best.matches,
		TotalDistance: best.distance,
	}, true, nil
}

type nearSample struct {
	sample   models.VehicleSample
	distance float64
}

// nearestVehicles returns, per vehicle, its closest report to p within the limits
func (m *Matcher) nearestVehicles(ctx context.Context, p models.RawPoint) (map[string]nearSample, error) {
	bound := spatial.BoundAround(p.Coordinate, MaxMassTransitDistanceDifference)
	vehicles, err := m.feed.VehiclesNear(ctx, p.Time, MaxMassTransitTimeDifference, bound)
	if err != nil {
		return nil, fmt.Errorf("failed to query vehicles near point %d: %w", p.ID, err)
	}

	nearest := make(map[string]nearSample)
	for _, v := range vehicles {
		dt := v.Time.Sub(p.Time)
		if dt < -MaxMassTransitTimeDifference || dt > MaxMassTransitTimeDifference {
			continue
		}
		d := spatial.Distance(p.Coordinate, v.Coordinate)
		if d > MaxMassTransitDistanceDifference {
			continue
		}
		if cur, ok := nearest[v.VehicleRef]; !ok || d < cur.distance {
			nearest[v.VehicleRef] = nearSample{sample: v, distance: d}
		}
	}
	return nearest, nil
}

// SamplePoints picks n points evenly spaced over the sequence, including both ends.
// Sequences of at most n points are returned whole.
func SamplePoints(points []models.RawPoint, n int) []models.RawPoint {
	switch {
	case n <= 0:
		return nil
	case len(points) <= n:
		return points
	case n == 1:
		return points[:1]
	}
	out := make([]models.RawPoint, n)
	for i := range out {
		out[i] = points[i*(len(points)-1)/(n-1)]
	}
	return out
}
