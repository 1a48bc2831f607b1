package planner

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/jengzang/legs-backend-go/internal/models"
)

const (
	// MaxModeDetectionDelay is how far, in meters, a stop may be from where the leg was detected
	MaxModeDetectionDelay = 500.0
	// MaxWalkDistance allows walking to a stop at both ends
	MaxWalkDistance = 2 * MaxModeDetectionDelay

	SlownessTolerance     = 120 * time.Second
	WalkSpeed             = 1.4 // m/s
	DetectionVehicleSpeed = 8.0 // m/s

	// DefaultMode asks for public transport itineraries
	DefaultMode = "TRANSIT,WALK"
)

var (
	// itineraryTolerance is how much longer than observed an itinerary may be
	itineraryTolerance = seconds(MaxWalkDistance/WalkSpeed + MaxWalkDistance/DetectionVehicleSpeed)
	// transitTolerance is how far a transit leg's duration may be from observed
	transitTolerance = seconds(MaxWalkDistance/DetectionVehicleSpeed) + SlownessTolerance
)

// Headways are the assumed service intervals per mode
var Headways = map[string]time.Duration{
	"BUS":    10 * time.Minute,
	"TRAM":   10 * time.Minute,
	"SUBWAY": 5 * time.Minute,
	"RAIL":   15 * time.Minute,
	"FERRY":  30 * time.Minute,
}

const defaultHeadway = 10 * time.Minute

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Planner answers journey planning queries
type Planner interface {
	Plan(ctx context.Context, q Query) (*Response, error)
}

// Match is the transit line an itinerary rode
type Match struct {
	Mode      string
	Line      string
	Itinerary int
}

// Matcher matches IN_VEHICLE legs against planned itineraries
type Matcher struct {
	planner        Planner
	numItineraries int
	loc            *time.Location
	now            func() time.Time
}

// NewMatcher creates a planner matcher. loc is the timetable's time zone.
func NewMatcher(p Planner, numItineraries int, loc *time.Location) *Matcher {
	if numItineraries <= 0 {
		numItineraries = 3
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Matcher{planner: p, numItineraries: numItineraries, loc: loc, now: time.Now}
}

// Match plans a trip between the leg's end points and returns the first itinerary
// consistent with the observed leg. Planner errors other than transport failures
// mean no match.
func (m *Matcher) Match(ctx context.Context, leg models.Leg) (Match, bool, error) {
	q := Query{
		Start:           leg.TimeStart,
		From:            leg.CoordinateStart,
		To:              leg.CoordinateEnd,
		Mode:            DefaultMode,
		MaxWalkDistance: int(MaxWalkDistance),
		NumItineraries:  m.numItineraries,
	}

	resp, err := m.plan(ctx, leg, q)
	if err != nil {
		return Match{}, false, err
	}

	if resp != nil && resp.Error != nil && resp.Error.ID == ErrIDDateTooFar {
		q.Start = ShiftToCurrentWeek(leg.TimeStart, m.now(), m.loc)
		if resp, err = m.plan(ctx, leg, q); err != nil {
			return Match{}, false, err
		}
	}

	if resp == nil || resp.Error != nil || resp.Plan == nil {
		return Match{}, false, nil
	}

	for i, it := range resp.Plan.Itineraries {
		if match, ok := evaluate(it, q.Start, leg.Duration()); ok {
			match.Itinerary = i
			return match, true, nil
		}
	}
	return Match{}, false, nil
}

// plan queries the planner. A malformed reply is logged and returned as a nil response,
// so the leg counts as having no planner match.
func (m *Matcher) plan(ctx context.Context, leg models.Leg, q Query) (*Response, error) {
	resp, err := m.planner.Plan(ctx, q)
	if errors.Is(err, ErrMalformedResponse) {
		log.Printf("[PlannerMatcher] No match (leg_id=%d, device_id=%d): %v", leg.ID, leg.DeviceID, err)
		return nil, nil
	}
	return resp, err
}

// evaluate checks one itinerary against a leg observed from start for observed
func evaluate(it Itinerary, start time.Time, observed time.Duration) (Match, bool) {
	var transit []Leg
	for _, l := range it.Legs {
		if l.TransitLeg {
			transit = append(transit, l)
		}
	}
	if len(transit) != 1 {
		return Match{}, false
	}

	total := time.Duration(it.Duration) * time.Second
	if total < observed-SlownessTolerance {
		return Match{}, false
	}
	if total-observed > itineraryTolerance {
		return Match{}, false
	}

	sub := transit[0]
	d := sub.duration() - observed
	if d < 0 {
		d = -d
	}
	if d > transitTolerance {
		return Match{}, false
	}
	if time.UnixMilli(sub.StartTime).Sub(start) > headway(sub.Mode) {
		return Match{}, false
	}
	return Match{Mode: sub.Mode, Line: sub.Route}, true
}

func (l Leg) duration() time.Duration {
	if l.Duration > 0 {
		return seconds(l.Duration)
	}
	return time.Duration(l.EndTime-l.StartTime) * time.Millisecond
}

func headway(mode string) time.Duration {
	if h, ok := Headways[mode]; ok {
		return h
	}
	return defaultHeadway
}

// ShiftToCurrentWeek moves t to the same weekday and wall clock time in the week of now
func ShiftToCurrentWeek(t, now time.Time, loc *time.Location) time.Time {
	tl, nl := t.In(loc), now.In(loc)
	monday := time.Date(nl.Year(), nl.Month(), nl.Day()-daysSinceMonday(nl), 0, 0, 0, 0, loc)
	return time.Date(monday.Year(), monday.Month(), monday.Day()+daysSinceMonday(tl),
		tl.Hour(), tl.Minute(), tl.Second(), 0, loc)
}

func daysSinceMonday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
