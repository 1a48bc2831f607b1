package planner

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/legs-backend-go/internal/models"
)

var legStart = time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC) // Monday

func vehicleLeg(d time.Duration) models.Leg {
	return models.Leg{
		DeviceID:        1,
		TimeStart:       legStart,
		TimeEnd:         legStart.Add(d),
		CoordinateStart: models.Coordinate{Lat: 60.17, Lon: 24.94},
		CoordinateEnd:   models.Coordinate{Lat: 60.21, Lon: 24.66},
		Activity:        models.ActivityInVehicle,
	}
}

func ms(t time.Time) int64 { return t.UnixMilli() }

// itinerary walks for walk, rides for ride starting after walk, then walks for walk again
func itinerary(start time.Time, walk, ride time.Duration, mode, route string) Itinerary {
	return walkRideWalk(start, walk, ride, walk, mode, route)
}

func walkRideWalk(start time.Time, before, ride, after time.Duration, mode, route string) Itinerary {
	board := start.Add(before)
	alight := board.Add(ride)
	end := alight.Add(after)
	return Itinerary{
		Duration:  int64((before + ride + after) / time.Second),
		StartTime: ms(start),
		EndTime:   ms(end),
		Legs: []Leg{
			{Mode: "WALK", Duration: before.Seconds(), StartTime: ms(start), EndTime: ms(board)},
			{Mode: mode, Route: route, TransitLeg: true, Duration: ride.Seconds(), StartTime: ms(board), EndTime: ms(alight)},
			{Mode: "WALK", Duration: after.Seconds(), StartTime: ms(alight), EndTime: ms(end)},
		},
	}
}

func TestEvaluate(t *testing.T) {
	observed := 20 * time.Minute

	// the bus ride alone is accepted, so only the tram transfer can reject twoTransit
	oneTransit := walkRideWalk(legStart, 3*time.Minute, 20*time.Minute, time.Minute, "BUS", "550")
	_, ok := evaluate(oneTransit, legStart, observed)
	require.True(t, ok)

	twoTransit := oneTransit
	twoTransit.Legs = append(append([]Leg(nil), oneTransit.Legs...), Leg{Mode: "TRAM", Route: "4", TransitLeg: true, Duration: 120,
		StartTime: ms(legStart.Add(24 * time.Minute)), EndTime: ms(legStart.Add(26 * time.Minute))})
	twoTransit.Duration += 120
	twoTransit.EndTime = ms(legStart.Add(26 * time.Minute))

	tests := []struct {
		name string
		it   Itinerary
		want bool
	}{
		{"fits", itinerary(legStart, 3*time.Minute, 20*time.Minute, "BUS", "550"), true},
		{"two transit legs", twoTransit, false},
		{"walk only", Itinerary{Duration: 1200, Legs: []Leg{{Mode: "WALK", Duration: 1200}}}, false},
		{"faster than observed", itinerary(legStart, time.Minute, 12*time.Minute, "BUS", "550"), false},
		{"much slower than observed", itinerary(legStart, 10*time.Minute, 20*time.Minute, "BUS", "550"), false},
		{"ride too long", itinerary(legStart, 0, 25*time.Minute, "BUS", "550"), false},
		{"boards after bus headway", walkRideWalk(legStart, 11*time.Minute, 17*time.Minute, 0, "BUS", "550"), false},
		{"boards just within bus headway", walkRideWalk(legStart, 9*time.Minute, 17*time.Minute, 0, "BUS", "550"), true},
		{"boards within bus headway", itinerary(legStart, 6*time.Minute, 20*time.Minute, "BUS", "550"), true},
		{"boards after subway headway", itinerary(legStart, 6*time.Minute, 20*time.Minute, "SUBWAY", "M1"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := evaluate(tt.it, legStart, observed)
			assert.Equal(t, tt.want, ok)
			if tt.want {
				assert.NotEmpty(t, m.Mode)
			}
		})
	}
}

type scriptedPlanner struct {
	responses []*Response
	queries   []Query
	err       error
}

func (p *scriptedPlanner) Plan(_ context.Context, q Query) (*Response, error) {
	p.queries = append(p.queries, q)
	if p.err != nil {
		return nil, p.err
	}
	resp := p.responses[0]
	if len(p.responses) > 1 {
		p.responses = p.responses[1:]
	}
	return resp, nil
}

func TestMatchReturnsFirstPassingItinerary(t *testing.T) {
	p := &scriptedPlanner{responses: []*Response{{Plan: &Plan{Itineraries: []Itinerary{
		itinerary(legStart, 2*time.Minute, 5*time.Minute, "BUS", "23"),
		itinerary(legStart, 3*time.Minute, 20*time.Minute, "TRAM", "4"),
		itinerary(legStart, 3*time.Minute, 20*time.Minute, "BUS", "550"),
	}}}}}

	m, ok, err := NewMatcher(p, 3, time.UTC).Match(context.Background(), vehicleLeg(20*time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Match{Mode: "TRAM", Line: "4", Itinerary: 1}, m)

	require.Len(t, p.queries, 1)
	q := p.queries[0]
	assert.Equal(t, 1000, q.MaxWalkDistance)
	assert.Equal(t, 3, q.NumItineraries)
	assert.True(t, q.Start.Equal(legStart))
}

func TestMatchRetriesDateTooFarInCurrentWeek(t *testing.T) {
	now := time.Date(2024, 9, 12, 15, 0, 0, 0, time.UTC)   // Thursday
	shifted := time.Date(2024, 9, 9, 8, 0, 0, 0, time.UTC) // Monday of that week

	p := &scriptedPlanner{responses: []*Response{
		{Error: &ResponseError{ID: ErrIDDateTooFar, Msg: "NO_TRANSIT_TIMES"}},
		{Plan: &Plan{Itineraries: []Itinerary{itinerary(shifted, 3*time.Minute, 20*time.Minute, "BUS", "550")}}},
	}}
	matcher := NewMatcher(p, 3, time.UTC)
	matcher.now = func() time.Time { return now }

	m, ok, err := matcher.Match(context.Background(), vehicleLeg(20*time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "550", m.Line)

	require.Len(t, p.queries, 2)
	assert.True(t, p.queries[1].Start.Equal(shifted))
}

func TestMatchNoResultOnPlannerError(t *testing.T) {
	p := &scriptedPlanner{responses: []*Response{{Error: &ResponseError{ID: 404, Msg: "PATH_NOT_FOUND"}}}}
	_, ok, err := NewMatcher(p, 3, time.UTC).Match(context.Background(), vehicleLeg(20*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, p.queries, 1)

	p = &scriptedPlanner{err: errors.New("timeout")}
	_, ok, err = NewMatcher(p, 3, time.UTC).Match(context.Background(), vehicleLeg(20*time.Minute))
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestShiftToCurrentWeek(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Helsinki")
	if err != nil {
		t.Skip("time zone data not available")
	}

	// Saturday 23:30 local in winter, shifted into a summer week
	orig := time.Date(2023, 1, 14, 23, 30, 0, 0, loc)
	now := time.Date(2024, 6, 4, 10, 0, 0, 0, loc) // Tuesday

	got := ShiftToCurrentWeek(orig, now, loc)
	assert.True(t, got.Equal(time.Date(2024, 6, 8, 23, 30, 0, 0, loc)), got)
	assert.Equal(t, time.Saturday, got.Weekday())

	// Sunday belongs to the week starting the Monday before
	sunday := time.Date(2024, 6, 9, 12, 0, 0, 0, loc)
	got = ShiftToCurrentWeek(time.Date(2020, 3, 2, 7, 0, 0, 0, loc), sunday, loc)
	assert.True(t, got.Equal(time.Date(2024, 6, 3, 7, 0, 0, 0, loc)), got)
}

func TestMatchNoResultOnMalformedResponse(t *testing.T) {
	p := &scriptedPlanner{err: fmt.Errorf("%w: unexpected EOF", ErrMalformedResponse)}
	_, ok, err := NewMatcher(p, 3, time.UTC).Match(context.Background(), vehicleLeg(20*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, p.queries, 1)
}
