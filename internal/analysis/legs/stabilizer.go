package legs

import (
	"time"

	"github.com/jengzang/legs-backend-go/internal/models"
)

const (
	// ConsecutiveDifferenceLimit is the number of agreeing points needed to
	// commit an activity, and of disagreeing points needed to leave it.
	ConsecutiveDifferenceLimit = 6
	// MaxPointTimeDifference is the largest gap between points of one leg
	MaxPointTimeDifference = 300 * time.Second
)

// StabilizationContext is the hysteresis state of one device's point stream.
// The zero value starts a fresh stream.
type StabilizationContext struct {
	Chosen      models.Activity
	LastCurrent models.Activity

	MatchCounter             int
	ConsecutiveDifferences   int
	DifferentActivityCounter int

	// Queue holds the points not yet emitted in a group
	Queue []models.RawPoint

	prevTuple models.ActivityTuple
	prevTime  time.Time
	hasPrev   bool
}

// PointGroup is a run of points sharing one stabilized activity.
// Activity is NOT_SET for the undecided tail.
type PointGroup struct {
	Activity models.Activity
	Points   []models.RawPoint
}

// Stabilize pushes points through the context in order and returns the new
// context and the groups completed along the way.
func Stabilize(c StabilizationContext, points []models.RawPoint) (StabilizationContext, []PointGroup) {
	var groups []PointGroup
	for _, p := range points {
		var out []PointGroup
		c, out = c.Push(p)
		groups = append(groups, out...)
	}
	return c, groups
}

// Push processes one point
func (c StabilizationContext) Push(p models.RawPoint) (StabilizationContext, []PointGroup) {
	var out []PointGroup

	if c.hasPrev && p.Time.Sub(c.prevTime) > MaxPointTimeDifference {
		if c.Chosen != models.ActivityNotSet && len(c.Queue) > 0 {
			out = append(out, newGroup(c.Chosen, c.Queue))
		}
		c = StabilizationContext{prevTuple: c.prevTuple, prevTime: c.prevTime, hasPrev: true}
	}

	current := ResolveActivity(p)
	if isStaleRepeat(p, c.prevTuple, c.hasPrev) {
		current = models.ActivityNotSet
	}
	c.prevTuple, c.prevTime, c.hasPrev = p.Tuple(), p.Time, true

	c.Queue = append(c.Queue[:len(c.Queue):len(c.Queue)], p)

	if current != models.ActivityNotSet {
		if current == c.LastCurrent {
			c.MatchCounter++
		} else {
			c.LastCurrent = current
			c.MatchCounter = 1
		}
	}

	if c.Chosen == models.ActivityNotSet {
		if current != models.ActivityNotSet && c.MatchCounter >= ConsecutiveDifferenceLimit {
			c.Chosen = current
			c.resetCounters()
		}
		return c, out
	}

	switch current {
	case c.Chosen:
		c.ConsecutiveDifferences = 0
		c.DifferentActivityCounter = 0
	case models.ActivityNotSet:
		c.DifferentActivityCounter++
	default:
		c.ConsecutiveDifferences++
		c.DifferentActivityCounter++
	}

	if c.ConsecutiveDifferences >= ConsecutiveDifferenceLimit {
		split := ConsecutiveDifferenceLimit + (c.DifferentActivityCounter-ConsecutiveDifferenceLimit)/2
		if split > len(c.Queue) {
			split = len(c.Queue)
		}
		cut := len(c.Queue) - split
		if cut > 0 {
			out = append(out, newGroup(c.Chosen, c.Queue[:cut]))
		}
		c.Queue = append([]models.RawPoint(nil), c.Queue[cut:]...)
		c.Chosen = current
		c.resetCounters()
	}
	return c, out
}

// Finish flushes the queue at the end of input. Points after the last agreement
// with the chosen activity, or the whole queue if nothing was committed, form
// the undecided tail.
func Finish(c StabilizationContext) []PointGroup {
	if len(c.Queue) == 0 {
		return nil
	}
	if c.Chosen == models.ActivityNotSet {
		return []PointGroup{newGroup(models.ActivityNotSet, c.Queue)}
	}

	var out []PointGroup
	n := len(c.Queue) - c.DifferentActivityCounter
	if n > 0 {
		out = append(out, newGroup(c.Chosen, c.Queue[:n]))
	}
	if n < len(c.Queue) {
		out = append(out, newGroup(models.ActivityNotSet, c.Queue[n:]))
	}
	return out
}

func (c *StabilizationContext) resetCounters() {
	c.MatchCounter = 0
	c.ConsecutiveDifferences = 0
	c.DifferentActivityCounter = 0
}

func newGroup(a models.Activity, points []models.RawPoint) PointGroup {
	return PointGroup{Activity: a, Points: append([]models.RawPoint(nil), points...)}
}
