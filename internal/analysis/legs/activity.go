package legs

import "github.com/jengzang/legs-backend-go/internal/models"

// transport-relevant activities. TILTING and UNKNOWN never resolve.
var relevantActivities = map[models.Activity]bool{
	models.ActivityInVehicle: true,
	models.ActivityOnBicycle: true,
	models.ActivityOnFoot:    true,
	models.ActivityRunning:   true,
	models.ActivityWalking:   true,
	models.ActivityStill:     true,
}

// ResolveActivity picks the highest ranked relevant guess with a positive confidence.
// ON_FOOT is reported as WALKING.
func ResolveActivity(p models.RawPoint) models.Activity {
	current := models.ActivityNotSet
	guesses := []struct {
		activity   models.Activity
		confidence int
	}{
		{p.Activity3, p.Confidence3},
		{p.Activity2, p.Confidence2},
		{p.Activity1, p.Confidence1},
	}
	for _, g := range guesses {
		if g.confidence > 0 && relevantActivities[g.activity] {
			current = g.activity
		}
	}
	if current == models.ActivityOnFoot {
		return models.ActivityWalking
	}
	return current
}

// isStaleRepeat reports a low-confidence reading identical to the previous one
func isStaleRepeat(p models.RawPoint, prev models.ActivityTuple, hasPrev bool) bool {
	return hasPrev && p.Confidence1 < 100 && p.Tuple() == prev
}
