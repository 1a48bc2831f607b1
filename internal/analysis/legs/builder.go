package legs

import "github.com/jengzang/legs-backend-go/internal/models"

// CandidateLeg is a computed leg together with the points it was built from
type CandidateLeg struct {
	models.Leg
	Points []models.RawPoint
}

// BuildLegs materializes point groups into candidate legs of one device.
// A committed group spanning no time is dropped; the undecided tail is kept
// even as a single point.
func BuildLegs(deviceID int64, groups []PointGroup) []CandidateLeg {
	legs := make([]CandidateLeg, 0, len(groups))
	for _, g := range groups {
		if len(g.Points) == 0 {
			continue
		}
		first, last := g.Points[0], g.Points[len(g.Points)-1]
		if g.Activity != models.ActivityNotSet && !last.Time.After(first.Time) {
			continue
		}
		legs = append(legs, CandidateLeg{
			Leg: models.Leg{
				DeviceID:        deviceID,
				TimeStart:       first.Time,
				TimeEnd:         last.Time,
				CoordinateStart: first.Coordinate,
				CoordinateEnd:   last.Coordinate,
				Activity:        g.Activity,
			},
			Points: g.Points,
		})
	}
	return legs
}
