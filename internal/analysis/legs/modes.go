package legs

import (
	"context"
	"log"

	"github.com/jengzang/legs-backend-go/internal/models"
	"github.com/jengzang/legs-backend-go/internal/transit/live"
	"github.com/jengzang/legs-backend-go/internal/transit/planner"
)

// LiveMatcher matches a leg's points against live vehicle positions
type LiveMatcher interface {
	Match(ctx context.Context, points []models.RawPoint) (live.Match, bool, error)
}

// PlannerMatcher matches a leg against journey planner itineraries
type PlannerMatcher interface {
	Match(ctx context.Context, leg models.Leg) (planner.Match, bool, error)
}

// ModeDetection is the outcome of detecting one leg's mode
type ModeDetection struct {
	// Sources lists the sources whose attempt completed; only these are reconciled
	Sources  []models.ModeSource
	Computed map[models.ModeSource]models.ModeAssignment
	// Complete is true when no attempted source failed
	Complete bool
}

// ModeDetector runs the live matcher and falls back to the planner
type ModeDetector struct {
	Live    LiveMatcher
	Planner PlannerMatcher
}

// Enabled reports whether any source is configured
func (d *ModeDetector) Enabled() bool {
	return d != nil && (d.Live != nil || d.Planner != nil)
}

// Detect determines the mode of an IN_VEHICLE leg from its points.
// A failing source is logged and left out, so its stored assignment is kept.
func (d *ModeDetector) Detect(ctx context.Context, leg models.Leg, points []models.RawPoint) ModeDetection {
	out := ModeDetection{Computed: make(map[models.ModeSource]models.ModeAssignment), Complete: true}

	if d.Live != nil {
		m, ok, err := d.Live.Match(ctx, points)
		switch {
		case err != nil:
			log.Printf("[ModeDetector] Live match failed (leg_id=%d, device_id=%d): %v", leg.ID, leg.DeviceID, err)
			out.Complete = false
		case ok:
			out.Sources = append(out.Sources, models.SourceLive)
			out.Computed[models.SourceLive] = models.ModeAssignment{
				LegID: leg.ID, Source: models.SourceLive, Mode: m.LineType, Line: m.LineName,
			}
		default:
			out.Sources = append(out.Sources, models.SourceLive)
		}
	}

	if _, ok := out.Computed[models.SourceLive]; ok {
		// a live match supersedes any earlier planner guess
		out.Sources = append(out.Sources, models.SourcePlanner)
		return out
	}

	if d.Planner != nil {
		m, ok, err := d.Planner.Match(ctx, leg)
		switch {
		case err != nil:
			log.Printf("[ModeDetector] Planner match failed (leg_id=%d, device_id=%d): %v", leg.ID, leg.DeviceID, err)
			out.Complete = false
		case ok:
			out.Sources = append(out.Sources, models.SourcePlanner)
			out.Computed[models.SourcePlanner] = models.ModeAssignment{
				LegID: leg.ID, Source: models.SourcePlanner, Mode: m.Mode, Line: m.Line,
			}
		default:
			out.Sources = append(out.Sources, models.SourcePlanner)
		}
	}
	return out
}
