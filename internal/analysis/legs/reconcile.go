package legs

import (
	"context"
	"fmt"
	"time"

	"github.com/jengzang/legs-backend-go/internal/models"
	"github.com/jengzang/legs-backend-go/internal/repository"
)

const (
	// ResumeLookback is how many committed legs are recomputed on each pass
	ResumeLookback = 4
	// RewriteWindow is how many of the last committed legs may be replaced
	RewriteWindow = 2
)

// ResumePoint bounds an incremental pass over one device.
// Zero values mean the whole history.
type ResumePoint struct {
	// From is the time points are reloaded from
	From time.Time
	// FrozenUntil is the end of the newest leg that may no longer change
	FrozenUntil time.Time
}

// ComputeResumePoint derives the resume point from the device's latest committed legs, oldest first
func ComputeResumePoint(committed []models.Leg, repair bool) ResumePoint {
	var rp ResumePoint
	if repair {
		return rp
	}
	n := len(committed)
	if n >= ResumeLookback {
		rp.From = committed[n-ResumeLookback].TimeStart
	}
	if n > RewriteWindow {
		rp.FrozenUntil = committed[n-RewriteWindow-1].TimeEnd
	}
	return rp
}

// ReconcileResult counts the writes of one reconciliation
type ReconcileResult struct {
	Inserted  int
	Unchanged int
	Frozen    int
	Deleted   int64
}

// Reconciler writes candidate legs over the stored ones with minimal changes
type Reconciler struct {
	legs *repository.LegRepository
}

// NewReconciler creates a reconciler
func NewReconciler(legs *repository.LegRepository) *Reconciler {
	return &Reconciler{legs: legs}
}

// ResumePoint loads the device's resume point
func (r *Reconciler) ResumePoint(ctx context.Context, deviceID int64, repair bool) (ResumePoint, error) {
	if repair {
		return ResumePoint{}, nil
	}
	committed, err := r.legs.LastCommittedLegs(ctx, deviceID, ResumeLookback)
	if err != nil {
		return ResumePoint{}, fmt.Errorf("failed to load last legs: %w", err)
	}
	return ComputeResumePoint(committed, false), nil
}

// Reconcile stores the device's candidates, computed from points after rp.From up to cutoff.
// Candidates starting before rp.FrozenUntil are skipped. A candidate identical to a
// stored leg is a no-op; any other replaces the stored legs it overlaps since the
// previous candidate. Stored legs left after the last candidate are removed.
func (r *Reconciler) Reconcile(ctx context.Context, deviceID int64, rp ResumePoint, candidates []CandidateLeg, cutoff time.Time) (ReconcileResult, error) {
	var res ReconcileResult

	stored, err := r.legs.DeviceLegsEndingAfter(ctx, deviceID, rp.FrozenUntil)
	if err != nil {
		return res, fmt.Errorf("failed to load stored legs: %w", err)
	}
	used := make(map[int64]bool)

	prevEnd := rp.FrozenUntil
	for _, cand := range candidates {
		if cand.TimeStart.Before(rp.FrozenUntil) {
			res.Frozen++
			prevEnd = later(prevEnd, cand.TimeEnd)
			continue
		}

		if old, ok := findSame(stored, used, cand.Leg); ok {
			used[old.ID] = true
			n, err := r.legs.DeleteBetween(ctx, deviceID, prevEnd, cand.TimeStart)
			if err != nil {
				return res, err
			}
			res.Deleted += n
			res.Unchanged++
			prevEnd = later(prevEnd, cand.TimeEnd)
			continue
		}

		id, deleted, err := r.legs.ReplaceLegs(ctx, prevEnd, cand.Leg)
		if err != nil {
			return res, fmt.Errorf("failed to replace legs at %s: %w", cand.TimeStart.Format(time.RFC3339), err)
		}
		used[id] = true
		for _, d := range deleted {
			used[d] = true
		}
		res.Inserted++
		res.Deleted += int64(len(deleted))
		prevEnd = later(prevEnd, cand.TimeEnd)
	}

	n, err := r.legs.DeleteAfter(ctx, deviceID, prevEnd, cutoff)
	if err != nil {
		return res, err
	}
	res.Deleted += n
	return res, nil
}

func findSame(stored []models.Leg, used map[int64]bool, leg models.Leg) (models.Leg, bool) {
	for _, s := range stored {
		if !used[s.ID] && s.SameAs(leg) {
			return s, true
		}
	}
	return models.Leg{}, false
}

func later(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
