package legs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jengzang/legs-backend-go/internal/analysis"
	"github.com/jengzang/legs-backend-go/internal/models"
	"github.com/jengzang/legs-backend-go/internal/repository"
)

// FilterDeviceDataName is the entry point applying the cross-device collision rule
const FilterDeviceDataName = "filter_device_data"

func init() {
	analysis.RegisterAnalyzer(FilterDeviceDataName, NewFilterDeviceDataAnalyzer)
}

// DeviceDataFilter materializes the points of each user that survive collision filtering
type DeviceDataFilter struct {
	points *repository.PointRepository
}

// NewDeviceDataFilter creates a filter over the point repository
func NewDeviceDataFilter(points *repository.PointRepository) *DeviceDataFilter {
	return &DeviceDataFilter{points: points}
}

// FilterResult summarizes one user pass
type FilterResult struct {
	Points int
	Kept   int
}

// FilterUser refilters the user's merged stream up to opts.Cutoff. Incremental passes
// restart at the earlier of the previous cutoff and the oldest late-arriving point,
// continuing from the last surviving point before it.
func (f *DeviceDataFilter) FilterUser(ctx context.Context, userID int64, opts analysis.RunOptions) (FilterResult, error) {
	unlock := userLocks.Lock(userID)
	defer unlock()

	var res FilterResult

	state, hasState, err := f.points.GetFilterState(ctx, userID)
	if err != nil {
		return res, err
	}

	var from time.Time
	lastID := int64(0)
	if hasState && !opts.Repair {
		from = state.FilteredUntil
		lastID = state.LastPointID
		arrival, ok, err := f.points.EarliestArrival(ctx, userID, state.LastPointID, opts.Cutoff)
		if err != nil {
			return res, err
		}
		if ok && arrival.Before(from) {
			from = arrival
		}
		if from.After(opts.Cutoff) {
			return res, nil
		}
	}

	var seed *models.RawPoint
	if !from.IsZero() {
		p, ok, err := f.points.LastFilteredBefore(ctx, userID, from)
		if err != nil {
			return res, err
		}
		if ok {
			seed = &p
		}
	}

	points, err := f.points.UserPoints(ctx, userID, from, opts.Cutoff)
	if err != nil {
		return res, err
	}
	res.Points = len(points)

	kept, seedReplaced := FilterCollisions(seed, points)
	res.Kept = len(kept)

	var removed []int64
	if seedReplaced {
		removed = append(removed, seed.ID)
	}

	maxID, err := f.points.MaxPointID(ctx, userID, opts.Cutoff)
	if err != nil {
		return res, err
	}
	if lastID > maxID {
		maxID = lastID
	}

	next := repository.FilterState{UserID: userID, FilteredUntil: opts.Cutoff, LastPointID: maxID}
	if err := f.points.ReplaceFiltered(ctx, userID, from, opts.Cutoff, kept, removed, next); err != nil {
		return res, fmt.Errorf("failed to store filtered points: %w", err)
	}
	return res, nil
}

// FilterDeviceDataAnalyzer runs the filter for every user
type FilterDeviceDataAnalyzer struct {
	*analysis.UnitAnalyzer
	filter  *DeviceDataFilter
	devices *repository.DeviceRepository
}

// NewFilterDeviceDataAnalyzer creates a new filter_device_data analyzer
func NewFilterDeviceDataAnalyzer(env analysis.Env) analysis.Analyzer {
	return &FilterDeviceDataAnalyzer{
		UnitAnalyzer: analysis.NewUnitAnalyzer(env, FilterDeviceDataName),
		filter:       NewDeviceDataFilter(repository.NewPointRepository(env.DB)),
		devices:      repository.NewDeviceRepository(env.DB),
	}
}

// Analyze runs the pass
func (a *FilterDeviceDataAnalyzer) Analyze(ctx context.Context, taskID int64, opts analysis.RunOptions) error {
	log.Printf("[FilterDeviceData] Starting (task_id=%d, cutoff=%s, repair=%v)", taskID, opts.Cutoff.Format("2006-01-02 15:04:05"), opts.Repair)

	if err := a.MarkTaskAsRunning(taskID); err != nil {
		return fmt.Errorf("failed to mark task as running: %w", err)
	}

	users, err := a.devices.ListUserIDs(ctx)
	if err != nil {
		return a.FailTask(taskID, err)
	}

	var (
		mu    sync.Mutex
		total FilterResult
	)
	failed, err := a.ProcessUnits(ctx, taskID, "user", users, func(ctx context.Context, userID int64) error {
		res, err := a.filter.FilterUser(ctx, userID, opts)
		if err != nil {
			return err
		}
		mu.Lock()
		total.Points += res.Points
		total.Kept += res.Kept
		mu.Unlock()
		return nil
	})
	if err != nil {
		return a.FailTask(taskID, err)
	}

	summary, _ := json.Marshal(map[string]interface{}{
		"users":        len(users),
		"failed_users": failed,
		"points":       total.Points,
		"kept":         total.Kept,
	})
	if err := a.MarkTaskAsCompleted(taskID, string(summary)); err != nil {
		return fmt.Errorf("failed to mark task as completed: %w", err)
	}

	log.Printf("[FilterDeviceData] Completed: %d users (%d failed), %d of %d points kept", len(users), failed, total.Kept, total.Points)
	return nil
}
