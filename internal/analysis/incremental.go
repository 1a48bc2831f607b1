package analysis

import (
	"context"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"
)

// UnitAnalyzer runs a per-unit function (one device or one user) over a set of ids
// in parallel workers, tracking progress on the task row.
type UnitAnalyzer struct {
	*BaseAnalyzer
	Workers int
}

// NewUnitAnalyzer creates a new unit analyzer
func NewUnitAnalyzer(env Env, name string) *UnitAnalyzer {
	workers := env.Workers
	if workers <= 0 {
		workers = 1
	}
	return &UnitAnalyzer{
		BaseAnalyzer: NewBaseAnalyzer(env.DB, name),
		Workers:      workers,
	}
}

// UnitFunc processes one unit
type UnitFunc func(ctx context.Context, id int64) error

// ProcessUnits calls fn for every id. A failing or panicking unit is logged with its id,
// counted as failed and skipped. Cancellation stops scheduling further units;
// units already running complete. Returns the number of failed units.
func (a *UnitAnalyzer) ProcessUnits(ctx context.Context, taskID int64, unit string, ids []int64, fn UnitFunc) (int, error) {
	var (
		mu        sync.Mutex
		processed int
		failed    int
	)
	total := len(ids)

	var g errgroup.Group
	g.SetLimit(a.Workers)

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		id := id
		g.Go(func() error {
			err := a.runUnit(ctx, id, fn)

			mu.Lock()
			processed++
			if err != nil {
				failed++
				log.Printf("[%s] %s %d failed: %v", a.Name, unit, id, err)
			}
			p, f := processed, failed
			mu.Unlock()

			if taskID > 0 {
				if err := a.UpdateTaskProgress(taskID, p, total, f); err != nil {
					log.Printf("[%s] Failed to update progress (task_id=%d): %v", a.Name, taskID, err)
				}
			}
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return failed, err
	}
	return failed, nil
}

func (a *UnitAnalyzer) runUnit(ctx context.Context, id int64, fn UnitFunc) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx, id)
}
