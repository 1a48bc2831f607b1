package legs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/jengzang/legs-backend-go/internal/analysis"
	"github.com/jengzang/legs-backend-go/internal/repository"
)

// GenerateLegsName is the entry point turning filtered points into legs
const GenerateLegsName = "generate_legs"

func init() {
	analysis.RegisterAnalyzer(GenerateLegsName, NewGenerateLegsAnalyzer)
}

// Generator builds, reconciles and annotates the legs of single devices
type Generator struct {
	points     *repository.PointRepository
	legs       *repository.LegRepository
	reconciler *Reconciler
	detector   *ModeDetector
}

// NewGenerator creates a generator. detector may be nil to skip mode detection.
func NewGenerator(db *sql.DB, detector *ModeDetector) *Generator {
	legRepo := repository.NewLegRepository(db)
	return &Generator{
		points:     repository.NewPointRepository(db),
		legs:       legRepo,
		reconciler: NewReconciler(legRepo),
		detector:   detector,
	}
}

// DeviceResult summarizes one device pass
type DeviceResult struct {
	Points     int
	Candidates int
	ReconcileResult
	ModesDetected int
	ModesPending  int
}

// ProcessDevice regenerates the device's legs from its resume point up to opts.Cutoff
func (g *Generator) ProcessDevice(ctx context.Context, deviceID int64, opts analysis.RunOptions) (DeviceResult, error) {
	unlock := deviceLocks.Lock(deviceID)
	defer unlock()

	var res DeviceResult

	rp, err := g.reconciler.ResumePoint(ctx, deviceID, opts.Repair)
	if err != nil {
		return res, err
	}

	points, err := g.points.DeviceFilteredPoints(ctx, deviceID, rp.From, opts.Cutoff)
	if err != nil {
		return res, err
	}
	res.Points = len(points)

	state, groups := Stabilize(StabilizationContext{}, points)
	groups = append(groups, Finish(state)...)
	candidates := BuildLegs(deviceID, groups)
	res.Candidates = len(candidates)

	if res.ReconcileResult, err = g.reconciler.Reconcile(ctx, deviceID, rp, candidates, opts.Cutoff); err != nil {
		return res, err
	}

	if g.detector.Enabled() {
		if res.ModesDetected, res.ModesPending, err = g.detectModes(ctx, deviceID); err != nil {
			return res, err
		}
	}
	return res, nil
}

// detectModes annotates the device's IN_VEHICLE legs whose modes are not yet detected
func (g *Generator) detectModes(ctx context.Context, deviceID int64) (detected, pending int, err error) {
	legs, err := g.legs.UndetectedVehicleLegs(ctx, deviceID)
	if err != nil {
		return 0, 0, err
	}

	for _, leg := range legs {
		if err := ctx.Err(); err != nil {
			return detected, pending, err
		}

		points, err := g.points.DeviceFilteredPoints(ctx, deviceID, leg.TimeStart, leg.TimeEnd)
		if err != nil {
			return detected, pending, err
		}

		d := g.detector.Detect(ctx, leg, points)
		if err := g.legs.ReconcileModes(ctx, leg.ID, d.Sources, d.Computed, d.Complete); err != nil {
			return detected, pending, fmt.Errorf("failed to store modes of leg %d: %w", leg.ID, err)
		}
		if d.Complete {
			detected++
		} else {
			pending++
		}
	}
	return detected, pending, nil
}

// AttachUser attaches the user's newly eligible legs. Returns the number attached.
func (g *Generator) AttachUser(ctx context.Context, userID int64) (int, error) {
	legs, err := g.legs.UserCommittedLegs(ctx, userID)
	if err != nil {
		return 0, err
	}
	ids := ResolveAttachments(userID, legs)
	for _, id := range ids {
		if err := g.legs.SetUser(ctx, id, &userID); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

// GenerateLegsAnalyzer runs the leg generation pass over every device, then attaches legs per user
type GenerateLegsAnalyzer struct {
	*analysis.UnitAnalyzer
	generator *Generator
	devices   *repository.DeviceRepository
}

// NewGenerateLegsAnalyzer creates a new generate_legs analyzer
func NewGenerateLegsAnalyzer(env analysis.Env) analysis.Analyzer {
	detector := &ModeDetector{}
	if env.Live != nil {
		detector.Live = env.Live
	}
	if env.Planner != nil {
		detector.Planner = env.Planner
	}
	return &GenerateLegsAnalyzer{
		UnitAnalyzer: analysis.NewUnitAnalyzer(env, GenerateLegsName),
		generator:    NewGenerator(env.DB, detector),
		devices:      repository.NewDeviceRepository(env.DB),
	}
}

// Analyze runs the pass
func (a *GenerateLegsAnalyzer) Analyze(ctx context.Context, taskID int64, opts analysis.RunOptions) error {
	log.Printf("[GenerateLegs] Starting (task_id=%d, cutoff=%s, repair=%v)", taskID, opts.Cutoff.Format("2006-01-02 15:04:05"), opts.Repair)

	if err := a.MarkTaskAsRunning(taskID); err != nil {
		return fmt.Errorf("failed to mark task as running: %w", err)
	}

	if err := a.run(ctx, taskID, opts); err != nil {
		return a.FailTask(taskID, err)
	}
	return nil
}

func (a *GenerateLegsAnalyzer) run(ctx context.Context, taskID int64, opts analysis.RunOptions) error {
	devices, err := a.devices.ListDevicesWithData(ctx)
	if err != nil {
		return err
	}

	ids := make([]int64, len(devices))
	seen := make(map[int64]bool)
	var users []int64
	for i, d := range devices {
		ids[i] = d.ID
		if !seen[d.UserID] {
			seen[d.UserID] = true
			users = append(users, d.UserID)
		}
	}

	var (
		mu    sync.Mutex
		total DeviceResult
	)
	failed, err := a.ProcessUnits(ctx, taskID, "device", ids, func(ctx context.Context, id int64) error {
		res, err := a.generator.ProcessDevice(ctx, id, opts)
		if err != nil {
			return err
		}
		mu.Lock()
		total.Points += res.Points
		total.Candidates += res.Candidates
		total.Inserted += res.Inserted
		total.Unchanged += res.Unchanged
		total.Deleted += res.Deleted
		total.ModesDetected += res.ModesDetected
		total.ModesPending += res.ModesPending
		mu.Unlock()
		return nil
	})
	if err != nil {
		return err
	}

	attached := 0
	failedUsers, err := a.ProcessUnits(ctx, 0, "user", users, func(ctx context.Context, userID int64) error {
		n, err := a.generator.AttachUser(ctx, userID)
		mu.Lock()
		attached += n
		mu.Unlock()
		return err
	})
	if err != nil {
		return err
	}

	summary, _ := json.Marshal(map[string]interface{}{
		"devices":        len(ids),
		"failed_devices": failed,
		"failed_users":   failedUsers,
		"points":         total.Points,
		"legs_inserted":  total.Inserted,
		"legs_unchanged": total.Unchanged,
		"legs_deleted":   total.Deleted,
		"modes_detected": total.ModesDetected,
		"modes_pending":  total.ModesPending,
		"legs_attached":  attached,
	})
	if err := a.MarkTaskAsCompleted(taskID, string(summary)); err != nil {
		return fmt.Errorf("failed to mark task as completed: %w", err)
	}

	log.Printf("[GenerateLegs] Completed: %d devices (%d failed), %d legs inserted, %d unchanged, %d attached",
		len(ids), failed, total.Inserted, total.Unchanged, attached)
	return nil
}
