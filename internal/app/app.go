package app

import (
	"context"
	"database/sql"
	"time"

	"github.com/jengzang/legs-backend-go/internal/analysis"
	"github.com/jengzang/legs-backend-go/internal/analysis/places"
	"github.com/jengzang/legs-backend-go/internal/config"
	"github.com/jengzang/legs-backend-go/internal/repository"
	"github.com/jengzang/legs-backend-go/internal/scheduler"
	"github.com/jengzang/legs-backend-go/internal/service"
	"github.com/jengzang/legs-backend-go/internal/transit/live"
	"github.com/jengzang/legs-backend-go/internal/transit/planner"
)

// App wires the configured collaborators shared by the server and the one-shot job runner
type App struct {
	Config *config.Config
	Env    analysis.Env
	// Poller is nil when no vehicle positions feed is configured
	Poller *live.Poller
	Tasks  *service.AnalysisTaskService
	Legs   *service.LegService
}

// New builds the application over an open, migrated database
func New(cfg *config.Config, db *sql.DB) *App {
	a := &App{
		Config: cfg,
		Env:    analysis.Env{DB: db, Workers: cfg.Workers},
	}

	if cfg.VehiclePositionsURL != "" {
		vehicles := repository.NewVehicleRepository(db)
		a.Poller = live.NewPoller(vehicles, live.PollerConfig{
			URL:       cfg.VehiclePositionsURL,
			Retention: cfg.VehicleRetention,
			LineTypes: cfg.RouteTypes,
		})
		a.Env.Live = live.NewMatcher(vehicles)
	}

	if cfg.PlannerURL != "" {
		client := planner.NewClient(planner.ClientConfig{
			URL:       cfg.PlannerURL,
			Timeout:   cfg.PlannerTimeout,
			CacheSize: cfg.PlannerCacheSize,
			Location:  cfg.Location,
		}, repository.NewPlannerCacheRepository(db))
		a.Env.Planner = planner.NewMatcher(client, cfg.PlannerNumItineraries, cfg.Location)
	}

	a.Tasks = service.NewAnalysisTaskService(repository.NewAnalysisTaskRepository(db), a.Env)
	a.Legs = service.NewLegService(repository.NewLegRepository(db), repository.NewDeviceRepository(db))
	return a
}

// Jobs returns the periodic jobs: vehicle ingestion, the hourly leg generation chain
// and the daily place clustering
func (a *App) Jobs() []scheduler.Job {
	var jobs []scheduler.Job
	if a.Poller != nil {
		jobs = append(jobs, scheduler.Job{
			Name:       "vehicle_positions",
			Interval:   a.Config.VehiclePollInterval,
			RunOnStart: true,
			Run:        a.Poller.Poll,
		})
	}

	jobs = append(jobs,
		scheduler.Job{
			Name:     "leg_generation",
			Interval: a.Config.LegGenerationInterval,
			Run: func(ctx context.Context) error {
				_, err := a.Tasks.RunChain(ctx, service.LegGenerationChain, a.Tasks.Options(time.Time{}, false), "scheduler")
				return err
			},
		},
		scheduler.Job{
			Name:     places.ClusterLegsName,
			Interval: a.Config.ClusterInterval,
			Run: func(ctx context.Context) error {
				_, err := a.Tasks.RunTask(ctx, places.ClusterLegsName, a.Tasks.Options(time.Time{}, false), "scheduler")
				return err
			},
		},
	)
	return jobs
}
