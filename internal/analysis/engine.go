package analysis

import (
	"context"
	"database/sql"
	"log"
	"sort"
	"time"

	"github.com/jengzang/legs-backend-go/internal/transit/live"
	"github.com/jengzang/legs-backend-go/internal/transit/planner"
)

// Analyzer is the interface that all pipeline entry points implement
type Analyzer interface {
	// Analyze runs one pass up to opts.Cutoff, recording progress on the task row
	Analyze(ctx context.Context, taskID int64, opts RunOptions) error

	// GetName returns the name of the analyzer
	GetName() string
}

// RunOptions control a single analyzer pass
type RunOptions struct {
	// Cutoff bounds the input: only points with time <= Cutoff are processed
	Cutoff time.Time
	// Repair discards incremental state and reprocesses the whole history
	Repair bool
}

// Env carries the collaborators analyzers are built from.
// A nil matcher disables that mode source.
type Env struct {
	DB      *sql.DB
	Workers int
	Live    *live.Matcher
	Planner *planner.Matcher
}

// BaseAnalyzer provides common functionality for all analyzers
type BaseAnalyzer struct {
	DB   *sql.DB
	Name string
}

// NewBaseAnalyzer creates a new base analyzer
func NewBaseAnalyzer(db *sql.DB, name string) *BaseAnalyzer {
	return &BaseAnalyzer{
		DB:   db,
		Name: name,
	}
}

// GetName returns the analyzer name
func (a *BaseAnalyzer) GetName() string {
	return a.Name
}

// UpdateTaskProgress updates the progress of an analysis task in the database
func (a *BaseAnalyzer) UpdateTaskProgress(taskID int64, processed, total, failed int) error {
	percent := 0.0
	if total > 0 {
		percent = float64(processed) / float64(total) * 100.0
	}

	query := `
		UPDATE analysis_tasks
		SET processed_units = ?,
		    total_units = ?,
		    failed_units = ?,
		    progress_percent = ?,
		    updated_at = ?
		WHERE id = ?
	`

	_, err := a.DB.Exec(query, processed, total, failed, percent, time.Now().Unix(), taskID)
	return err
}

// MarkTaskAsRunning marks a task as running
func (a *BaseAnalyzer) MarkTaskAsRunning(taskID int64) error {
	now := time.Now().Unix()
	_, err := a.DB.Exec(`
		UPDATE analysis_tasks
		SET status = 'running', started_at = ?, updated_at = ?
		WHERE id = ?
	`, now, now, taskID)
	return err
}

// MarkTaskAsCompleted marks a task as completed with a JSON summary
func (a *BaseAnalyzer) MarkTaskAsCompleted(taskID int64, summary string) error {
	now := time.Now().Unix()
	_, err := a.DB.Exec(`
		UPDATE analysis_tasks
		SET status = 'completed',
		    progress_percent = 100,
		    result_summary = ?,
		    completed_at = ?,
		    updated_at = ?
		WHERE id = ?
	`, summary, now, now, taskID)
	return err
}

// MarkTaskAsFailed marks a task as failed with an error message
func (a *BaseAnalyzer) MarkTaskAsFailed(taskID int64, errorMsg string) error {
	now := time.Now().Unix()
	_, err := a.DB.Exec(`
		UPDATE analysis_tasks
		SET status = 'failed',
		    error_message = ?,
		    completed_at = ?,
		    updated_at = ?
		WHERE id = ?
	`, errorMsg, now, now, taskID)
	return err
}

// FailTask marks the task as failed with err and returns err.
// A failure to update the task row is logged, never returned in place of err.
func (a *BaseAnalyzer) FailTask(taskID int64, err error) error {
	if markErr := a.MarkTaskAsFailed(taskID, err.Error()); markErr != nil {
		log.Printf("[%s] Failed to mark task as failed (task_id=%d): %v", a.Name, taskID, markErr)
	}
	return err
}

// AnalyzerFactory is a function that creates an analyzer instance
type AnalyzerFactory func(env Env) Analyzer

// AnalyzerRegistry maps entry point names to analyzer factories
var AnalyzerRegistry = make(map[string]AnalyzerFactory)

// RegisterAnalyzer registers an analyzer factory under a name
func RegisterAnalyzer(name string, factory AnalyzerFactory) {
	AnalyzerRegistry[name] = factory
}

// GetAnalyzer creates the analyzer registered under name
func GetAnalyzer(name string, env Env) (Analyzer, bool) {
	factory, ok := AnalyzerRegistry[name]
	if !ok {
		return nil, false
	}
	return factory(env), true
}

// Names returns the registered analyzer names in sorted order
func Names() []string {
	names := make([]string, 0, len(AnalyzerRegistry))
	for name := range AnalyzerRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
