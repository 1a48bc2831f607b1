package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jengzang/legs-backend-go/internal/analysis"
	"github.com/jengzang/legs-backend-go/internal/analysis/legs"
	"github.com/jengzang/legs-backend-go/internal/models"
	"github.com/jengzang/legs-backend-go/internal/repository"
)

// ErrUnknownJob is returned for a job name no analyzer is registered under
var ErrUnknownJob = errors.New("unknown job")

// LegGenerationChain is the order the hourly pass runs its entry points in
var LegGenerationChain = []string{legs.FilterDeviceDataName, legs.GenerateLegsName}

// AnalysisTaskService creates task rows and runs the registered analyzers against them
type AnalysisTaskService struct {
	repo *repository.AnalysisTaskRepository
	env  analysis.Env
	now  func() time.Time
	wg   sync.WaitGroup
}

// NewAnalysisTaskService creates a new analysis task service
func NewAnalysisTaskService(repo *repository.AnalysisTaskRepository, env analysis.Env) *AnalysisTaskService {
	return &AnalysisTaskService{
		repo: repo,
		env:  env,
		now:  time.Now,
	}
}

// Options resolves a job request into run options. A zero cutoff means now.
func (s *AnalysisTaskService) Options(cutoff time.Time, repair bool) analysis.RunOptions {
	if cutoff.IsZero() {
		cutoff = s.now()
	}
	return analysis.RunOptions{Cutoff: cutoff.UTC().Truncate(time.Second), Repair: repair}
}

// CreateTask creates a task row and runs the analyzer in the background
func (s *AnalysisTaskService) CreateTask(name string, opts analysis.RunOptions, createdBy string) (*models.AnalysisTask, error) {
	analyzer, task, err := s.prepare(context.Background(), name, opts, createdBy)
	if err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(context.Background(), analyzer, task, opts)
	}()

	return task, nil
}

// RunTask creates a task row and runs the analyzer to completion
func (s *AnalysisTaskService) RunTask(ctx context.Context, name string, opts analysis.RunOptions, createdBy string) (*models.AnalysisTask, error) {
	analyzer, task, err := s.prepare(ctx, name, opts, createdBy)
	if err != nil {
		return nil, err
	}
	if err := s.execute(ctx, analyzer, task, opts); err != nil {
		return task, err
	}
	return s.repo.GetByID(ctx, task.ID)
}

// RunChain runs the named analyzers in order with the same options, stopping at the first failure.
// Returns the ids of the tasks created.
func (s *AnalysisTaskService) RunChain(ctx context.Context, names []string, opts analysis.RunOptions, createdBy string) ([]int64, error) {
	var ids []int64
	for _, name := range names {
		task, err := s.RunTask(ctx, name, opts, createdBy)
		if task != nil {
			ids = append(ids, task.ID)
		}
		if err != nil {
			return ids, fmt.Errorf("%s: %w", name, err)
		}
	}
	return ids, nil
}

// GetTask retrieves a task by ID
func (s *AnalysisTaskService) GetTask(ctx context.Context, id int64) (*models.AnalysisTask, error) {
	return s.repo.GetByID(ctx, id)
}

// Wait blocks until background runs started by CreateTask have finished
func (s *AnalysisTaskService) Wait() {
	s.wg.Wait()
}

func (s *AnalysisTaskService) prepare(ctx context.Context, name string, opts analysis.RunOptions, createdBy string) (analysis.Analyzer, *models.AnalysisTask, error) {
	analyzer, ok := analysis.GetAnalyzer(name, s.env)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}

	taskType := models.TaskTypeIncremental
	if opts.Repair {
		taskType = models.TaskTypeRepair
	}
	task := &models.AnalysisTask{
		SkillName: name,
		TaskType:  taskType,
		Cutoff:    opts.Cutoff.Unix(),
		CreatedBy: createdBy,
	}
	if err := s.repo.Create(ctx, task); err != nil {
		return nil, nil, fmt.Errorf("failed to create task: %w", err)
	}
	return analyzer, task, nil
}

func (s *AnalysisTaskService) execute(ctx context.Context, analyzer analysis.Analyzer, task *models.AnalysisTask, opts analysis.RunOptions) error {
	log.Printf("Executing %s for task %d (cutoff=%s, repair=%v)", task.SkillName, task.ID, opts.Cutoff.Format(time.RFC3339), opts.Repair)

	if err := analyzer.Analyze(ctx, task.ID, opts); err != nil {
		log.Printf("%s failed for task %d: %v", task.SkillName, task.ID, err)
		return err
	}

	log.Printf("%s completed for task %d", task.SkillName, task.ID)
	return nil
}
