package scheduler

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Job is a periodic unit of work
type Job struct {
	Name     string
	Interval time.Duration
	// RunOnStart runs the job once immediately instead of waiting a full interval
	RunOnStart bool
	Run        func(ctx context.Context) error
}

type job struct {
	Job
	running atomic.Bool
}

// Scheduler runs each job on its own ticker. A job never overlaps itself:
// a tick arriving while the previous run is still busy is skipped.
type Scheduler struct {
	jobs []*job
	wg   sync.WaitGroup
}

// New creates an empty scheduler
func New() *Scheduler {
	return &Scheduler{}
}

// Add registers a job. Jobs must be added before Start.
func (s *Scheduler) Add(j Job) {
	s.jobs = append(s.jobs, &job{Job: j})
}

// Start launches one loop per job; loops stop when ctx is cancelled
func (s *Scheduler) Start(ctx context.Context) {
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
	log.Printf("[Scheduler] Started %d jobs", len(s.jobs))
}

// Wait blocks until every loop and every in-flight run has returned
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, j *job) {
	defer s.wg.Done()

	if j.RunOnStart {
		s.trigger(ctx, j)
	}

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.trigger(ctx, j)
		case <-ctx.Done():
			log.Printf("[Scheduler] %s loop stopped", j.Name)
			return
		}
	}
}

// trigger starts a run unless one is in progress. Reports whether a run started.
func (s *Scheduler) trigger(ctx context.Context, j *job) bool {
	if !j.running.CompareAndSwap(false, true) {
		log.Printf("[Scheduler] %s still running, skipping tick", j.Name)
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer j.running.Store(false)
		defer func() {
			if p := recover(); p != nil {
				log.Printf("[Scheduler] %s panicked: %v", j.Name, p)
			}
		}()

		start := time.Now()
		if err := j.Run(ctx); err != nil {
			log.Printf("[Scheduler] %s failed after %v: %v", j.Name, time.Since(start), err)
			return
		}
		log.Printf("[Scheduler] %s completed in %v", j.Name, time.Since(start))
	}()
	return true
}
