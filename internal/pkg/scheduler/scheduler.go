// Package scheduler wraps gocron for the Recovery Supervisor's periodic
// sweep, adapted from the teacher's pkg/scheduler (same gocron-backed
// event scheduler interface, generalized from per-event cron jobs to a
// single named recurring job).
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"driveingest/internal/pkg/logger"
)

type Scheduler interface {
	Start()
	Stop()
	AddJob(id, cronExpr string, task func()) error
	RemoveJob(id string) error
	IsRunning() bool
}

type GocronScheduler struct {
	scheduler *gocron.Scheduler
	jobs      map[string]*gocron.Job
	mu        sync.RWMutex
	running   bool
}

func New() Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &GocronScheduler{scheduler: s, jobs: make(map[string]*gocron.Job)}
}

func (s *GocronScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.scheduler.StartAsync()
	s.running = true
	logger.Startup("scheduler_started", "scheduler started", nil)
}

func (s *GocronScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.scheduler.Stop()
	s.running = false
	logger.Startup("scheduler_stopped", "scheduler stopped", nil)
}

func (s *GocronScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *GocronScheduler) AddJob(id, cronExpr string, task func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; exists {
		return fmt.Errorf("job %q already scheduled", id)
	}

	job, err := s.scheduler.Cron(cronExpr).Do(task)
	if err != nil {
		return fmt.Errorf("schedule job %q: %w", id, err)
	}
	s.jobs[id] = job
	return nil
}

func (s *GocronScheduler) RemoveJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[id]
	if !exists {
		return fmt.Errorf("job %q not found", id)
	}
	s.scheduler.RemoveByReference(job)
	delete(s.jobs, id)
	return nil
}
