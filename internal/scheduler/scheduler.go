package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Task is a unit of periodic work
type Task interface {
	Run(ctx context.Context) error
	Interval() time.Duration
	Name() string
}

// Scheduler runs each task on its own ticker until stopped
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	tasks  []Task
	wg     sync.WaitGroup
	logger *slog.Logger
}

// New creates a scheduler bound to ctx
func New(ctx context.Context, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		ctx:    ctx,
		cancel: cancel,
		tasks:  make([]Task, 0),
		logger: logger,
	}
}

// AddTask registers a task. Tasks added after Start are not run.
func (s *Scheduler) AddTask(task Task) {
	s.tasks = append(s.tasks, task)
}

// Start launches one goroutine per task; each runs immediately and then on
// its interval
func (s *Scheduler) Start() {
	s.logger.Info("Starting task scheduler")
	for _, task := range s.tasks {
		s.wg.Add(1)
		go s.runTask(task)
	}
	s.logger.Info("Task scheduler started", "task_count", len(s.tasks))
}

// RunOnce runs every task a single time in registration order and returns
// the joined errors
func (s *Scheduler) RunOnce() error {
	var errs []error
	for _, task := range s.tasks {
		if err := s.execute(task); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stop cancels running tasks and waits for them to return
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping task scheduler")
	s.cancel()
	s.wg.Wait()
	s.logger.Info("Task scheduler stopped")
}

func (s *Scheduler) runTask(task Task) {
	defer s.wg.Done()

	ticker := time.NewTicker(task.Interval())
	defer ticker.Stop()

	s.execute(task)

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.execute(task)
		}
	}
}

func (s *Scheduler) execute(task Task) error {
	start := time.Now()
	err := task.Run(s.ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("Error running task", "task", task.Name(), "duration", time.Since(start), "error", err)
		return err
	}
	s.logger.Debug("Task run finished", "task", task.Name(), "duration", time.Since(start))
	return err
}
