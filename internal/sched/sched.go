// Package sched runs the daemon's periodic tasks under one cooperative
// scheduler, so shutdown can deterministically cancel and await
// in-flight work instead of racing scattered per-component timers.
package sched

import (
	"context"
	"sync"
	"time"

	"codeberg.org/halcyard/taskguard/internal/logger"
)

// Task is one periodic unit of work. Run errors are logged and the next
// tick proceeds; a panicking task is likewise contained.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type Scheduler struct {
	log    logger.Logger
	tasks  []Task
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(log logger.Logger) *Scheduler {
	return &Scheduler{log: log}
}

// Add registers a task. Must be called before Start.
func (s *Scheduler) Add(task Task) {
	s.tasks = append(s.tasks, task)
}

// Start launches one goroutine per task. The parent context bounds the
// scheduler's lifetime.
func (s *Scheduler) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel

	for _, task := range s.tasks {
		s.wg.Add(1)
		go s.runTask(ctx, task)
	}

	s.log.Info().Int("tasks", len(s.tasks)).Msg("Scheduler started")
}

// Stop cancels all tasks and waits for them to return. An in-flight
// scan observes the cancellation and aborts.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.log.Info().Msg("Scheduler stopped")
}

func (s *Scheduler) runTask(ctx context.Context, task Task) {
	defer s.wg.Done()

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, task)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("task", task.Name).Interface("panic", r).Msg("Task panicked")
		}
	}()

	if err := task.Run(ctx); err != nil {
		s.log.Error().Str("task", task.Name).Err(err).Msg("Task failed")
	}
}
