package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/CTAG07/Nepenthes/pkg/ejs"
	"github.com/robfig/cron/v3"
)

// CacheScheduler clears the render cache on a cron schedule.
type CacheScheduler struct {
	renderer *ejs.Renderer
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool
}

// NewCacheScheduler creates a scheduler for renderer's cache.
func NewCacheScheduler(renderer *ejs.Renderer, logger *slog.Logger) *CacheScheduler {
	return &CacheScheduler{
		renderer: renderer,
		cron:     cron.New(),
		logger:   logger.With("component", "cache_scheduler"),
	}
}

// Start schedules cache clears using a standard cron expression such as
// "0 */6 * * *" or "@hourly". An empty schedule leaves the scheduler idle.
// The scheduler stops when ctx is cancelled.
func (s *CacheScheduler) Start(ctx context.Context, schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("cache scheduler already running")
	}
	if schedule == "" {
		s.logger.Info("Cache clear schedule not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	if _, err := s.cron.AddFunc(schedule, s.clear); err != nil {
		return fmt.Errorf("failed to schedule cache clear: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("Cache scheduler started", "schedule", schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *CacheScheduler) clear() {
	n := s.renderer.Cache().Len()
	s.renderer.ClearCache()
	s.logger.Info("Scheduled cache clear completed", "evicted", n)
}

// Stop stops the scheduler and waits for a running clear to finish.
func (s *CacheScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("Cache scheduler stopped")
	}
}

// IsRunning reports whether a schedule is active.
func (s *CacheScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
