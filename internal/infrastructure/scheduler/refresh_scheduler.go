// Package scheduler drives the background loops: the daily aggregate
// refresh and the pending-file ingestion poller.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/timberdayz/datahub/internal/application/refresh"
)

// tickInterval is how often the cron loop checks whether the daily
// refresh is due.
const tickInterval = 1 * time.Minute

// RefreshSchedulerConfig holds the daily refresh schedule.
type RefreshSchedulerConfig struct {
	Enabled bool
	Hour    int // 0-23
	Minute  int // 0-59
}

// RefreshScheduler fires the full aggregate refresh once a day at the
// configured time. Runs never overlap: a refresh still going when the
// next slot arrives makes that slot a no-op.
type RefreshScheduler struct {
	config      RefreshSchedulerConfig
	coordinator *refresh.Coordinator
	logger      *zap.Logger

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	busy    bool

	lastRunAt *time.Time
	nextRunAt *time.Time
}

// NewRefreshScheduler creates the daily refresh scheduler
func NewRefreshScheduler(config RefreshSchedulerConfig, coordinator *refresh.Coordinator, logger *zap.Logger) *RefreshScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RefreshScheduler{
		config:      config,
		coordinator: coordinator,
		logger:      logger,
	}
}

// Start launches the cron loop. Starting twice is a no-op.
func (s *RefreshScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running || !s.config.Enabled {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.calculateNextRun()
	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info("refresh scheduler started",
		zap.Int("hour", s.config.Hour),
		zap.Int("minute", s.config.Minute),
		zap.Timep("next_run_at", s.nextRunAt))
}

// Stop halts the cron loop and waits for an in-flight refresh to finish
// or the context to expire.
func (s *RefreshScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("refresh scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("refresh scheduler stop timed out")
		return ctx.Err()
	}
}

func (s *RefreshScheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if now.Hour() == s.config.Hour && now.Minute() == s.config.Minute {
				s.runAll(ctx)
				s.calculateNextRun()
			}
		}
	}
}

// runAll runs the full refresh unless one is already in flight.
func (s *RefreshScheduler) runAll(ctx context.Context) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		s.logger.Warn("previous scheduled refresh still running, skipping this slot")
		return
	}
	s.busy = true
	now := time.Now()
	s.lastRunAt = &now
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	if err := s.coordinator.RefreshAll(ctx, refresh.TriggerSchedule); err != nil {
		s.logger.Error("scheduled refresh completed with failures", zap.Error(err))
		return
	}
	s.logger.Info("scheduled refresh completed")
}

func (s *RefreshScheduler) calculateNextRun() {
	now := time.Now()
	next := time.Date(now.Year(), now.Month(), now.Day(), s.config.Hour, s.config.Minute, 0, 0, now.Location())
	if now.After(next) {
		next = next.AddDate(0, 0, 1)
	}
	s.mu.Lock()
	s.nextRunAt = &next
	s.mu.Unlock()
}

// NextRunAt returns when the next scheduled refresh will fire
func (s *RefreshScheduler) NextRunAt() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRunAt
}

// LastRunAt returns when the last scheduled refresh started
func (s *RefreshScheduler) LastRunAt() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRunAt
}
