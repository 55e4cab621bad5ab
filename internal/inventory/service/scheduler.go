package service

import (
	"context"
	"sync"
	"time"

	"github.com/farmacia/farmacia-backend/pkg/logger"
)

// Sweeper re-evaluates every trigger. Expiry severity changes with the
// calendar even when the ledger does not, so a periodic sweep is required.
type Sweeper interface {
	EvaluateAll(ctx context.Context) (int, error)
}

// AlertScheduler runs alert sweeps periodically
type AlertScheduler struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *logger.Logger
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex
}

// NewAlertScheduler creates a new alert scheduler
func NewAlertScheduler(sweeper Sweeper, interval time.Duration, log *logger.Logger) *AlertScheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &AlertScheduler{
		sweeper:  sweeper,
		interval: interval,
		logger:   log.WithComponent("alert_scheduler"),
	}
}

// Start starts the scheduler in a background goroutine.
// The first sweep runs immediately.
func (s *AlertScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		s.logger.Info().Dur("interval", s.interval).Msg("alert scheduler started")

		s.runSweep(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("alert scheduler stopped")
				return
			case <-ticker.C:
				s.runSweep(ctx)
			}
		}
	}()
}

// Stop stops the scheduler goroutine and waits for a running sweep to end
func (s *AlertScheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *AlertScheduler) runSweep(ctx context.Context) {
	start := time.Now()

	changes, err := s.sweeper.EvaluateAll(ctx)
	if err != nil && ctx.Err() == nil {
		s.logger.Error().Err(err).Int("changes", changes).Msg("alert sweep finished with errors")
		return
	}

	s.logger.Info().
		Dur("duration", time.Since(start)).
		Int("changes", changes).
		Msg("alert sweep completed")
}
