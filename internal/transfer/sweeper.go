package transfer

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically reconciles long-pending transactions against the
// gateway so that a crash between debit and finalization never strands money.
type Sweeper struct {
	service  *Service
	interval time.Duration
	horizon  time.Duration
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSweeper builds a sweeper that runs every interval and reconciles pending
// transactions older than horizon.
func NewSweeper(service *Service, interval, horizon time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{service: service, interval: interval, horizon: horizon, logger: logger}
}

// Start launches the background sweep loop.
func (s *Sweeper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				resolved, err := s.service.SweepPending(ctx, s.horizon)
				if err != nil {
					s.logger.Error("pending sweep failed", slog.Any("error", err))
					continue
				}
				if resolved > 0 {
					s.logger.Info("pending sweep completed", slog.Int("resolved", resolved))
				}
			}
		}
	}()
}

// Stop halts the sweep loop and waits for the current pass to finish.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}
