package broker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sweeper periodically triggers the broker's retention sweep. It runs one
// sweep immediately at startup, then one per tick.
type Sweeper struct {
	broker   *Broker
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a sweeper that invokes broker.Sweep at the given interval.
func NewSweeper(b *Broker, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		broker:   b,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the periodic sweep.
func (s *Sweeper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the sweeper and waits for an in-flight sweep (if any) to finish.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sweeper) run(ctx context.Context) {
	s.sweepOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	if err := s.broker.Sweep(ctx, time.Now()); err != nil {
		s.logger.Error("retention sweep failed", "err", err)
		return
	}
	s.logger.Debug("retention sweep completed")
}
