package ads

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Sweepable is anything with a periodic reclamation pass.
type Sweepable interface {
	Sweep() []Identifier
}

// Sweeper runs the periodic stale-load sweep: ticker, sweep, log what was reclaimed.
type Sweeper struct {
	target   Sweepable
	clock    clock.Clock
	interval time.Duration
	logger   *zap.Logger
	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSweeper creates a sweeper. A non-positive interval falls back to the default of 60 seconds.
func NewSweeper(target Sweepable, interval time.Duration, clk clock.Clock, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultConfig().SweepInterval
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		target:   target,
		clock:    clk,
		interval: interval,
		logger:   logger,
	}
}

// Start begins sweeping in the background. Call Stop() to release resources.
func (s *Sweeper) Start() {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
}

// Stop stops a sweeper started with Start and waits for it to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
	<-s.done
}

// Run sweeps every interval until ctx is done. It always returns ctx.Err().
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()
	s.logger.Info("ad sweeper started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("ad sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			if swept := s.target.Sweep(); len(swept) > 0 {
				ids := make([]string, len(swept))
				for i, id := range swept {
					ids[i] = string(id)
				}
				s.logger.Warn("swept stale ad loads", zap.Strings("ad_ids", ids))
			}
		}
	}
}
