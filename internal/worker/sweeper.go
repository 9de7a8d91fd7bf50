package worker

import (
	"context"
	"time"

	"bookstore/internal/service"
	"bookstore/internal/util"

	"go.uber.org/zap"
)

// ExpirySweeper removes expired verification data
type ExpirySweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (service.SweepResult, error)
}

// Sweeper runs the expiry sweep on a fixed interval
type Sweeper struct {
	users    ExpirySweeper
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewSweeper creates a new sweeper
func NewSweeper(users ExpirySweeper, interval time.Duration) *Sweeper {
	return &Sweeper{
		users:    users,
		interval: interval,
		now:      time.Now,
		logger:   util.GetLogger(),
	}
}

// Start sweeps once immediately and then on every tick until ctx is cancelled
func (s *Sweeper) Start(ctx context.Context) error {
	s.logger.Info("Starting expiry sweeper", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.sweep(ctx)

		select {
		case <-ctx.Done():
			s.logger.Info("Stopping expiry sweeper")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	res, err := s.users.SweepExpired(ctx, s.now())
	if err != nil {
		s.logger.Error("Expiry sweep failed", zap.Error(err))
		return
	}

	if res.Users > 0 || res.Tokens > 0 {
		s.logger.Info("Expired records removed",
			zap.Int64("users", res.Users),
			zap.Int64("tokens", res.Tokens))
	}
}
