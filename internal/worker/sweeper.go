package worker

import (
	"context"
	"log/slog"
	"time"
)

// Expirer finalizes active attempts past their deadline.
type Expirer interface {
	SweepExpired(ctx context.Context, limit int) (int, error)
}

// Sweeper times out abandoned attempts that nobody reads again. Reads and writes
// time out attempts lazily; this catches the rest.
type Sweeper struct {
	expirer  Expirer
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

func NewSweeper(expirer Expirer, interval time.Duration, batch int, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if batch <= 0 {
		batch = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{expirer: expirer, interval: interval, batch: batch, logger: logger}
}

// Run sweeps once per interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce drains expired attempts batch by batch and returns how many were timed out.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	total := 0
	for ctx.Err() == nil {
		n, err := s.expirer.SweepExpired(ctx, s.batch)
		if err != nil {
			s.logger.Error("Sweep failed", "error", err, "timed_out", total)
			return total
		}
		total += n
		if n < s.batch {
			break
		}
	}
	if total > 0 {
		s.logger.Info("Timed out expired attempts", "count", total)
	}
	return total
}
