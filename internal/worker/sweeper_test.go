package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

type fakeExpirer struct {
	remaining int
	calls     int
	failOn    int
}

func (f *fakeExpirer) SweepExpired(ctx context.Context, limit int) (int, error) {
	f.calls++
	if f.failOn > 0 && f.calls == f.failOn {
		return 0, errors.New("connection refused")
	}
	n := min(limit, f.remaining)
	f.remaining -= n
	return n, nil
}

func TestSweepOnce_DrainsInBatches(t *testing.T) {
	expirer := &fakeExpirer{remaining: 25}
	s := NewSweeper(expirer, 0, 10, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if got := s.SweepOnce(context.Background()); got != 25 {
		t.Errorf("timed out = %d, want 25", got)
	}
	// 10 + 10 + 5, the short batch ends the sweep
	if expirer.calls != 3 {
		t.Errorf("calls = %d, want 3", expirer.calls)
	}
}

func TestSweepOnce_StopsOnError(t *testing.T) {
	expirer := &fakeExpirer{remaining: 50, failOn: 2}
	s := NewSweeper(expirer, 0, 10, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if got := s.SweepOnce(context.Background()); got != 10 {
		t.Errorf("timed out = %d, want 10", got)
	}
}

func TestSweeperRun_ReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewSweeper(&fakeExpirer{}, 0, 0, nil)
	if err := s.Run(ctx); err != nil {
		t.Errorf("Run() = %v, want nil", err)
	}
}
