package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/crucial707/hci-auth/internal/metrics"
)

// State of a RevocationClock.
type State int32

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// ErrBusy is returned by Tick when the previous tick has not finished.
var ErrBusy = errors.New("revocation sweep already running")

// SweepFunc bumps every user's token version and returns how many were bumped.
type SweepFunc func(ctx context.Context) (int64, error)

// RevocationClock invalidates all outstanding tokens each time it ticks.
// It holds no schedule state: after a restart ticks resume one interval later.
type RevocationClock struct {
	sweep   SweepFunc
	timeout time.Duration
	state   atomic.Int32
}

// NewRevocationClock returns an idle clock. timeout bounds one sweep; zero means no bound.
func NewRevocationClock(sweep SweepFunc, timeout time.Duration) *RevocationClock {
	return &RevocationClock{sweep: sweep, timeout: timeout}
}

func (c *RevocationClock) State() State {
	return State(c.state.Load())
}

// Tick runs one sweep. A failure is logged and returned but otherwise dropped;
// the next tick tries again from scratch.
func (c *RevocationClock) Tick(ctx context.Context) (int64, error) {
	if !c.state.CompareAndSwap(int32(Idle), int32(Running)) {
		slog.Warn("revocation: tick skipped, previous sweep still running")
		metrics.RecordSweep("skipped", 0)
		return 0, ErrBusy
	}
	defer c.state.Store(int32(Idle))

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	n, err := c.sweep(ctx)
	if err != nil {
		slog.Error("revocation: sweep failed, waiting for next tick", "error", err)
		metrics.RecordSweep("error", 0)
		return 0, err
	}

	slog.Info("revocation: sweep complete", "users", n, "duration_ms", time.Since(start).Milliseconds())
	metrics.RecordSweep("ok", n)
	return n, nil
}

// Job adapts Tick for Scheduler.Every.
func (c *RevocationClock) Job() func() {
	return func() {
		_, _ = c.Tick(context.Background())
	}
}
