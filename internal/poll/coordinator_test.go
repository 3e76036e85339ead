package poll

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pgrootkop-cmyk/honairco/internal/auth"
)

type fakeTarget struct {
	polls atomic.Int64
	err   atomic.Value

	mu          sync.Mutex
	available   bool
	unavailable string
}

func (f *fakeTarget) Poll(context.Context) error {
	f.polls.Add(1)
	if err, ok := f.err.Load().(error); ok && err != nil {
		return err
	}
	return nil
}

func (f *fakeTarget) SetAvailable() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.available = true
	f.unavailable = ""
}

func (f *fakeTarget) SetUnavailable(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.available = false
	f.unavailable = reason
}

func (f *fakeTarget) state() (bool, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available, f.unavailable
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestIntervalClamp(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want time.Duration
	}{
		{0, MinInterval},
		{time.Second, MinInterval},
		{30 * time.Second, 30 * time.Second},
		{2 * time.Hour, MaxInterval},
	}
	for _, tc := range cases {
		c := NewCoordinator("aa", &fakeTarget{}, tc.in, nil)
		if got := c.Interval(); got != tc.want {
			t.Errorf("clamp(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestStartPollsImmediatelyAndMarksAvailable(t *testing.T) {
	target := &fakeTarget{}
	c := NewCoordinator("aa", target, MinInterval, nil)

	c.Start(context.Background())
	defer c.Stop()

	waitFor(t, time.Second, func() bool { return target.polls.Load() >= 1 })
	waitFor(t, time.Second, func() bool {
		available, _ := target.state()
		return available
	})
}

func TestSuppressSkipsTicksAndSchedulesExtraPoll(t *testing.T) {
	target := &fakeTarget{}
	c := NewCoordinator("aa", target, time.Hour, nil)

	c.Start(context.Background())
	defer c.Stop()
	waitFor(t, time.Second, func() bool { return target.polls.Load() == 1 })

	c.Suppress(50 * time.Millisecond)

	// The settle window closes with exactly one extra poll.
	waitFor(t, time.Second, func() bool { return target.polls.Load() == 2 })
	time.Sleep(100 * time.Millisecond)
	if got := target.polls.Load(); got != 2 {
		t.Fatalf("expected one extra poll, got %d total", got)
	}
}

func TestSuppressResetIsExtendedByNewWrites(t *testing.T) {
	target := &fakeTarget{}
	c := NewCoordinator("aa", target, time.Hour, nil)

	c.Start(context.Background())
	defer c.Stop()
	waitFor(t, time.Second, func() bool { return target.polls.Load() == 1 })

	c.Suppress(200 * time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	c.Suppress(200 * time.Millisecond)

	// Only the second window's extra poll should fire.
	waitFor(t, time.Second, func() bool { return target.polls.Load() == 2 })
	time.Sleep(250 * time.Millisecond)
	if got := target.polls.Load(); got != 2 {
		t.Fatalf("expected a single extra poll after the reset, got %d total", got)
	}
}

func TestStopCancelsPendingExtraPoll(t *testing.T) {
	target := &fakeTarget{}
	c := NewCoordinator("aa", target, time.Hour, nil)

	c.Start(context.Background())
	waitFor(t, time.Second, func() bool { return target.polls.Load() == 1 })

	c.Suppress(50 * time.Millisecond)
	c.Stop()

	time.Sleep(150 * time.Millisecond)
	if got := target.polls.Load(); got != 1 {
		t.Fatalf("extra poll fired after Stop, got %d total", got)
	}
}

func TestAuthFailureMarksUnavailable(t *testing.T) {
	target := &fakeTarget{}
	target.SetAvailable()
	target.err.Store(error(auth.AuthError{Op: "refresh", Err: errors.New("session expired")}))
	c := NewCoordinator("aa", target, time.Hour, nil)

	c.Start(context.Background())
	defer c.Stop()

	waitFor(t, time.Second, func() bool {
		available, reason := target.state()
		return !available && reason == ReasonReauthRequired
	})
}

func TestTransientFailureLeavesAvailabilityAlone(t *testing.T) {
	target := &fakeTarget{}
	target.SetAvailable()
	target.err.Store(errors.New("connection reset"))
	c := NewCoordinator("aa", target, time.Hour, nil)

	c.Start(context.Background())
	defer c.Stop()

	waitFor(t, time.Second, func() bool { return target.polls.Load() >= 1 })
	if available, _ := target.state(); !available {
		t.Fatalf("transient failure must not flip availability")
	}
}
