package poll

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pgrootkop-cmyk/honairco/internal/auth"
)

const (
	MinInterval = 5 * time.Second
	MaxInterval = 3600 * time.Second

	// DefaultSettleDelay is how long polled state is discarded after a
	// command, so the optimistic capability write is not clobbered before
	// the appliance has processed the command.
	DefaultSettleDelay = 10 * time.Second

	// ReasonReauthRequired marks devices whose session needs repairing
	// through the host platform.
	ReasonReauthRequired = "cloud session expired, re-pair the account"
)

// Target is the device-side surface the coordinator drives.
type Target interface {
	Poll(ctx context.Context) error
	SetAvailable()
	SetUnavailable(reason string)
}

// Coordinator runs the poll loop for one device: a single ticker, a settle
// window after writes, and exactly one extra poll when the window closes.
type Coordinator struct {
	mac      string
	target   Target
	interval time.Duration
	log      *zap.Logger

	mu        sync.Mutex
	skipUntil time.Time
	extra     *time.Timer
	cancel    context.CancelFunc
	ctx       context.Context
	started   bool
}

func NewCoordinator(mac string, target Target, interval time.Duration, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		mac:      mac,
		target:   target,
		interval: clampInterval(interval),
		log:      log.With(zap.String("mac", mac)),
	}
}

// Interval returns the effective (clamped) poll interval.
func (c *Coordinator) Interval() time.Duration {
	return c.interval
}

// Start polls once immediately and then on every tick until Stop or context
// cancellation.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.ctx, c.cancel = context.WithCancel(ctx)
	runCtx := c.ctx
	c.mu.Unlock()

	go func() {
		c.pollOnce(runCtx)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				c.pollOnce(runCtx)
			}
		}
	}()
}

// Stop cancels the ticker and any pending settle-window poll. No callbacks
// run after Stop returns, so the device can be torn down safely.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	if c.extra != nil {
		c.extra.Stop()
		c.extra = nil
	}
	c.started = false
	c.mu.Unlock()
}

// Suppress opens a settle window: ticks inside it are skipped, and one extra
// poll is scheduled for the moment it closes to pick up the settled state
// promptly. A new write resets both.
func (c *Coordinator) Suppress(d time.Duration) {
	if d <= 0 {
		d = DefaultSettleDelay
	}

	c.mu.Lock()
	c.skipUntil = time.Now().Add(d)
	if c.extra != nil {
		c.extra.Stop()
	}
	runCtx := c.ctx
	c.extra = time.AfterFunc(d, func() {
		if runCtx == nil || runCtx.Err() != nil {
			return
		}
		c.pollOnce(runCtx)
	})
	c.mu.Unlock()

	c.log.Debug("poll suppressed after command", zap.Duration("settle", d))
}

func (c *Coordinator) pollOnce(ctx context.Context) {
	c.mu.Lock()
	skip := time.Now().Before(c.skipUntil)
	c.mu.Unlock()
	if skip {
		pollSuppressed.WithLabelValues(c.mac).Inc()
		return
	}

	err := c.target.Poll(ctx)
	if err == nil {
		pollSuccess.WithLabelValues(c.mac).Inc()
		deviceAvailable.WithLabelValues(c.mac).Set(1)
		c.target.SetAvailable()
		return
	}
	if ctx.Err() != nil {
		return
	}

	var authErr auth.AuthError
	if errors.As(err, &authErr) {
		pollFailure.WithLabelValues(c.mac, "auth").Inc()
		deviceAvailable.WithLabelValues(c.mac).Set(0)
		c.log.Warn("poll auth failure, marking device unavailable", zap.Error(err))
		c.target.SetUnavailable(ReasonReauthRequired)
		return
	}

	// Transient: leave availability alone and wait for the next tick.
	pollFailure.WithLabelValues(c.mac, "transient").Inc()
	c.log.Warn("poll failed, retrying next tick", zap.Error(err))
}

func clampInterval(interval time.Duration) time.Duration {
	if interval < MinInterval {
		return MinInterval
	}
	if interval > MaxInterval {
		return MaxInterval
	}
	return interval
}
