package rate

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Error is returned when a request is blocked before reaching the upstream.
type Error struct {
	Upstream string
	Reason   string
	RetryAt  time.Time
}

func (e Error) Error() string {
	if e.RetryAt.IsZero() {
		return fmt.Sprintf("%s rate limited: %s", e.Upstream, e.Reason)
	}
	return fmt.Sprintf("%s rate limited: %s (retry at %s)", e.Upstream, e.Reason, e.RetryAt.UTC().Format(time.RFC3339))
}

// Limit declares the request budget for one upstream.
type Limit struct {
	PerMinute int
	// Burst caps how many requests may go out back to back; it defaults to
	// PerMinute.
	Burst int
}

// Guard is a client-side request budget: a token bucket refilled at the
// declared rate, plus a hard cooldown whenever the upstream answers 429.
type Guard struct {
	upstream string
	limit    Limit

	mu       sync.Mutex
	tokens   float64
	last     time.Time
	cooldown time.Time
}

func NewGuard(upstream string, limit Limit) *Guard {
	if limit.Burst <= 0 {
		limit.Burst = limit.PerMinute
	}
	return &Guard{
		upstream: upstream,
		limit:    limit,
		tokens:   float64(limit.Burst),
		last:     time.Now(),
	}
}

// Allow consumes one token, or explains why the request must wait.
func (g *Guard) Allow(now time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.limit.PerMinute <= 0 {
		return nil
	}
	if !g.cooldown.IsZero() && now.Before(g.cooldown) {
		blockedRequests.WithLabelValues(g.upstream, "cooldown").Inc()
		return Error{Upstream: g.upstream, Reason: "upstream cooldown", RetryAt: g.cooldown}
	}

	elapsed := now.Sub(g.last).Seconds()
	refill := float64(g.limit.PerMinute) / 60.0
	g.tokens = minFloat(float64(g.limit.Burst), g.tokens+elapsed*refill)
	g.last = now

	if g.tokens < 1 {
		retryAt := now.Add(time.Duration((1 - g.tokens) / refill * float64(time.Second)))
		blockedRequests.WithLabelValues(g.upstream, "budget").Inc()
		return Error{Upstream: g.upstream, Reason: "request budget exhausted", RetryAt: retryAt}
	}
	g.tokens--
	return nil
}

// Observe records the upstream's verdict. A 429 opens a cooldown sized by the
// Retry-After header, with a one minute fallback.
func (g *Guard) Observe(status int, headers http.Header) {
	if status != http.StatusTooManyRequests {
		return
	}
	wait := time.Minute
	if v := headers.Get("Retry-After"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
			wait = time.Duration(seconds) * time.Second
		}
	}
	g.mu.Lock()
	g.cooldown = time.Now().Add(wait)
	g.mu.Unlock()
	cooldownSeconds.WithLabelValues(g.upstream).Set(wait.Seconds())
}

// WrapHTTP puts the guard in front of an http.Client's transport.
func WrapHTTP(upstream string, limit Limit, base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	client := *base
	client.Transport = &roundTripper{base: transport, guard: NewGuard(upstream, limit)}
	return &client
}

type roundTripper struct {
	base  http.RoundTripper
	guard *Guard
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := rt.guard.Allow(time.Now()); err != nil {
		return nil, err
	}
	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	rt.guard.Observe(resp.StatusCode, resp.Header)
	return resp, nil
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
