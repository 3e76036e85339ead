package rate

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGuardBudget(t *testing.T) {
	g := NewGuard("test", Limit{PerMinute: 60, Burst: 2})
	now := time.Now()

	if err := g.Allow(now); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if err := g.Allow(now); err != nil {
		t.Fatalf("second request: %v", err)
	}

	err := g.Allow(now)
	var rateErr Error
	if !errors.As(err, &rateErr) {
		t.Fatalf("expected rate Error, got %v", err)
	}
	if rateErr.RetryAt.Before(now) {
		t.Fatalf("retry time must be in the future: %s", rateErr.RetryAt)
	}

	// One request per second refills; after two seconds the budget is back.
	if err := g.Allow(now.Add(2 * time.Second)); err != nil {
		t.Fatalf("request after refill: %v", err)
	}
}

func TestGuardUnlimitedWhenUndeclared(t *testing.T) {
	g := NewGuard("test", Limit{})
	now := time.Now()
	for i := 0; i < 100; i++ {
		if err := g.Allow(now); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
}

func TestGuardCooldownFromRetryAfter(t *testing.T) {
	g := NewGuard("test", Limit{PerMinute: 60})

	headers := http.Header{}
	headers.Set("Retry-After", "30")
	g.Observe(http.StatusTooManyRequests, headers)

	err := g.Allow(time.Now())
	var rateErr Error
	if !errors.As(err, &rateErr) {
		t.Fatalf("expected cooldown error, got %v", err)
	}
	if rateErr.Reason != "upstream cooldown" {
		t.Fatalf("unexpected reason: %s", rateErr.Reason)
	}

	// The cooldown expires on schedule.
	g.mu.Lock()
	g.cooldown = time.Now().Add(-time.Second)
	g.mu.Unlock()
	if err := g.Allow(time.Now()); err != nil {
		t.Fatalf("request after cooldown: %v", err)
	}
}

func TestWrapHTTPBlocksAndPasses(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := WrapHTTP("test", Limit{PerMinute: 60, Burst: 1}, nil)

	if _, err := client.Get(server.URL); err != nil {
		t.Fatalf("first request: %v", err)
	}
	_, err := client.Get(server.URL)
	var rateErr Error
	if !errors.As(err, &rateErr) {
		t.Fatalf("expected rate Error, got %v", err)
	}
	if hits != 1 {
		t.Fatalf("blocked request reached the server, %d hits", hits)
	}
}
