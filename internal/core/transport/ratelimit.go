package transport

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/repochain/repochain/internal/core"
)

// RateLimiter enforces per-host request windows for remote repositories.
// It is shared by concurrent queries; updates to the store are serialized.
type RateLimiter struct {
	Store  RateLimitStore
	Limits map[string]RateLimit
	Clock  func() time.Time
	Margin float64

	mu sync.Mutex
}

// RateLimit represents a rate limit window.
type RateLimit struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// RateLimitStore persists rate limit state between runs.
type RateLimitStore interface {
	GetRateLimit(ctx context.Context, endpoint string) (*core.RateLimitState, error)
	UpdateRateLimit(ctx context.Context, endpoint string, state *core.RateLimitState) error
}

// DefaultLimits holds conservative windows for well-known public repositories.
var DefaultLimits = map[string]RateLimit{
	"repo.maven.apache.org": {RequestsPerWindow: 600, WindowDuration: time.Minute},
	"repo1.maven.org":       {RequestsPerWindow: 600, WindowDuration: time.Minute},
	"central.sonatype.com":  {RequestsPerWindow: 300, WindowDuration: time.Minute},
	"oss.sonatype.org":      {RequestsPerWindow: 120, WindowDuration: time.Minute},
	"s01.oss.sonatype.org":  {RequestsPerWindow: 120, WindowDuration: time.Minute},
	"repository.apache.org": {RequestsPerWindow: 120, WindowDuration: time.Minute},
	"maven.google.com":      {RequestsPerWindow: 300, WindowDuration: time.Minute},
	"plugins.gradle.org":    {RequestsPerWindow: 300, WindowDuration: time.Minute},
	"jitpack.io":            {RequestsPerWindow: 60, WindowDuration: time.Minute},
}

var fallbackLimit = RateLimit{RequestsPerWindow: 300, WindowDuration: time.Minute}

// Allow reports whether a request to endpoint may proceed, and how long to wait if not.
func (r *RateLimiter) Allow(ctx context.Context, endpoint string) (bool, time.Duration, error) {
	if r == nil || r.Store == nil {
		return true, 0, nil
	}

	state, err := r.Store.GetRateLimit(ctx, endpoint)
	if err != nil {
		return true, 0, err
	}
	if state == nil {
		return true, 0, nil
	}

	now := r.now()
	if state.BackoffUntil != nil && now.Before(*state.BackoffUntil) {
		return false, state.BackoffUntil.Sub(now), nil
	}

	limit := r.LimitFor(endpoint)
	windowEnd := state.WindowStart.Add(limit.WindowDuration)
	if now.After(windowEnd) {
		return true, 0, nil
	}
	if state.RequestCount >= limit.RequestsPerWindow {
		return false, windowEnd.Sub(now), nil
	}
	return true, 0, nil
}

// Record counts one request against endpoint, opening a new window when the old one expired.
func (r *RateLimiter) Record(ctx context.Context, endpoint string) error {
	if r == nil || r.Store == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.Store.GetRateLimit(ctx, endpoint)
	if err != nil {
		return err
	}

	now := r.now()
	limit := r.LimitFor(endpoint)
	if state == nil || state.WindowStart.IsZero() || now.After(state.WindowStart.Add(limit.WindowDuration)) {
		fresh := &core.RateLimitState{WindowStart: now}
		if state != nil {
			fresh.BackoffUntil = state.BackoffUntil
			fresh.Last429At = state.Last429At
		}
		state = fresh
	}
	state.RequestCount++

	return r.Store.UpdateRateLimit(ctx, endpoint, state)
}

// Record429 applies a backoff window from a 429 response.
func (r *RateLimiter) Record429(ctx context.Context, endpoint string, retryAfter time.Duration) error {
	if r == nil || r.Store == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.Store.GetRateLimit(ctx, endpoint)
	if err != nil {
		return err
	}
	now := r.now()
	if state == nil {
		state = &core.RateLimitState{WindowStart: now}
	}

	state.Last429At = &now
	if retryAfter > 0 {
		until := now.Add(retryAfter)
		state.BackoffUntil = &until
	}

	return r.Store.UpdateRateLimit(ctx, endpoint, state)
}

// ApplyOverrides merges per-host request overrides (per minute).
func (r *RateLimiter) ApplyOverrides(overrides map[string]int) {
	if r == nil || len(overrides) == 0 {
		return
	}

	if r.Limits == nil {
		r.Limits = make(map[string]RateLimit, len(DefaultLimits))
		for key, limit := range DefaultLimits {
			r.Limits[key] = limit
		}
	}

	for endpoint, value := range overrides {
		endpoint = strings.ToLower(strings.TrimSpace(endpoint))
		if endpoint == "" || value <= 0 {
			continue
		}
		r.Limits[endpoint] = RateLimit{RequestsPerWindow: value, WindowDuration: time.Minute}
	}
}

// ApplySafetyMargin scales effective request limits by a ratio in (0, 1].
func (r *RateLimiter) ApplySafetyMargin(margin float64) {
	if r == nil || margin <= 0 || margin > 1 {
		return
	}
	r.Margin = margin
}

// LimitFor returns the effective window for endpoint after overrides and margin.
func (r *RateLimiter) LimitFor(endpoint string) RateLimit {
	limits := r.Limits
	if limits == nil {
		limits = DefaultLimits
	}

	limit, ok := limits[strings.ToLower(endpoint)]
	if !ok {
		limit = fallbackLimit
	}

	if r.Margin <= 0 || r.Margin > 1 {
		return limit
	}
	adjusted := int(math.Floor(float64(limit.RequestsPerWindow) * r.Margin))
	if adjusted < 1 {
		adjusted = 1
	}
	limit.RequestsPerWindow = adjusted
	return limit
}

func (r *RateLimiter) now() time.Time {
	if r != nil && r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}
