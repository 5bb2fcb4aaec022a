package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repochain/repochain/internal/core"
)

type memoryRateStore struct {
	mu    sync.Mutex
	state map[string]*core.RateLimitState
}

func (m *memoryRateStore) GetRateLimit(ctx context.Context, endpoint string) (*core.RateLimitState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if val, ok := m.state[endpoint]; ok {
		copied := *val
		return &copied, nil
	}
	return nil, nil
}

func (m *memoryRateStore) UpdateRateLimit(ctx context.Context, endpoint string, state *core.RateLimitState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		m.state = make(map[string]*core.RateLimitState)
	}
	m.state[endpoint] = state
	return nil
}

func TestRateLimiterWindow(t *testing.T) {
	store := &memoryRateStore{}
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := &RateLimiter{
		Store: store,
		Limits: map[string]RateLimit{
			"repo.example": {RequestsPerWindow: 1, WindowDuration: time.Minute},
		},
		Clock: func() time.Time { return now },
	}

	allowed, _, err := limiter.Allow(context.Background(), "repo.example")
	require.NoError(t, err)
	require.True(t, allowed)

	require.NoError(t, limiter.Record(context.Background(), "repo.example"))

	allowed, wait, err := limiter.Allow(context.Background(), "repo.example")
	require.NoError(t, err)
	require.False(t, allowed)
	require.Equal(t, time.Minute, wait)

	now = now.Add(2 * time.Minute)
	allowed, _, err = limiter.Allow(context.Background(), "repo.example")
	require.NoError(t, err)
	require.True(t, allowed)

	require.NoError(t, limiter.Record(context.Background(), "repo.example"))
	require.Equal(t, 1, store.state["repo.example"].RequestCount)
}

func TestRateLimiterBackoff(t *testing.T) {
	store := &memoryRateStore{}
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := &RateLimiter{
		Store: store,
		Clock: func() time.Time { return now },
	}

	require.NoError(t, limiter.Record429(context.Background(), "repo.example", 30*time.Second))

	allowed, wait, err := limiter.Allow(context.Background(), "repo.example")
	require.NoError(t, err)
	require.False(t, allowed)
	require.Equal(t, 30*time.Second, wait)
}

func TestRateLimiterMarginAndOverrides(t *testing.T) {
	limiter := &RateLimiter{Store: &memoryRateStore{}}

	limiter.ApplyOverrides(map[string]int{" Repo.Example ": 10, "ignored": 0})
	limiter.ApplySafetyMargin(0.9)

	require.Equal(t, 9, limiter.LimitFor("repo.example").RequestsPerWindow)
	require.Equal(t, 540, limiter.LimitFor("repo.maven.apache.org").RequestsPerWindow)
	_, ok := limiter.Limits["ignored"]
	require.False(t, ok)
}

func TestNilRateLimiterAllows(t *testing.T) {
	var limiter *RateLimiter
	allowed, wait, err := limiter.Allow(context.Background(), "repo.example")
	require.NoError(t, err)
	require.True(t, allowed)
	require.Zero(t, wait)
	require.NoError(t, limiter.Record(context.Background(), "repo.example"))
}

func TestRateLimiterRecordConcurrent(t *testing.T) {
	store := &memoryRateStore{}
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := &RateLimiter{Store: store, Clock: func() time.Time { return now }}

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, limiter.Record(context.Background(), "repo.example"))
		}()
	}
	wg.Wait()

	require.Equal(t, 50, store.state["repo.example"].RequestCount)
}
