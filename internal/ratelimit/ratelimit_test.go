package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dart-ledger-go/internal/apperr"
	"dart-ledger-go/internal/models"
	"dart-ledger-go/internal/store"
	"dart-ledger-go/internal/store/memory"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestLimiter(t *testing.T, s *memory.Store, rules ...models.RateLimitRule) (*Limiter, *testClock) {
	t.Helper()
	clock := &testClock{t: time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)}
	l, err := New(s, rules, models.RateLimitRule{}, WithClock(clock.Now))
	require.NoError(t, err)
	return l, clock
}

func TestAllowWindow(t *testing.T) {
	ctx := context.Background()
	l, clock := newTestLimiter(t, memory.New(), models.RateLimitRule{Operation: OpStake, Limit: 2, Window: time.Minute})

	require.NoError(t, l.Allow(ctx, "u1", OpStake))
	clock.Advance(15 * time.Second)
	require.NoError(t, l.Allow(ctx, "u1", OpStake))

	err := l.Allow(ctx, "u1", OpStake)
	require.Equal(t, codes.ResourceExhausted, apperr.Code(err))
	retry, ok := apperr.RetryAfter(err)
	require.True(t, ok)
	require.Equal(t, 45*time.Second, retry)

	// Other users and operations have their own counters.
	require.NoError(t, l.Allow(ctx, "u2", OpStake))
	require.NoError(t, l.Allow(ctx, "u1", OpThrow))

	clock.Advance(46 * time.Second)
	require.NoError(t, l.Allow(ctx, "u1", OpStake))
}

func TestAllowResetsMalformedCounter(t *testing.T) {
	s := memory.New()
	l, _ := newTestLimiter(t, s)
	s.Put(store.RateLimitPath("u1", OpClaimAdReward), []byte(`{"count":"lots"`))

	require.NoError(t, l.Allow(context.Background(), "u1", OpClaimAdReward))
	raw, err := s.Get(context.Background(), store.RateLimitPath("u1", OpClaimAdReward))
	require.NoError(t, err)
	require.Contains(t, string(raw), `"count":1`)
}

func TestAllowConcurrentAdmitsExactlyLimit(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, memory.New(memory.WithMaxAttempts(1000)))

	var admitted atomic.Int32
	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			err := l.Allow(ctx, "u1", OpClaimDailyBonus)
			if err == nil {
				admitted.Add(1)
				return nil
			}
			if apperr.Is(err, codes.ResourceExhausted) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, int32(5), admitted.Load())
}

func TestRules(t *testing.T) {
	l, _ := newTestLimiter(t, memory.New())
	require.Equal(t, 120, l.Rule(OpThrow).Limit)
	require.Equal(t, 30, l.Rule("somethingElse").Limit)

	_, err := New(memory.New(), []models.RateLimitRule{{Operation: OpThrow}}, models.RateLimitRule{})
	require.Error(t, err)
}
