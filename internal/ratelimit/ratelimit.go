package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dart-ledger-go/internal/apperr"
	"dart-ledger-go/internal/models"
	"dart-ledger-go/internal/store"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
)

// Operation names with their own budgets.
const (
	OpStake           = "stake"
	OpCreateGame      = "createGame"
	OpThrow           = "throw"
	OpSettleGame      = "settleGame"
	OpClaimAdReward   = "claimAdReward"
	OpClaimDailyBonus = "claimDailyBonus"
	OpJoinQueue       = "joinQueue"
	OpRefundEscrow    = "refundEscrow"
)

// DefaultRules are the per-operation budgets used when none are configured.
var DefaultRules = []models.RateLimitRule{
	{Operation: OpStake, Limit: 10, Window: time.Minute},
	{Operation: OpCreateGame, Limit: 10, Window: time.Minute},
	{Operation: OpThrow, Limit: 120, Window: time.Minute},
	{Operation: OpSettleGame, Limit: 10, Window: time.Minute},
	{Operation: OpClaimAdReward, Limit: 5, Window: time.Minute},
	{Operation: OpClaimDailyBonus, Limit: 5, Window: time.Minute},
	{Operation: OpJoinQueue, Limit: 20, Window: time.Minute},
	{Operation: OpRefundEscrow, Limit: 10, Window: time.Minute},
}

var DefaultRule = models.RateLimitRule{Limit: 30, Window: time.Minute}

// Limiter is a fixed-window counter per (user, operation) kept in the
// store, so every instance of the service shares the same budget.
type Limiter struct {
	store    store.AtomicStore
	rules    map[string]models.RateLimitRule
	fallback models.RateLimitRule
	now      func() time.Time
}

type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New builds a limiter. Configured rules override DefaultRules per
// operation; a zero fallback uses DefaultRule.
func New(s store.AtomicStore, rules []models.RateLimitRule, fallback models.RateLimitRule, opts ...Option) (*Limiter, error) {
	l := &Limiter{
		store:    s,
		rules:    make(map[string]models.RateLimitRule),
		fallback: DefaultRule,
		now:      time.Now,
	}
	for _, r := range DefaultRules {
		l.rules[r.Operation] = r
	}
	for _, r := range rules {
		if r.Operation == "" || r.Limit <= 0 || r.Window <= 0 {
			return nil, fmt.Errorf("invalid rate limit rule %+v", r)
		}
		l.rules[r.Operation] = r
	}
	if fallback.Limit > 0 && fallback.Window > 0 {
		l.fallback = fallback
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func (l *Limiter) Rule(op string) models.RateLimitRule {
	if r, ok := l.rules[op]; ok {
		return r
	}
	return l.fallback
}

// Allow admits one call of op for userId or returns ResourceExhausted with
// the time until the committed window ends.
func (l *Limiter) Allow(ctx context.Context, userId, op string) error {
	rule := l.Rule(op)
	now := l.now().UTC()
	path := store.RateLimitPath(userId, op)

	res, err := l.store.ConditionalUpdate(ctx, path, func(raw []byte) store.Decision {
		next := models.RateLimitCounter{Count: 1, WindowStart: now}
		if cur, ok := decode(raw); ok && now.Sub(cur.WindowStart) <= rule.Window {
			if cur.Count >= rule.Limit {
				return store.Cancel()
			}
			next = models.RateLimitCounter{Count: cur.Count + 1, WindowStart: cur.WindowStart}
		}
		out, err := json.Marshal(next)
		if err != nil {
			return store.Cancel()
		}
		return store.Set(out)
	})
	if err != nil {
		return fmt.Errorf("failed to check rate limit: %w", err)
	}
	if res.Committed {
		return nil
	}

	retryAfter := rule.Window
	if cur, ok := decode(res.Value); ok {
		retryAfter = cur.WindowStart.Add(rule.Window).Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
	}
	zap.L().Debug("Rate limited",
		zap.String("user_id", userId),
		zap.String("operation", op),
		zap.Duration("retry_after", retryAfter))
	return apperr.Retryable(codes.ResourceExhausted, retryAfter,
		"too many %s requests, retry in %s", op, retryAfter.Round(time.Second))
}

// decode treats a malformed counter as absent so it is reset.
func decode(raw []byte) (*models.RateLimitCounter, bool) {
	if raw == nil {
		return nil, false
	}
	var c models.RateLimitCounter
	if err := json.Unmarshal(raw, &c); err != nil || c.WindowStart.IsZero() || c.Count < 0 {
		return nil, false
	}
	return &c, true
}
