package claim

import (
	"errors"
	"testing"
	"time"

	"dart-ledger-go/internal/apperr"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

type state string

var testProtocol = Protocol[state]{
	Available:  []state{"verified"},
	Processing: "processing",
	Completed:  "completed",
	Timeout:    120 * time.Second,
}

func TestEvaluate(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	eps := time.Millisecond

	tests := []struct {
		name     string
		state    state
		started  *time.Time
		now      time.Time
		expErr   error
		expHeld  bool
		expRetry time.Duration
	}{
		{name: "available", state: "verified", now: start},
		{name: "completed", state: "completed", now: start, expErr: ErrAlreadyCompleted},
		{name: "held just before timeout", state: "processing", started: &start, now: start.Add(120*time.Second - eps), expHeld: true, expRetry: eps},
		{name: "stale just after timeout", state: "processing", started: &start, now: start.Add(120*time.Second + eps)},
		{name: "stale at timeout", state: "processing", started: &start, now: start.Add(120 * time.Second)},
		{name: "processing without timestamp", state: "processing", now: start},
		{name: "unknown state", state: "refunded", now: start, expErr: ErrNotClaimable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := testProtocol.Evaluate(tc.state, tc.started, tc.now)
			switch {
			case tc.expHeld:
				var held *HeldError
				require.True(t, errors.As(err, &held))
				require.Equal(t, tc.expRetry, held.RetryAfter())
				require.Equal(t, codes.Aborted, apperr.Code(err))
				d, ok := apperr.RetryAfter(err)
				require.True(t, ok)
				require.Equal(t, tc.expRetry, d)
			case tc.expErr != nil:
				require.ErrorIs(t, err, tc.expErr)
			default:
				require.NoError(t, err)
			}
		})
	}
}

func TestVerify(t *testing.T) {
	require.NoError(t, Verify("a", "a"))
	err := Verify("a", "b")
	require.ErrorIs(t, err, ErrLostRace)
	require.Equal(t, codes.Aborted, apperr.Code(err))
}

func TestNewRequestIdUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := NewRequestId()
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
}

func TestMachine(t *testing.T) {
	m := NewMachine("escrow", map[state][]state{
		"pending":  {"locked", "refunded"},
		"locked":   {"settling", "refunded"},
		"settling": {"released", "locked"},
	})

	require.True(t, m.Can("pending", "locked"))
	require.False(t, m.Can("released", "locked"))
	require.NoError(t, m.Check("settling", "locked"))

	err := m.Check("refunded", "locked")
	require.ErrorIs(t, err, ErrIllegalTransition)
	require.Equal(t, codes.FailedPrecondition, apperr.Code(err))
	require.Contains(t, err.Error(), "refunded -> locked")
}
