package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{name: "nil", err: nil, want: codes.OK},
		{name: "direct", err: NotFound("wallet missing"), want: codes.NotFound},
		{name: "wrapped", err: fmt.Errorf("debit: %w", FailedPrecondition("insufficient funds")), want: codes.FailedPrecondition},
		{name: "deadline", err: fmt.Errorf("store: %w", context.DeadlineExceeded), want: codes.DeadlineExceeded},
		{name: "grpc status", err: status.Error(codes.Aborted, "race"), want: codes.Aborted},
		{name: "plain", err: errors.New("boom"), want: codes.Unknown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Code(tc.err))
		})
	}
}

func TestRetryAfterSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("claim: %w", Retryable(codes.Aborted, 30*time.Second, "held by another request"))

	d, ok := RetryAfter(err)
	require.True(t, ok)
	require.Equal(t, 30*time.Second, d)
	require.True(t, Is(err, codes.Aborted))

	s, ok := status.FromError(err)
	require.True(t, ok)
	require.Equal(t, codes.Aborted, s.Code())
}

func TestRetryAfterAbsent(t *testing.T) {
	_, ok := RetryAfter(NotFound("nope"))
	require.False(t, ok)
	_, ok = RetryAfter(errors.New("plain"))
	require.False(t, ok)
}

func TestMessageHidesCause(t *testing.T) {
	err := Wrap(codes.Internal, errors.New("dial tcp 10.0.0.1: refused"), "store unavailable")
	require.Equal(t, "store unavailable", Message(err))
	require.Contains(t, err.Error(), "refused")
	require.Equal(t, "internal error", Message(errors.New("raw")))
}
