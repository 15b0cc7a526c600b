package claim

import (
	"fmt"
	"time"

	"dart-ledger-go/internal/apperr"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultTimeout is how long a processing claim is honoured before another
// request may take it over.
const DefaultTimeout = 120 * time.Second

var (
	ErrAlreadyCompleted = apperr.New(codes.AlreadyExists, "operation already completed")
	ErrLostRace         = apperr.New(codes.Aborted, "claim taken by a concurrent request")
	ErrNotClaimable     = apperr.New(codes.FailedPrecondition, "record is not in a claimable state")
)

// HeldError reports a live claim owned by another request.
type HeldError struct {
	Remaining time.Duration
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("operation in progress, retry in %s", e.Remaining.Round(time.Second))
}

func (e *HeldError) RetryAfter() time.Duration { return e.Remaining }

func (e *HeldError) GRPCStatus() *status.Status { return status.New(codes.Aborted, e.Error()) }

// Protocol describes the three states a claimable record moves through.
// A Processing claim older than Timeout is stale and may be taken over.
type Protocol[S ~string] struct {
	Available  []S
	Processing S
	Completed  S
	Timeout    time.Duration
}

// Evaluate decides whether a record in state, claimed at startedAt, can be
// claimed at now. It returns nil when acquirable, ErrAlreadyCompleted when
// the work is done, a *HeldError while another request holds a live claim,
// and ErrNotClaimable for any other state.
func (p Protocol[S]) Evaluate(state S, startedAt *time.Time, now time.Time) error {
	switch {
	case state == p.Completed:
		return ErrAlreadyCompleted
	case state == p.Processing:
		if startedAt == nil {
			return nil
		}
		if remaining := startedAt.Add(p.timeout()).Sub(now); remaining > 0 {
			return &HeldError{Remaining: remaining}
		}
		return nil
	}
	for _, a := range p.Available {
		if state == a {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrNotClaimable, state)
}

func (p Protocol[S]) timeout() time.Duration {
	if p.Timeout <= 0 {
		return DefaultTimeout
	}
	return p.Timeout
}

// NewRequestId returns a fresh claim owner id.
func NewRequestId() string {
	return uuid.NewString()
}

// Verify confirms the committed claim belongs to this request.
func Verify(committed, mine string) error {
	if committed != mine {
		return ErrLostRace
	}
	return nil
}
