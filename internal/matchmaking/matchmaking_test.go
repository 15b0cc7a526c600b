package matchmaking

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"dart-ledger-go/internal/apperr"
	"dart-ledger-go/internal/models"
	"dart-ledger-go/internal/store/memory"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
)

func newTestService() *Service {
	start := time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)
	var tick atomic.Int64
	return NewService(memory.New(memory.WithMaxAttempts(1000)), WithClock(func() time.Time {
		return start.Add(time.Duration(tick.Add(1)) * time.Second)
	}))
}

func TestJoinAndLeave(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	entry, err := svc.Join(ctx, JoinParams{UserId: "alice", Mode: models.ModeWagered, StakeLevel: 100, EscrowId: "esc-1", Name: "Alice"})
	require.NoError(t, err)
	require.Equal(t, int64(100), entry.StakeLevel)

	got, err := svc.Get(ctx, "alice", models.ModeWagered, 100)
	require.NoError(t, err)
	require.Equal(t, "esc-1", got.EscrowId)

	require.NoError(t, svc.Leave(ctx, "alice", models.ModeWagered, 100))
	_, err = svc.Get(ctx, "alice", models.ModeWagered, 100)
	require.Equal(t, codes.NotFound, apperr.Code(err))

	// Leaving twice is harmless.
	require.NoError(t, svc.Leave(ctx, "alice", models.ModeWagered, 100))
}

func TestJoinValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	tests := []struct {
		name string
		p    JoinParams
	}{
		{name: "unknown mode", p: JoinParams{UserId: "u", Mode: "ranked"}},
		{name: "bad stake", p: JoinParams{UserId: "u", Mode: models.ModeWagered, StakeLevel: 75, EscrowId: "e"}},
		{name: "wagered without escrow", p: JoinParams{UserId: "u", Mode: models.ModeWagered, StakeLevel: 50}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Join(ctx, tc.p)
			require.Equal(t, codes.InvalidArgument, apperr.Code(err))
		})
	}
}

func TestWaitingSeparatesQueues(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	for _, uid := range []string{"c1", "c2"} {
		_, err := svc.Join(ctx, JoinParams{UserId: uid, Mode: models.ModeCasual, StakeLevel: 500})
		require.NoError(t, err)
	}
	_, err := svc.Join(ctx, JoinParams{UserId: "w1", Mode: models.ModeWagered, StakeLevel: 50, EscrowId: "e1"})
	require.NoError(t, err)

	casual, err := svc.Waiting(ctx, models.ModeCasual, 0)
	require.NoError(t, err)
	require.Len(t, casual, 2)
	require.Equal(t, "c1", casual[0].PlayerId)
	require.Zero(t, casual[0].StakeLevel)

	wagered, err := svc.Waiting(ctx, models.ModeWagered, 50)
	require.NoError(t, err)
	require.Len(t, wagered, 1)
	require.Equal(t, "w1", wagered[0].PlayerId)

	_, err = svc.Claim(ctx, ClaimParams{Mode: models.ModeCasual, OpponentId: "c1", GameId: "g1"})
	require.NoError(t, err)
	casual, err = svc.Waiting(ctx, models.ModeCasual, 0)
	require.NoError(t, err)
	require.Len(t, casual, 1)
	require.Equal(t, "c2", casual[0].PlayerId)
}

func TestClaimSingleConsumer(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	_, err := svc.Join(ctx, JoinParams{UserId: "bob", Mode: models.ModeCasual})
	require.NoError(t, err)

	var wins atomic.Int32
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		gameId := "game-" + string(rune('a'+i))
		g.Go(func() error {
			_, err := svc.Claim(ctx, ClaimParams{Mode: models.ModeCasual, OpponentId: "bob", GameId: gameId, ByName: "x"})
			if err == nil {
				wins.Add(1)
				return nil
			}
			if !apperr.Is(err, codes.Aborted) {
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, int32(1), wins.Load())
}

func TestClaimReplayAndRelease(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	_, err := svc.Join(ctx, JoinParams{UserId: "bob", Mode: models.ModeCasual})
	require.NoError(t, err)

	p := ClaimParams{Mode: models.ModeCasual, OpponentId: "bob", GameId: "g1", ByName: "Alice", ByFlag: "fi"}
	entry, err := svc.Claim(ctx, p)
	require.NoError(t, err)
	require.Equal(t, "Alice", entry.MatchedByName)

	_, err = svc.Claim(ctx, p)
	require.NoError(t, err)

	err = svc.Leave(ctx, "bob", models.ModeCasual, 0)
	require.Equal(t, codes.FailedPrecondition, apperr.Code(err))

	// A release for another game is ignored.
	require.NoError(t, svc.Release(ctx, models.ModeCasual, 0, "bob", "g2"))
	_, err = svc.Claim(ctx, ClaimParams{Mode: models.ModeCasual, OpponentId: "bob", GameId: "g2"})
	require.Equal(t, codes.Aborted, apperr.Code(err))

	require.NoError(t, svc.Release(ctx, models.ModeCasual, 0, "bob", "g1"))
	entry, err = svc.Claim(ctx, ClaimParams{Mode: models.ModeCasual, OpponentId: "bob", GameId: "g2"})
	require.NoError(t, err)
	require.Equal(t, "g2", entry.MatchedGameId)
}

func TestClaimMissingOpponent(t *testing.T) {
	_, err := newTestService().Claim(context.Background(), ClaimParams{Mode: models.ModeCasual, OpponentId: "ghost", GameId: "g1"})
	require.Equal(t, codes.NotFound, apperr.Code(err))
}

func TestCompleteAllowsRequeue(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	_, err := svc.Join(ctx, JoinParams{UserId: "bob", Mode: models.ModeCasual, Name: "Bob"})
	require.NoError(t, err)
	_, err = svc.Claim(ctx, ClaimParams{Mode: models.ModeCasual, OpponentId: "bob", GameId: "g1"})
	require.NoError(t, err)

	// completing another game leaves the match in place
	require.NoError(t, svc.Complete(ctx, models.ModeCasual, 0, "bob", "g0"))
	err = svc.Leave(ctx, "bob", models.ModeCasual, 0)
	require.Equal(t, codes.FailedPrecondition, apperr.Code(err))

	require.NoError(t, svc.Complete(ctx, models.ModeCasual, 0, "bob", "g1"))
	_, err = svc.Get(ctx, "bob", models.ModeCasual, 0)
	require.Equal(t, codes.NotFound, apperr.Code(err))
	require.NoError(t, svc.Complete(ctx, models.ModeCasual, 0, "bob", "g1"))

	entry, err := svc.Join(ctx, JoinParams{UserId: "bob", Mode: models.ModeCasual, Name: "Bob"})
	require.NoError(t, err)
	require.Empty(t, entry.MatchedGameId)
	entry, err = svc.Claim(ctx, ClaimParams{Mode: models.ModeCasual, OpponentId: "bob", GameId: "g2"})
	require.NoError(t, err)
	require.Equal(t, "g2", entry.MatchedGameId)
}
