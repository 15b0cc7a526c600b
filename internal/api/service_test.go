package api

import (
	"context"
	"testing"
	"time"

	"dart-ledger-go/internal/apperr"
	"dart-ledger-go/internal/models"
	"dart-ledger-go/internal/store/memory"
	"dart-ledger-go/internal/txlog"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func newTestService(t *testing.T) *GameService {
	t.Helper()
	s := memory.New(memory.WithMaxAttempts(1000))
	deps, err := NewDependencies(s, txlog.NewStoreJournal(s), models.EconomyConfig{})
	require.NoError(t, err)
	return NewGameService(deps)
}

func as(uid string) context.Context {
	return models.WithCaller(context.Background(), &models.Caller{UserId: uid})
}

func asGuest(uid string) context.Context {
	return models.WithCaller(context.Background(), &models.Caller{UserId: uid, Anonymous: true})
}

func TestCallerRequired(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.GetWallet(context.Background())
	require.Equal(t, codes.Unauthenticated, apperr.Code(err))

	_, err = svc.GetWallet(as("bad id!"))
	require.Equal(t, codes.InvalidArgument, apperr.Code(err))

	require.NoError(t, svc.HealthCheck(context.Background()))
}

func TestAnonymousCannotMoveCoins(t *testing.T) {
	svc := newTestService(t)
	ctx := asGuest("guest1")

	_, err := svc.SignIn(ctx)
	require.Equal(t, codes.PermissionDenied, apperr.Code(err))
	_, err = svc.Stake(ctx, "esc-1", 100)
	require.Equal(t, codes.PermissionDenied, apperr.Code(err))
	_, err = svc.ClaimDailyBonus(ctx, "UTC")
	require.Equal(t, codes.PermissionDenied, apperr.Code(err))
	_, err = svc.JoinQueue(ctx, QueueRequest{Mode: models.ModeWagered, StakeLevel: 100, EscrowId: "esc-1"})
	require.Equal(t, codes.PermissionDenied, apperr.Code(err))

	// Casual play is open to guests.
	_, err = svc.JoinQueue(ctx, QueueRequest{Mode: models.ModeCasual, Name: "Guest"})
	require.NoError(t, err)
}

func TestValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := as("alice")
	_, err := svc.SignIn(ctx)
	require.NoError(t, err)

	tests := []struct {
		name string
		call func() error
	}{
		{name: "stake enum", call: func() error { _, err := svc.Stake(ctx, "esc-1", 75); return err }},
		{name: "escrow id", call: func() error { _, err := svc.Stake(ctx, "esc/1", 100); return err }},
		{name: "ad transaction id", call: func() error { _, err := svc.ClaimAdReward(ctx, ""); return err }},
		{name: "timezone", call: func() error { _, err := svc.ClaimDailyBonus(ctx, "../etc/passwd"); return err }},
		{name: "position", call: func() error { _, err := svc.Throw(ctx, "g1", 401, 0); return err }},
		{name: "mode", call: func() error { _, err := svc.JoinQueue(ctx, QueueRequest{Mode: "ranked"}); return err }},
		{name: "flag", call: func() error {
			_, err := svc.JoinQueue(ctx, QueueRequest{Mode: models.ModeCasual, Flag: "FIN"})
			return err
		}},
		{name: "name", call: func() error {
			_, err := svc.JoinQueue(ctx, QueueRequest{Mode: models.ModeCasual, Name: "a\x00b"})
			return err
		}},
		{name: "purchase amount", call: func() error { _, err := svc.CompletePurchase(ctx, "alice", 0, "cs_1"); return err }},
		{name: "verified time", call: func() error { _, err := svc.RecordAdVerified(ctx, "alice", "tx1", time.Time{}); return err }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, codes.InvalidArgument, apperr.Code(tc.call()))
		})
	}
}

func TestRateLimitedClaims(t *testing.T) {
	svc := newTestService(t)
	ctx := as("alice")
	_, err := svc.SignIn(ctx)
	require.NoError(t, err)

	res, err := svc.ClaimDailyBonus(ctx, "Europe/Helsinki")
	require.NoError(t, err)
	require.True(t, res.Success)

	for i := 0; i < 4; i++ {
		res, err = svc.ClaimDailyBonus(ctx, "Europe/Helsinki")
		require.NoError(t, err)
		require.True(t, res.AlreadyClaimed)
	}

	_, err = svc.ClaimDailyBonus(ctx, "Europe/Helsinki")
	require.Equal(t, codes.ResourceExhausted, apperr.Code(err))
	_, ok := apperr.RetryAfter(err)
	require.True(t, ok)
}

func TestWageredMatchEndToEnd(t *testing.T) {
	svc := newTestService(t)
	alice, bob := as("alice"), as("bob")
	for _, ctx := range []context.Context{alice, bob} {
		_, err := svc.SignIn(ctx)
		require.NoError(t, err)
	}

	_, err := svc.Stake(bob, "esc-1", 100)
	require.NoError(t, err)
	_, err = svc.JoinQueue(bob, QueueRequest{Mode: models.ModeWagered, StakeLevel: 100, EscrowId: "esc-1", Name: "Bob", Flag: "fi"})
	require.NoError(t, err)

	waiting, err := svc.ListQueue(alice, models.ModeWagered, 100)
	require.NoError(t, err)
	require.Len(t, waiting, 1)
	require.Equal(t, "bob", waiting[0].PlayerId)

	staked, err := svc.Stake(alice, "esc-1", 100)
	require.NoError(t, err)
	require.Equal(t, models.EscrowLocked, staked.Status)
	require.Equal(t, int64(400), staked.NewBalance)

	g, err := svc.CreateGame(alice, CreateGameRequest{OpponentId: "bob", Mode: models.ModeWagered, StakeLevel: 100, EscrowId: "esc-1", Name: "Alice"})
	require.NoError(t, err)

	entry, err := svc.GetQueueEntry(bob, models.ModeWagered, 100)
	require.NoError(t, err)
	require.Equal(t, g.Id, entry.MatchedGameId)

	_, err = svc.Throw(alice, g.Id, 200, 140)
	require.Equal(t, codes.FailedPrecondition, apperr.Code(err))
	res, err := svc.Throw(bob, g.Id, 200, 140)
	require.NoError(t, err)
	require.Equal(t, "S20", res.Throw.Label)

	_, err = svc.Forfeit(bob, g.Id)
	require.NoError(t, err)

	settled, err := svc.SettleGame(bob, g.Id)
	require.NoError(t, err)
	require.Equal(t, "alice", settled.Winner)
	require.Equal(t, int64(200), settled.Payout)

	w, err := svc.GetWallet(alice)
	require.NoError(t, err)
	require.Equal(t, int64(400+200+50), w.Coins)

	p, err := svc.GetProgress(alice)
	require.NoError(t, err)
	require.Equal(t, 2, p.Level)
	require.Equal(t, int64(300), p.NextLevelXP)

	history, err := svc.GetTransactionHistory(alice, 0)
	require.NoError(t, err)
	require.NotEmpty(t, history)
}

func TestInternalCredits(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.SignIn(as("alice"))
	require.NoError(t, err)

	created, err := svc.RecordAdVerified(ctx, "alice", "tx-1", time.Now())
	require.NoError(t, err)
	require.True(t, created)

	claimed, err := svc.ClaimAdReward(as("alice"), "tx-1")
	require.NoError(t, err)
	require.True(t, claimed.Success)

	purchase, err := svc.CompletePurchase(ctx, "alice", 1000, "cs_live_1")
	require.NoError(t, err)
	require.True(t, purchase.Applied)
	require.Equal(t, "starter", purchase.PackId)

	replay, err := svc.CompletePurchase(ctx, "alice", 1000, "cs_live_1")
	require.NoError(t, err)
	require.False(t, replay.Applied)
	require.Equal(t, purchase.NewBalance, replay.NewBalance)
}
