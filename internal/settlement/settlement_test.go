package settlement

import (
	"context"
	"testing"
	"time"

	"dart-ledger-go/internal/apperr"
	"dart-ledger-go/internal/escrow"
	"dart-ledger-go/internal/game"
	"dart-ledger-go/internal/matchmaking"
	"dart-ledger-go/internal/models"
	"dart-ledger-go/internal/progress"
	"dart-ledger-go/internal/store/memory"
	"dart-ledger-go/internal/txlog"
	"dart-ledger-go/internal/wallet"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
)

type fixture struct {
	wallet *wallet.Service
	escrow *escrow.Service
	queue  *matchmaking.Service
	games  *game.Service
	settle *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := func() time.Time { return time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC) }
	s := memory.New(memory.WithMaxAttempts(1000))
	w := wallet.NewService(s, txlog.NewStoreJournal(s), 500, wallet.WithClock(now))
	e := escrow.NewService(s, w, escrow.Config{}, escrow.WithClock(now))
	q := matchmaking.NewService(s, matchmaking.WithClock(now))
	g := game.NewService(s, e, q, game.WithClock(now))
	p := progress.NewService(s, w, 0)
	for _, u := range []string{"alice", "bob"} {
		_, err := w.EnsureWallet(context.Background(), u, false)
		require.NoError(t, err)
	}
	return &fixture{wallet: w, escrow: e, queue: q, games: g, settle: NewService(g, e, w, p, Config{})}
}

func (f *fixture) coins(t *testing.T, uid string) int64 {
	t.Helper()
	w, err := f.wallet.Get(context.Background(), uid)
	require.NoError(t, err)
	return w.Coins
}

// wageredGame stakes both players, matches them and has alice concede.
func (f *fixture) wageredGame(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	_, err := f.escrow.Stake(ctx, "bob", "esc-1", 100)
	require.NoError(t, err)
	_, err = f.escrow.Stake(ctx, "alice", "esc-1", 100)
	require.NoError(t, err)
	_, err = f.queue.Join(ctx, matchmaking.JoinParams{UserId: "bob", Mode: models.ModeWagered, StakeLevel: 100, EscrowId: "esc-1"})
	require.NoError(t, err)
	g, err := f.games.Create(ctx, game.CreateParams{CallerId: "alice", OpponentId: "bob", Mode: models.ModeWagered, StakeLevel: 100, EscrowId: "esc-1"})
	require.NoError(t, err)
	return g.Id
}

func TestSettleWageredGame(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gameId := f.wageredGame(t)

	_, err := f.settle.SettleGame(ctx, "alice", gameId)
	require.ErrorIs(t, err, ErrGameNotFinished)

	_, err = f.games.Forfeit(ctx, "alice", gameId)
	require.NoError(t, err)

	res, err := f.settle.SettleGame(ctx, "alice", gameId)
	require.NoError(t, err)
	require.Equal(t, "bob", res.Winner)
	require.Equal(t, int64(200), res.Payout)
	require.Equal(t, int64(400), res.NewBalance)
	require.Equal(t, int64(DefaultLossXP), res.XPAwarded)
	require.Equal(t, 1, res.Level)
	require.False(t, res.AlreadySettled)

	// bob reached level 2 with the win.
	require.Equal(t, int64(400+200+50), f.coins(t, "bob"))

	res, err = f.settle.SettleGame(ctx, "bob", gameId)
	require.NoError(t, err)
	require.True(t, res.AlreadySettled)
	require.Equal(t, int64(200), res.Payout)
	require.Equal(t, int64(650), res.NewBalance)
	require.Equal(t, int64(DefaultWinXP), res.XPAwarded)
	require.Equal(t, 2, res.Level)
	require.False(t, res.LeveledUp)

	e, err := f.escrow.Get(ctx, "esc-1")
	require.NoError(t, err)
	require.Equal(t, models.EscrowReleased, e.Status)
}

func TestSettleConcurrentPaysOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gameId := f.wageredGame(t)
	_, err := f.games.Forfeit(ctx, "alice", gameId)
	require.NoError(t, err)

	var g errgroup.Group
	for i := 0; i < 6; i++ {
		uid := []string{"alice", "bob"}[i%2]
		g.Go(func() error {
			_, err := f.settle.SettleGame(ctx, uid, gameId)
			if err != nil && !apperr.Is(err, codes.Aborted) {
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	res, err := f.settle.SettleGame(ctx, "bob", gameId)
	require.NoError(t, err)
	require.True(t, res.AlreadySettled)
	require.Equal(t, int64(200), res.Payout)

	history, err := f.wallet.History(ctx, "bob", 0)
	require.NoError(t, err)
	var settles []models.TransactionRecord
	for _, r := range history {
		if r.Type == txlog.TypeSettle {
			settles = append(settles, r)
		}
	}
	require.Len(t, settles, 1)
	require.Equal(t, int64(200), settles[0].Amount)

	w, err := f.wallet.Get(ctx, "bob")
	require.NoError(t, err)
	require.True(t, w.HasMarker(models.SettleMarkers, "esc-1"))
	require.Equal(t, int64(400+200+50), w.Coins)

	e, err := f.escrow.Get(ctx, "esc-1")
	require.NoError(t, err)
	require.Equal(t, models.EscrowReleased, e.Status)
}

func TestSettleCasualGame(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.queue.Join(ctx, matchmaking.JoinParams{UserId: "bob", Mode: models.ModeCasual})
	require.NoError(t, err)
	g, err := f.games.Create(ctx, game.CreateParams{CallerId: "alice", OpponentId: "bob", Mode: models.ModeCasual})
	require.NoError(t, err)
	_, err = f.games.Forfeit(ctx, "bob", g.Id)
	require.NoError(t, err)

	res, err := f.settle.SettleGame(ctx, "alice", g.Id)
	require.NoError(t, err)
	require.Equal(t, "alice", res.Winner)
	require.Zero(t, res.Payout)
	require.True(t, res.LeveledUp)
	require.Equal(t, int64(550), res.NewBalance)
}

func TestSettleRequiresParticipant(t *testing.T) {
	f := newFixture(t)
	gameId := f.wageredGame(t)
	_, err := f.settle.SettleGame(context.Background(), "mallory", gameId)
	require.Equal(t, codes.NotFound, apperr.Code(err))
}
