package progress

import (
	"context"
	"testing"

	"dart-ledger-go/internal/models"
	"dart-ledger-go/internal/store/memory"
	"dart-ledger-go/internal/txlog"
	"dart-ledger-go/internal/wallet"

	"github.com/stretchr/testify/require"
)

func TestLevelForXP(t *testing.T) {
	tests := []struct {
		xp    int64
		level int
	}{
		{xp: -10, level: 1},
		{xp: 0, level: 1},
		{xp: 99, level: 1},
		{xp: 100, level: 2},
		{xp: 299, level: 2},
		{xp: 300, level: 3},
		{xp: 600, level: 4},
		{xp: 4500, level: 10},
	}
	for _, tc := range tests {
		require.Equal(t, tc.level, LevelForXP(tc.xp), "xp %d", tc.xp)
	}
	require.Equal(t, int64(0), ThresholdFor(1))
}

func newTestService(t *testing.T) (*Service, *wallet.Service) {
	t.Helper()
	s := memory.New()
	w := wallet.NewService(s, txlog.NewStoreJournal(s), 500)
	_, err := w.EnsureWallet(context.Background(), "u1", false)
	require.NoError(t, err)
	return NewService(s, w, 0), w
}

func TestAwardOncePerGame(t *testing.T) {
	ctx := context.Background()
	svc, w := newTestService(t)

	res, err := svc.Award(ctx, "u1", "g1", 100, true)
	require.NoError(t, err)
	require.True(t, res.Applied)
	require.True(t, res.LeveledUp)
	require.Equal(t, 2, res.Level)

	res, err = svc.Award(ctx, "u1", "g1", 100, true)
	require.NoError(t, err)
	require.False(t, res.Applied)
	require.False(t, res.LeveledUp)
	require.Equal(t, int64(100), res.XPAwarded)

	p, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(100), p.XP)
	require.Equal(t, 1, p.GamesPlayed)
	require.Equal(t, 1, p.GamesWon)

	wal, err := w.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(550), wal.Coins)
}

func TestAwardMultiLevelJumpCreditsEachLevel(t *testing.T) {
	ctx := context.Background()
	svc, w := newTestService(t)

	res, err := svc.Award(ctx, "u1", "g1", 600, false)
	require.NoError(t, err)
	require.Equal(t, 4, res.Level)
	require.Equal(t, 1, res.PreviousLevel)
	require.Equal(t, int64(75), svc.LevelReward(3))

	wal, err := w.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(500+50+75+100), wal.Coins)
	for _, key := range []string{"level-2", "level-3", "level-4"} {
		require.True(t, wal.HasMarker(models.RewardMarkers, key), key)
	}
}

func TestAwardWithoutWalletSkipsRewards(t *testing.T) {
	svc, _ := newTestService(t)
	res, err := svc.Award(context.Background(), "guest", "g1", 100, true)
	require.NoError(t, err)
	require.Equal(t, 2, res.Level)
}
