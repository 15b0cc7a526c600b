package wallet

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dart-ledger-go/internal/apperr"
	"dart-ledger-go/internal/models"
	"dart-ledger-go/internal/store/memory"
	"dart-ledger-go/internal/txlog"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
)

var fixedNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, opts ...memory.Option) (*Service, *memory.Store) {
	t.Helper()
	s := memory.New(opts...)
	svc := NewService(s, txlog.NewStoreJournal(s), 500, WithClock(func() time.Time { return fixedNow }))
	return svc, s
}

func TestEnsureWallet(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.EnsureWallet(ctx, "anon", true)
	require.Equal(t, codes.PermissionDenied, apperr.Code(err))

	w, err := svc.EnsureWallet(ctx, "u1", false)
	require.NoError(t, err)
	require.Equal(t, int64(500), w.Coins)

	_, err = svc.Credit(ctx, CreditParams{UserId: "u1", Amount: 10, Namespace: models.RewardMarkers, MarkerKey: "m", Type: txlog.TypeAdReward})
	require.NoError(t, err)

	w, err = svc.EnsureWallet(ctx, "u1", false)
	require.NoError(t, err)
	require.Equal(t, int64(510), w.Coins)

	history, err := svc.History(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
}

func TestCreditIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	_, err := svc.EnsureWallet(ctx, "u1", false)
	require.NoError(t, err)

	p := CreditParams{
		UserId:    "u1",
		Amount:    100,
		Namespace: models.SettleMarkers,
		MarkerKey: "escrow-1",
		RequestId: "req-1",
		Type:      txlog.TypeSettle,
	}
	res, err := svc.Credit(ctx, p)
	require.NoError(t, err)
	require.True(t, res.Applied)
	require.Equal(t, int64(600), res.Wallet.Coins)
	require.Equal(t, "req-1", res.Wallet.SettleMarkers["escrow-1"])

	res, err = svc.Credit(ctx, p)
	require.NoError(t, err)
	require.False(t, res.Applied)
	require.Equal(t, int64(600), res.Wallet.Coins)
}

func TestCreditConcurrentAppliesOnce(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, memory.WithMaxAttempts(1000))
	_, err := svc.EnsureWallet(ctx, "u1", false)
	require.NoError(t, err)

	var applied atomic.Int32
	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			res, err := svc.Credit(ctx, CreditParams{
				UserId:    "u1",
				Amount:    200,
				Namespace: models.SettleMarkers,
				MarkerKey: "escrow-x",
				Type:      txlog.TypeSettle,
			})
			if err != nil {
				return err
			}
			if res.Applied {
				applied.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, int32(1), applied.Load())

	w, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(700), w.Coins)
	require.Equal(t, int64(200), w.LifetimeEarnings)
}

func TestCreditGuardAndApply(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	_, err := svc.EnsureWallet(ctx, "u1", false)
	require.NoError(t, err)

	capErr := apperr.New(codes.ResourceExhausted, "cap")
	guard := func(w *models.Wallet) error {
		if w.AdRewardsToday >= 1 {
			return capErr
		}
		return nil
	}
	apply := func(w *models.Wallet) { w.AdRewardsToday++ }

	res, err := svc.Credit(ctx, CreditParams{UserId: "u1", Amount: 25, Namespace: models.RewardMarkers, MarkerKey: "ad-1", Type: txlog.TypeAdReward, Guard: guard, Apply: apply})
	require.NoError(t, err)
	require.True(t, res.Applied)
	require.Equal(t, 1, res.Wallet.AdRewardsToday)

	_, err = svc.Credit(ctx, CreditParams{UserId: "u1", Amount: 25, Namespace: models.RewardMarkers, MarkerKey: "ad-2", Type: txlog.TypeAdReward, Guard: guard, Apply: apply})
	require.ErrorIs(t, err, capErr)

	// a replay of an applied marker wins over the guard
	res, err = svc.Credit(ctx, CreditParams{UserId: "u1", Amount: 25, Namespace: models.RewardMarkers, MarkerKey: "ad-1", Type: txlog.TypeAdReward, Guard: guard, Apply: apply})
	require.NoError(t, err)
	require.False(t, res.Applied)
}

func TestCreditValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	tests := []struct {
		name    string
		params  CreditParams
		expCode codes.Code
	}{
		{name: "zero amount", params: CreditParams{UserId: "u1", Namespace: models.RewardMarkers, MarkerKey: "k"}, expCode: codes.InvalidArgument},
		{name: "stake namespace", params: CreditParams{UserId: "u1", Amount: 1, Namespace: models.StakeMarkers, MarkerKey: "k"}, expCode: codes.InvalidArgument},
		{name: "no marker", params: CreditParams{UserId: "u1", Amount: 1, Namespace: models.RewardMarkers}, expCode: codes.InvalidArgument},
		{name: "missing wallet", params: CreditParams{UserId: "ghost", Amount: 1, Namespace: models.RewardMarkers, MarkerKey: "k"}, expCode: codes.NotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Credit(ctx, tc.params)
			require.Equal(t, tc.expCode, apperr.Code(err))
		})
	}
}

func TestDebit(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	_, err := svc.EnsureWallet(ctx, "u1", false)
	require.NoError(t, err)

	res, err := svc.Debit(ctx, DebitParams{UserId: "u1", Amount: 500, MarkerKey: "escrow-1", Type: txlog.TypeStake})
	require.NoError(t, err)
	require.True(t, res.Applied)
	require.Equal(t, int64(0), res.Wallet.Coins)
	require.Equal(t, int64(500), res.Wallet.LifetimeSpent)

	res, err = svc.Debit(ctx, DebitParams{UserId: "u1", Amount: 500, MarkerKey: "escrow-1", Type: txlog.TypeStake})
	require.NoError(t, err)
	require.False(t, res.Applied)

	_, err = svc.Debit(ctx, DebitParams{UserId: "u1", Amount: 50, MarkerKey: "escrow-2", Type: txlog.TypeStake})
	require.Equal(t, codes.FailedPrecondition, apperr.Code(err))

	history, err := svc.History(ctx, "u1", 1)
	require.NoError(t, err)
	require.Equal(t, int64(-500), history[0].Amount)
}

func TestDebitSurvivesConflicts(t *testing.T) {
	ctx := context.Background()
	svc, s := newTestService(t)
	_, err := svc.EnsureWallet(ctx, "u1", false)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan error, 3)
	for i, key := range []string{"e1", "e2", "e3"} {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			_, err := svc.Debit(ctx, DebitParams{UserId: "u1", Amount: 200, MarkerKey: key, Type: txlog.TypeStake})
			results <- err
		}(i, key)
	}
	wg.Wait()
	close(results)

	var ok, insufficient int
	for err := range results {
		switch apperr.Code(err) {
		case codes.OK:
			ok++
		case codes.FailedPrecondition:
			insufficient++
		}
	}
	require.Equal(t, 2, ok)
	require.Equal(t, 1, insufficient)

	w, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(100), w.Coins)
	require.Positive(t, s.Commits())
}
