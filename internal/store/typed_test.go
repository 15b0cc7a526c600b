package store_test

import (
	"context"
	"testing"

	"dart-ledger-go/internal/apperr"
	"dart-ledger-go/internal/store"
	"dart-ledger-go/internal/store/memory"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

type record struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

func TestUpdateTyped(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	res, err := store.Update(ctx, s, "records/a", func(cur *record) store.Outcome[record] {
		require.Nil(t, cur)
		return store.Proceed(&record{Status: "new", Count: 1})
	})
	require.NoError(t, err)
	require.True(t, res.Committed)
	require.Equal(t, 1, res.Value.Count)

	res, err = store.Update(ctx, s, "records/a", func(cur *record) store.Outcome[record] {
		if cur.Status != "new" {
			return store.Abort[record]()
		}
		cur.Status = "done"
		cur.Count++
		return store.Proceed(cur)
	})
	require.NoError(t, err)
	require.True(t, res.Committed)
	require.Equal(t, "done", res.Value.Status)

	res, err = store.Update(ctx, s, "records/a", func(cur *record) store.Outcome[record] {
		return store.Abort[record]()
	})
	require.NoError(t, err)
	require.False(t, res.Committed)
	require.Equal(t, 2, res.Value.Count)

	got, err := store.Read[record](ctx, s, "records/a")
	require.NoError(t, err)
	require.Equal(t, "done", got.Status)
}

func TestUpdateMalformedIsNotAbsent(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	s.Put("records/bad", []byte(`{not json`))

	called := false
	_, err := store.Update(ctx, s, "records/bad", func(cur *record) store.Outcome[record] {
		called = true
		return store.Proceed(&record{Status: "overwritten"})
	})
	require.ErrorIs(t, err, store.ErrMalformed)
	require.False(t, called)
	require.Equal(t, codes.Internal, apperr.Code(err))

	_, err = store.Read[record](ctx, s, "records/bad")
	require.ErrorIs(t, err, store.ErrMalformed)
}

func TestReadAbsent(t *testing.T) {
	got, err := store.Read[record](context.Background(), memory.New(), "records/none")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	s.Put("records/a", []byte(`{"status":"x"}`))

	res, err := store.Update(ctx, s, "records/a", func(cur *record) store.Outcome[record] {
		return store.Remove[record]()
	})
	require.NoError(t, err)
	require.True(t, res.Committed)
	require.Nil(t, res.Value)
}

func TestPaths(t *testing.T) {
	require.Equal(t, "users/u1/wallet", store.WalletPath("u1"))
	require.Equal(t, "escrow/e1", store.EscrowPath("e1"))
	require.Equal(t, "matchmaking_queue/casual/p1", store.QueuePath("casual", 0, "p1"))
	require.Equal(t, "matchmaking_queue/wagered/500/p1", store.QueuePath("wagered", 500, "p1"))
	require.Equal(t, "rateLimits/u1/stake", store.RateLimitPath("u1", "stake"))
	require.Equal(t, "verifiedAdRewards/tx", store.AdRewardPath("tx"))
}
