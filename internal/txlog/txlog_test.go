package txlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"dart-ledger-go/internal/store"
	"dart-ledger-go/internal/store/memory"

	"github.com/stretchr/testify/require"
)

type failingJournal struct{ calls int }

func (f *failingJournal) Record(context.Context, string, Entry) error {
	f.calls++
	return errors.New("mirror unavailable")
}

func TestStoreJournalHistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	j := NewStoreJournal(s)

	for i, typ := range []string{TypeStartingBalance, TypeStake, TypeSettle} {
		require.NoError(t, j.Record(ctx, "u1", Entry{
			Type:      typ,
			Amount:    int64(i),
			CreatedAt: time.Now(),
		}))
		// uuid v7 keys are only ordered across milliseconds
		time.Sleep(2 * time.Millisecond)
	}

	records, err := History(ctx, s, "u1", 0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, TypeSettle, records[0].Type)
	require.Equal(t, TypeStartingBalance, records[2].Type)

	limited, err := History(ctx, s, "u1", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
}

func TestHistorySkipsMalformed(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	s.Put(store.TransactionsPath("u1")+"/bad", []byte("{"))
	require.NoError(t, NewStoreJournal(s).Record(ctx, "u1", Entry{Type: TypeRefund, Amount: 50}))

	records, err := History(ctx, s, "u1", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, TypeRefund, records[0].Type)
}

func TestMultiJournalContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	bad := &failingJournal{}
	m := MultiJournal{bad, NewStoreJournal(s)}

	err := m.Record(ctx, "u1", Entry{Type: TypeAdReward, Amount: 25})
	require.Error(t, err)
	require.Equal(t, 1, bad.calls)

	records, err := History(ctx, s, "u1", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
}
