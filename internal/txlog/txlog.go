package txlog

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"dart-ledger-go/internal/models"
	"dart-ledger-go/internal/store"

	"go.uber.org/zap"
)

// Entry types
const (
	TypeStartingBalance = "starting_balance"
	TypeStake           = "stake"
	TypeSettle          = "settle"
	TypeRefund          = "refund"
	TypeAdReward        = "ad_reward"
	TypeDailyBonus      = "daily_bonus"
	TypeLevelUp         = "level_up"
	TypePurchase        = "purchase"
)

type Entry = models.TransactionEntry

// Journal records applied balance changes. Journals are best-effort: the
// wallet record stays the source of truth.
type Journal interface {
	Record(ctx context.Context, userId string, e Entry) error
}

// StoreJournal appends entries under users/{uid}/transactions.
type StoreJournal struct {
	store store.AtomicStore
}

func NewStoreJournal(s store.AtomicStore) *StoreJournal {
	return &StoreJournal{store: s}
}

func (j *StoreJournal) Record(ctx context.Context, userId string, e Entry) error {
	if _, err := store.Append(ctx, j.store, store.TransactionsPath(userId), &e); err != nil {
		return fmt.Errorf("failed to append transaction for %s: %w", userId, err)
	}
	return nil
}

// MultiJournal fans one entry out to several journals.
type MultiJournal []Journal

func (m MultiJournal) Record(ctx context.Context, userId string, e Entry) error {
	var errs []error
	for _, j := range m {
		if err := j.Record(ctx, userId, e); err != nil {
			zap.L().Warn("Journal write failed",
				zap.String("user_id", userId),
				zap.String("type", e.Type),
				zap.String("reference", e.Reference),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// History returns the newest entries first. limit <= 0 returns everything.
func History(ctx context.Context, s store.AtomicStore, userId string, limit int) ([]models.TransactionRecord, error) {
	entries, err := s.List(ctx, store.TransactionsPath(userId))
	if err != nil {
		return nil, err
	}

	records := make([]models.TransactionRecord, 0, len(entries))
	for _, raw := range entries {
		e, err := store.Decode[Entry](raw.Value)
		if err != nil {
			zap.L().Warn("Skipping malformed transaction entry", zap.String("path", raw.Path), zap.Error(err))
			continue
		}
		records = append(records, models.TransactionRecord{
			Id:           raw.Key,
			Type:         e.Type,
			Amount:       e.Amount,
			BalanceAfter: e.BalanceAfter,
			Reference:    e.Reference,
			Description:  e.Description,
			CreatedAt:    e.CreatedAt,
		})
	}

	// keys are time ordered
	sort.SliceStable(records, func(i, j int) bool { return records[i].Id > records[j].Id })
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
