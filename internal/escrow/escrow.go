package escrow

import (
	"context"
	"fmt"
	"slices"
	"time"

	"dart-ledger-go/internal/apperr"
	"dart-ledger-go/internal/claim"
	"dart-ledger-go/internal/models"
	"dart-ledger-go/internal/store"
	"dart-ledger-go/internal/wallet"

	"go.uber.org/zap"
)

const (
	DefaultPendingTTL = 10 * time.Minute
	DefaultLockedTTL  = 2 * time.Hour
)

// StakeLevels is the fixed set of wager sizes.
var StakeLevels = []int64{50, 100, 500, 2500}

func ValidStake(level int64) bool {
	return slices.Contains(StakeLevels, level)
}

// Transitions is the escrow status graph. settling -> locked is the
// compensating release after a failed payout.
var Transitions = claim.NewMachine("escrow", map[models.EscrowStatus][]models.EscrowStatus{
	models.EscrowPending:  {models.EscrowLocked, models.EscrowRefunded},
	models.EscrowLocked:   {models.EscrowSettling, models.EscrowRefunded},
	models.EscrowSettling: {models.EscrowReleased, models.EscrowLocked},
})

type Config struct {
	PendingTTL  time.Duration
	LockedTTL   time.Duration
	LockTimeout time.Duration
}

type Service struct {
	store      store.AtomicStore
	wallet     *wallet.Service
	cfg        Config
	settlement claim.Protocol[models.EscrowStatus]
	now        func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(s store.AtomicStore, w *wallet.Service, cfg Config, opts ...Option) *Service {
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = DefaultPendingTTL
	}
	if cfg.LockedTTL <= 0 {
		cfg.LockedTTL = DefaultLockedTTL
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = claim.DefaultTimeout
	}
	svc := &Service{
		store:  s,
		wallet: w,
		cfg:    cfg,
		settlement: claim.Protocol[models.EscrowStatus]{
			Available:  []models.EscrowStatus{models.EscrowLocked},
			Processing: models.EscrowSettling,
			Completed:  models.EscrowReleased,
			Timeout:    cfg.LockTimeout,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Get returns the escrow, or NotFound.
func (s *Service) Get(ctx context.Context, escrowId string) (*models.Escrow, error) {
	e, err := store.Read[models.Escrow](ctx, s.store, store.EscrowPath(escrowId))
	if err != nil {
		return nil, fmt.Errorf("failed to read escrow: %w", err)
	}
	if e == nil {
		return nil, apperr.NotFound("escrow not found")
	}
	return e, nil
}

// VerifyLocked checks that a wagered game may start on this escrow.
func (s *Service) VerifyLocked(ctx context.Context, escrowId, player1, player2 string) (*models.Escrow, error) {
	e, err := s.Get(ctx, escrowId)
	if err != nil {
		return nil, err
	}
	if e.Status != models.EscrowLocked {
		return nil, apperr.FailedPrecondition("escrow not locked")
	}
	if player1 == player2 || !e.HasPlayer(player1) || !e.HasPlayer(player2) {
		return nil, apperr.FailedPrecondition("players do not match escrow")
	}
	return e, nil
}

// Expired lists escrows the sweeper may refund: pending or locked past
// their expiry.
func (s *Service) Expired(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	err := s.scan(ctx, func(id string, e *models.Escrow) {
		if refundable(e, now) {
			ids = append(ids, id)
		}
	})
	return ids, err
}

// StaleSettlement is a settling escrow whose claim outlived the lock
// timeout, with the winner recorded by the claim.
type StaleSettlement struct {
	EscrowId string
	WinnerId string
}

// StaleSettlements lists settlements a crashed request left behind.
func (s *Service) StaleSettlements(ctx context.Context, now time.Time) ([]StaleSettlement, error) {
	var stale []StaleSettlement
	err := s.scan(ctx, func(id string, e *models.Escrow) {
		if e.Status != models.EscrowSettling || e.WinnerId == "" || e.SettlementStartedAt == nil {
			return
		}
		if !now.Before(e.SettlementStartedAt.Add(s.cfg.LockTimeout)) {
			stale = append(stale, StaleSettlement{EscrowId: id, WinnerId: e.WinnerId})
		}
	})
	return stale, err
}

func (s *Service) scan(ctx context.Context, fn func(id string, e *models.Escrow)) error {
	entries, err := s.store.List(ctx, store.EscrowRoot)
	if err != nil {
		return fmt.Errorf("failed to list escrows: %w", err)
	}
	for _, entry := range entries {
		e, err := store.Decode[models.Escrow](entry.Value)
		if err != nil {
			zap.L().Warn("Skipping malformed escrow", zap.String("path", entry.Path), zap.Error(err))
			continue
		}
		fn(entry.Key, e)
	}
	return nil
}

func refundable(e *models.Escrow, now time.Time) bool {
	switch e.Status {
	case models.EscrowPending, models.EscrowLocked:
		return !now.Before(e.ExpiresAt)
	}
	return false
}
