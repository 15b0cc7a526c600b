package wallet

import (
	"context"
	"fmt"
	"time"

	"dart-ledger-go/internal/apperr"
	"dart-ledger-go/internal/models"
	"dart-ledger-go/internal/store"
	"dart-ledger-go/internal/txlog"

	"go.uber.org/zap"
)

// DefaultStartingCoins is the balance of a newly created wallet.
const DefaultStartingCoins = 500

// Service is the wallet ledger. Every balance change is a single
// conditional update of users/{uid}/wallet carrying its own idempotency
// marker, so replays never double-apply.
type Service struct {
	store         store.AtomicStore
	journal       txlog.Journal
	startingCoins int64
	now           func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(s store.AtomicStore, journal txlog.Journal, startingCoins int64, opts ...Option) *Service {
	svc := &Service{
		store:         s,
		journal:       journal,
		startingCoins: startingCoins,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// CreditParams describes one idempotent credit.
type CreditParams struct {
	UserId      string
	Amount      int64
	Namespace   models.MarkerNamespace
	MarkerKey   string
	RequestId   string
	Type        string
	Description string
	// Guard runs inside the update after the marker check. A non-nil error
	// aborts the credit and is returned to the caller.
	Guard func(w *models.Wallet) error
	// Apply mutates additional wallet fields in the same write.
	Apply func(w *models.Wallet)
}

type CreditResult struct {
	Applied bool
	Wallet  *models.Wallet
}

// DebitParams describes one idempotent debit guarded by stakeMarkers.
type DebitParams struct {
	UserId      string
	Amount      int64
	MarkerKey   string
	RequestId   string
	Type        string
	Description string
}

type DebitResult struct {
	Applied bool
	Wallet  *models.Wallet
}

// EnsureWallet creates the wallet with the starting balance on first call.
func (s *Service) EnsureWallet(ctx context.Context, userId string, anonymous bool) (*models.Wallet, error) {
	if anonymous {
		return nil, apperr.PermissionDenied("anonymous accounts cannot hold a wallet")
	}

	now := s.now().UTC()
	res, err := store.Update(ctx, s.store, store.WalletPath(userId), func(cur *models.Wallet) store.Outcome[models.Wallet] {
		if cur != nil {
			return store.Abort[models.Wallet]()
		}
		return store.Proceed(&models.Wallet{
			Coins:     s.startingCoins,
			Version:   1,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure wallet: %w", err)
	}

	if res.Committed {
		zap.L().Info("Wallet created",
			zap.String("user_id", userId),
			zap.Int64("coins", s.startingCoins))
		s.record(ctx, userId, txlog.Entry{
			Type:         txlog.TypeStartingBalance,
			Amount:       s.startingCoins,
			BalanceAfter: res.Value.Coins,
			Reference:    "wallet-created",
			CreatedAt:    now,
		})
	}
	return res.Value, nil
}

// Credit adds coins exactly once per (namespace, marker key). A replay
// returns Applied=false with the current wallet and no error.
func (s *Service) Credit(ctx context.Context, p CreditParams) (*CreditResult, error) {
	if p.Amount <= 0 {
		return nil, apperr.InvalidArgument("credit amount must be positive, got %d", p.Amount)
	}
	if !models.ValidNamespace(p.Namespace) || p.Namespace == models.StakeMarkers {
		return nil, apperr.InvalidArgument("invalid credit namespace %q", p.Namespace)
	}
	if p.MarkerKey == "" {
		return nil, apperr.InvalidArgument("marker key cannot be empty")
	}

	now := s.now().UTC()
	var missing bool
	var guardErr error
	res, err := store.Update(ctx, s.store, store.WalletPath(p.UserId), func(cur *models.Wallet) store.Outcome[models.Wallet] {
		missing, guardErr = false, nil
		if cur == nil {
			missing = true
			return store.Abort[models.Wallet]()
		}
		if cur.HasMarker(p.Namespace, p.MarkerKey) {
			return store.Abort[models.Wallet]()
		}
		if p.Guard != nil {
			if err := p.Guard(cur); err != nil {
				guardErr = err
				return store.Abort[models.Wallet]()
			}
		}

		cur.Coins += p.Amount
		cur.LifetimeEarnings += p.Amount
		cur.Version++
		cur.SetMarker(p.Namespace, p.MarkerKey, models.RewardMarker{
			RequestId: p.RequestId,
			Ts:        now,
			Amount:    p.Amount,
			Type:      p.Type,
		})
		if p.Apply != nil {
			p.Apply(cur)
		}
		return store.Proceed(cur)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to credit wallet: %w", err)
	}
	if missing {
		return nil, apperr.NotFound("wallet not found")
	}
	if guardErr != nil {
		return nil, guardErr
	}
	if !res.Committed {
		zap.L().Debug("Credit already applied",
			zap.String("user_id", p.UserId),
			zap.String("namespace", string(p.Namespace)),
			zap.String("marker", p.MarkerKey))
		return &CreditResult{Applied: false, Wallet: res.Value}, nil
	}

	zap.L().Info("Wallet credited",
		zap.String("user_id", p.UserId),
		zap.String("type", p.Type),
		zap.String("marker", p.MarkerKey),
		zap.Int64("amount", p.Amount),
		zap.Int64("balance", res.Value.Coins))
	s.record(ctx, p.UserId, txlog.Entry{
		Type:         p.Type,
		Amount:       p.Amount,
		BalanceAfter: res.Value.Coins,
		Reference:    p.MarkerKey,
		Description:  p.Description,
		CreatedAt:    now,
	})
	return &CreditResult{Applied: true, Wallet: res.Value}, nil
}

// Debit removes coins exactly once per marker key. Insufficient funds
// abort without writing.
func (s *Service) Debit(ctx context.Context, p DebitParams) (*DebitResult, error) {
	if p.Amount <= 0 {
		return nil, apperr.InvalidArgument("debit amount must be positive, got %d", p.Amount)
	}
	if p.MarkerKey == "" {
		return nil, apperr.InvalidArgument("marker key cannot be empty")
	}

	now := s.now().UTC()
	var missing bool
	var short int64
	res, err := store.Update(ctx, s.store, store.WalletPath(p.UserId), func(cur *models.Wallet) store.Outcome[models.Wallet] {
		missing, short = false, 0
		if cur == nil {
			missing = true
			return store.Abort[models.Wallet]()
		}
		if cur.HasMarker(models.StakeMarkers, p.MarkerKey) {
			return store.Abort[models.Wallet]()
		}
		if cur.Coins < p.Amount {
			short = cur.Coins
			return store.Abort[models.Wallet]()
		}

		cur.Coins -= p.Amount
		cur.LifetimeSpent += p.Amount
		cur.Version++
		cur.SetMarker(models.StakeMarkers, p.MarkerKey, models.RewardMarker{RequestId: p.RequestId})
		return store.Proceed(cur)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to debit wallet: %w", err)
	}
	if missing {
		return nil, apperr.NotFound("wallet not found")
	}
	if !res.Committed {
		if res.Value != nil && res.Value.HasMarker(models.StakeMarkers, p.MarkerKey) {
			return &DebitResult{Applied: false, Wallet: res.Value}, nil
		}
		return nil, apperr.FailedPrecondition("insufficient coins: have %d, need %d", short, p.Amount)
	}

	zap.L().Info("Wallet debited",
		zap.String("user_id", p.UserId),
		zap.String("type", p.Type),
		zap.String("marker", p.MarkerKey),
		zap.Int64("amount", p.Amount),
		zap.Int64("balance", res.Value.Coins))
	s.record(ctx, p.UserId, txlog.Entry{
		Type:         p.Type,
		Amount:       -p.Amount,
		BalanceAfter: res.Value.Coins,
		Reference:    p.MarkerKey,
		Description:  p.Description,
		CreatedAt:    now,
	})
	return &DebitResult{Applied: true, Wallet: res.Value}, nil
}

// Get returns the wallet, or NotFound.
func (s *Service) Get(ctx context.Context, userId string) (*models.Wallet, error) {
	w, err := store.Read[models.Wallet](ctx, s.store, store.WalletPath(userId))
	if err != nil {
		return nil, fmt.Errorf("failed to read wallet: %w", err)
	}
	if w == nil {
		return nil, apperr.NotFound("wallet not found")
	}
	return w, nil
}

// History returns the caller's transaction log, newest first.
func (s *Service) History(ctx context.Context, userId string, limit int) ([]models.TransactionRecord, error) {
	return txlog.History(ctx, s.store, userId, limit)
}

func (s *Service) record(ctx context.Context, userId string, e txlog.Entry) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Record(ctx, userId, e); err != nil {
		zap.L().Warn("Failed to record transaction log entry",
			zap.String("user_id", userId),
			zap.String("type", e.Type),
			zap.Error(err))
	}
}
