package payments

import (
	"context"

	"dart-ledger-go/internal/apperr"
	"dart-ledger-go/internal/claim"
	"dart-ledger-go/internal/models"
	"dart-ledger-go/internal/txlog"
	"dart-ledger-go/internal/wallet"

	"go.uber.org/zap"
)

// CompletedEvent is the trusted payment completion from the payment
// webhook verifier.
type CompletedEvent struct {
	UserId            string
	AmountCoins       int64
	ExternalSessionId string
}

type Service struct {
	wallet  *wallet.Service
	catalog *Catalog
}

func NewService(w *wallet.Service, catalog *Catalog) *Service {
	return &Service{wallet: w, catalog: catalog}
}

func (s *Service) Catalog() *Catalog { return s.catalog }

// Complete credits a purchase exactly once per payment session.
func (s *Service) Complete(ctx context.Context, ev CompletedEvent) (*models.PurchaseResult, error) {
	if ev.ExternalSessionId == "" {
		return nil, apperr.InvalidArgument("session id is required")
	}
	pack, ok := s.catalog.ByCoins(ev.AmountCoins)
	if !ok {
		return nil, apperr.InvalidArgument("no coin pack grants %d coins", ev.AmountCoins)
	}

	credit, err := s.wallet.Credit(ctx, wallet.CreditParams{
		UserId:      ev.UserId,
		Amount:      pack.Coins,
		Namespace:   models.PurchaseMarkers,
		MarkerKey:   ev.ExternalSessionId,
		RequestId:   claim.NewRequestId(),
		Type:        txlog.TypePurchase,
		Description: "coin pack " + pack.Id,
	})
	if err != nil {
		return nil, err
	}

	if credit.Applied {
		zap.L().Info("Purchase credited",
			zap.String("user_id", ev.UserId),
			zap.String("session_id", ev.ExternalSessionId),
			zap.String("pack_id", pack.Id),
			zap.Int64("coins", pack.Coins),
			zap.String("revenue_usd", pack.Price.StringFixed(2)))
	}
	return &models.PurchaseResult{
		SessionId:  ev.ExternalSessionId,
		PackId:     pack.Id,
		Coins:      pack.Coins,
		Price:      pack.Price,
		Applied:    credit.Applied,
		NewBalance: credit.Wallet.Coins,
	}, nil
}
