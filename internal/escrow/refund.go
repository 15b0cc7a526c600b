package escrow

import (
	"context"
	"errors"

	"dart-ledger-go/internal/apperr"
	"dart-ledger-go/internal/claim"
	"dart-ledger-go/internal/models"
	"dart-ledger-go/internal/store"
	"dart-ledger-go/internal/txlog"
	"dart-ledger-go/internal/wallet"

	"go.uber.org/zap"
)

var ErrNotRefundable = apperr.FailedPrecondition("escrow cannot be refunded in its current state")

var errAlreadyRefunded = errors.New("escrow already refunded")

// Refund returns every stake of a pending escrow, or of a locked escrow past
// its expiry. callerId restricts the refund to a player of the escrow; the
// sweeper passes "". The escrow is marked refunded before any credit, so a
// concurrent join fails and a retry replays the credits.
func (s *Service) Refund(ctx context.Context, escrowId, callerId string) (*models.RefundResult, error) {
	requestId := claim.NewRequestId()
	now := s.now().UTC()

	var reason error
	var missing bool
	res, err := store.Update(ctx, s.store, store.EscrowPath(escrowId), func(cur *models.Escrow) store.Outcome[models.Escrow] {
		reason, missing = nil, false
		if cur == nil {
			missing = true
			return store.Abort[models.Escrow]()
		}
		if callerId != "" && !cur.HasPlayer(callerId) {
			missing = true
			return store.Abort[models.Escrow]()
		}
		if cur.Status == models.EscrowRefunded {
			reason = errAlreadyRefunded
			return store.Abort[models.Escrow]()
		}
		if cur.Status == models.EscrowLocked && now.Before(cur.ExpiresAt) {
			reason = ErrNotRefundable
			return store.Abort[models.Escrow]()
		}
		if err := Transitions.Check(cur.Status, models.EscrowRefunded); err != nil {
			reason = ErrNotRefundable
			return store.Abort[models.Escrow]()
		}
		refundedAt := now
		cur.Status = models.EscrowRefunded
		cur.RefundRequestId = requestId
		cur.RefundedAt = &refundedAt
		return store.Proceed(cur)
	})
	if err != nil {
		return nil, err
	}
	if missing {
		return nil, apperr.NotFound("escrow not found")
	}
	if reason != nil && !errors.Is(reason, errAlreadyRefunded) {
		return nil, reason
	}

	e := res.Value
	result := &models.RefundResult{EscrowId: escrowId, Replayed: !res.Committed}
	for _, p := range e.Stakes() {
		credit, err := s.wallet.Credit(ctx, wallet.CreditParams{
			UserId:      p.UserId,
			Amount:      p.Amount,
			Namespace:   models.RefundMarkers,
			MarkerKey:   escrowId,
			RequestId:   e.RefundRequestId,
			Type:        txlog.TypeRefund,
			Description: "escrow refunded",
		})
		if err != nil {
			return nil, err
		}
		if credit.Applied {
			result.Refunded += p.Amount
		}
	}

	zap.L().Info("Escrow refunded",
		zap.String("escrow_id", escrowId),
		zap.Int64("refunded", result.Refunded),
		zap.Bool("replayed", result.Replayed))
	return result, nil
}
