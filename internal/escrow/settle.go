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

var ErrWinnerNotInEscrow = apperr.FailedPrecondition("winner is not a player of this escrow")

// SettleOutcome reports a payout. Applied is false when this call found the
// payout already made.
type SettleOutcome struct {
	WinnerId string
	Payout   int64
	Applied  bool
	Wallet   *models.Wallet
}

// Settle pays the pot to the winner exactly once. The escrow is claimed
// (locked -> settling) under a fresh request id, the winner is credited
// with settleMarkers[escrowId], and the escrow is finalized to released.
// A failed credit releases the claim back to locked so a retry can run.
func (s *Service) Settle(ctx context.Context, escrowId, winnerId string) (*SettleOutcome, error) {
	requestId := claim.NewRequestId()
	now := s.now().UTC()
	path := store.EscrowPath(escrowId)

	var claimErr error
	var missing bool
	res, err := store.Update(ctx, s.store, path, func(cur *models.Escrow) store.Outcome[models.Escrow] {
		claimErr, missing = nil, false
		if cur == nil {
			missing = true
			return store.Abort[models.Escrow]()
		}
		if err := s.settlement.Evaluate(cur.Status, cur.SettlementStartedAt, now); err != nil {
			claimErr = err
			return store.Abort[models.Escrow]()
		}
		if !cur.HasPlayer(winnerId) {
			claimErr = ErrWinnerNotInEscrow
			return store.Abort[models.Escrow]()
		}
		if cur.Status != models.EscrowSettling {
			if err := Transitions.Check(cur.Status, models.EscrowSettling); err != nil {
				claimErr = err
				return store.Abort[models.Escrow]()
			}
		}
		started := now
		cur.Status = models.EscrowSettling
		cur.SettlementRequestId = requestId
		cur.SettlementStartedAt = &started
		cur.SettlementError = ""
		cur.WinnerId = winnerId
		return store.Proceed(cur)
	})
	if err != nil {
		return nil, err
	}
	if missing {
		return nil, apperr.NotFound("escrow not found")
	}

	if errors.Is(claimErr, claim.ErrAlreadyCompleted) {
		return s.replayReleased(ctx, escrowId, res.Value)
	}
	if claimErr != nil {
		return nil, claimErr
	}
	if err := claim.Verify(res.Value.SettlementRequestId, requestId); err != nil {
		return nil, err
	}

	e := res.Value
	credit, err := s.wallet.Credit(ctx, wallet.CreditParams{
		UserId:      winnerId,
		Amount:      e.TotalPot,
		Namespace:   models.SettleMarkers,
		MarkerKey:   escrowId,
		RequestId:   requestId,
		Type:        txlog.TypeSettle,
		Description: "wagered match payout",
	})
	if err != nil {
		s.releaseClaim(ctx, escrowId, requestId, err)
		return nil, err
	}

	s.finalize(ctx, escrowId, requestId)

	if credit.Applied {
		zap.L().Info("Escrow settled",
			zap.String("escrow_id", escrowId),
			zap.String("winner_id", winnerId),
			zap.Int64("payout", e.TotalPot),
			zap.String("request_id", requestId))
	}
	return &SettleOutcome{
		WinnerId: winnerId,
		Payout:   e.TotalPot,
		Applied:  credit.Applied,
		Wallet:   credit.Wallet,
	}, nil
}

// replayReleased answers a settle on an escrow that is already released.
// The credit is re-issued against the marker, which is a no-op unless a
// previous run stopped between release and payout.
func (s *Service) replayReleased(ctx context.Context, escrowId string, e *models.Escrow) (*SettleOutcome, error) {
	credit, err := s.wallet.Credit(ctx, wallet.CreditParams{
		UserId:      e.WinnerId,
		Amount:      e.TotalPot,
		Namespace:   models.SettleMarkers,
		MarkerKey:   escrowId,
		RequestId:   e.SettlementRequestId,
		Type:        txlog.TypeSettle,
		Description: "wagered match payout",
	})
	if err != nil {
		return nil, err
	}
	return &SettleOutcome{
		WinnerId: e.WinnerId,
		Payout:   e.TotalPot,
		Applied:  credit.Applied,
		Wallet:   credit.Wallet,
	}, nil
}

func (s *Service) finalize(ctx context.Context, escrowId, requestId string) {
	now := s.now().UTC()
	_, err := store.Update(ctx, s.store, store.EscrowPath(escrowId), func(cur *models.Escrow) store.Outcome[models.Escrow] {
		if cur == nil || cur.Status != models.EscrowSettling || cur.SettlementRequestId != requestId {
			return store.Abort[models.Escrow]()
		}
		cur.Status = models.EscrowReleased
		cur.SettledAt = &now
		return store.Proceed(cur)
	})
	if err != nil {
		// the payout is done; a later settle takes the stale claim over and finalizes
		zap.L().Warn("Failed to finalize escrow after payout",
			zap.String("escrow_id", escrowId),
			zap.String("request_id", requestId),
			zap.Error(err))
	}
}

func (s *Service) releaseClaim(ctx context.Context, escrowId, requestId string, cause error) {
	_, err := store.Update(ctx, s.store, store.EscrowPath(escrowId), func(cur *models.Escrow) store.Outcome[models.Escrow] {
		if cur == nil || cur.Status != models.EscrowSettling || cur.SettlementRequestId != requestId {
			return store.Abort[models.Escrow]()
		}
		cur.Status = models.EscrowLocked
		cur.SettlementRequestId = ""
		cur.SettlementStartedAt = nil
		cur.SettlementError = cause.Error()
		return store.Proceed(cur)
	})
	if err != nil {
		zap.L().Error("Failed to release settlement claim; it will expire",
			zap.String("escrow_id", escrowId),
			zap.Error(err))
		return
	}
	zap.L().Warn("Settlement failed, escrow released back to locked",
		zap.String("escrow_id", escrowId),
		zap.Error(cause))
}
