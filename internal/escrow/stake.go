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

var (
	ErrNotJoinable   = apperr.FailedPrecondition("escrow is no longer joinable")
	ErrStakeMismatch = apperr.FailedPrecondition("stake level does not match escrow")
	ErrStakeRefunded = apperr.FailedPrecondition("stake for this escrow was already refunded")
	ErrInvalidStake  = apperr.InvalidArgument("invalid stake level")
	errAlreadyStaked = errors.New("caller already staked")
)

// Stake commits the caller's coins into an escrow. The wallet and the
// escrow live at different paths, so the debit runs first and a failed
// escrow write is compensated by an idempotent refund credit keyed by the
// escrow id. A stake is never lost: a retry repeats the compensation.
func (s *Service) Stake(ctx context.Context, userId, escrowId string, stakeLevel int64) (*models.StakeResult, error) {
	if !ValidStake(stakeLevel) {
		return nil, ErrInvalidStake
	}

	existing, err := store.Read[models.Escrow](ctx, s.store, store.EscrowPath(escrowId))
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.HasPlayer(userId) {
		return s.stakeResult(ctx, userId, escrowId, existing)
	}

	w, err := s.wallet.Get(ctx, userId)
	if err != nil {
		return nil, err
	}
	staked := w.HasMarker(models.StakeMarkers, escrowId)
	refunded := w.HasMarker(models.RefundMarkers, escrowId)
	if staked && refunded {
		return nil, ErrStakeRefunded
	}
	if existing != nil {
		if err := joinable(existing, userId, stakeLevel); err != nil {
			if staked {
				// an earlier attempt debited but never landed in the escrow
				s.compensate(ctx, userId, escrowId, stakeLevel)
			}
			return nil, err
		}
	}

	requestId := claim.NewRequestId()
	if _, err := s.wallet.Debit(ctx, wallet.DebitParams{
		UserId:      userId,
		Amount:      stakeLevel,
		MarkerKey:   escrowId,
		RequestId:   requestId,
		Type:        txlog.TypeStake,
		Description: "stake for wagered match",
	}); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var rejection error
	res, err := store.Update(ctx, s.store, store.EscrowPath(escrowId), func(cur *models.Escrow) store.Outcome[models.Escrow] {
		rejection = nil
		player := &models.EscrowPlayer{UserId: userId, Amount: stakeLevel, LockedAt: now}
		if cur == nil {
			return store.Proceed(&models.Escrow{
				Player1:    player,
				StakeLevel: stakeLevel,
				TotalPot:   stakeLevel,
				Status:     models.EscrowPending,
				CreatedAt:  now,
				ExpiresAt:  now.Add(s.cfg.PendingTTL),
			})
		}
		if cur.HasPlayer(userId) {
			rejection = errAlreadyStaked
			return store.Abort[models.Escrow]()
		}
		if err := joinable(cur, userId, stakeLevel); err != nil {
			rejection = err
			return store.Abort[models.Escrow]()
		}
		cur.Player2 = player
		cur.TotalPot = cur.Player1.Amount + player.Amount
		cur.Status = models.EscrowLocked
		cur.ExpiresAt = now.Add(s.cfg.LockedTTL)
		return store.Proceed(cur)
	})
	if err != nil {
		return s.recoverFailedWrite(ctx, userId, escrowId, stakeLevel, err)
	}
	if rejection != nil && !errors.Is(rejection, errAlreadyStaked) {
		s.compensate(ctx, userId, escrowId, stakeLevel)
		return nil, rejection
	}

	if res.Committed {
		zap.L().Info("Stake committed",
			zap.String("user_id", userId),
			zap.String("escrow_id", escrowId),
			zap.String("status", string(res.Value.Status)),
			zap.Int64("total_pot", res.Value.TotalPot))
	}
	return s.stakeResult(ctx, userId, escrowId, res.Value)
}

func joinable(e *models.Escrow, userId string, stakeLevel int64) error {
	if e.Status != models.EscrowPending || e.Player1 == nil || e.Player2 != nil {
		return ErrNotJoinable
	}
	if e.Player1.UserId == userId {
		return ErrNotJoinable
	}
	if e.StakeLevel != stakeLevel {
		return ErrStakeMismatch
	}
	return Transitions.Check(e.Status, models.EscrowLocked)
}

// recoverFailedWrite decides whether an escrow write that returned an error
// actually landed. A landed write is reported as a normal stake result; only
// a confirmed miss is compensated; anything unclear is left for the retry.
func (s *Service) recoverFailedWrite(ctx context.Context, userId, escrowId string, stakeLevel int64, writeErr error) (*models.StakeResult, error) {
	e, err := store.Read[models.Escrow](ctx, s.store, store.EscrowPath(escrowId))
	if err != nil {
		zap.L().Error("Escrow write failed and state is unknown; retry will resolve",
			zap.String("user_id", userId),
			zap.String("escrow_id", escrowId),
			zap.Error(writeErr))
		return nil, writeErr
	}
	if e != nil && e.HasPlayer(userId) {
		zap.L().Warn("Escrow write reported an error but landed",
			zap.String("user_id", userId),
			zap.String("escrow_id", escrowId),
			zap.Error(writeErr))
		return s.stakeResult(ctx, userId, escrowId, e)
	}
	s.compensate(ctx, userId, escrowId, stakeLevel)
	return nil, writeErr
}

func (s *Service) compensate(ctx context.Context, userId, escrowId string, amount int64) {
	res, err := s.wallet.Credit(ctx, wallet.CreditParams{
		UserId:      userId,
		Amount:      amount,
		Namespace:   models.RefundMarkers,
		MarkerKey:   escrowId,
		RequestId:   claim.NewRequestId(),
		Type:        txlog.TypeRefund,
		Description: "stake returned, escrow not joined",
	})
	if err != nil {
		zap.L().Error("Failed to compensate stake; a retry of the stake will repeat it",
			zap.String("user_id", userId),
			zap.String("escrow_id", escrowId),
			zap.Int64("amount", amount),
			zap.Error(err))
		return
	}
	if res.Applied {
		zap.L().Warn("Stake compensated",
			zap.String("user_id", userId),
			zap.String("escrow_id", escrowId),
			zap.Int64("amount", amount))
	}
}

func (s *Service) stakeResult(ctx context.Context, userId, escrowId string, e *models.Escrow) (*models.StakeResult, error) {
	w, err := s.wallet.Get(ctx, userId)
	if err != nil {
		return nil, err
	}
	return &models.StakeResult{
		EscrowId:   escrowId,
		Status:     e.Status,
		StakeLevel: e.StakeLevel,
		TotalPot:   e.TotalPot,
		NewBalance: w.Coins,
	}, nil
}
