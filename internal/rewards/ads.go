package rewards

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dart-ledger-go/internal/apperr"
	"dart-ledger-go/internal/claim"
	"dart-ledger-go/internal/models"
	"dart-ledger-go/internal/store"
	"dart-ledger-go/internal/txlog"
	"dart-ledger-go/internal/wallet"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
)

var (
	// ErrAdRewardNotFound covers both a missing record and one owned by
	// someone else, so transaction ids cannot be probed.
	ErrAdRewardNotFound = apperr.NotFound("ad reward not found")
	ErrAdRewardExpired  = apperr.New(codes.DeadlineExceeded, "ad reward expired")
	ErrDailyAdCap       = apperr.New(codes.ResourceExhausted, "daily ad reward limit reached")
)

// VerifiedEvent is the trusted ad completion from the ad network callback.
type VerifiedEvent struct {
	UserId        string
	TransactionId string
	VerifiedAt    time.Time
}

// RecordVerified stores a verified ad completion. Redelivery of the same
// transaction id is a no-op.
func (s *Service) RecordVerified(ctx context.Context, ev VerifiedEvent) (bool, error) {
	verifiedAt := ev.VerifiedAt
	if verifiedAt.IsZero() {
		verifiedAt = s.now()
	}

	res, err := store.Update(ctx, s.store, store.AdRewardPath(ev.TransactionId), func(cur *models.VerifiedAdReward) store.Outcome[models.VerifiedAdReward] {
		if cur != nil {
			return store.Abort[models.VerifiedAdReward]()
		}
		return store.Proceed(&models.VerifiedAdReward{
			UserId:     ev.UserId,
			VerifiedAt: verifiedAt.UTC(),
			Status:     models.AdRewardVerified,
		})
	})
	if err != nil {
		return false, fmt.Errorf("failed to record ad reward: %w", err)
	}
	if !res.Committed && res.Value != nil && res.Value.UserId != ev.UserId {
		zap.L().Warn("Ad reward redelivered for a different user",
			zap.String("transaction_id", ev.TransactionId),
			zap.String("user_id", ev.UserId))
		return false, apperr.New(codes.AlreadyExists, "ad reward already recorded")
	}
	if res.Committed {
		zap.L().Info("Ad reward verified",
			zap.String("transaction_id", ev.TransactionId),
			zap.String("user_id", ev.UserId))
	}
	return res.Committed, nil
}

// ClaimAd pays a verified ad reward once. The reward record is claimed
// under a fresh request id, the wallet is credited with
// rewardMarkers[txId] and the daily cap checked in that same wallet update,
// then the record is finalized to completed. A failed credit releases the
// record back to verified with the error noted.
func (s *Service) ClaimAd(ctx context.Context, userId, transactionId string) (*models.ClaimResult, error) {
	requestId := claim.NewRequestId()
	now := s.now().UTC()

	var claimErr error
	var done bool
	res, err := store.Update(ctx, s.store, store.AdRewardPath(transactionId), func(cur *models.VerifiedAdReward) store.Outcome[models.VerifiedAdReward] {
		claimErr, done = nil, false
		if cur == nil || cur.UserId != userId {
			claimErr = ErrAdRewardNotFound
			return store.Abort[models.VerifiedAdReward]()
		}
		status := cur.EffectiveStatus()
		if status == models.AdRewardCompleted {
			done = true
			return store.Abort[models.VerifiedAdReward]()
		}
		if now.Sub(cur.VerifiedAt) > s.cfg.AdRewardTTL {
			claimErr = ErrAdRewardExpired
			return store.Abort[models.VerifiedAdReward]()
		}
		if err := s.adClaim.Evaluate(status, cur.ProcessingStartedAt, now); err != nil {
			claimErr = err
			return store.Abort[models.VerifiedAdReward]()
		}
		if status != models.AdRewardProcessing {
			if err := AdTransitions.Check(status, models.AdRewardProcessing); err != nil {
				claimErr = err
				return store.Abort[models.VerifiedAdReward]()
			}
		}
		started := now
		cur.Status = models.AdRewardProcessing
		cur.ProcessingRequestId = requestId
		cur.ProcessingStartedAt = &started
		cur.ClaimError = ""
		return store.Proceed(cur)
	})
	if err != nil {
		return nil, err
	}
	if done {
		return s.alreadyClaimed(ctx, userId)
	}
	if claimErr != nil {
		return nil, claimErr
	}
	if err := claim.Verify(res.Value.ProcessingRequestId, requestId); err != nil {
		return nil, err
	}

	credit, err := s.wallet.Credit(ctx, wallet.CreditParams{
		UserId:      userId,
		Amount:      s.cfg.AdRewardCoins,
		Namespace:   models.RewardMarkers,
		MarkerKey:   transactionId,
		RequestId:   requestId,
		Type:        txlog.TypeAdReward,
		Description: "rewarded ad",
		Guard: func(w *models.Wallet) error {
			if adsToday(w, now) >= s.cfg.MaxAdsPerDay {
				return ErrDailyAdCap
			}
			return nil
		},
		Apply: func(w *models.Wallet) {
			w.AdRewardsToday = adsToday(w, now) + 1
			w.LastAdReward = &now
		},
	})
	if err != nil {
		s.releaseAdClaim(ctx, transactionId, requestId, err)
		return nil, err
	}

	s.finalizeAdClaim(ctx, transactionId, requestId)

	if !credit.Applied {
		return s.alreadyClaimed(ctx, userId)
	}
	zap.L().Info("Ad reward claimed",
		zap.String("user_id", userId),
		zap.String("transaction_id", transactionId),
		zap.Int("ads_today", credit.Wallet.AdRewardsToday))
	return &models.ClaimResult{
		Success:    true,
		Reward:     s.cfg.AdRewardCoins,
		NewBalance: credit.Wallet.Coins,
		AdsToday:   credit.Wallet.AdRewardsToday,
	}, nil
}

func (s *Service) alreadyClaimed(ctx context.Context, userId string) (*models.ClaimResult, error) {
	w, err := s.wallet.Get(ctx, userId)
	if err != nil {
		return nil, err
	}
	return &models.ClaimResult{
		Success:        true,
		AlreadyClaimed: true,
		NewBalance:     w.Coins,
		AdsToday:       adsToday(w, s.now()),
	}, nil
}

func (s *Service) finalizeAdClaim(ctx context.Context, transactionId, requestId string) {
	now := s.now().UTC()
	_, err := store.Update(ctx, s.store, store.AdRewardPath(transactionId), func(cur *models.VerifiedAdReward) store.Outcome[models.VerifiedAdReward] {
		if cur == nil || cur.Status != models.AdRewardProcessing || cur.ProcessingRequestId != requestId {
			return store.Abort[models.VerifiedAdReward]()
		}
		cur.Status = models.AdRewardCompleted
		cur.CompletedAt = &now
		return store.Proceed(cur)
	})
	if err != nil {
		zap.L().Warn("Failed to finalize ad reward after credit",
			zap.String("transaction_id", transactionId),
			zap.Error(err))
	}
}

func (s *Service) releaseAdClaim(ctx context.Context, transactionId, requestId string, cause error) {
	_, err := store.Update(ctx, s.store, store.AdRewardPath(transactionId), func(cur *models.VerifiedAdReward) store.Outcome[models.VerifiedAdReward] {
		if cur == nil || cur.Status != models.AdRewardProcessing || cur.ProcessingRequestId != requestId {
			return store.Abort[models.VerifiedAdReward]()
		}
		cur.Status = models.AdRewardVerified
		cur.ProcessingRequestId = ""
		cur.ProcessingStartedAt = nil
		cur.ClaimError = apperr.Message(cause)
		return store.Proceed(cur)
	})
	if err != nil {
		zap.L().Error("Failed to release ad reward claim; it will expire",
			zap.String("transaction_id", transactionId),
			zap.Error(err))
		return
	}
	if !errors.Is(cause, ErrDailyAdCap) {
		zap.L().Warn("Ad reward credit failed, claim released",
			zap.String("transaction_id", transactionId),
			zap.Error(cause))
	}
}
