/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package api

import (
	"context"
	"time"

	"dart-ledger-go/internal/apperr"
	"dart-ledger-go/internal/models"
	"dart-ledger-go/internal/payments"
	"dart-ledger-go/internal/ratelimit"
	"dart-ledger-go/internal/rewards"

	"go.uber.org/zap"
)

// ClaimAdReward credits a verified rewarded-ad view
func (s *GameService) ClaimAdReward(ctx context.Context, transactionId string) (*models.ClaimResult, error) {
	caller, err := s.admitRegistered(ctx, ratelimit.OpClaimAdReward)
	if err != nil {
		return nil, err
	}
	if err := validateId("transaction id", transactionId); err != nil {
		return nil, err
	}

	res, err := s.rewards.ClaimAd(ctx, caller.UserId, transactionId)
	if err != nil {
		zap.L().Info("Ad reward claim rejected",
			zap.String("user_id", caller.UserId),
			zap.String("transaction_id", transactionId),
			zap.Error(err))
		return nil, err
	}
	return res, nil
}

// ClaimDailyBonus credits the daily bonus for the caller's local day
func (s *GameService) ClaimDailyBonus(ctx context.Context, timezone string) (*models.ClaimResult, error) {
	caller, err := s.admitRegistered(ctx, ratelimit.OpClaimDailyBonus)
	if err != nil {
		return nil, err
	}
	if err := validateTimezone(timezone); err != nil {
		return nil, err
	}
	return s.rewards.ClaimDaily(ctx, caller.UserId, timezone)
}

// RecordAdVerified ingests a completion from the ad network callback
// verifier. It is an internal call and carries no caller.
func (s *GameService) RecordAdVerified(ctx context.Context, userId, transactionId string, verifiedAt time.Time) (bool, error) {
	if err := validateId("user id", userId); err != nil {
		return false, err
	}
	if err := validateId("transaction id", transactionId); err != nil {
		return false, err
	}
	if verifiedAt.IsZero() {
		return false, apperr.InvalidArgument("verification time required")
	}

	created, err := s.rewards.RecordVerified(ctx, rewards.VerifiedEvent{
		UserId:        userId,
		TransactionId: transactionId,
		VerifiedAt:    verifiedAt,
	})
	if err != nil {
		zap.L().Error("Failed to record verified ad",
			zap.String("user_id", userId),
			zap.String("transaction_id", transactionId),
			zap.Error(err))
		return false, err
	}
	return created, nil
}

// CompletePurchase credits a coin pack reported by the payment webhook
// verifier. Replays of the same session are no-ops.
func (s *GameService) CompletePurchase(ctx context.Context, userId string, amountCoins int64, sessionId string) (*models.PurchaseResult, error) {
	if err := validateId("user id", userId); err != nil {
		return nil, err
	}
	if err := validateId("session id", sessionId); err != nil {
		return nil, err
	}
	if amountCoins <= 0 {
		return nil, apperr.InvalidArgument("amount must be positive")
	}

	zap.L().Info("Processing purchase completion",
		zap.String("user_id", userId),
		zap.Int64("coins", amountCoins),
		zap.String("session_id", sessionId))

	res, err := s.payments.Complete(ctx, payments.CompletedEvent{
		UserId:            userId,
		AmountCoins:       amountCoins,
		ExternalSessionId: sessionId,
	})
	if err != nil {
		zap.L().Error("Purchase completion failed",
			zap.String("user_id", userId),
			zap.String("session_id", sessionId),
			zap.Error(err))
		return nil, err
	}
	return res, nil
}
