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

	"dart-ledger-go/internal/models"
	"dart-ledger-go/internal/ratelimit"

	"go.uber.org/zap"
)

// Stake commits the caller's coins into an escrow
func (s *GameService) Stake(ctx context.Context, escrowId string, stakeLevel int64) (*models.StakeResult, error) {
	caller, err := s.admitRegistered(ctx, ratelimit.OpStake)
	if err != nil {
		return nil, err
	}
	if err := validateId("escrow id", escrowId); err != nil {
		return nil, err
	}
	if err := validateStake(stakeLevel); err != nil {
		return nil, err
	}

	res, err := s.escrow.Stake(ctx, caller.UserId, escrowId, stakeLevel)
	if err != nil {
		zap.L().Warn("Stake failed",
			zap.String("user_id", caller.UserId),
			zap.String("escrow_id", escrowId),
			zap.Int64("stake_level", stakeLevel),
			zap.Error(err))
		return nil, err
	}

	zap.L().Info("Stake processed successfully",
		zap.String("user_id", caller.UserId),
		zap.String("escrow_id", escrowId),
		zap.String("status", string(res.Status)),
		zap.Int64("new_balance", res.NewBalance))
	return res, nil
}

// RefundEscrow returns the stakes of an escrow the caller is part of
func (s *GameService) RefundEscrow(ctx context.Context, escrowId string) (*models.RefundResult, error) {
	caller, err := s.admitRegistered(ctx, ratelimit.OpRefundEscrow)
	if err != nil {
		return nil, err
	}
	if err := validateId("escrow id", escrowId); err != nil {
		return nil, err
	}
	return s.escrow.Refund(ctx, escrowId, caller.UserId)
}
