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
	"dart-ledger-go/internal/progress"

	"go.uber.org/zap"
)

// SignIn creates the caller's wallet with the starting balance on first use
// and returns it.
func (s *GameService) SignIn(ctx context.Context) (*models.WalletView, error) {
	caller, err := s.admit(ctx, "signIn")
	if err != nil {
		return nil, err
	}

	w, err := s.wallet.EnsureWallet(ctx, caller.UserId, caller.Anonymous)
	if err != nil {
		zap.L().Error("Failed to ensure wallet",
			zap.String("user_id", caller.UserId),
			zap.Error(err))
		return nil, err
	}
	return models.NewWalletView(caller.UserId, w), nil
}

// GetWallet returns the caller's wallet without marker bookkeeping
func (s *GameService) GetWallet(ctx context.Context) (*models.WalletView, error) {
	caller, err := s.admitRegistered(ctx, "getWallet")
	if err != nil {
		return nil, err
	}

	w, err := s.wallet.Get(ctx, caller.UserId)
	if err != nil {
		return nil, err
	}
	return models.NewWalletView(caller.UserId, w), nil
}

// GetTransactionHistory returns the newest transaction log entries
func (s *GameService) GetTransactionHistory(ctx context.Context, limit int) ([]models.TransactionRecord, error) {
	caller, err := s.admitRegistered(ctx, "getHistory")
	if err != nil {
		return nil, err
	}

	records, err := s.wallet.History(ctx, caller.UserId, clampLimit(limit))
	if err != nil {
		zap.L().Error("Failed to get transaction history",
			zap.String("user_id", caller.UserId),
			zap.Error(err))
		return nil, err
	}
	return records, nil
}

// GetProgress returns the caller's XP and level
func (s *GameService) GetProgress(ctx context.Context) (*models.ProgressView, error) {
	caller, err := s.admit(ctx, "getProgress")
	if err != nil {
		return nil, err
	}

	p, err := s.progress.Get(ctx, caller.UserId)
	if err != nil {
		return nil, err
	}
	return models.NewProgressView(caller.UserId, p, progress.ThresholdFor(p.Level+1)), nil
}
