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

package common

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"dart-ledger-go/internal/models"
	"dart-ledger-go/internal/store"

	"go.uber.org/zap"
)

// UserInfo represents simplified user information for command-line utilities
type UserInfo struct {
	Id               string
	Coins            int64
	LifetimeEarnings int64
	LifetimeSpent    int64
}

// InitializeUsers retrieves wallets based on an optional user filter.
// If userFilter is provided, returns a single user with that id.
// If userFilter is empty, returns every user that has a wallet.
func InitializeUsers(ctx context.Context, s store.AtomicStore, userFilter string, logger *zap.Logger) ([]UserInfo, error) {
	var users []UserInfo

	if userFilter != "" {
		logger.Info("Looking up user", zap.String("user_id", userFilter))
		w, err := store.Read[models.Wallet](ctx, s, store.WalletPath(userFilter))
		if err != nil {
			return nil, fmt.Errorf("failed to read wallet: %w", err)
		}
		if w == nil {
			return nil, fmt.Errorf("user not found: %s", userFilter)
		}
		users = append(users, userInfo(userFilter, w))
	} else {
		entries, err := s.List(ctx, store.UsersRoot)
		if err != nil {
			return nil, fmt.Errorf("failed to list users: %w", err)
		}
		for _, e := range entries {
			uid, ok := strings.CutSuffix(e.Key, "/wallet")
			if !ok || strings.Contains(uid, "/") {
				continue
			}
			w, err := store.Decode[models.Wallet](e.Value)
			if err != nil {
				logger.Warn("Skipping malformed wallet", zap.String("user_id", uid), zap.Error(err))
				continue
			}
			if w == nil {
				continue
			}
			users = append(users, userInfo(uid, w))
		}
		sort.Slice(users, func(i, j int) bool { return users[i].Id < users[j].Id })
	}

	logger.Info("Retrieved users", zap.Int("count", len(users)))
	return users, nil
}

func userInfo(uid string, w *models.Wallet) UserInfo {
	return UserInfo{
		Id:               uid,
		Coins:            w.Coins,
		LifetimeEarnings: w.LifetimeEarnings,
		LifetimeSpent:    w.LifetimeSpent,
	}
}
