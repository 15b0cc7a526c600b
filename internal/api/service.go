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
	"fmt"

	"dart-ledger-go/internal/apperr"
	"dart-ledger-go/internal/escrow"
	"dart-ledger-go/internal/game"
	"dart-ledger-go/internal/matchmaking"
	"dart-ledger-go/internal/models"
	"dart-ledger-go/internal/payments"
	"dart-ledger-go/internal/progress"
	"dart-ledger-go/internal/ratelimit"
	"dart-ledger-go/internal/rewards"
	"dart-ledger-go/internal/settlement"
	"dart-ledger-go/internal/store"
	"dart-ledger-go/internal/txlog"
	"dart-ledger-go/internal/wallet"
)

const healthPath = "health/ping"

// Dependencies are the flows GameService composes
type Dependencies struct {
	Store      store.AtomicStore
	Limiter    *ratelimit.Limiter
	Wallet     *wallet.Service
	Escrow     *escrow.Service
	Rewards    *rewards.Service
	Payments   *payments.Service
	Queue      *matchmaking.Service
	Games      *game.Service
	Progress   *progress.Service
	Settlement *settlement.Service
}

// GameService is the request surface: every call is admitted by the rate
// limiter, validated, and mapped onto one flow
type GameService struct {
	store      store.AtomicStore
	limiter    *ratelimit.Limiter
	wallet     *wallet.Service
	escrow     *escrow.Service
	rewards    *rewards.Service
	payments   *payments.Service
	queue      *matchmaking.Service
	games      *game.Service
	progress   *progress.Service
	settlement *settlement.Service
}

// NewDependencies wires every flow over one store using the economy
// settings. Zero values fall back to each package's defaults.
func NewDependencies(s store.AtomicStore, journal txlog.Journal, eco models.EconomyConfig) (Dependencies, error) {
	limiter, err := ratelimit.New(s, eco.RateLimits, eco.DefaultRateLimit)
	if err != nil {
		return Dependencies{}, fmt.Errorf("failed to configure rate limits: %w", err)
	}
	packs := eco.CoinPacks
	if len(packs) == 0 {
		packs = payments.DefaultPacks
	}
	catalog, err := payments.NewCatalog(packs)
	if err != nil {
		return Dependencies{}, fmt.Errorf("failed to load coin packs: %w", err)
	}

	startingCoins := eco.StartingCoins
	if startingCoins <= 0 {
		startingCoins = wallet.DefaultStartingCoins
	}
	w := wallet.NewService(s, journal, startingCoins)
	e := escrow.NewService(s, w, escrow.Config{
		PendingTTL:  eco.EscrowPendingTTL,
		LockedTTL:   eco.EscrowLockedTTL,
		LockTimeout: eco.LockTimeout,
	})
	q := matchmaking.NewService(s)
	g := game.NewService(s, e, q)
	p := progress.NewService(s, w, eco.LevelUpCoins)

	return Dependencies{
		Store:   s,
		Limiter: limiter,
		Wallet:  w,
		Escrow:  e,
		Rewards: rewards.NewService(s, w, rewards.Config{
			AdRewardCoins:   eco.AdRewardCoins,
			MaxAdsPerDay:    eco.MaxAdsPerDay,
			AdRewardTTL:     eco.AdRewardTTL,
			DailyBonusCoins: eco.DailyBonusCoins,
			LockTimeout:     eco.LockTimeout,
		}),
		Payments: payments.NewService(w, catalog),
		Queue:    q,
		Games:    g,
		Progress: p,
		Settlement: settlement.NewService(g, e, w, p, settlement.Config{
			WinXP:  eco.WinXP,
			LossXP: eco.LossXP,
		}),
	}, nil
}

func NewGameService(d Dependencies) *GameService {
	return &GameService{
		store:      d.Store,
		limiter:    d.Limiter,
		wallet:     d.Wallet,
		escrow:     d.Escrow,
		rewards:    d.Rewards,
		payments:   d.Payments,
		queue:      d.Queue,
		games:      d.Games,
		progress:   d.Progress,
		settlement: d.Settlement,
	}
}

func (s *GameService) HealthCheck(ctx context.Context) error {
	if _, err := s.store.Get(ctx, healthPath); err != nil {
		return fmt.Errorf("store health check failed: %w", err)
	}
	return nil
}

// admit resolves the trusted caller and charges op against its budget.
func (s *GameService) admit(ctx context.Context, op string) (*models.Caller, error) {
	caller := models.GetCaller(ctx)
	if caller == nil || caller.UserId == "" {
		return nil, apperr.Unauthenticated("caller identity required")
	}
	if err := validateId("caller id", caller.UserId); err != nil {
		return nil, err
	}
	if err := s.limiter.Allow(ctx, caller.UserId, op); err != nil {
		return nil, err
	}
	return caller, nil
}

// admitRegistered is admit for operations that move coins.
func (s *GameService) admitRegistered(ctx context.Context, op string) (*models.Caller, error) {
	caller, err := s.admit(ctx, op)
	if err != nil {
		return nil, err
	}
	if caller.Anonymous {
		return nil, apperr.PermissionDenied("sign in to use coins")
	}
	return caller, nil
}
