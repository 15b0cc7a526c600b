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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletView is the caller-facing wallet summary
type WalletView struct {
	UserId           string     `json:"user_id"`
	Coins            int64      `json:"coins"`
	LifetimeEarnings int64      `json:"lifetime_earnings"`
	LifetimeSpent    int64      `json:"lifetime_spent"`
	AdRewardsToday   int        `json:"ad_rewards_today"`
	LastDailyBonus   *time.Time `json:"last_daily_bonus,omitempty"`
	Version          int64      `json:"version"`
}

// NewWalletView projects a wallet record without its marker maps.
func NewWalletView(uid string, w *Wallet) *WalletView {
	return &WalletView{
		UserId:           uid,
		Coins:            w.Coins,
		LifetimeEarnings: w.LifetimeEarnings,
		LifetimeSpent:    w.LifetimeSpent,
		AdRewardsToday:   w.AdRewardsToday,
		LastDailyBonus:   w.LastDailyBonus,
		Version:          w.Version,
	}
}

// ProgressView is the caller-facing XP summary
type ProgressView struct {
	UserId      string `json:"user_id"`
	XP          int64  `json:"xp"`
	Level       int    `json:"level"`
	NextLevelXP int64  `json:"next_level_xp"`
	GamesPlayed int    `json:"games_played"`
	GamesWon    int    `json:"games_won"`
}

// NewProgressView projects a progress record without its per-game markers.
func NewProgressView(uid string, p *Progress, nextLevelXP int64) *ProgressView {
	return &ProgressView{
		UserId:      uid,
		XP:          p.XP,
		Level:       p.Level,
		NextLevelXP: nextLevelXP,
		GamesPlayed: p.GamesPlayed,
		GamesWon:    p.GamesWon,
	}
}

// TransactionRecord represents a transaction in the user's history
type TransactionRecord struct {
	Id           string    `json:"id"`
	Type         string    `json:"type"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balance_after"`
	Reference    string    `json:"reference,omitempty"`
	Description  string    `json:"description,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// StakeResult is returned after committing a stake into an escrow
type StakeResult struct {
	EscrowId   string       `json:"escrow_id"`
	Status     EscrowStatus `json:"status"`
	StakeLevel int64        `json:"stake_level"`
	TotalPot   int64        `json:"total_pot"`
	NewBalance int64        `json:"new_balance"`
}

// RefundResult is returned after refunding an escrow
type RefundResult struct {
	EscrowId string `json:"escrow_id"`
	Refunded int64  `json:"refunded"`
	Replayed bool   `json:"replayed"`
}

// ClaimResult is returned by the ad reward and daily bonus claims
type ClaimResult struct {
	Success        bool   `json:"success"`
	Reward         int64  `json:"reward"`
	NewBalance     int64  `json:"new_balance"`
	AlreadyClaimed bool   `json:"already_claimed,omitempty"`
	AdsToday       int    `json:"ads_today,omitempty"`
	Day            string `json:"day,omitempty"`
}

// SettleResult is returned after settling a finished game
type SettleResult struct {
	GameId         string `json:"game_id"`
	Winner         string `json:"winner"`
	Payout         int64  `json:"payout"`
	NewBalance     int64  `json:"new_balance"`
	XPAwarded      int64  `json:"xp_awarded"`
	Level          int    `json:"level"`
	LeveledUp      bool   `json:"leveled_up"`
	AlreadySettled bool   `json:"already_settled"`
}

// PurchaseResult is returned after crediting a completed coin purchase
type PurchaseResult struct {
	SessionId  string          `json:"session_id"`
	PackId     string          `json:"pack_id"`
	Coins      int64           `json:"coins"`
	Price      decimal.Decimal `json:"price"`
	Applied    bool            `json:"applied"`
	NewBalance int64           `json:"new_balance"`
}

// GameView is a game record with its id
type GameView struct {
	Id string `json:"id"`
	*Game
}

// ThrowResult is returned after applying a dart to a game
type ThrowResult struct {
	GameId   string     `json:"game_id"`
	Throw    Throw      `json:"throw"`
	Status   GameStatus `json:"status"`
	Finished bool       `json:"finished"`
}

// QueueView is a queue entry with its path
type QueueView struct {
	PlayerId string `json:"player_id"`
	Path     string `json:"path"`
	*QueueEntry
}
