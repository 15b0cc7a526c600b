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

import "time"

// MarkerNamespace names a family of idempotency markers stored on the wallet
type MarkerNamespace string

const (
	RewardMarkers   MarkerNamespace = "rewardMarkers"
	SettleMarkers   MarkerNamespace = "settleMarkers"
	RefundMarkers   MarkerNamespace = "refundMarkers"
	PurchaseMarkers MarkerNamespace = "purchaseMarkers"
	StakeMarkers    MarkerNamespace = "stakeMarkers"
)

// RewardMarker records one paid reward (ad, daily bonus, level-up)
type RewardMarker struct {
	RequestId string    `json:"requestId"`
	Ts        time.Time `json:"ts"`
	Amount    int64     `json:"amount"`
	Type      string    `json:"type"`
}

// Wallet is stored at users/{uid}/wallet
type Wallet struct {
	Coins            int64                   `json:"coins"`
	LifetimeEarnings int64                   `json:"lifetimeEarnings"`
	LifetimeSpent    int64                   `json:"lifetimeSpent"`
	LastDailyBonus   *time.Time              `json:"lastDailyBonus,omitempty"`
	LastAdReward     *time.Time              `json:"lastAdReward,omitempty"`
	AdRewardsToday   int                     `json:"adRewardsToday"`
	Version          int64                   `json:"version"`
	CreatedAt        time.Time               `json:"createdAt"`
	RewardMarkers    map[string]RewardMarker `json:"rewardMarkers,omitempty"`
	SettleMarkers    map[string]string       `json:"settleMarkers,omitempty"`
	RefundMarkers    map[string]string       `json:"refundMarkers,omitempty"`
	PurchaseMarkers  map[string]string       `json:"purchaseMarkers,omitempty"`
	StakeMarkers     map[string]string       `json:"stakeMarkers,omitempty"`
}

// HasMarker reports whether key is already recorded in namespace ns.
func (w *Wallet) HasMarker(ns MarkerNamespace, key string) bool {
	switch ns {
	case RewardMarkers:
		_, ok := w.RewardMarkers[key]
		return ok
	case SettleMarkers:
		_, ok := w.SettleMarkers[key]
		return ok
	case RefundMarkers:
		_, ok := w.RefundMarkers[key]
		return ok
	case PurchaseMarkers:
		_, ok := w.PurchaseMarkers[key]
		return ok
	case StakeMarkers:
		_, ok := w.StakeMarkers[key]
		return ok
	}
	return false
}

// SetMarker records key in namespace ns. Unknown namespaces are ignored.
func (w *Wallet) SetMarker(ns MarkerNamespace, key string, m RewardMarker) {
	switch ns {
	case RewardMarkers:
		if w.RewardMarkers == nil {
			w.RewardMarkers = make(map[string]RewardMarker)
		}
		w.RewardMarkers[key] = m
	case SettleMarkers:
		w.SettleMarkers = setStringMarker(w.SettleMarkers, key, m.RequestId)
	case RefundMarkers:
		w.RefundMarkers = setStringMarker(w.RefundMarkers, key, m.RequestId)
	case PurchaseMarkers:
		w.PurchaseMarkers = setStringMarker(w.PurchaseMarkers, key, m.RequestId)
	case StakeMarkers:
		w.StakeMarkers = setStringMarker(w.StakeMarkers, key, m.RequestId)
	}
}

// ValidNamespace reports whether ns is one of the known marker namespaces.
func ValidNamespace(ns MarkerNamespace) bool {
	switch ns {
	case RewardMarkers, SettleMarkers, RefundMarkers, PurchaseMarkers, StakeMarkers:
		return true
	}
	return false
}

func setStringMarker(m map[string]string, key, requestId string) map[string]string {
	if m == nil {
		m = make(map[string]string)
	}
	m[key] = requestId
	return m
}

// EscrowStatus is the escrow lifecycle state
type EscrowStatus string

const (
	EscrowPending  EscrowStatus = "pending"
	EscrowLocked   EscrowStatus = "locked"
	EscrowSettling EscrowStatus = "settling"
	EscrowReleased EscrowStatus = "released"
	EscrowRefunded EscrowStatus = "refunded"
)

// EscrowPlayer is one committed stake
type EscrowPlayer struct {
	UserId   string    `json:"userId"`
	Amount   int64     `json:"amount"`
	LockedAt time.Time `json:"lockedAt"`
}

// Escrow is stored at escrow/{escrowId}
type Escrow struct {
	Player1             *EscrowPlayer `json:"player1"`
	Player2             *EscrowPlayer `json:"player2,omitempty"`
	StakeLevel          int64         `json:"stakeLevel"`
	TotalPot            int64         `json:"totalPot"`
	Status              EscrowStatus  `json:"status"`
	CreatedAt           time.Time     `json:"createdAt"`
	ExpiresAt           time.Time     `json:"expiresAt"`
	SettledAt           *time.Time    `json:"settledAt,omitempty"`
	WinnerId            string        `json:"winnerId,omitempty"`
	SettlementRequestId string        `json:"settlementRequestId,omitempty"`
	SettlementStartedAt *time.Time    `json:"settlementStartedAt,omitempty"`
	SettlementError     string        `json:"settlementError,omitempty"`
	RefundRequestId     string        `json:"refundRequestId,omitempty"`
	RefundedAt          *time.Time    `json:"refundedAt,omitempty"`
}

// HasPlayer reports whether uid has a committed stake in the escrow.
func (e *Escrow) HasPlayer(uid string) bool {
	return (e.Player1 != nil && e.Player1.UserId == uid) || (e.Player2 != nil && e.Player2.UserId == uid)
}

// Stakes returns the committed stakes in join order.
func (e *Escrow) Stakes() []EscrowPlayer {
	var out []EscrowPlayer
	if e.Player1 != nil {
		out = append(out, *e.Player1)
	}
	if e.Player2 != nil {
		out = append(out, *e.Player2)
	}
	return out
}

// AdRewardStatus is the verified ad reward claim state
type AdRewardStatus string

const (
	AdRewardVerified   AdRewardStatus = "verified"
	AdRewardProcessing AdRewardStatus = "processing"
	AdRewardCompleted  AdRewardStatus = "completed"
)

// VerifiedAdReward is stored at verifiedAdRewards/{transactionId}
type VerifiedAdReward struct {
	UserId              string         `json:"userId"`
	VerifiedAt          time.Time      `json:"verifiedAt"`
	Status              AdRewardStatus `json:"status,omitempty"`
	Claimed             *bool          `json:"claimed,omitempty"` // legacy records
	ProcessingRequestId string         `json:"processingRequestId,omitempty"`
	ProcessingStartedAt *time.Time     `json:"processingStartedAt,omitempty"`
	ClaimError          string         `json:"claimError,omitempty"`
	CompletedAt         *time.Time     `json:"completedAt,omitempty"`
}

// EffectiveStatus folds the legacy claimed flag into the status enum.
func (r *VerifiedAdReward) EffectiveStatus() AdRewardStatus {
	if r.Claimed != nil && *r.Claimed {
		return AdRewardCompleted
	}
	if r.Status == "" {
		return AdRewardVerified
	}
	return r.Status
}

// GameMode distinguishes free play from wagered matches
type GameMode string

const (
	ModeCasual  GameMode = "casual"
	ModeWagered GameMode = "wagered"
)

// QueueEntry is stored at matchmaking_queue/{mode}/{stakeLevel?}/{playerId}
type QueueEntry struct {
	GameMode      GameMode  `json:"gameMode"`
	StakeLevel    int64     `json:"stakeLevel,omitempty"`
	EscrowId      string    `json:"escrowId,omitempty"`
	DisplayName   string    `json:"displayName,omitempty"`
	Flag          string    `json:"flag,omitempty"`
	JoinedAt      time.Time `json:"joinedAt"`
	MatchedGameId string    `json:"matchedGameId,omitempty"`
	MatchedByName string    `json:"matchedByName,omitempty"`
	MatchedByFlag string    `json:"matchedByFlag,omitempty"`
}

// RateLimitCounter is stored at rateLimits/{uid}/{op}
type RateLimitCounter struct {
	Count       int       `json:"count"`
	WindowStart time.Time `json:"windowStart"`
}

// GameStatus is the game lifecycle state
type GameStatus string

const (
	GamePlaying  GameStatus = "playing"
	GameFinished GameStatus = "finished"
)

// GamePlayer is one seat in a game
type GamePlayer struct {
	UserId    string `json:"userId"`
	Name      string `json:"name,omitempty"`
	Flag      string `json:"flag,omitempty"`
	Remaining int    `json:"remaining"`
}

// Throw is a scored dart as applied to a game
type Throw struct {
	Player     int       `json:"player"`
	Points     int       `json:"points"`
	Multiplier int       `json:"multiplier"`
	Label      string    `json:"label"`
	Bust       bool      `json:"bust"`
	Checkout   bool      `json:"checkout"`
	At         time.Time `json:"at"`
}

// Game is stored at games/{gameId}
type Game struct {
	Mode               GameMode     `json:"mode"`
	StakeLevel         int64        `json:"stakeLevel,omitempty"`
	EscrowId           string       `json:"escrowId,omitempty"`
	Players            []GamePlayer `json:"players"`
	CurrentPlayer      int          `json:"currentPlayer"`
	DartsThisTurn      int          `json:"dartsThisTurn"`
	TurnStartRemaining int          `json:"turnStartRemaining"`
	Status             GameStatus   `json:"status"`
	Winner             *int         `json:"winner,omitempty"`
	LastThrow          *Throw       `json:"lastThrow,omitempty"`
	CreatedAt          time.Time    `json:"createdAt"`
	FinishedAt         *time.Time   `json:"finishedAt,omitempty"`
	Settled            bool         `json:"settled"`
	SettledAt          *time.Time   `json:"settledAt,omitempty"`
	Payout             int64        `json:"payout,omitempty"`
}

// PlayerIndex returns the seat of uid, or -1.
func (g *Game) PlayerIndex(uid string) int {
	for i, p := range g.Players {
		if p.UserId == uid {
			return i
		}
	}
	return -1
}

// WinnerId returns the winning user id, or "" while undecided.
func (g *Game) WinnerId() string {
	if g.Winner == nil || *g.Winner < 0 || *g.Winner >= len(g.Players) {
		return ""
	}
	return g.Players[*g.Winner].UserId
}

// Progress is stored at users/{uid}/progress
type Progress struct {
	XP           int64            `json:"xp"`
	Level        int              `json:"level"`
	GamesPlayed  int              `json:"gamesPlayed"`
	GamesWon     int              `json:"gamesWon"`
	AwardedGames map[string]int64 `json:"awardedGames,omitempty"`
}

// TransactionEntry is an append-only, human readable log line stored under
// users/{uid}/transactions. Best-effort: never the source of truth.
type TransactionEntry struct {
	Type         string    `json:"type"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balanceAfter"`
	Reference    string    `json:"reference,omitempty"`
	Description  string    `json:"description,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}
