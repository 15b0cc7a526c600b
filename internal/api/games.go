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

	"dart-ledger-go/internal/apperr"
	"dart-ledger-go/internal/game"
	"dart-ledger-go/internal/matchmaking"
	"dart-ledger-go/internal/models"
	"dart-ledger-go/internal/ratelimit"
	"dart-ledger-go/internal/scoring"

	"go.uber.org/zap"
)

// QueueRequest identifies one matchmaking queue
type QueueRequest struct {
	Mode       models.GameMode `json:"mode"`
	StakeLevel int64           `json:"stake_level,omitempty"`
	EscrowId   string          `json:"escrow_id,omitempty"`
	Name       string          `json:"name,omitempty"`
	Flag       string          `json:"flag,omitempty"`
}

// CreateGameRequest starts a game against a queued opponent
type CreateGameRequest struct {
	OpponentId string          `json:"opponent_id"`
	Mode       models.GameMode `json:"mode"`
	StakeLevel int64           `json:"stake_level,omitempty"`
	EscrowId   string          `json:"escrow_id,omitempty"`
	Name       string          `json:"name,omitempty"`
	Flag       string          `json:"flag,omitempty"`
}

func (r QueueRequest) validate() error {
	if err := validateMode(r.Mode, r.StakeLevel); err != nil {
		return err
	}
	if r.Mode == models.ModeWagered {
		if err := validateId("escrow id", r.EscrowId); err != nil {
			return err
		}
	}
	return validateProfile(r.Name, r.Flag)
}

func (r CreateGameRequest) validate() error {
	if err := validateId("opponent id", r.OpponentId); err != nil {
		return err
	}
	if err := validateMode(r.Mode, r.StakeLevel); err != nil {
		return err
	}
	if r.Mode == models.ModeWagered {
		if err := validateId("escrow id", r.EscrowId); err != nil {
			return err
		}
	}
	return validateProfile(r.Name, r.Flag)
}

// JoinQueue places the caller in a matchmaking queue
func (s *GameService) JoinQueue(ctx context.Context, req QueueRequest) (*models.QueueEntry, error) {
	caller, err := s.admit(ctx, ratelimit.OpJoinQueue)
	if err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.Mode == models.ModeWagered && caller.Anonymous {
		return nil, apperr.PermissionDenied("sign in to play wagered games")
	}

	return s.queue.Join(ctx, matchmaking.JoinParams{
		UserId:     caller.UserId,
		Mode:       req.Mode,
		StakeLevel: req.StakeLevel,
		EscrowId:   req.EscrowId,
		Name:       req.Name,
		Flag:       req.Flag,
	})
}

// LeaveQueue removes the caller from a queue they have not been matched in
func (s *GameService) LeaveQueue(ctx context.Context, mode models.GameMode, stakeLevel int64) error {
	caller, err := s.admit(ctx, ratelimit.OpJoinQueue)
	if err != nil {
		return err
	}
	if err := validateMode(mode, stakeLevel); err != nil {
		return err
	}
	return s.queue.Leave(ctx, caller.UserId, mode, stakeLevel)
}

// GetQueueEntry returns the caller's entry, including any match
func (s *GameService) GetQueueEntry(ctx context.Context, mode models.GameMode, stakeLevel int64) (*models.QueueEntry, error) {
	caller, err := s.admit(ctx, "getQueue")
	if err != nil {
		return nil, err
	}
	if err := validateMode(mode, stakeLevel); err != nil {
		return nil, err
	}
	return s.queue.Get(ctx, caller.UserId, mode, stakeLevel)
}

// ListQueue returns the players waiting in a queue, oldest first
func (s *GameService) ListQueue(ctx context.Context, mode models.GameMode, stakeLevel int64) ([]models.QueueView, error) {
	if _, err := s.admit(ctx, "listQueue"); err != nil {
		return nil, err
	}
	if err := validateMode(mode, stakeLevel); err != nil {
		return nil, err
	}
	return s.queue.Waiting(ctx, mode, stakeLevel)
}

// CreateGame claims a queued opponent and starts the game
func (s *GameService) CreateGame(ctx context.Context, req CreateGameRequest) (*models.GameView, error) {
	caller, err := s.admit(ctx, ratelimit.OpCreateGame)
	if err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.Mode == models.ModeWagered && caller.Anonymous {
		return nil, apperr.PermissionDenied("sign in to play wagered games")
	}

	g, err := s.games.Create(ctx, game.CreateParams{
		CallerId:   caller.UserId,
		CallerName: req.Name,
		CallerFlag: req.Flag,
		OpponentId: req.OpponentId,
		Mode:       req.Mode,
		StakeLevel: req.StakeLevel,
		EscrowId:   req.EscrowId,
	})
	if err != nil {
		zap.L().Info("Game creation rejected",
			zap.String("user_id", caller.UserId),
			zap.String("opponent_id", req.OpponentId),
			zap.Error(err))
		return nil, err
	}
	return g, nil
}

// GetGame returns a game the caller plays in
func (s *GameService) GetGame(ctx context.Context, gameId string) (*models.GameView, error) {
	caller, err := s.admit(ctx, "getGame")
	if err != nil {
		return nil, err
	}
	if err := validateId("game id", gameId); err != nil {
		return nil, err
	}
	return s.games.Get(ctx, caller.UserId, gameId)
}

// Throw scores one dart at board position (x, y)
func (s *GameService) Throw(ctx context.Context, gameId string, x, y float64) (*models.ThrowResult, error) {
	caller, err := s.admit(ctx, ratelimit.OpThrow)
	if err != nil {
		return nil, err
	}
	if err := validateId("game id", gameId); err != nil {
		return nil, err
	}
	if !scoring.ValidPosition(x, y) {
		return nil, apperr.InvalidArgument("position must be within the board")
	}
	return s.games.Throw(ctx, caller.UserId, gameId, x, y)
}

// Forfeit concedes a game in progress
func (s *GameService) Forfeit(ctx context.Context, gameId string) (*models.GameView, error) {
	caller, err := s.admit(ctx, "forfeit")
	if err != nil {
		return nil, err
	}
	if err := validateId("game id", gameId); err != nil {
		return nil, err
	}
	return s.games.Forfeit(ctx, caller.UserId, gameId)
}

// SettleGame pays out a finished game and awards XP
func (s *GameService) SettleGame(ctx context.Context, gameId string) (*models.SettleResult, error) {
	caller, err := s.admit(ctx, ratelimit.OpSettleGame)
	if err != nil {
		return nil, err
	}
	if err := validateId("game id", gameId); err != nil {
		return nil, err
	}

	res, err := s.settlement.SettleGame(ctx, caller.UserId, gameId)
	if err != nil {
		zap.L().Warn("Settlement failed",
			zap.String("user_id", caller.UserId),
			zap.String("game_id", gameId),
			zap.Error(err))
		return nil, err
	}
	return res, nil
}
