package game

import (
	"context"
	"fmt"
	"time"

	"dart-ledger-go/internal/models"
	"dart-ledger-go/internal/scoring"
	"dart-ledger-go/internal/store"

	"go.uber.org/zap"
)

// Throw applies one dart for the caller. A bust restores the score the
// turn started with and passes the turn; a checkout finishes the game.
func (s *Service) Throw(ctx context.Context, userId, gameId string, x, y float64) (*models.ThrowResult, error) {
	score, err := scoring.ScoreAt(x, y)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var rejected error
	var applied models.Throw
	res, err := store.Update(ctx, s.store, store.GamePath(gameId), func(g *models.Game) store.Outcome[models.Game] {
		rejected = nil
		if g == nil {
			rejected = ErrGameNotFound
			return store.Abort[models.Game]()
		}
		idx := g.PlayerIndex(userId)
		switch {
		case idx < 0:
			rejected = ErrGameNotFound
		case g.Status != models.GamePlaying:
			rejected = ErrNotPlaying
		case g.CurrentPlayer != idx:
			rejected = ErrNotYourTurn
		}
		if rejected != nil {
			return store.Abort[models.Game]()
		}

		applied = apply(g, idx, score, now)
		return store.Proceed(g)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply throw: %w", err)
	}
	if rejected != nil {
		return nil, rejected
	}

	g := res.Value
	if applied.Checkout {
		zap.L().Info("Game finished",
			zap.String("game_id", gameId),
			zap.String("winner", g.WinnerId()))
		s.completeMatch(ctx, gameId, g)
	}
	return &models.ThrowResult{
		GameId:   gameId,
		Throw:    applied,
		Status:   g.Status,
		Finished: g.Status == models.GameFinished,
	}, nil
}

func apply(g *models.Game, idx int, score scoring.Score, now time.Time) models.Throw {
	remaining := g.Players[idx].Remaining
	t := models.Throw{
		Player:     idx,
		Points:     score.Points,
		Multiplier: score.Multiplier,
		Label:      score.Label,
		Bust:       scoring.IsBust(remaining, score.Points, score.Multiplier),
		Checkout:   scoring.IsCheckout(remaining, score.Points, score.Multiplier),
		At:         now,
	}
	g.LastThrow = &t

	switch {
	case t.Bust:
		g.Players[idx].Remaining = g.TurnStartRemaining
		nextTurn(g)
	case t.Checkout:
		winner := idx
		finished := now
		g.Players[idx].Remaining = 0
		g.Status = models.GameFinished
		g.Winner = &winner
		g.FinishedAt = &finished
	default:
		g.Players[idx].Remaining = remaining - score.Points
		g.DartsThisTurn++
		if g.DartsThisTurn >= DartsPerTurn {
			nextTurn(g)
		}
	}
	return t
}

func nextTurn(g *models.Game) {
	g.CurrentPlayer = (g.CurrentPlayer + 1) % len(g.Players)
	g.DartsThisTurn = 0
	g.TurnStartRemaining = g.Players[g.CurrentPlayer].Remaining
}

// MarkSettled records the payout on a finished game. Applied is false when
// the game was already settled.
func (s *Service) MarkSettled(ctx context.Context, gameId string, payout int64) (*models.Game, bool, error) {
	now := s.now().UTC()
	var rejected error
	res, err := store.Update(ctx, s.store, store.GamePath(gameId), func(g *models.Game) store.Outcome[models.Game] {
		rejected = nil
		switch {
		case g == nil:
			rejected = ErrGameNotFound
		case g.Settled:
		case g.Status != models.GameFinished:
			rejected = ErrNotPlaying
		}
		if rejected != nil || g.Settled {
			return store.Abort[models.Game]()
		}
		settled := now
		g.Settled = true
		g.SettledAt = &settled
		g.Payout = payout
		return store.Proceed(g)
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to mark game settled: %w", err)
	}
	if rejected != nil {
		return nil, false, rejected
	}
	s.completeMatch(ctx, gameId, res.Value)
	return res.Value, res.Committed, nil
}

// Forfeit concedes a playing game to the other player.
func (s *Service) Forfeit(ctx context.Context, userId, gameId string) (*models.GameView, error) {
	now := s.now().UTC()
	var rejected error
	res, err := store.Update(ctx, s.store, store.GamePath(gameId), func(g *models.Game) store.Outcome[models.Game] {
		rejected = nil
		if g == nil || g.PlayerIndex(userId) < 0 {
			rejected = ErrGameNotFound
			return store.Abort[models.Game]()
		}
		if err := Transitions.Check(g.Status, models.GameFinished); err != nil {
			rejected = ErrNotPlaying
			return store.Abort[models.Game]()
		}
		winner := (g.PlayerIndex(userId) + 1) % len(g.Players)
		finished := now
		g.Status = models.GameFinished
		g.Winner = &winner
		g.FinishedAt = &finished
		return store.Proceed(g)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to forfeit game: %w", err)
	}
	if rejected != nil {
		return nil, rejected
	}
	zap.L().Info("Game forfeited",
		zap.String("game_id", gameId),
		zap.String("user_id", userId))
	s.completeMatch(ctx, gameId, res.Value)
	return &models.GameView{Id: gameId, Game: res.Value}, nil
}

// completeMatch frees the queue entry the game was created from. Players[0]
// owns that entry. Failures are logged; settlement repeats the cleanup.
func (s *Service) completeMatch(ctx context.Context, gameId string, g *models.Game) {
	if g == nil || len(g.Players) == 0 || g.Status != models.GameFinished {
		return
	}
	owner := g.Players[0].UserId
	if err := s.queue.Complete(ctx, g.Mode, g.StakeLevel, owner, gameId); err != nil {
		zap.L().Warn("Failed to complete queue entry",
			zap.String("game_id", gameId),
			zap.String("user_id", owner),
			zap.Error(err))
	}
}
