package settlement

import (
	"context"

	"dart-ledger-go/internal/apperr"
	"dart-ledger-go/internal/escrow"
	"dart-ledger-go/internal/game"
	"dart-ledger-go/internal/models"
	"dart-ledger-go/internal/progress"
	"dart-ledger-go/internal/wallet"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
)

const (
	DefaultWinXP  = 100
	DefaultLossXP = 25
)

var ErrGameNotFinished = apperr.FailedPrecondition("game is not finished")

type Config struct {
	WinXP  int64
	LossXP int64
}

type Service struct {
	games    *game.Service
	escrow   *escrow.Service
	wallet   *wallet.Service
	progress *progress.Service
	cfg      Config
}

func NewService(g *game.Service, e *escrow.Service, w *wallet.Service, p *progress.Service, cfg Config) *Service {
	if cfg.WinXP <= 0 {
		cfg.WinXP = DefaultWinXP
	}
	if cfg.LossXP <= 0 {
		cfg.LossXP = DefaultLossXP
	}
	return &Service{games: g, escrow: e, wallet: w, progress: p, cfg: cfg}
}

// SettleGame pays out a finished game and awards XP to both players. Every
// step is idempotent so the call can be retried by either player until it
// succeeds.
func (s *Service) SettleGame(ctx context.Context, userId, gameId string) (*models.SettleResult, error) {
	g, err := s.games.Get(ctx, userId, gameId)
	if err != nil {
		return nil, err
	}
	winnerId := g.WinnerId()
	if g.Status != models.GameFinished || winnerId == "" {
		return nil, ErrGameNotFinished
	}

	var payout int64
	paid := false
	if g.Mode == models.ModeWagered {
		out, err := s.escrow.Settle(ctx, g.EscrowId, winnerId)
		if err != nil {
			return nil, err
		}
		payout, paid = out.Payout, out.Applied
	}

	_, marked, err := s.games.MarkSettled(ctx, gameId, payout)
	if err != nil {
		return nil, err
	}

	result := &models.SettleResult{
		GameId:         gameId,
		Winner:         winnerId,
		Payout:         payout,
		AlreadySettled: !marked && !paid,
	}
	for _, p := range g.Players {
		won := p.UserId == winnerId
		xp := s.cfg.LossXP
		if won {
			xp = s.cfg.WinXP
		}
		award, err := s.progress.Award(ctx, p.UserId, gameId, xp, won)
		if err != nil {
			return nil, err
		}
		if p.UserId == userId {
			result.XPAwarded = award.XPAwarded
			result.Level = award.Level
			result.LeveledUp = award.LeveledUp
		}
	}

	w, err := s.wallet.Get(ctx, userId)
	switch {
	case err == nil:
		result.NewBalance = w.Coins
	case !apperr.Is(err, codes.NotFound):
		return nil, err
	}

	if !result.AlreadySettled {
		zap.L().Info("Game settled",
			zap.String("game_id", gameId),
			zap.String("winner", winnerId),
			zap.Int64("payout", payout),
			zap.String("mode", string(g.Mode)))
	}
	return result, nil
}
