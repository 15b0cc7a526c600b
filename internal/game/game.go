package game

import (
	"context"
	"fmt"
	"time"

	"dart-ledger-go/internal/apperr"
	"dart-ledger-go/internal/claim"
	"dart-ledger-go/internal/escrow"
	"dart-ledger-go/internal/matchmaking"
	"dart-ledger-go/internal/models"
	"dart-ledger-go/internal/store"

	"go.uber.org/zap"
)

const (
	StartingScore = 501
	DartsPerTurn  = 3
)

var (
	ErrGameNotFound  = apperr.NotFound("game not found")
	ErrNotPlaying    = apperr.FailedPrecondition("game is not playing")
	ErrNotYourTurn   = apperr.FailedPrecondition("not your turn")
	ErrSelfMatch     = apperr.InvalidArgument("cannot play against yourself")
	ErrEscrowMissing = apperr.InvalidArgument("wagered games need an escrow")
)

var Transitions = claim.NewMachine("game", map[models.GameStatus][]models.GameStatus{
	models.GamePlaying: {models.GameFinished},
})

// EscrowVerifier confirms a wagered pair has both stakes locked.
type EscrowVerifier interface {
	VerifyLocked(ctx context.Context, escrowId, player1, player2 string) (*models.Escrow, error)
}

// QueueClaimer consumes an opponent's matchmaking entry and removes it
// once the game is over.
type QueueClaimer interface {
	Claim(ctx context.Context, p matchmaking.ClaimParams) (*models.QueueEntry, error)
	Release(ctx context.Context, mode models.GameMode, stakeLevel int64, opponentId, gameId string) error
	Complete(ctx context.Context, mode models.GameMode, stakeLevel int64, userId, gameId string) error
}

type Service struct {
	store  store.AtomicStore
	escrow EscrowVerifier
	queue  QueueClaimer
	now    func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(s store.AtomicStore, e EscrowVerifier, q QueueClaimer, opts ...Option) *Service {
	svc := &Service{store: s, escrow: e, queue: q, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type CreateParams struct {
	CallerId   string
	CallerName string
	CallerFlag string
	OpponentId string
	Mode       models.GameMode
	StakeLevel int64
	EscrowId   string
}

// Create starts a game against a queued opponent. The opponent's queue
// entry is claimed first so only one game can consume it; a failed game
// write releases the claim again.
func (s *Service) Create(ctx context.Context, p CreateParams) (*models.GameView, error) {
	if p.CallerId == p.OpponentId {
		return nil, ErrSelfMatch
	}

	var stakeLevel int64
	switch p.Mode {
	case models.ModeCasual:
	case models.ModeWagered:
		if !escrow.ValidStake(p.StakeLevel) {
			return nil, apperr.InvalidArgument("invalid stake level %d", p.StakeLevel)
		}
		if p.EscrowId == "" {
			return nil, ErrEscrowMissing
		}
		e, err := s.escrow.VerifyLocked(ctx, p.EscrowId, p.CallerId, p.OpponentId)
		if err != nil {
			return nil, err
		}
		if e.StakeLevel != p.StakeLevel {
			return nil, apperr.FailedPrecondition("escrow stake %d does not match %d", e.StakeLevel, p.StakeLevel)
		}
		stakeLevel = p.StakeLevel
	default:
		return nil, apperr.InvalidArgument("invalid game mode %q", p.Mode)
	}

	gameId, err := store.NewKey()
	if err != nil {
		return nil, err
	}
	entry, err := s.queue.Claim(ctx, matchmaking.ClaimParams{
		Mode:       p.Mode,
		StakeLevel: stakeLevel,
		OpponentId: p.OpponentId,
		GameId:     gameId,
		ByName:     p.CallerName,
		ByFlag:     p.CallerFlag,
	})
	if err != nil {
		return nil, err
	}

	release := func(cause error) error {
		if err := s.queue.Release(ctx, p.Mode, stakeLevel, p.OpponentId, gameId); err != nil {
			zap.L().Warn("Failed to release queue claim",
				zap.String("game_id", gameId),
				zap.String("opponent_id", p.OpponentId),
				zap.Error(err))
		}
		return cause
	}
	if p.Mode == models.ModeWagered && entry.EscrowId != p.EscrowId {
		return nil, release(apperr.FailedPrecondition("opponent queued with a different escrow"))
	}

	now := s.now().UTC()
	g := &models.Game{
		Mode:       p.Mode,
		StakeLevel: stakeLevel,
		EscrowId:   p.EscrowId,
		Players: []models.GamePlayer{
			{UserId: p.OpponentId, Name: entry.DisplayName, Flag: entry.Flag, Remaining: StartingScore},
			{UserId: p.CallerId, Name: p.CallerName, Flag: p.CallerFlag, Remaining: StartingScore},
		},
		TurnStartRemaining: StartingScore,
		Status:             models.GamePlaying,
		CreatedAt:          now,
	}
	res, err := store.Update(ctx, s.store, store.GamePath(gameId), func(cur *models.Game) store.Outcome[models.Game] {
		if cur != nil {
			return store.Abort[models.Game]()
		}
		return store.Proceed(g)
	})
	if err != nil {
		return nil, release(fmt.Errorf("failed to write game: %w", err))
	}
	if !res.Committed {
		return nil, release(apperr.Internal("game id collision"))
	}

	zap.L().Info("Game created",
		zap.String("game_id", gameId),
		zap.String("mode", string(p.Mode)),
		zap.String("escrow_id", p.EscrowId),
		zap.String("player1", p.OpponentId),
		zap.String("player2", p.CallerId))
	return &models.GameView{Id: gameId, Game: res.Value}, nil
}

// Get returns the game when the caller is one of its players. Other
// callers see the same NotFound as a missing game.
func (s *Service) Get(ctx context.Context, userId, gameId string) (*models.GameView, error) {
	g, err := store.Read[models.Game](ctx, s.store, store.GamePath(gameId))
	if err != nil {
		return nil, fmt.Errorf("failed to read game: %w", err)
	}
	if g == nil || g.PlayerIndex(userId) < 0 {
		return nil, ErrGameNotFound
	}
	return &models.GameView{Id: gameId, Game: g}, nil
}
