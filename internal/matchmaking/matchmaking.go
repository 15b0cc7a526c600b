package matchmaking

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"dart-ledger-go/internal/apperr"
	"dart-ledger-go/internal/claim"
	"dart-ledger-go/internal/escrow"
	"dart-ledger-go/internal/models"
	"dart-ledger-go/internal/store"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
)

var (
	ErrAlreadyMatched = apperr.New(codes.Aborted, "opponent already matched")
	ErrNotQueued      = apperr.NotFound("player is not queued")
)

type Service struct {
	store store.AtomicStore
	now   func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(s store.AtomicStore, opts ...Option) *Service {
	svc := &Service{store: s, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type JoinParams struct {
	UserId     string
	Mode       models.GameMode
	StakeLevel int64
	EscrowId   string
	Name       string
	Flag       string
}

type ClaimParams struct {
	Mode       models.GameMode
	StakeLevel int64
	OpponentId string
	GameId     string
	ByName     string
	ByFlag     string
}

// slot validates mode and stake and returns the stake level used in the
// queue path. Casual entries carry no stake.
func slot(mode models.GameMode, stakeLevel int64) (int64, error) {
	switch mode {
	case models.ModeCasual:
		return 0, nil
	case models.ModeWagered:
		if !escrow.ValidStake(stakeLevel) {
			return 0, apperr.InvalidArgument("invalid stake level %d", stakeLevel)
		}
		return stakeLevel, nil
	}
	return 0, apperr.InvalidArgument("invalid game mode %q", mode)
}

// Join writes or refreshes the caller's queue entry. An entry that has
// already been matched is left in place and returned so the caller can pick
// up the game.
func (s *Service) Join(ctx context.Context, p JoinParams) (*models.QueueEntry, error) {
	level, err := slot(p.Mode, p.StakeLevel)
	if err != nil {
		return nil, err
	}
	if p.Mode == models.ModeWagered && p.EscrowId == "" {
		return nil, apperr.InvalidArgument("wagered queue entries need an escrow")
	}

	now := s.now().UTC()
	path := store.QueuePath(string(p.Mode), level, p.UserId)
	res, err := store.Update(ctx, s.store, path, func(cur *models.QueueEntry) store.Outcome[models.QueueEntry] {
		if cur != nil && cur.MatchedGameId != "" {
			return store.Abort[models.QueueEntry]()
		}
		return store.Proceed(&models.QueueEntry{
			GameMode:    p.Mode,
			StakeLevel:  level,
			EscrowId:    p.EscrowId,
			DisplayName: p.Name,
			Flag:        p.Flag,
			JoinedAt:    now,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to join queue: %w", err)
	}
	if res.Committed {
		zap.L().Debug("Player queued",
			zap.String("user_id", p.UserId),
			zap.String("path", path))
	}
	return res.Value, nil
}

// Leave removes an unmatched entry. A matched entry stays so the opponent's
// game can still be found.
func (s *Service) Leave(ctx context.Context, userId string, mode models.GameMode, stakeLevel int64) error {
	level, err := slot(mode, stakeLevel)
	if err != nil {
		return err
	}
	path := store.QueuePath(string(mode), level, userId)
	res, err := store.Update(ctx, s.store, path, func(cur *models.QueueEntry) store.Outcome[models.QueueEntry] {
		if cur == nil || cur.MatchedGameId != "" {
			return store.Abort[models.QueueEntry]()
		}
		return store.Remove[models.QueueEntry]()
	})
	if err != nil {
		return fmt.Errorf("failed to leave queue: %w", err)
	}
	if !res.Committed && res.Value != nil {
		return apperr.FailedPrecondition("already matched into game %s", res.Value.MatchedGameId)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, userId string, mode models.GameMode, stakeLevel int64) (*models.QueueEntry, error) {
	level, err := slot(mode, stakeLevel)
	if err != nil {
		return nil, err
	}
	entry, err := store.Read[models.QueueEntry](ctx, s.store, store.QueuePath(string(mode), level, userId))
	if err != nil {
		return nil, fmt.Errorf("failed to read queue entry: %w", err)
	}
	if entry == nil {
		return nil, ErrNotQueued
	}
	return entry, nil
}

// Waiting lists unmatched entries in one queue, oldest first.
func (s *Service) Waiting(ctx context.Context, mode models.GameMode, stakeLevel int64) ([]models.QueueView, error) {
	level, err := slot(mode, stakeLevel)
	if err != nil {
		return nil, err
	}
	parent := strings.TrimSuffix(store.QueuePath(string(mode), level, ""), "/")
	entries, err := s.store.List(ctx, parent)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}

	views := make([]models.QueueView, 0, len(entries))
	for _, e := range entries {
		if strings.Contains(e.Key, "/") {
			continue
		}
		q, err := store.Decode[models.QueueEntry](e.Value)
		if err != nil {
			zap.L().Warn("Skipping malformed queue entry", zap.String("path", e.Path), zap.Error(err))
			continue
		}
		if q.MatchedGameId != "" {
			continue
		}
		views = append(views, models.QueueView{PlayerId: e.Key, Path: e.Path, QueueEntry: q})
	}
	sort.SliceStable(views, func(i, j int) bool { return views[i].JoinedAt.Before(views[j].JoinedAt) })
	return views, nil
}

// Claim consumes the opponent's entry for gameId. Exactly one game can
// claim an entry; replaying the same gameId is accepted.
func (s *Service) Claim(ctx context.Context, p ClaimParams) (*models.QueueEntry, error) {
	level, err := slot(p.Mode, p.StakeLevel)
	if err != nil {
		return nil, err
	}
	path := store.QueuePath(string(p.Mode), level, p.OpponentId)
	res, err := store.Update(ctx, s.store, path, func(cur *models.QueueEntry) store.Outcome[models.QueueEntry] {
		if cur == nil || cur.MatchedGameId != "" {
			return store.Abort[models.QueueEntry]()
		}
		cur.MatchedGameId = p.GameId
		cur.MatchedByName = p.ByName
		cur.MatchedByFlag = p.ByFlag
		return store.Proceed(cur)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim queue entry: %w", err)
	}
	if res.Value == nil {
		return nil, apperr.NotFound("opponent is not queued")
	}
	if err := claim.Verify(res.Value.MatchedGameId, p.GameId); err != nil {
		return nil, ErrAlreadyMatched
	}
	return res.Value, nil
}

// Release undoes a Claim made for gameId when game creation fails.
func (s *Service) Release(ctx context.Context, mode models.GameMode, stakeLevel int64, opponentId, gameId string) error {
	level, err := slot(mode, stakeLevel)
	if err != nil {
		return err
	}
	path := store.QueuePath(string(mode), level, opponentId)
	_, err = store.Update(ctx, s.store, path, func(cur *models.QueueEntry) store.Outcome[models.QueueEntry] {
		if cur == nil || cur.MatchedGameId != gameId {
			return store.Abort[models.QueueEntry]()
		}
		cur.MatchedGameId = ""
		cur.MatchedByName = ""
		cur.MatchedByFlag = ""
		return store.Proceed(cur)
	})
	if err != nil {
		return fmt.Errorf("failed to release queue entry: %w", err)
	}
	return nil
}

// Complete removes the entry matched into gameId once that game is over,
// so its owner can queue again. Entries matched elsewhere are left alone.
func (s *Service) Complete(ctx context.Context, mode models.GameMode, stakeLevel int64, userId, gameId string) error {
	level, err := slot(mode, stakeLevel)
	if err != nil {
		return err
	}
	path := store.QueuePath(string(mode), level, userId)
	res, err := store.Update(ctx, s.store, path, func(cur *models.QueueEntry) store.Outcome[models.QueueEntry] {
		if cur == nil || cur.MatchedGameId != gameId {
			return store.Abort[models.QueueEntry]()
		}
		return store.Remove[models.QueueEntry]()
	})
	if err != nil {
		return fmt.Errorf("failed to complete queue entry: %w", err)
	}
	if res.Committed {
		zap.L().Debug("Queue entry completed",
			zap.String("user_id", userId),
			zap.String("game_id", gameId))
	}
	return nil
}
