package progress

import (
	"context"
	"fmt"
	"strconv"

	"dart-ledger-go/internal/apperr"
	"dart-ledger-go/internal/claim"
	"dart-ledger-go/internal/models"
	"dart-ledger-go/internal/store"
	"dart-ledger-go/internal/txlog"
	"dart-ledger-go/internal/wallet"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
)

const (
	xpPerLevelStep = 50

	DefaultLevelUpCoins = 25
)

// LevelForXP returns the highest level L with 50·L·(L−1) <= xp.
func LevelForXP(xp int64) int {
	if xp <= 0 {
		return 1
	}
	level := 1
	for ThresholdFor(level+1) <= xp {
		level++
	}
	return level
}

// ThresholdFor is the cumulative XP needed to reach level.
func ThresholdFor(level int) int64 {
	l := int64(level)
	return xpPerLevelStep * l * (l - 1)
}

type Service struct {
	store        store.AtomicStore
	wallet       *wallet.Service
	levelUpCoins int64
}

// NewService pays levelUpCoins·L coins on reaching level L.
func NewService(s store.AtomicStore, w *wallet.Service, levelUpCoins int64) *Service {
	if levelUpCoins <= 0 {
		levelUpCoins = DefaultLevelUpCoins
	}
	return &Service{store: s, wallet: w, levelUpCoins: levelUpCoins}
}

// LevelReward is the coin bonus for reaching level.
func (s *Service) LevelReward(level int) int64 {
	return s.levelUpCoins * int64(level)
}

type AwardResult struct {
	XPAwarded     int64
	XP            int64
	Level         int
	PreviousLevel int
	LeveledUp     bool
	Applied       bool
}

// Award adds xp for gameId once. Level-up coin rewards are reconciled on
// every call so a crash between the two writes is repaired by a replay.
func (s *Service) Award(ctx context.Context, userId, gameId string, xp int64, won bool) (*AwardResult, error) {
	if xp < 0 {
		return nil, apperr.InvalidArgument("xp must not be negative")
	}

	var previous int
	res, err := store.Update(ctx, s.store, store.ProgressPath(userId), func(cur *models.Progress) store.Outcome[models.Progress] {
		if cur == nil {
			cur = &models.Progress{Level: 1}
		}
		previous = cur.Level
		if _, done := cur.AwardedGames[gameId]; done {
			return store.Abort[models.Progress]()
		}
		if cur.AwardedGames == nil {
			cur.AwardedGames = make(map[string]int64)
		}
		cur.AwardedGames[gameId] = xp
		cur.XP += xp
		cur.GamesPlayed++
		if won {
			cur.GamesWon++
		}
		cur.Level = LevelForXP(cur.XP)
		return store.Proceed(cur)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to award xp: %w", err)
	}
	p := res.Value

	out := &AwardResult{XP: p.XP, Level: p.Level, PreviousLevel: previous}
	if res.Committed {
		out.Applied = true
		out.XPAwarded = xp
		out.LeveledUp = p.Level > previous
	} else {
		out.XPAwarded = p.AwardedGames[gameId]
	}

	if err := s.reconcileRewards(ctx, userId, p.Level); err != nil {
		return nil, err
	}
	if out.LeveledUp {
		zap.L().Info("Level up",
			zap.String("user_id", userId),
			zap.Int("level", p.Level),
			zap.Int64("xp", p.XP))
	}
	return out, nil
}

// Get returns the caller's progress, defaulting to level 1.
func (s *Service) Get(ctx context.Context, userId string) (*models.Progress, error) {
	p, err := store.Read[models.Progress](ctx, s.store, store.ProgressPath(userId))
	if err != nil {
		return nil, fmt.Errorf("failed to read progress: %w", err)
	}
	if p == nil {
		p = &models.Progress{Level: 1}
	}
	return p, nil
}

func (s *Service) reconcileRewards(ctx context.Context, userId string, level int) error {
	if level < 2 {
		return nil
	}
	w, err := s.wallet.Get(ctx, userId)
	if apperr.Is(err, codes.NotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	for l := 2; l <= level; l++ {
		key := levelMarker(l)
		if w.HasMarker(models.RewardMarkers, key) {
			continue
		}
		_, err := s.wallet.Credit(ctx, wallet.CreditParams{
			UserId:      userId,
			Amount:      s.LevelReward(l),
			Namespace:   models.RewardMarkers,
			MarkerKey:   key,
			RequestId:   claim.NewRequestId(),
			Type:        txlog.TypeLevelUp,
			Description: "reached level " + strconv.Itoa(l),
		})
		if err != nil {
			return fmt.Errorf("failed to credit level %d reward: %w", l, err)
		}
	}
	return nil
}

func levelMarker(level int) string {
	return "level-" + strconv.Itoa(level)
}
