package rewards

import (
	"context"
	"errors"

	"dart-ledger-go/internal/claim"
	"dart-ledger-go/internal/models"
	"dart-ledger-go/internal/txlog"
	"dart-ledger-go/internal/wallet"

	"go.uber.org/zap"
)

var errClaimedToday = errors.New("daily bonus already claimed today")

// ClaimDaily pays the daily bonus once per calendar day in the caller's
// timezone. The marker is daily-YYYY-MM-DD; the wallet update also re-checks
// lastDailyBonus so switching timezones cannot yield a second bonus.
func (s *Service) ClaimDaily(ctx context.Context, userId, timezone string) (*models.ClaimResult, error) {
	loc, ok := ResolveLocation(timezone)
	if !ok && timezone != "" {
		zap.L().Debug("Invalid timezone, using UTC", zap.String("timezone", timezone))
	}
	now := s.now().UTC()
	day := now.In(loc).Format(dayLayout)
	markerKey := "daily-" + day

	w, err := s.wallet.Get(ctx, userId)
	if err != nil {
		return nil, err
	}
	if w.HasMarker(models.RewardMarkers, markerKey) {
		return dailyClaimed(w, day), nil
	}

	credit, err := s.wallet.Credit(ctx, wallet.CreditParams{
		UserId:      userId,
		Amount:      s.cfg.DailyBonusCoins,
		Namespace:   models.RewardMarkers,
		MarkerKey:   markerKey,
		RequestId:   claim.NewRequestId(),
		Type:        txlog.TypeDailyBonus,
		Description: "daily bonus " + day,
		Guard: func(w *models.Wallet) error {
			if w.LastDailyBonus != nil && w.LastDailyBonus.In(loc).Format(dayLayout) == day {
				return errClaimedToday
			}
			return nil
		},
		Apply: func(w *models.Wallet) {
			w.LastDailyBonus = &now
		},
	})
	if errors.Is(err, errClaimedToday) {
		w, err := s.wallet.Get(ctx, userId)
		if err != nil {
			return nil, err
		}
		return dailyClaimed(w, day), nil
	}
	if err != nil {
		return nil, err
	}
	if !credit.Applied {
		return dailyClaimed(credit.Wallet, day), nil
	}

	zap.L().Info("Daily bonus claimed",
		zap.String("user_id", userId),
		zap.String("day", day),
		zap.String("timezone", loc.String()))
	return &models.ClaimResult{
		Success:    true,
		Reward:     s.cfg.DailyBonusCoins,
		NewBalance: credit.Wallet.Coins,
		Day:        day,
	}, nil
}

func dailyClaimed(w *models.Wallet, day string) *models.ClaimResult {
	return &models.ClaimResult{
		Success:        false,
		AlreadyClaimed: true,
		NewBalance:     w.Coins,
		Day:            day,
	}
}
