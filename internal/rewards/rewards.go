package rewards

import (
	"regexp"
	"time"
	_ "time/tzdata"

	"dart-ledger-go/internal/claim"
	"dart-ledger-go/internal/models"
	"dart-ledger-go/internal/store"
	"dart-ledger-go/internal/wallet"
)

const (
	DefaultAdRewardCoins   = 25
	DefaultMaxAdsPerDay    = 10
	DefaultAdRewardTTL     = 24 * time.Hour
	DefaultDailyBonusCoins = 100

	dayLayout = "2006-01-02"
)

// AdTransitions is the verified ad reward status graph. processing ->
// verified releases a claim whose credit failed.
var AdTransitions = claim.NewMachine("adReward", map[models.AdRewardStatus][]models.AdRewardStatus{
	models.AdRewardVerified:   {models.AdRewardProcessing},
	models.AdRewardProcessing: {models.AdRewardCompleted, models.AdRewardVerified},
})

type Config struct {
	AdRewardCoins   int64
	MaxAdsPerDay    int
	AdRewardTTL     time.Duration
	DailyBonusCoins int64
	LockTimeout     time.Duration
}

type Service struct {
	store   store.AtomicStore
	wallet  *wallet.Service
	cfg     Config
	adClaim claim.Protocol[models.AdRewardStatus]
	now     func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(s store.AtomicStore, w *wallet.Service, cfg Config, opts ...Option) *Service {
	if cfg.AdRewardCoins <= 0 {
		cfg.AdRewardCoins = DefaultAdRewardCoins
	}
	if cfg.MaxAdsPerDay <= 0 {
		cfg.MaxAdsPerDay = DefaultMaxAdsPerDay
	}
	if cfg.AdRewardTTL <= 0 {
		cfg.AdRewardTTL = DefaultAdRewardTTL
	}
	if cfg.DailyBonusCoins <= 0 {
		cfg.DailyBonusCoins = DefaultDailyBonusCoins
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = claim.DefaultTimeout
	}
	svc := &Service{
		store:  s,
		wallet: w,
		cfg:    cfg,
		adClaim: claim.Protocol[models.AdRewardStatus]{
			Available:  []models.AdRewardStatus{models.AdRewardVerified},
			Processing: models.AdRewardProcessing,
			Completed:  models.AdRewardCompleted,
			Timeout:    cfg.LockTimeout,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

var timezonePattern = regexp.MustCompile(`^(UTC|[A-Za-z]{1,32}(/[A-Za-z0-9_+\-]{1,32}){1,2})$`)

// ResolveLocation validates an IANA timezone name against a strict
// allow-list and loads it. Anything else falls back to UTC; ok reports
// whether the requested zone was used.
func ResolveLocation(tz string) (loc *time.Location, ok bool) {
	if tz == "" || !timezonePattern.MatchString(tz) {
		return time.UTC, false
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC, false
	}
	return loc, true
}

// adsToday is the ad counter as of now: it restarts on a new UTC day.
func adsToday(w *models.Wallet, now time.Time) int {
	if w.LastAdReward == nil {
		return 0
	}
	if w.LastAdReward.UTC().Format(dayLayout) != now.UTC().Format(dayLayout) {
		return 0
	}
	return w.AdRewardsToday
}
