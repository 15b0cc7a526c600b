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

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"dart-ledger-go/internal/models"
	"dart-ledger-go/internal/payments"
	"dart-ledger-go/internal/ratelimit"

	"gopkg.in/yaml.v2"
)

// DefaultEconomy is the tuning used when no economy file is present.
func DefaultEconomy() *models.EconomyConfig {
	return &models.EconomyConfig{
		StartingCoins:    500,
		DailyBonusCoins:  100,
		AdRewardCoins:    25,
		MaxAdsPerDay:     10,
		AdRewardTTL:      24 * time.Hour,
		LockTimeout:      120 * time.Second,
		EscrowPendingTTL: 10 * time.Minute,
		EscrowLockedTTL:  2 * time.Hour,
		WinXP:            100,
		LossXP:           25,
		LevelUpCoins:     25,
		RateLimits:       append([]models.RateLimitRule(nil), ratelimit.DefaultRules...),
		DefaultRateLimit: ratelimit.DefaultRule,
		CoinPacks:        append([]models.CoinPack(nil), payments.DefaultPacks...),
	}
}

// LoadEconomy overlays the YAML file at economyFile on DefaultEconomy. A
// missing file is not an error.
func LoadEconomy(economyFile string) (*models.EconomyConfig, error) {
	economyPath := economyFile
	if !filepath.IsAbs(economyFile) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		economyPath = filepath.Join(wd, economyFile)
	}

	cfg := DefaultEconomy()
	data, err := os.ReadFile(economyPath)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", economyFile, err)
	}

	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", economyFile, err)
	}
	if err := validateEconomy(cfg); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", economyFile, err)
	}
	return cfg, nil
}

func validateEconomy(cfg *models.EconomyConfig) error {
	if cfg.StartingCoins < 0 || cfg.DailyBonusCoins < 0 || cfg.AdRewardCoins < 0 {
		return fmt.Errorf("coin amounts must not be negative")
	}
	if cfg.MaxAdsPerDay < 0 {
		return fmt.Errorf("max_ads_per_day must not be negative")
	}
	for i, r := range cfg.RateLimits {
		if r.Operation == "" {
			return fmt.Errorf("rate limit at index %d missing operation", i)
		}
		if r.Limit <= 0 || r.Window <= 0 {
			return fmt.Errorf("rate limit %s needs a positive limit and window", r.Operation)
		}
	}
	for i, p := range cfg.CoinPacks {
		if p.Id == "" {
			return fmt.Errorf("coin pack at index %d missing id", i)
		}
	}
	return nil
}
