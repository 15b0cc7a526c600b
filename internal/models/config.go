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

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Store    StoreConfig
	Server   ServerConfig
	Sweeper  SweeperConfig
	Formance FormanceConfig
	Economy  EconomyConfig
}

// DatabaseConfig holds SQL backend connection settings
type DatabaseConfig struct {
	Driver          string // "sqlite3" or "pgx"
	Path            string // file path for sqlite3, DSN for pgx
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// RedisConfig holds Redis backend connection settings
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// StoreConfig selects the Atomic Store backend
type StoreConfig struct {
	Backend     string // memory, sqlite, postgres, redis
	MaxAttempts int
}

// ServerConfig holds HTTP transport settings
type ServerConfig struct {
	Addr            string
	InternalToken   string
	ThrottleRPS     float64
	ThrottleBurst   int
	ShutdownTimeout time.Duration
}

// SweeperConfig holds background escrow expiry settings
type SweeperConfig struct {
	Enabled         bool
	PollingInterval time.Duration
	Concurrency     int
}

// FormanceConfig holds the optional Formance ledger mirror settings
type FormanceConfig struct {
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

// Enabled reports whether the mirror has enough settings to connect.
func (f FormanceConfig) Enabled() bool {
	return f.StackURL != "" && f.ClientID != "" && f.ClientSecret != ""
}

// EconomyConfig holds game economy tuning. Loaded from economy.yaml when present.
type EconomyConfig struct {
	StartingCoins    int64           `yaml:"starting_coins"`
	DailyBonusCoins  int64           `yaml:"daily_bonus_coins"`
	AdRewardCoins    int64           `yaml:"ad_reward_coins"`
	MaxAdsPerDay     int             `yaml:"max_ads_per_day"`
	AdRewardTTL      time.Duration   `yaml:"ad_reward_ttl"`
	LockTimeout      time.Duration   `yaml:"lock_timeout"`
	EscrowPendingTTL time.Duration   `yaml:"escrow_pending_ttl"`
	EscrowLockedTTL  time.Duration   `yaml:"escrow_locked_ttl"`
	WinXP            int64           `yaml:"win_xp"`
	LossXP           int64           `yaml:"loss_xp"`
	LevelUpCoins     int64           `yaml:"level_up_coins"`
	RateLimits       []RateLimitRule `yaml:"rate_limits"`
	DefaultRateLimit RateLimitRule   `yaml:"default_rate_limit"`
	CoinPacks        []CoinPack      `yaml:"coin_packs"`
}

// RateLimitRule is the admission budget for one operation
type RateLimitRule struct {
	Operation string        `yaml:"operation"`
	Limit     int           `yaml:"limit"`
	Window    time.Duration `yaml:"window"`
}

// CoinPack is a purchasable bundle of coins. Price is a decimal string in USD.
type CoinPack struct {
	Id    string `yaml:"id"`
	Coins int64  `yaml:"coins"`
	Price string `yaml:"price"`
}
