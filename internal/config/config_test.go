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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadEconomyMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadEconomy(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultEconomy(), cfg)
}

func TestLoadEconomyOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "economy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
starting_coins: 750
max_ads_per_day: 3
lock_timeout: 90s
rate_limits:
  - operation: throw
    limit: 60
    window: 1m
coin_packs:
  - id: tiny
    coins: 100
    price: "0.49"
`), 0o600))

	cfg, err := LoadEconomy(path)
	require.NoError(t, err)
	require.Equal(t, int64(750), cfg.StartingCoins)
	require.Equal(t, 3, cfg.MaxAdsPerDay)
	require.Equal(t, 90*time.Second, cfg.LockTimeout)
	require.Equal(t, int64(100), cfg.DailyBonusCoins)
	require.Len(t, cfg.RateLimits, 1)
	require.Equal(t, time.Minute, cfg.RateLimits[0].Window)
	require.Len(t, cfg.CoinPacks, 1)
	require.Equal(t, "tiny", cfg.CoinPacks[0].Id)
}

func TestLoadEconomyRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"unknown field":  "bonus: 5\n",
		"negative coins": "starting_coins: -1\n",
		"zero window":    "rate_limits:\n  - operation: throw\n    limit: 5\n",
		"pack id":        "coin_packs:\n  - coins: 5\n    price: \"1\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
			_, err := LoadEconomy(path)
			require.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("ECONOMY_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("SERVER_THROTTLE_RPS", "12.5")
	t.Setenv("SWEEPER_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "pgx", cfg.Database.Driver)
	require.Equal(t, 12.5, cfg.Server.ThrottleRPS)
	require.False(t, cfg.Sweeper.Enabled)
	require.False(t, cfg.Formance.Enabled())
	require.Equal(t, int64(500), cfg.Economy.StartingCoins)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("ECONOMY_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("STORE_BACKEND", "etcd")

	_, err := Load()
	require.ErrorContains(t, err, "STORE_BACKEND")
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("ECONOMY_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("DB_PING_TIMEOUT", "soon")

	_, err := Load()
	require.ErrorContains(t, err, "DB_PING_TIMEOUT")
}
