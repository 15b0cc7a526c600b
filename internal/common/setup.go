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

package common

import (
	"context"
	"fmt"
	"log"
	"strings"

	"dart-ledger-go/internal/api"
	"dart-ledger-go/internal/database"
	"dart-ledger-go/internal/formance"
	"dart-ledger-go/internal/models"
	"dart-ledger-go/internal/redisstore"
	"dart-ledger-go/internal/store"
	"dart-ledger-go/internal/store/memory"
	"dart-ledger-go/internal/txlog"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	Store    store.AtomicStore
	Formance *formance.Service
	api.Dependencies
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices opens the configured store backend and wires every
// flow over it. Wallet movements are journaled in the store and, when
// configured, mirrored to a Formance ledger.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	s, err := InitializeStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	journal := txlog.MultiJournal{txlog.NewStoreJournal(s)}
	var mirror *formance.Service
	if cfg.Formance.Enabled() {
		mirror, err = formance.NewService(ctx, cfg.Formance)
		if err != nil {
			s.Close()
			return nil, err
		}
		journal = append(journal, mirror)
	} else {
		zap.L().Info("Formance mirror disabled")
	}

	deps, err := api.NewDependencies(s, journal, cfg.Economy)
	if err != nil {
		s.Close()
		return nil, err
	}

	return &Services{
		Store:        s,
		Formance:     mirror,
		Dependencies: deps,
	}, nil
}

// InitializeStore opens just the store backend. Useful for read-only
// admin commands.
func InitializeStore(ctx context.Context, cfg *models.Config) (store.AtomicStore, error) {
	zap.L().Info("Opening store", zap.String("backend", cfg.Store.Backend))
	switch cfg.Store.Backend {
	case "memory":
		return memory.New(memory.WithMaxAttempts(cfg.Store.MaxAttempts)), nil
	case "sqlite", "postgres":
		s, err := database.NewService(ctx, cfg.Database, database.WithMaxAttempts(cfg.Store.MaxAttempts))
		if err != nil {
			return nil, err
		}
		return s, nil
	case "redis":
		s, err := redisstore.New(ctx, cfg.Redis, cfg.Store.MaxAttempts)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func (cs *Services) Close() {
	if cs.Store != nil {
		if err := cs.Store.Close(); err != nil {
			zap.L().Warn("Failed to close store", zap.Error(err))
		}
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
