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

package sweeper

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"dart-ledger-go/internal/escrow"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPollingInterval = time.Minute
	DefaultConcurrency     = 4
)

// Config contains configuration for Sweeper
type Config struct {
	Escrow          *escrow.Service
	PollingInterval time.Duration
	Concurrency     int
	Now             func() time.Time
}

// Report summarises one sweep
type Report struct {
	Refunded int
	Resumed  int
	Failed   int
}

// Sweeper periodically refunds expired escrows and resumes settlements a
// crashed request left in settling
type Sweeper struct {
	escrow          *escrow.Service
	pollingInterval time.Duration
	concurrency     int
	now             func() time.Time

	// Control channels
	stopChan chan struct{}
	doneChan chan struct{}
}

// New creates a new sweeper
func New(cfg Config) *Sweeper {
	if cfg.PollingInterval <= 0 {
		cfg.PollingInterval = DefaultPollingInterval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Sweeper{
		escrow:          cfg.Escrow,
		pollingInterval: cfg.PollingInterval,
		concurrency:     cfg.Concurrency,
		now:             cfg.Now,
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
	}
}

// Start begins the polling loop
func (s *Sweeper) Start(ctx context.Context) {
	zap.L().Info("Starting escrow sweeper",
		zap.Duration("polling_interval", s.pollingInterval),
		zap.Int("concurrency", s.concurrency))
	go s.pollLoop(ctx)
}

// Stop gracefully stops the sweeper
func (s *Sweeper) Stop() {
	zap.L().Info("Stopping escrow sweeper")
	close(s.stopChan)
	<-s.doneChan
	zap.L().Info("Escrow sweeper stopped")
}

func (s *Sweeper) pollLoop(ctx context.Context) {
	defer close(s.doneChan)

	ticker := time.NewTicker(s.pollingInterval)
	defer ticker.Stop()

	s.sweepOnce(ctx)

	for {
		select {
		case <-ticker.C:
			s.sweepOnce(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	report, err := s.Sweep(ctx)
	if err != nil {
		zap.L().Error("Sweep failed", zap.Error(err))
		return
	}
	if report.Refunded+report.Resumed+report.Failed > 0 {
		zap.L().Info("Sweep completed",
			zap.Int("refunded", report.Refunded),
			zap.Int("resumed", report.Resumed),
			zap.Int("failed", report.Failed))
	}
}

// Sweep runs one pass. Individual escrow failures are counted and logged;
// the next pass retries them.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	now := s.now().UTC()
	expired, err := s.escrow.Expired(ctx, now)
	if err != nil {
		return Report{}, fmt.Errorf("failed to list expired escrows: %w", err)
	}
	stale, err := s.escrow.StaleSettlements(ctx, now)
	if err != nil {
		return Report{}, fmt.Errorf("failed to list stale settlements: %w", err)
	}

	var refunded, resumed, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, id := range expired {
		id := id
		g.Go(func() error {
			res, err := s.escrow.Refund(gctx, id, "")
			if err != nil {
				failed.Add(1)
				zap.L().Warn("Failed to refund expired escrow", zap.String("escrow_id", id), zap.Error(err))
				return nil
			}
			if !res.Replayed {
				refunded.Add(1)
			}
			return nil
		})
	}
	for _, st := range stale {
		st := st
		g.Go(func() error {
			if _, err := s.escrow.Settle(gctx, st.EscrowId, st.WinnerId); err != nil {
				failed.Add(1)
				zap.L().Warn("Failed to resume settlement",
					zap.String("escrow_id", st.EscrowId),
					zap.String("winner_id", st.WinnerId),
					zap.Error(err))
				return nil
			}
			resumed.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	return Report{
		Refunded: int(refunded.Load()),
		Resumed:  int(resumed.Load()),
		Failed:   int(failed.Load()),
	}, nil
}
