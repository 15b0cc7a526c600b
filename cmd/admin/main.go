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

package main

import (
	"context"
	"fmt"
	"os"

	"dart-ledger-go/internal/common"
	"dart-ledger-go/internal/config"
	"dart-ledger-go/internal/models"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type adminContext struct {
	cfg      *models.Config
	logger   *zap.Logger
	services *common.Services
}

func (a *adminContext) init(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.cfg = cfg
	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	a.services = services
	return nil
}

func (a *adminContext) close() {
	if a.services != nil {
		a.services.Close()
	}
}

func main() {
	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	admin := &adminContext{logger: logger}
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Operator tooling for the dart ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return admin.init(cmd.Context())
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			admin.close()
		},
	}
	root.AddCommand(
		balancesCmd(admin),
		historyCmd(admin),
		refundCmd(admin),
		refundExpiredCmd(admin),
		packsCmd(admin),
		reconcileCmd(admin),
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		admin.close()
		logger.Error("Command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
