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
	"fmt"

	"dart-ledger-go/internal/common"
	"dart-ledger-go/internal/sweeper"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func balancesCmd(a *adminContext) *cobra.Command {
	var userId string
	cmd := &cobra.Command{
		Use:     "balance",
		Aliases: []string{"balances"},
		Short:   "Print wallet balances for one user or every user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			users, err := common.InitializeUsers(cmd.Context(), a.services.Store, userId, a.logger)
			if err != nil {
				return err
			}

			common.PrintHeader("WALLET BALANCE REPORT", common.DefaultWidth)
			var total int64
			for i, u := range users {
				fmt.Printf("%s %-40s %12s (earned %s, spent %s)\n",
					common.BoxPrefix(i == len(users)-1),
					u.Id,
					common.FormatCoins(u.Coins),
					common.FormatCoins(u.LifetimeEarnings),
					common.FormatCoins(u.LifetimeSpent))
				total += u.Coins
			}
			common.PrintFooter(fmt.Sprintf("SUMMARY: %d wallets holding %s", len(users), common.FormatCoins(total)), common.DefaultWidth)
			return nil
		},
	}
	cmd.Flags().StringVar(&userId, "user", "", "Filter by user id (optional)")
	return cmd
}

func historyCmd(a *adminContext) *cobra.Command {
	var userId string
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the most recent wallet transactions of a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := a.services.Wallet.History(cmd.Context(), userId, limit)
			if err != nil {
				return fmt.Errorf("failed to load history: %w", err)
			}

			common.PrintHeader("TRANSACTIONS: "+userId, common.WideWidth)
			for i, r := range records {
				isLast := i == len(records)-1
				fmt.Printf("%s %s  %-14s %10s  balance %s\n",
					common.BoxPrefix(isLast),
					r.CreatedAt.Format("2006-01-02 15:04:05"),
					r.Type,
					common.FormatSignedCoins(r.Amount),
					common.FormatCoins(r.BalanceAfter))
				if r.Reference != "" {
					fmt.Printf("%s ref: %s\n", common.BoxDetailPrefix(isLast), common.ShortId(r.Reference))
				}
			}
			common.PrintFooter(fmt.Sprintf("%d transactions", len(records)), common.WideWidth)
			return nil
		},
	}
	cmd.Flags().StringVar(&userId, "user", "", "User id (required)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of transactions")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func refundCmd(a *adminContext) *cobra.Command {
	var escrowId string
	cmd := &cobra.Command{
		Use:   "refund",
		Short: "Refund a pending or expired escrow",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.services.Escrow.Refund(cmd.Context(), escrowId, "")
			if err != nil {
				return fmt.Errorf("failed to refund escrow %s: %w", escrowId, err)
			}
			a.logger.Info("Escrow refunded",
				zap.String("escrow_id", res.EscrowId),
				zap.Int64("refunded", res.Refunded),
				zap.Bool("replayed", res.Replayed))
			fmt.Printf("escrow %s: refunded %s (replayed: %t)\n", res.EscrowId, common.FormatCoins(res.Refunded), res.Replayed)
			return nil
		},
	}
	cmd.Flags().StringVar(&escrowId, "escrow", "", "Escrow id (required)")
	_ = cmd.MarkFlagRequired("escrow")
	return cmd
}

func refundExpiredCmd(a *adminContext) *cobra.Command {
	return &cobra.Command{
		Use:     "refund-expired",
		Aliases: []string{"sweep"},
		Short:   "Run one escrow sweep: refund expired escrows and resume stuck settlements",
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := sweeper.New(sweeper.Config{
				Escrow:      a.services.Escrow,
				Concurrency: a.cfg.Sweeper.Concurrency,
			}).Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("refunded: %d  resumed: %d  failed: %d\n", report.Refunded, report.Resumed, report.Failed)
			if report.Failed > 0 {
				return fmt.Errorf("%d escrows failed, see logs", report.Failed)
			}
			return nil
		},
	}
}

func packsCmd(a *adminContext) *cobra.Command {
	return &cobra.Command{
		Use:   "packs",
		Short: "Print the configured coin pack catalog",
		RunE: func(*cobra.Command, []string) error {
			packs := a.services.Payments.Catalog().Packs()
			common.PrintHeader("COIN PACKS", common.DefaultWidth)
			for i, p := range packs {
				fmt.Printf("%s %-12s %10s  USD %s\n",
					common.BoxPrefix(i == len(packs)-1),
					p.Id,
					common.FormatCoins(p.Coins),
					p.Price.StringFixed(2))
			}
			common.PrintFooter(fmt.Sprintf("%d packs", len(packs)), common.DefaultWidth)
			return nil
		},
	}
}

func reconcileCmd(a *adminContext) *cobra.Command {
	var userId string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare wallet balances against the Formance mirror",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.services.Formance == nil {
				return fmt.Errorf("formance mirror is not configured")
			}
			users, err := common.InitializeUsers(cmd.Context(), a.services.Store, userId, a.logger)
			if err != nil {
				return err
			}

			common.PrintHeader("LEDGER RECONCILIATION", common.DefaultWidth)
			drifted := 0
			for i, u := range users {
				mirrored, err := a.services.Formance.Balance(cmd.Context(), u.Id)
				if err != nil {
					a.logger.Error("Failed to read mirrored balance", zap.String("user_id", u.Id), zap.Error(err))
					drifted++
					continue
				}
				status := "ok"
				if mirrored != u.Coins {
					status = "DRIFT"
					drifted++
				}
				fmt.Printf("%s %-40s wallet %12s  mirror %12s  %s\n",
					common.BoxPrefix(i == len(users)-1),
					u.Id,
					common.FormatCoins(u.Coins),
					common.FormatCoins(mirrored),
					status)
			}
			common.PrintFooter(fmt.Sprintf("SUMMARY: %d of %d wallets drifted", drifted, len(users)), common.DefaultWidth)
			if drifted > 0 {
				return fmt.Errorf("%d wallets out of sync with the mirror", drifted)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&userId, "user", "", "Filter by user id (optional)")
	return cmd
}
