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

package api

import (
	"regexp"
	"unicode"
	"unicode/utf8"

	"dart-ledger-go/internal/apperr"
	"dart-ledger-go/internal/escrow"
	"dart-ledger-go/internal/models"
	"dart-ledger-go/internal/rewards"
)

const (
	maxNameLength = 32
	maxHistory    = 100
	defaultLimit  = 20
)

var (
	idPattern   = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)
	flagPattern = regexp.MustCompile(`^[A-Za-z]{2}$`)
)

func validateId(field, id string) error {
	if !idPattern.MatchString(id) {
		return apperr.InvalidArgument("invalid %s", field)
	}
	return nil
}

func validateStake(level int64) error {
	if !escrow.ValidStake(level) {
		return apperr.InvalidArgument("stake level must be one of %v", escrow.StakeLevels)
	}
	return nil
}

func validateMode(mode models.GameMode, stakeLevel int64) error {
	switch mode {
	case models.ModeCasual:
		return nil
	case models.ModeWagered:
		return validateStake(stakeLevel)
	}
	return apperr.InvalidArgument("game mode must be casual or wagered")
}

// validateProfile bounds the display name and flag copied into queue and
// game records.
func validateProfile(name, flag string) error {
	if utf8.RuneCountInString(name) > maxNameLength || !utf8.ValidString(name) {
		return apperr.InvalidArgument("display name too long")
	}
	for _, r := range name {
		if !unicode.IsPrint(r) {
			return apperr.InvalidArgument("display name contains invalid characters")
		}
	}
	if flag != "" && !flagPattern.MatchString(flag) {
		return apperr.InvalidArgument("flag must be a two letter country code")
	}
	return nil
}

func validateTimezone(tz string) error {
	if tz == "" {
		return nil
	}
	if _, ok := rewards.ResolveLocation(tz); !ok {
		return apperr.InvalidArgument("invalid timezone")
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxHistory {
		return defaultLimit
	}
	return limit
}
