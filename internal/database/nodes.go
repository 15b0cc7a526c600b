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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"dart-ledger-go/internal/store"

	"go.uber.org/zap"
)

// nodeVersion is the optimistic concurrency token of one row. Exists is
// false when the path has never been written.
type nodeVersion struct {
	Exists  bool
	Version int64
}

func (s *Service) ConditionalUpdate(ctx context.Context, path string, fn store.UpdateFunc) (store.UpdateResult, error) {
	return store.Retry(ctx, path, s.maxAttempts,
		func(ctx context.Context) ([]byte, nodeVersion, error) {
			return s.load(ctx, path)
		},
		func(ctx context.Context, v nodeVersion, next []byte) (bool, error) {
			return s.commit(ctx, path, v, next)
		},
		fn)
}

func (s *Service) load(ctx context.Context, path string) ([]byte, nodeVersion, error) {
	var value sql.NullString
	var version int64
	err := s.db.QueryRowContext(ctx, s.rebind(queryGetNode), path).Scan(&value, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nodeVersion{}, nil
	}
	if err != nil {
		return nil, nodeVersion{}, err
	}
	if !value.Valid {
		return nil, nodeVersion{Exists: true, Version: version}, nil
	}
	return []byte(value.String), nodeVersion{Exists: true, Version: version}, nil
}

func (s *Service) commit(ctx context.Context, path string, v nodeVersion, next []byte) (bool, error) {
	now := s.now().UTC()

	var result sql.Result
	var err error
	if !v.Exists {
		result, err = s.db.ExecContext(ctx, s.rebind(queryInsertNode), path, nullable(next), now)
	} else {
		result, err = s.db.ExecContext(ctx, s.rebind(queryUpdateNode), nullable(next), now, path, v.Version)
	}
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		zap.L().Debug("Conditional update lost race, retrying",
			zap.String("path", path),
			zap.Int64("version", v.Version))
		return false, store.ErrConcurrentModification
	}
	return true, nil
}

func (s *Service) Get(ctx context.Context, path string) ([]byte, error) {
	value, _, err := s.load(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", path, err)
	}
	return value, nil
}

func (s *Service) Push(ctx context.Context, parent string, value []byte) (string, error) {
	key, err := store.NewKey()
	if err != nil {
		return "", err
	}
	path := store.ChildPrefix(parent) + key

	if _, err := s.db.ExecContext(ctx, s.rebind(queryInsertNode), path, nullable(value), s.now().UTC()); err != nil {
		return "", fmt.Errorf("failed to push under %s: %w", parent, err)
	}
	return key, nil
}

func (s *Service) List(ctx context.Context, prefix string) ([]store.Entry, error) {
	p := store.ChildPrefix(prefix)

	rows, err := s.db.QueryContext(ctx, s.rebind(queryListNodes), len(p), p)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}()

	entries := make([]store.Entry, 0)
	for rows.Next() {
		var path string
		var value sql.NullString
		if err := rows.Scan(&path, &value); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		entries = append(entries, store.Entry{
			Key:   strings.TrimPrefix(path, p),
			Path:  path,
			Value: []byte(value.String),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate nodes: %w", err)
	}
	return entries, nil
}

func nullable(value []byte) any {
	if value == nil {
		return nil
	}
	return string(value)
}
