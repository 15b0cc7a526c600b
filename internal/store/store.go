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

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dart-ledger-go/internal/apperr"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
)

// DefaultMaxAttempts bounds the retry loop of ConditionalUpdate.
const DefaultMaxAttempts = 25

// Sentinel errors shared across all backend implementations.
var (
	ErrTooManyRetries = apperr.New(codes.Internal, "too many concurrent writers")
	ErrMalformed      = apperr.New(codes.Internal, "malformed record")

	// ErrConcurrentModification is reported by a backend commit that lost
	// against another writer. The retry loop consumes it.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// Decision is what an UpdateFunc returns: either a proposed value or an abort.
type Decision struct {
	value  []byte
	cancel bool
}

// Set proposes value as the new content of the path. A nil value deletes it.
func Set(value []byte) Decision { return Decision{value: value} }

// Cancel aborts the update without writing.
func Cancel() Decision { return Decision{cancel: true} }

func (d Decision) Cancelled() bool { return d.cancel }

func (d Decision) Value() []byte { return d.value }

// UpdateFunc computes the next value from the current one (nil when absent).
// It may be invoked several times for one ConditionalUpdate call and must
// not keep state between invocations.
type UpdateFunc func(current []byte) Decision

// UpdateResult reports whether a write happened. Value is the committed
// value, or on abort the last value the UpdateFunc observed.
type UpdateResult struct {
	Committed bool
	Value     []byte
}

// Entry is one child returned by List
type Entry struct {
	Key   string
	Path  string
	Value []byte
}

// AtomicStore is the contract every backend (memory, SQL, Redis) satisfies.
// ConditionalUpdate is the only primitive used for state changes that
// require consistency.
type AtomicStore interface {
	ConditionalUpdate(ctx context.Context, path string, fn UpdateFunc) (UpdateResult, error)
	Get(ctx context.Context, path string) ([]byte, error)
	// Push appends value under parent with a time-ordered key.
	Push(ctx context.Context, parent string, value []byte) (string, error)
	// List returns every descendant of prefix, ordered by path.
	List(ctx context.Context, prefix string) ([]Entry, error)
	Close() error
}

// LoadFunc reads the current value and an opaque version token.
type LoadFunc[V any] func(ctx context.Context) ([]byte, V, error)

// CommitFunc writes next if the version is still current. It returns
// false when another writer got there first.
type CommitFunc[V any] func(ctx context.Context, version V, next []byte) (bool, error)

// Retry is the optimistic loop shared by backends with a compare-and-swap
// primitive: load, decide, commit, start over on conflict.
func Retry[V any](ctx context.Context, path string, maxAttempts int, load LoadFunc[V], commit CommitFunc[V], fn UpdateFunc) (UpdateResult, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return UpdateResult{}, err
		}

		current, version, err := load(ctx)
		if err != nil {
			return UpdateResult{}, fmt.Errorf("failed to load %s: %w", path, err)
		}

		d := fn(current)
		if d.Cancelled() {
			return UpdateResult{Committed: false, Value: current}, nil
		}

		ok, err := commit(ctx, version, d.Value())
		if err != nil && !errors.Is(err, ErrConcurrentModification) {
			return UpdateResult{}, fmt.Errorf("failed to commit %s: %w", path, err)
		}
		if ok {
			return UpdateResult{Committed: true, Value: d.Value()}, nil
		}
	}
	return UpdateResult{}, fmt.Errorf("%w: %s after %d attempts", ErrTooManyRetries, path, maxAttempts)
}

// NewKey returns a time-ordered child key for Push.
func NewKey() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return id.String(), nil
}

// ChildPrefix normalises a List prefix to end with a single slash.
func ChildPrefix(prefix string) string {
	return strings.TrimSuffix(prefix, "/") + "/"
}
