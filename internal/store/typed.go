package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Outcome is the typed counterpart of Decision.
type Outcome[T any] struct {
	value  *T
	abort  bool
	remove bool
}

// Proceed writes v.
func Proceed[T any](v *T) Outcome[T] { return Outcome[T]{value: v} }

// Abort leaves the record untouched.
func Abort[T any]() Outcome[T] { return Outcome[T]{abort: true} }

// Remove deletes the record.
func Remove[T any]() Outcome[T] { return Outcome[T]{remove: true} }

// Result is the typed counterpart of UpdateResult. Value is nil when the
// path is absent after the update.
type Result[T any] struct {
	Committed bool
	Value     *T
}

// Update runs a ConditionalUpdate over JSON records of type T. The callback
// receives a freshly decoded copy on every attempt (nil when absent) and is
// free to mutate it. A record that does not decode aborts the update with
// ErrMalformed rather than being treated as absent.
func Update[T any](ctx context.Context, s AtomicStore, path string, fn func(current *T) Outcome[T]) (Result[T], error) {
	var fnErr error
	res, err := s.ConditionalUpdate(ctx, path, func(raw []byte) Decision {
		fnErr = nil
		current, err := decode[T](raw)
		if err != nil {
			fnErr = fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
			return Cancel()
		}
		out := fn(current)
		switch {
		case out.abort:
			return Cancel()
		case out.remove || out.value == nil:
			return Set(nil)
		}
		next, err := json.Marshal(out.value)
		if err != nil {
			fnErr = fmt.Errorf("failed to encode %s: %w", path, err)
			return Cancel()
		}
		return Set(next)
	})
	if err != nil {
		return Result[T]{}, err
	}
	if fnErr != nil {
		return Result[T]{}, fnErr
	}

	value, err := decode[T](res.Value)
	if err != nil {
		return Result[T]{}, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	return Result[T]{Committed: res.Committed, Value: value}, nil
}

// Read returns the record at path, or nil when absent.
func Read[T any](ctx context.Context, s AtomicStore, path string) (*T, error) {
	raw, err := s.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	v, err := decode[T](raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	return v, nil
}

// Append pushes a JSON record under parent.
func Append[T any](ctx context.Context, s AtomicStore, parent string, v *T) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s entry: %w", parent, err)
	}
	return s.Push(ctx, parent, raw)
}

// Decode is exported for List consumers.
func Decode[T any](raw []byte) (*T, error) {
	v, err := decode[T](raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return v, nil
}

func decode[T any](raw []byte) (*T, error) {
	if raw == nil {
		return nil, nil
	}
	v := new(T)
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, err
	}
	return v, nil
}
