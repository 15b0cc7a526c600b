package memory

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"

	"dart-ledger-go/internal/store"
)

// Store is an in-process AtomicStore. Update callbacks run outside the
// mutex, so concurrent callers interleave and conflicts are real.
type Store struct {
	mu          sync.Mutex
	nodes       map[string][]byte
	versions    map[string]int64
	maxAttempts int
	forced      int
	commits     int
}

type Option func(*Store)

func WithMaxAttempts(n int) Option {
	return func(s *Store) { s.maxAttempts = n }
}

// WithForcedConflicts makes the first n commits fail as if another writer
// had won the race.
func WithForcedConflicts(n int) Option {
	return func(s *Store) { s.forced = n }
}

func New(opts ...Option) *Store {
	s := &Store{
		nodes:       make(map[string][]byte),
		versions:    make(map[string]int64),
		maxAttempts: store.DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ store.AtomicStore = (*Store)(nil)

func (s *Store) ConditionalUpdate(ctx context.Context, path string, fn store.UpdateFunc) (store.UpdateResult, error) {
	return store.Retry(ctx, path, s.maxAttempts, s.loader(path), s.committer(path), fn)
}

func (s *Store) loader(path string) store.LoadFunc[int64] {
	return func(ctx context.Context) ([]byte, int64, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		return clone(s.nodes[path]), s.versions[path], nil
	}
}

func (s *Store) committer(path string) store.CommitFunc[int64] {
	return func(ctx context.Context, version int64, next []byte) (bool, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.forced > 0 {
			s.forced--
			return false, store.ErrConcurrentModification
		}
		if s.versions[path] != version {
			return false, store.ErrConcurrentModification
		}

		// versions survive deletes so a recreated path never reuses a token
		s.versions[path] = version + 1
		s.commits++
		if next == nil {
			delete(s.nodes, path)
			return true, nil
		}
		s.nodes[path] = clone(next)
		return true, nil
	}
}

func (s *Store) Get(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.nodes[path]), nil
}

func (s *Store) Push(ctx context.Context, parent string, value []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key, err := store.NewKey()
	if err != nil {
		return "", err
	}
	path := store.ChildPrefix(parent) + key

	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[path]++
	s.nodes[path] = clone(value)
	return key, nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]store.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := store.ChildPrefix(prefix)

	s.mu.Lock()
	entries := make([]store.Entry, 0)
	for path, n := range s.nodes {
		if strings.HasPrefix(path, p) {
			entries = append(entries, store.Entry{
				Key:   strings.TrimPrefix(path, p),
				Path:  path,
				Value: clone(n),
			})
		}
	}
	s.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// Put overwrites a path unconditionally. Test fixtures only.
func (s *Store) Put(path string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[path]++
	if value == nil {
		delete(s.nodes, path)
		return
	}
	s.nodes[path] = clone(value)
}

// Commits returns how many conditional updates have been written.
func (s *Store) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

func (s *Store) Close() error { return nil }

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return bytes.Clone(b)
}
