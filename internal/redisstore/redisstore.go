package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"dart-ledger-go/internal/models"
	"dart-ledger-go/internal/store"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const scanBatch = 256

// Store is an AtomicStore on Redis. Conditional updates use optimistic
// WATCH/MULTI/EXEC transactions: EXEC fails if the key changed after WATCH.
type Store struct {
	rdb         *redis.Client
	prefix      string
	maxAttempts int
}

var _ store.AtomicStore = (*Store)(nil)

func New(ctx context.Context, cfg models.RedisConfig, maxAttempts int) (*Store, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("unable to ping redis at %s: %w", cfg.Addr, err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return NewWithClient(rdb, cfg.KeyPrefix, maxAttempts), nil
}

func NewWithClient(rdb *redis.Client, prefix string, maxAttempts int) *Store {
	if maxAttempts <= 0 {
		maxAttempts = store.DefaultMaxAttempts
	}
	return &Store{rdb: rdb, prefix: prefix, maxAttempts: maxAttempts}
}

func (s *Store) key(path string) string { return s.prefix + path }

func (s *Store) ConditionalUpdate(ctx context.Context, path string, fn store.UpdateFunc) (store.UpdateResult, error) {
	key := s.key(path)
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		var result store.UpdateResult
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			current, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				current = nil
			} else if err != nil {
				return err
			}

			d := fn(current)
			if d.Cancelled() {
				result = store.UpdateResult{Committed: false, Value: current}
				return nil
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if d.Value() == nil {
					pipe.Del(ctx, key)
				} else {
					pipe.Set(ctx, key, d.Value(), 0)
				}
				return nil
			})
			if err != nil {
				return err
			}
			result = store.UpdateResult{Committed: true, Value: d.Value()}
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			zap.L().Debug("Redis transaction lost race, retrying", zap.String("path", path), zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return store.UpdateResult{}, fmt.Errorf("failed to update %s: %w", path, err)
		}
		return result, nil
	}
	return store.UpdateResult{}, fmt.Errorf("%w: %s after %d attempts", store.ErrTooManyRetries, path, s.maxAttempts)
}

func (s *Store) Get(ctx context.Context, path string) ([]byte, error) {
	value, err := s.rdb.Get(ctx, s.key(path)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", path, err)
	}
	return value, nil
}

func (s *Store) Push(ctx context.Context, parent string, value []byte) (string, error) {
	key, err := store.NewKey()
	if err != nil {
		return "", err
	}
	path := store.ChildPrefix(parent) + key
	if err := s.rdb.Set(ctx, s.key(path), value, 0).Err(); err != nil {
		return "", fmt.Errorf("failed to push under %s: %w", parent, err)
	}
	return key, nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]store.Entry, error) {
	p := store.ChildPrefix(prefix)
	match := escapeGlob(s.key(p)) + "*"

	var keys []string
	iter := s.rdb.Scan(ctx, 0, match, scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", prefix, err)
	}
	sort.Strings(keys)

	entries := make([]store.Entry, 0, len(keys))
	for start := 0; start < len(keys); start += scanBatch {
		end := min(start+scanBatch, len(keys))
		values, err := s.rdb.MGet(ctx, keys[start:end]...).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", prefix, err)
		}
		for i, v := range values {
			str, ok := v.(string)
			if !ok {
				// deleted between SCAN and MGET
				continue
			}
			path := strings.TrimPrefix(keys[start+i], s.prefix)
			entries = append(entries, store.Entry{
				Key:   strings.TrimPrefix(path, p),
				Path:  path,
				Value: []byte(str),
			})
		}
	}
	return entries, nil
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
