// Package redisstore implements the durable store on a Redis server.
package redisstore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/legendaryobs/crystal/internal/store"
)

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// ErrConflict is returned when an optimistic update keeps losing to
// concurrent writers.
var ErrConflict = errors.New("redisstore: too many concurrent updates")

const (
	defaultTimeout     = 5 * time.Second
	defaultMaxAttempts = 8
	scanBatch          = 100
)

// Options configures the Redis connection.
type Options struct {
	// Addr is the host:port of the server. Default is "redis:6379".
	Addr string

	// Password is optional.
	Password string

	// DB selects the logical database.
	DB int

	// Timeout bounds dialing, reads and writes. Default is 5s.
	Timeout time.Duration

	// MaxAttempts bounds optimistic transaction retries. Default is 8.
	MaxAttempts int
}

// Store is a Redis-backed store.
type Store struct {
	client      *redis.Client
	maxAttempts int
}

// New creates a store for the given options. It does not contact the server;
// call Ping to check connectivity.
func New(opts Options) *Store {
	if opts.Addr == "" {
		opts.Addr = "redis:6379"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.Timeout,
		ReadTimeout:  opts.Timeout,
		WriteTimeout: opts.Timeout,
	})

	return NewFromClient(client, opts.MaxAttempts)
}

// NewFromClient wraps an existing client.
func NewFromClient(client *redis.Client, maxAttempts int) *Store {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Store{
		client:      client,
		maxAttempts: maxAttempts,
	}
}

// Get reads a key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

// Put writes a key with the given expiration.
func (s *Store) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Update runs fn inside a WATCH/MULTI transaction and retries when another
// client modified the key in between.
func (s *Store) Update(ctx context.Context, key string, ttl time.Duration, fn store.UpdateFunc) error {
	if ttl == store.KeepTTL {
		ttl = redis.KeepTTL
	}

	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			current = nil
		} else if err != nil {
			return fmt.Errorf("redis get: %w", err)
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrConflict
}

// ScanKeys iterates with SCAN so large keyspaces never block the server.
func (s *Store) ScanKeys(ctx context.Context, prefix string, max int) ([]string, error) {
	match := escapeGlob(prefix) + "*"

	var (
		keys   []string
		cursor uint64
	)
	seen := make(map[string]struct{})
	for {
		batch, next, err := s.client.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan: %w", err)
		}
		for _, k := range batch {
			// SCAN may return a key more than once.
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
			if max > 0 && len(keys) >= max {
				return keys, nil
			}
		}
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// Delete removes a key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Size returns used_memory as reported by INFO memory.
func (s *Store) Size(ctx context.Context) (int64, error) {
	info, err := s.client.Info(ctx, "memory").Result()
	if err != nil {
		return 0, fmt.Errorf("redis info: %w", err)
	}
	return parseUsedMemory(info), nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Kind returns store.KindDurable.
func (s *Store) Kind() store.Kind {
	return store.KindDurable
}

// Name returns "redis".
func (s *Store) Name() string {
	return "redis"
}

// Close closes the client connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

func parseUsedMemory(info string) int64 {
	sc := bufio.NewScanner(strings.NewReader(info))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		v, ok := strings.CutPrefix(line, "used_memory:")
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

// escapeGlob escapes the characters SCAN MATCH treats as patterns.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
