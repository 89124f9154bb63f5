// Package store is the key/value state layer. All mutable state (throttle
// windows, monitoring subscriptions, last-seen markers) lives here as
// JSON-serialized records addressed per (user, logical key).
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"relaybot/pkg/logx"
)

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// ErrEmptyAddr is returned when the Redis address is not configured.
var ErrEmptyAddr = errors.New("redis address is required")

const pingTimeout = 5 * time.Second

// Store is a thin JSON codec over a Redis client.
//
// Single-key read-modify-write only; there are no transactions. Races are
// same-user and low-frequency, so a stale read is corrected on the next cycle.
type Store struct {
	rdb *redis.Client
	log logx.Logger
}

// Open connects and verifies the connection.
func Open(cfg Config, log logx.Logger) (*Store, error) {
	if cfg.Addr == "" {
		return nil, ErrEmptyAddr
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	if log.IsZero() {
		log = logx.Nop()
	}
	log.Debug("store connected", logx.String("addr", cfg.Addr), logx.Int("db", cfg.DB))
	return &Store{rdb: rdb, log: log}, nil
}

// Wrap builds a Store around an existing client. Used by tests (miniredis).
func Wrap(rdb *redis.Client, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{rdb: rdb, log: log}
}

func (s *Store) Close() error { return s.rdb.Close() }

// Get decodes the value at key into out. Returns false when the key is absent.
func (s *Store) Get(ctx context.Context, key string, out any) (bool, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store get %q: %w", key, err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return false, fmt.Errorf("store decode %q: %w", key, err)
	}
	return true, nil
}

// Set JSON-encodes v and stores it at key. No TTL: records are overwritten,
// never expired out from under their owners.
func (s *Store) Set(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store encode %q: %w", key, err)
	}
	if err := s.rdb.Set(ctx, key, b, 0).Err(); err != nil {
		return fmt.Errorf("store set %q: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("store delete %q: %w", key, err)
	}
	return nil
}

// Keys returns all keys matching pattern via incremental SCAN. Used only at
// startup to rebuild monitoring jobs; never on a request path.
func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	var out []string
	iter := s.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("store scan %q: %w", pattern, err)
	}
	return out, nil
}

// UserKey namespaces a logical key per user: "{userID}_{key}".
func UserKey(userID int64, key string) string {
	return strconv.FormatInt(userID, 10) + "_" + key
}

// Per-user convenience wrappers.

func (s *Store) GetUser(ctx context.Context, userID int64, key string, out any) (bool, error) {
	return s.Get(ctx, UserKey(userID, key), out)
}

func (s *Store) SetUser(ctx context.Context, userID int64, key string, v any) error {
	return s.Set(ctx, UserKey(userID, key), v)
}

func (s *Store) DeleteUser(ctx context.Context, userID int64, key string) error {
	return s.Delete(ctx, UserKey(userID, key))
}
