package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "dashboard:widget:"

// DefaultRedisTTL is used when NewRedisStore is given a zero TTL.
const DefaultRedisTTL = 2 * time.Hour

// RedisStore keeps widget snapshots in Redis so several dashboard replicas,
// or a separate frontend, can read the same data. Keys expire after the
// TTL unless republished.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
}

// NewRedisStore connects to Redis at addr and verifies the connection with a
// PING. A zero ttl uses DefaultRedisTTL.
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if db < 0 {
		return nil, errors.New("redis database number must be >= 0")
	}
	if ttl == 0 {
		ttl = DefaultRedisTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

func key(widget string) string {
	return keyPrefix + widget
}

// Put stores the snapshot as JSON under "dashboard:widget:{name}".
func (r *RedisStore) Put(ctx context.Context, s Snapshot) error {
	if err := validateName(s.Widget); err != nil {
		return err
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	client, err := r.conn()
	if err != nil {
		return err
	}
	if err := client.Set(ctx, key(s.Widget), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store snapshot in redis: %w", err)
	}
	return nil
}

// GetLatest returns the snapshot for widget; found is false when the key does
// not exist or has expired.
func (r *RedisStore) GetLatest(ctx context.Context, widget string) (Snapshot, bool, error) {
	if err := validateName(widget); err != nil {
		return Snapshot{}, false, err
	}
	client, err := r.conn()
	if err != nil {
		return Snapshot{}, false, err
	}

	data, err := client.Get(ctx, key(widget)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("failed to get snapshot from redis: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return snap, true, nil
}

// List scans all widget keys and returns their snapshots ordered by name.
// Keys that expire between the scan and the read are skipped.
func (r *RedisStore) List(ctx context.Context) ([]Snapshot, error) {
	client, err := r.conn()
	if err != nil {
		return nil, err
	}

	var keys []string
	iter := client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan snapshots: %w", err)
	}
	if len(keys) == 0 {
		return []Snapshot{}, nil
	}

	values, err := client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshots: %w", err)
	}

	out := make([]Snapshot, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var snap Snapshot
		if err := json.Unmarshal([]byte(raw), &snap); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot %s: %w", keys[i], err)
		}
		out = append(out, snap)
	}

	slices.SortFunc(out, func(a, b Snapshot) int { return strings.Compare(a.Widget, b.Widget) })
	return out, nil
}

func (r *RedisStore) conn() (*redis.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.client == nil {
		return nil, redis.ErrClosed
	}
	return r.client, nil
}

// Close closes the Redis client. It is idempotent.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}

// Ping checks the Redis connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	client, err := r.conn()
	if err != nil {
		return err
	}
	return client.Ping(ctx).Err()
}
