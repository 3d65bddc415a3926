package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "agentx:ratelimit:"
	defaultRedisTTL    = time.Hour
	maxTxAttempts      = 16
)

// RedisOptions tunes a RedisStore.
type RedisOptions struct {
	Prefix string        // key prefix (default "agentx:ratelimit:")
	TTL    time.Duration // idle bucket expiry (default 1h)
}

// RedisStore shares buckets between processes. Updates use an optimistic
// WATCH/MULTI transaction retried on conflict.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client redis.UniversalClient, opts RedisOptions) *RedisStore {
	if opts.Prefix == "" {
		opts.Prefix = defaultRedisPrefix
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultRedisTTL
	}
	return &RedisStore{client: client, prefix: opts.Prefix, ttl: opts.TTL}
}

// OpenRedis connects to url (redis://...) and verifies the connection.
func OpenRedis(ctx context.Context, url string, opts RedisOptions) (*RedisStore, error) {
	o, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(o)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisStore(client, opts), nil
}

func (s *RedisStore) Update(ctx context.Context, key string, fn UpdateFunc) (Bucket, error) {
	rkey := s.prefix + key
	var next Bucket
	txf := func(tx *redis.Tx) error {
		cur, found, err := s.load(ctx, tx, rkey)
		if err != nil {
			return err
		}
		next = fn(cur, found)
		data, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rkey, data, s.ttl)
			return nil
		})
		return err
	}
	for i := 0; i < maxTxAttempts; i++ {
		err := s.client.Watch(ctx, txf, rkey)
		if err == nil {
			return next, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return Bucket{}, fmt.Errorf("update bucket %s: %w", key, err)
	}
	return Bucket{}, fmt.Errorf("update bucket %s: too much contention", key)
}

func (s *RedisStore) load(ctx context.Context, tx *redis.Tx, rkey string) (Bucket, bool, error) {
	raw, err := tx.Get(ctx, rkey).Bytes()
	if errors.Is(err, redis.Nil) {
		return Bucket{}, false, nil
	}
	if err != nil {
		return Bucket{}, false, err
	}
	var b Bucket
	if err := json.Unmarshal(raw, &b); err != nil {
		// corrupt state is replaced by a fresh bucket
		return Bucket{}, false, nil
	}
	return b, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

// Clear removes every key under the store prefix.
func (s *RedisStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (s *RedisStore) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *RedisStore) Close() error { return s.client.Close() }
