// Package store - Persists serialized Result Items.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/nvr-ai/go-anomaly/results"
)

// ErrNotFound is returned by Get for a missing or expired key.
var ErrNotFound = errors.New("results not found")

// DefaultKeyPrefix namespaces keys written by RedisStore.
const DefaultKeyPrefix = "anomaly:"

// Store persists the serialized form of forward results. Heatmaps, masks and images are not
// part of the serialized form and are not stored.
type Store interface {
	Put(ctx context.Context, key string, res []results.Result) error
	Get(ctx context.Context, key string) ([]results.Result, error)
}

// Config holds the Redis connection settings.
type Config struct {
	Addr      string        `koanf:"addr"      yaml:"addr"`
	Password  string        `koanf:"password"  yaml:"password"`
	DB        int           `koanf:"db"        yaml:"db"`
	TTL       time.Duration `koanf:"ttl"       yaml:"ttl"`
	KeyPrefix string        `koanf:"keyprefix" yaml:"keyprefix"`
}

// RedisStore stores results as JSON under prefix+key.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisStore connects a store to the configured Redis server.
func NewRedisStore(cfg Config) *RedisStore {
	return NewRedisStoreWithClient(redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), cfg.TTL, cfg.KeyPrefix)
}

// NewRedisStoreWithClient wraps an existing client. A ttl of 0 stores without expiry and an
// empty prefix uses DefaultKeyPrefix.
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, ttl: ttl, prefix: prefix}
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Put stores res under key, replacing any previous value.
func (s *RedisStore) Put(ctx context.Context, key string, res []results.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	if err := s.client.Set(ctx, s.prefix+key, data, s.ttl).Err(); err != nil {
		return errors.Wrapf(err, "put %s", key)
	}
	return nil
}

// Get loads the results stored under key.
func (s *RedisStore) Get(ctx context.Context, key string) ([]results.Result, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errors.Wrapf(ErrNotFound, "%s", key)
		}
		return nil, errors.Wrapf(err, "get %s", key)
	}

	var res []results.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, errors.Wrapf(err, "decode %s", key)
	}
	return res, nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
