package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the key is absent.
var ErrMiss = errors.New("redis: key not found")

// Open parses a redis:// URL, creates a client and pings it.
func Open(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// JSONStore keeps JSON-encoded values under a key prefix with a fixed TTL.
type JSONStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

type Option func(*JSONStore)

func WithPrefix(prefix string) Option {
	return func(s *JSONStore) { s.prefix = prefix }
}

// WithTTL sets the expiry of written keys. Zero means no expiry.
func WithTTL(ttl time.Duration) Option {
	return func(s *JSONStore) { s.ttl = ttl }
}

func NewJSONStore(client redis.Cmdable, opts ...Option) *JSONStore {
	s := &JSONStore{
		client: client,
		prefix: "loinc:",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *JSONStore) fullKey(key string) string {
	return s.prefix + key
}

// Get decodes the value stored under key into dest.
func (s *JSONStore) Get(ctx context.Context, key string, dest any) error {
	data, err := s.client.Get(ctx, s.fullKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return fmt.Errorf("redis get: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode cached value: %w", err)
	}
	return nil
}

// Set encodes value as JSON and stores it under key.
func (s *JSONStore) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cached value: %w", err)
	}
	if err := s.client.Set(ctx, s.fullKey(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
