package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "pricing:idempotency:"

// RedisStore persists idempotency records as JSON values whose Redis TTL mirrors ExpiresAt.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

var _ Store = (*RedisStore)(nil)

// RedisOption customises the Redis store.
type RedisOption func(*RedisStore)

// WithKeyPrefix overrides the namespace used for record keys.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if p := strings.TrimSpace(prefix); p != "" {
			s.prefix = p
		}
	}
}

// NewRedisStore wraps client.
func NewRedisStore(client redis.Cmdable, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

type redisRecord struct {
	Key             string              `json:"key"`
	Fingerprint     string              `json:"fingerprint"`
	Status          Status              `json:"status"`
	ResponseStatus  int                 `json:"response_status,omitempty"`
	ResponseHeaders map[string][]string `json:"response_headers,omitempty"`
	ResponseBody    []byte              `json:"response_body,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	ExpiresAt       time.Time           `json:"expires_at"`
}

// Reserve claims key with SETNX; an existing record decides between replay, pending and conflict.
func (s *RedisStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	id := s.redisKey(key)

	fresh, _, err := reserve(Record{}, false, key, fingerprint, now, ttl)
	if err != nil {
		return Reservation{}, err
	}
	payload, err := encodeRecord(fresh.Record)
	if err != nil {
		return Reservation{}, err
	}
	created, err := s.client.SetNX(ctx, id, payload, fresh.Record.ExpiresAt.Sub(now)).Result()
	if err != nil {
		return Reservation{}, fmt.Errorf("idempotency: reserve: %w", err)
	}
	if created {
		return fresh, nil
	}

	existing, found, err := s.load(ctx, id)
	if err != nil {
		return Reservation{}, err
	}
	reservation, write, err := reserve(existing, found, key, fingerprint, now, ttl)
	if err != nil {
		return Reservation{}, err
	}
	if write {
		if err := s.store(ctx, id, reservation.Record, now); err != nil {
			return Reservation{}, err
		}
	}
	return reservation, nil
}

// SaveResponse implements the Store interface.
func (s *RedisStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	id := s.redisKey(key)
	existing, found, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	record, err := complete(existing, found, key, fingerprint, resp, now, ttl)
	if err != nil {
		return err
	}
	return s.store(ctx, id, record, now)
}

// Release implements the Store interface.
func (s *RedisStore) Release(ctx context.Context, key, _ string) error {
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("idempotency: release: %w", err)
	}
	return nil
}

// CleanupExpired is a no-op; Redis evicts records when their TTL elapses.
func (s *RedisStore) CleanupExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + recordID(key)
}

func (s *RedisStore) load(ctx context.Context, id string) (Record, bool, error) {
	raw, err := s.client.Get(ctx, id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("idempotency: load: %w", err)
	}
	var rec redisRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, false, fmt.Errorf("idempotency: decode record: %w", err)
	}
	return Record(rec), true, nil
}

func (s *RedisStore) store(ctx context.Context, id string, record Record, now time.Time) error {
	payload, err := encodeRecord(record)
	if err != nil {
		return err
	}
	ttl := record.ExpiresAt.Sub(now)
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := s.client.Set(ctx, id, payload, ttl).Err(); err != nil {
		return fmt.Errorf("idempotency: store: %w", err)
	}
	return nil
}

func encodeRecord(record Record) ([]byte, error) {
	payload, err := json.Marshal(redisRecord(record))
	if err != nil {
		return nil, fmt.Errorf("idempotency: encode record: %w", err)
	}
	return payload, nil
}
