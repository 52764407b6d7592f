// Package cache decorates repositories with a Redis read-through layer.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/VSydorenko/simplyCMS-core-sub001/internal/domain"
	"github.com/VSydorenko/simplyCMS-core-sub001/internal/repositories"
)

const (
	defaultPrefix = "pricing:discounts:"
	defaultTTL    = time.Minute
	schemaVersion = 1
)

// DiscountRepositoryDeps wires the cached discount repository.
type DiscountRepositoryDeps struct {
	Next   repositories.DiscountRepository
	Client redis.Cmdable
	TTL    time.Duration
	Prefix string
	Logger func(ctx context.Context, event string, fields map[string]any)
}

// DiscountRepository serves discount snapshots from Redis, loading misses from Next. Redis
// failures never fail the read; they are logged and the snapshot comes from Next.
type DiscountRepository struct {
	next   repositories.DiscountRepository
	client redis.Cmdable
	ttl    time.Duration
	prefix string
	logger func(context.Context, string, map[string]any)
}

var _ repositories.DiscountRepository = (*DiscountRepository)(nil)

type envelope struct {
	Version int                 `json:"v"`
	Rows    domain.DiscountRows `json:"rows"`
}

// NewDiscountRepository constructs the decorator.
func NewDiscountRepository(deps DiscountRepositoryDeps) (*DiscountRepository, error) {
	if deps.Next == nil {
		return nil, errors.New("discount cache: next repository is required")
	}
	if deps.Client == nil {
		return nil, errors.New("discount cache: redis client is required")
	}
	ttl := deps.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	prefix := strings.TrimSpace(deps.Prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &DiscountRepository{next: deps.Next, client: deps.Client, ttl: ttl, prefix: prefix, logger: logger}, nil
}

// ListRowsByPriceTier implements repositories.DiscountRepository.
func (r *DiscountRepository) ListRowsByPriceTier(ctx context.Context, priceTierID string) (domain.DiscountRows, error) {
	key := r.key(priceTierID)

	raw, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var env envelope
		if decodeErr := json.Unmarshal(raw, &env); decodeErr == nil && env.Version == schemaVersion {
			return env.Rows, nil
		}
		r.logger(ctx, "discount_cache_warning", map[string]any{"price_tier_id": priceTierID, "reason": "undecodable entry"})
	case errors.Is(err, redis.Nil):
	default:
		r.logger(ctx, "discount_cache_warning", map[string]any{"price_tier_id": priceTierID, "reason": "read failed", "error": err.Error()})
	}

	rows, err := r.next.ListRowsByPriceTier(ctx, priceTierID)
	if err != nil {
		return domain.DiscountRows{}, err
	}

	payload, err := json.Marshal(envelope{Version: schemaVersion, Rows: rows})
	if err != nil {
		r.logger(ctx, "discount_cache_warning", map[string]any{"price_tier_id": priceTierID, "reason": "encode failed", "error": err.Error()})
		return rows, nil
	}
	if err := r.client.Set(ctx, key, payload, r.ttl).Err(); err != nil {
		r.logger(ctx, "discount_cache_warning", map[string]any{"price_tier_id": priceTierID, "reason": "write failed", "error": err.Error()})
	}
	return rows, nil
}

// Invalidate drops the cached snapshot of the supplied tiers.
func (r *DiscountRepository) Invalidate(ctx context.Context, priceTierIDs ...string) error {
	if len(priceTierIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(priceTierIDs))
	for _, id := range priceTierIDs {
		keys = append(keys, r.key(id))
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("discount cache: invalidate: %w", err)
	}
	return nil
}

func (r *DiscountRepository) key(priceTierID string) string {
	return r.prefix + strings.TrimSpace(priceTierID)
}
