package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/VSydorenko/simplyCMS-core-sub001/internal/domain"
)

type countingRepo struct {
	mu    sync.Mutex
	calls int
	rows  domain.DiscountRows
	err   error
}

func (r *countingRepo) ListRowsByPriceTier(context.Context, string) (domain.DiscountRows, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.rows, r.err
}

type recordedEvent struct {
	event  string
	fields map[string]any
}

func sampleRows() domain.DiscountRows {
	return domain.DiscountRows{
		Groups:     []domain.DiscountGroupRow{{ID: "g1", Name: "Root", Operator: "max", IsActive: true, Priority: 1}},
		Discounts:  []domain.DiscountRow{{ID: "d1", GroupID: "g1", Name: "Ten", Type: "percent", Value: decimal.NewFromInt(10), IsActive: true, StartsAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}},
		Targets:    []domain.DiscountTargetRow{{ID: "t1", DiscountID: "d1", TargetType: "all"}},
		Conditions: []domain.DiscountConditionRow{{ID: "c1", DiscountID: "d1", ConditionType: "min_quantity", Operator: ">=", Value: json.RawMessage(`2`)}},
	}
}

func newTestRepo(t *testing.T, next *countingRepo) (*DiscountRepository, *miniredis.Miniredis, *[]recordedEvent) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	var events []recordedEvent
	repo, err := NewDiscountRepository(DiscountRepositoryDeps{
		Next:   next,
		Client: client,
		TTL:    30 * time.Second,
		Prefix: "test:discounts:",
		Logger: func(_ context.Context, event string, fields map[string]any) {
			events = append(events, recordedEvent{event: event, fields: fields})
		},
	})
	require.NoError(t, err)
	return repo, mr, &events
}

func TestNewDiscountRepositoryValidatesDeps(t *testing.T) {
	_, err := NewDiscountRepository(DiscountRepositoryDeps{})
	require.Error(t, err)
	_, err = NewDiscountRepository(DiscountRepositoryDeps{Next: &countingRepo{}})
	require.Error(t, err)
}

func TestReadThroughCachesSnapshot(t *testing.T) {
	next := &countingRepo{rows: sampleRows()}
	repo, mr, _ := newTestRepo(t, next)
	ctx := context.Background()

	first, err := repo.ListRowsByPriceTier(ctx, "retail")
	require.NoError(t, err)
	second, err := repo.ListRowsByPriceTier(ctx, "retail")
	require.NoError(t, err)

	require.Equal(t, 1, next.calls)
	require.True(t, mr.Exists("test:discounts:retail"))
	require.Equal(t, 30*time.Second, mr.TTL("test:discounts:retail"))
	require.Equal(t, first.Groups[0].ID, second.Groups[0].ID)
	require.Equal(t, "max", second.Groups[0].Operator)
	require.True(t, second.Discounts[0].Value.Equal(decimal.NewFromInt(10)))
	require.True(t, second.Discounts[0].StartsAt.Equal(first.Discounts[0].StartsAt))
	require.JSONEq(t, `2`, string(second.Conditions[0].Value))

	mr.FastForward(31 * time.Second)
	_, err = repo.ListRowsByPriceTier(ctx, "retail")
	require.NoError(t, err)
	require.Equal(t, 2, next.calls)
}

func TestCorruptEntryFallsBackToSource(t *testing.T) {
	next := &countingRepo{rows: sampleRows()}
	repo, mr, events := newTestRepo(t, next)
	require.NoError(t, mr.Set("test:discounts:retail", "{not json"))

	rows, err := repo.ListRowsByPriceTier(context.Background(), "retail")
	require.NoError(t, err)
	require.Len(t, rows.Groups, 1)
	require.Equal(t, 1, next.calls)
	require.Len(t, *events, 1)
	require.Equal(t, "discount_cache_warning", (*events)[0].event)
}

func TestRedisOutageFallsBackToSource(t *testing.T) {
	next := &countingRepo{rows: sampleRows()}
	repo, mr, events := newTestRepo(t, next)
	mr.Close()

	rows, err := repo.ListRowsByPriceTier(context.Background(), "retail")
	require.NoError(t, err)
	require.Len(t, rows.Groups, 1)
	require.Len(t, *events, 2, "expected read and write warnings")
}

func TestSourceErrorsPropagate(t *testing.T) {
	boom := errors.New("boom")
	repo, mr, _ := newTestRepo(t, &countingRepo{err: boom})

	_, err := repo.ListRowsByPriceTier(context.Background(), "retail")
	require.ErrorIs(t, err, boom)
	require.False(t, mr.Exists("test:discounts:retail"))
}

func TestInvalidate(t *testing.T) {
	next := &countingRepo{rows: sampleRows()}
	repo, mr, _ := newTestRepo(t, next)
	ctx := context.Background()

	_, err := repo.ListRowsByPriceTier(ctx, "retail")
	require.NoError(t, err)
	require.NoError(t, repo.Invalidate(ctx, "retail", "wholesale"))
	require.False(t, mr.Exists("test:discounts:retail"))
	require.NoError(t, repo.Invalidate(ctx))
}
