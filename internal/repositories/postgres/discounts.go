package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/VSydorenko/simplyCMS-core-sub001/internal/domain"
	ppostgres "github.com/VSydorenko/simplyCMS-core-sub001/internal/platform/postgres"
	"github.com/VSydorenko/simplyCMS-core-sub001/internal/repositories"
)

// groupTreeCTE selects every group reachable from the root groups of the tier. Root groups
// without a tier apply to every tier. Rows caught in a parent cycle have no root and are never
// reached.
const groupTreeCTE = `WITH RECURSIVE tree AS (
    SELECT id FROM discount_groups
    WHERE parent_group_id IS NULL AND (price_type_id = $1 OR price_type_id IS NULL)
  UNION
    SELECT g.id FROM discount_groups g JOIN tree t ON g.parent_group_id = t.id
)
`

const listGroupsQuery = groupTreeCTE + `SELECT g.id, COALESCE(g.parent_group_id::text, '') AS parent_group_id,
       COALESCE(g.price_type_id::text, '') AS price_type_id, g.name, g.logic_operator,
       g.is_active, g.priority, g.starts_at, g.ends_at
FROM discount_groups g JOIN tree t ON g.id = t.id
ORDER BY g.priority DESC, g.id`

const listDiscountsQuery = groupTreeCTE + `SELECT d.id, d.group_id, d.name, d.discount_type, d.discount_value,
       d.priority, d.is_active, d.starts_at, d.ends_at
FROM discounts d JOIN tree t ON d.group_id = t.id
ORDER BY d.priority DESC, d.id`

const listTargetsQuery = groupTreeCTE + `SELECT dt.id, dt.discount_id, dt.target_type, COALESCE(dt.target_id::text, '') AS target_id
FROM discount_targets dt
JOIN discounts d ON d.id = dt.discount_id
JOIN tree t ON d.group_id = t.id
ORDER BY dt.discount_id, dt.id`

const listConditionsQuery = groupTreeCTE + `SELECT dc.id, dc.discount_id, dc.condition_type, COALESCE(dc.operator, '') AS operator, dc.value
FROM discount_conditions dc
JOIN discounts d ON d.id = dc.discount_id
JOIN tree t ON d.group_id = t.id
ORDER BY dc.discount_id, dc.id`

type groupRow struct {
	ID          string       `db:"id"`
	ParentID    string       `db:"parent_group_id"`
	PriceTypeID string       `db:"price_type_id"`
	Name        string       `db:"name"`
	Operator    string       `db:"logic_operator"`
	IsActive    bool         `db:"is_active"`
	Priority    int          `db:"priority"`
	StartsAt    sql.NullTime `db:"starts_at"`
	EndsAt      sql.NullTime `db:"ends_at"`
}

type discountRow struct {
	ID       string          `db:"id"`
	GroupID  string          `db:"group_id"`
	Name     string          `db:"name"`
	Type     string          `db:"discount_type"`
	Value    decimal.Decimal `db:"discount_value"`
	Priority int             `db:"priority"`
	IsActive bool            `db:"is_active"`
	StartsAt sql.NullTime    `db:"starts_at"`
	EndsAt   sql.NullTime    `db:"ends_at"`
}

type targetRow struct {
	ID         string `db:"id"`
	DiscountID string `db:"discount_id"`
	TargetType string `db:"target_type"`
	TargetID   string `db:"target_id"`
}

type conditionRow struct {
	ID            string `db:"id"`
	DiscountID    string `db:"discount_id"`
	ConditionType string `db:"condition_type"`
	Operator      string `db:"operator"`
	Value         []byte `db:"value"`
}

// DiscountRepository loads discount configuration snapshots.
type DiscountRepository struct {
	provider *ppostgres.Provider
}

var _ repositories.DiscountRepository = (*DiscountRepository)(nil)

// NewDiscountRepository constructs a DiscountRepository.
func NewDiscountRepository(provider *ppostgres.Provider) *DiscountRepository {
	return &DiscountRepository{provider: provider}
}

// ListRowsByPriceTier returns the flat rows of every group tree visible to the tier. The four
// reads share one transaction so the snapshot is consistent.
func (r *DiscountRepository) ListRowsByPriceTier(ctx context.Context, priceTierID string) (domain.DiscountRows, error) {
	var out domain.DiscountRows
	err := r.provider.RunInTx(ctx, func(ctx context.Context) error {
		q, err := r.provider.Executor(ctx)
		if err != nil {
			return err
		}

		var groups []groupRow
		if err := q.SelectContext(ctx, &groups, listGroupsQuery, priceTierID); err != nil {
			return ppostgres.WrapError("discounts.list_groups", err)
		}
		if len(groups) == 0 {
			return nil
		}
		var discounts []discountRow
		if err := q.SelectContext(ctx, &discounts, listDiscountsQuery, priceTierID); err != nil {
			return ppostgres.WrapError("discounts.list_discounts", err)
		}
		var targets []targetRow
		if err := q.SelectContext(ctx, &targets, listTargetsQuery, priceTierID); err != nil {
			return ppostgres.WrapError("discounts.list_targets", err)
		}
		var conditions []conditionRow
		if err := q.SelectContext(ctx, &conditions, listConditionsQuery, priceTierID); err != nil {
			return ppostgres.WrapError("discounts.list_conditions", err)
		}

		out = toDiscountRows(groups, discounts, targets, conditions)
		return nil
	})
	if err != nil {
		return domain.DiscountRows{}, err
	}
	return out, nil
}

func toDiscountRows(groups []groupRow, discounts []discountRow, targets []targetRow, conditions []conditionRow) domain.DiscountRows {
	out := domain.DiscountRows{
		Groups:     make([]domain.DiscountGroupRow, 0, len(groups)),
		Discounts:  make([]domain.DiscountRow, 0, len(discounts)),
		Targets:    make([]domain.DiscountTargetRow, 0, len(targets)),
		Conditions: make([]domain.DiscountConditionRow, 0, len(conditions)),
	}
	for _, g := range groups {
		out.Groups = append(out.Groups, domain.DiscountGroupRow{
			ID:          g.ID,
			ParentID:    g.ParentID,
			PriceTierID: g.PriceTypeID,
			Name:        g.Name,
			Operator:    g.Operator,
			IsActive:    g.IsActive,
			Priority:    g.Priority,
			StartsAt:    nullTime(g.StartsAt),
			EndsAt:      nullTime(g.EndsAt),
		})
	}
	for _, d := range discounts {
		out.Discounts = append(out.Discounts, domain.DiscountRow{
			ID:       d.ID,
			GroupID:  d.GroupID,
			Name:     d.Name,
			Type:     d.Type,
			Value:    d.Value,
			Priority: d.Priority,
			IsActive: d.IsActive,
			StartsAt: nullTime(d.StartsAt),
			EndsAt:   nullTime(d.EndsAt),
		})
	}
	for _, t := range targets {
		out.Targets = append(out.Targets, domain.DiscountTargetRow{
			ID:         t.ID,
			DiscountID: t.DiscountID,
			TargetType: t.TargetType,
			TargetID:   t.TargetID,
		})
	}
	for _, c := range conditions {
		out.Conditions = append(out.Conditions, domain.DiscountConditionRow{
			ID:            c.ID,
			DiscountID:    c.DiscountID,
			ConditionType: c.ConditionType,
			Operator:      c.Operator,
			Value:         json.RawMessage(c.Value),
		})
	}
	return out
}

func nullTime(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}
