package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// DiscountGroupRow is a stored group. ParentID is empty for roots.
type DiscountGroupRow struct {
	ID          string
	ParentID    string
	PriceTierID string
	Name        string
	Operator    string
	IsActive    bool
	Priority    int
	StartsAt    time.Time
	EndsAt      time.Time
}

// DiscountRow is a stored leaf discount.
type DiscountRow struct {
	ID       string
	GroupID  string
	Name     string
	Type     string
	Value    decimal.Decimal
	Priority int
	IsActive bool
	StartsAt time.Time
	EndsAt   time.Time
}

// DiscountTargetRow is a stored discount target.
type DiscountTargetRow struct {
	ID         string
	DiscountID string
	TargetType string
	TargetID   string
}

// DiscountConditionRow is a stored discount condition. Value keeps the raw JSON
// column so it can be decoded into the matching Condition variant.
type DiscountConditionRow struct {
	ID            string
	DiscountID    string
	ConditionType string
	Operator      string
	Value         json.RawMessage
}

// DiscountRows is the flat snapshot of a discount configuration scoped to one price tier.
type DiscountRows struct {
	Groups     []DiscountGroupRow
	Discounts  []DiscountRow
	Targets    []DiscountTargetRow
	Conditions []DiscountConditionRow
}

// Empty reports whether the snapshot carries no groups.
func (r DiscountRows) Empty() bool {
	return len(r.Groups) == 0
}
