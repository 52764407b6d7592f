package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DiscountType enumerates how a leaf discount reduces the base price.
type DiscountType string

const (
	// DiscountTypePercent reduces the base price by a percentage of itself.
	DiscountTypePercent DiscountType = "percent"
	// DiscountTypeFixedAmount subtracts a fixed monetary amount.
	DiscountTypeFixedAmount DiscountType = "fixed_amount"
	// DiscountTypeFixedPrice sets an absolute target price.
	DiscountTypeFixedPrice DiscountType = "fixed_price"
)

// GroupOperator combines the amounts pooled inside a discount group.
type GroupOperator string

const (
	GroupOperatorAnd GroupOperator = "and"
	GroupOperatorOr  GroupOperator = "or"
	GroupOperatorNot GroupOperator = "not"
	GroupOperatorMin GroupOperator = "min"
	GroupOperatorMax GroupOperator = "max"
)

// TargetType identifies what a discount target points at.
type TargetType string

const (
	TargetTypeAll          TargetType = "all"
	TargetTypeProduct      TargetType = "product"
	TargetTypeSection      TargetType = "section"
	TargetTypeModification TargetType = "modification"
)

// PriceEntry is one row of a price list. An empty ModificationID marks the simple product price.
type PriceEntry struct {
	PriceTierID    string
	ProductID      string
	ModificationID string
	Price          decimal.Decimal
	OldPrice       decimal.NullDecimal
}

// PriceResolution is the outcome of resolving a base price for one product or variant.
// Price is invalid when no row could be resolved; callers must treat that as unavailable.
type PriceResolution struct {
	Price           decimal.NullDecimal
	OldPrice        decimal.NullDecimal
	PriceTierID     string
	UsedDefaultTier bool
}

// Available reports whether a price row was found.
func (r PriceResolution) Available() bool {
	return r.Price.Valid
}

// DiscountGroup is a node of the discount forest. Zero StartsAt/EndsAt mean an unbounded window.
type DiscountGroup struct {
	ID          string
	Name        string
	Operator    GroupOperator
	IsActive    bool
	Priority    int
	StartsAt    time.Time
	EndsAt      time.Time
	PriceTierID string
	Discounts   []Discount
	Children    []DiscountGroup
}

// Discount is a leaf rule inside a group.
type Discount struct {
	ID         string
	GroupID    string
	Name       string
	Type       DiscountType
	Value      decimal.Decimal
	Priority   int
	IsActive   bool
	StartsAt   time.Time
	EndsAt     time.Time
	Targets    []DiscountTarget
	Conditions []Condition
}

// DiscountTarget narrows a discount to products, variants or sections. TargetID is empty for TargetTypeAll.
type DiscountTarget struct {
	Type     TargetType
	TargetID string
}

// DiscountContext describes the single price computation being evaluated.
// Empty string identifiers mean "not present".
type DiscountContext struct {
	UserID         string
	UserCategoryID string
	Quantity       int
	CartTotal      decimal.Decimal
	ProductID      string
	ModificationID string
	SectionID      string
	IsLoggedIn     bool
}

// AppliedDiscount records a discount that reduced the price.
type AppliedDiscount struct {
	DiscountID       string
	Name             string
	Type             DiscountType
	Value            decimal.Decimal
	CalculatedAmount decimal.Decimal
	GroupID          string
	GroupName        string
}

// RejectedDiscount records a discount that did not apply, with a machine readable reason.
type RejectedDiscount struct {
	DiscountID string
	Name       string
	GroupID    string
	GroupName  string
	Reason     string
}

// WarningCode classifies configuration anomalies found during evaluation.
type WarningCode string

const (
	WarningUnknownCondition    WarningCode = "unknown_condition"
	WarningInvalidCondition    WarningCode = "invalid_condition"
	WarningUnsupportedOperator WarningCode = "unsupported_operator"
	WarningUnknownTarget       WarningCode = "unknown_target"
	WarningUnknownDiscountType WarningCode = "unknown_discount_type"
	WarningNegativeValue       WarningCode = "negative_value"
	WarningUnknownGroupOp      WarningCode = "unknown_group_operator"
	WarningNotOperator         WarningCode = "not_operator_literal"
	WarningOrphanRow           WarningCode = "orphan_row"
)

// EvaluationWarning surfaces a configuration anomaly so it can be told apart from a legitimate rejection.
type EvaluationWarning struct {
	Code       WarningCode
	GroupID    string
	DiscountID string
	Message    string
}

// ResolutionResult is the engine output. TotalDiscount + FinalPrice always equals BasePrice.
type ResolutionResult struct {
	BasePrice     decimal.Decimal
	FinalPrice    decimal.Decimal
	TotalDiscount decimal.Decimal
	Applied       []AppliedDiscount
	Rejected      []RejectedDiscount
	Warnings      []EvaluationWarning
}
