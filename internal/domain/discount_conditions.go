package domain

import (
	"github.com/shopspring/decimal"
)

// ConditionType discriminates the Condition variants.
type ConditionType string

const (
	ConditionUserCategory   ConditionType = "user_category"
	ConditionMinQuantity    ConditionType = "min_quantity"
	ConditionMinOrderAmount ConditionType = "min_order_amount"
	ConditionUserLoggedIn   ConditionType = "user_logged_in"
)

// ComparisonOperator is used by numeric conditions.
type ComparisonOperator string

const (
	OperatorGTE ComparisonOperator = ">="
	OperatorGT  ComparisonOperator = ">"
	OperatorEQ  ComparisonOperator = "="
	OperatorLTE ComparisonOperator = "<="
	OperatorLT  ComparisonOperator = "<"
	OperatorIn  ComparisonOperator = "in"
)

// Condition is an eligibility predicate attached to a discount. The set of
// implementations is closed; evaluators switch on the concrete type.
type Condition interface {
	Type() ConditionType
	condition()
}

// UserCategoryCondition holds when the requester's category is one of CategoryIDs.
type UserCategoryCondition struct {
	ID          string
	CategoryIDs []string
}

// MinQuantityCondition compares the requested quantity against Value.
type MinQuantityCondition struct {
	ID       string
	Operator ComparisonOperator
	Value    decimal.Decimal
}

// MinOrderAmountCondition compares the cart total against Value.
type MinOrderAmountCondition struct {
	ID       string
	Operator ComparisonOperator
	Value    decimal.Decimal
}

// UserLoggedInCondition holds when the login state equals Value.
type UserLoggedInCondition struct {
	ID    string
	Value bool
}

// InvalidCondition carries a stored condition that could not be decoded, either
// because its type is unknown or because its value does not fit the type.
// It never matches.
type InvalidCondition struct {
	ID          string
	RawType     ConditionType
	RawOperator string
	Known       bool
	Detail      string
}

func (UserCategoryCondition) Type() ConditionType   { return ConditionUserCategory }
func (MinQuantityCondition) Type() ConditionType    { return ConditionMinQuantity }
func (MinOrderAmountCondition) Type() ConditionType { return ConditionMinOrderAmount }
func (UserLoggedInCondition) Type() ConditionType   { return ConditionUserLoggedIn }
func (c InvalidCondition) Type() ConditionType      { return c.RawType }

func (UserCategoryCondition) condition()   {}
func (MinQuantityCondition) condition()    {}
func (MinOrderAmountCondition) condition() {}
func (UserLoggedInCondition) condition()   {}
func (InvalidCondition) condition()        {}
