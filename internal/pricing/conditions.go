package pricing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/VSydorenko/simplyCMS-core-sub001/internal/domain"
)

// EvaluateCondition reports whether cond holds for the request. A non-nil error means
// the condition is malformed or of an unknown type; the result is then always false.
func EvaluateCondition(cond domain.Condition, dctx domain.DiscountContext) (bool, error) {
	switch c := cond.(type) {
	case domain.UserCategoryCondition:
		if dctx.UserCategoryID == "" {
			return false, nil
		}
		for _, id := range c.CategoryIDs {
			if id == dctx.UserCategoryID {
				return true, nil
			}
		}
		return false, nil
	case domain.MinQuantityCondition:
		return compare(decimal.NewFromInt(int64(dctx.Quantity)), c.Operator, c.Value)
	case domain.MinOrderAmountCondition:
		return compare(dctx.CartTotal, c.Operator, c.Value)
	case domain.UserLoggedInCondition:
		return dctx.IsLoggedIn == c.Value, nil
	case domain.InvalidCondition:
		if c.Known {
			return false, fmt.Errorf("%w: %s: %s", ErrInvalidCondition, c.RawType, c.Detail)
		}
		return false, fmt.Errorf("%w: %q", ErrUnknownCondition, c.RawType)
	case nil:
		return false, fmt.Errorf("%w: nil condition", ErrInvalidCondition)
	default:
		return false, fmt.Errorf("%w: %T", ErrUnknownCondition, cond)
	}
}

func compare(actual decimal.Decimal, op domain.ComparisonOperator, expected decimal.Decimal) (bool, error) {
	switch op {
	case domain.OperatorGTE, "":
		return actual.GreaterThanOrEqual(expected), nil
	case domain.OperatorGT:
		return actual.GreaterThan(expected), nil
	case domain.OperatorEQ:
		return actual.Equal(expected), nil
	case domain.OperatorLTE:
		return actual.LessThanOrEqual(expected), nil
	case domain.OperatorLT:
		return actual.LessThan(expected), nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnsupportedOperator, op)
	}
}

// DecodeCondition converts a stored condition row into its typed variant. Values that
// do not fit the declared type come back as domain.InvalidCondition.
func DecodeCondition(row domain.DiscountConditionRow) domain.Condition {
	kind := domain.ConditionType(strings.ToLower(strings.TrimSpace(row.ConditionType)))
	op := domain.ComparisonOperator(strings.TrimSpace(row.Operator))
	invalid := func(known bool, detail string) domain.Condition {
		return domain.InvalidCondition{
			ID:          row.ID,
			RawType:     kind,
			RawOperator: row.Operator,
			Known:       known,
			Detail:      detail,
		}
	}

	switch kind {
	case domain.ConditionUserCategory:
		ids, err := decodeIDList(row.Value)
		if err != nil {
			return invalid(true, err.Error())
		}
		return domain.UserCategoryCondition{ID: row.ID, CategoryIDs: ids}
	case domain.ConditionMinQuantity, domain.ConditionMinOrderAmount:
		value, err := decodeNumber(row.Value)
		if err != nil {
			return invalid(true, err.Error())
		}
		if kind == domain.ConditionMinQuantity {
			return domain.MinQuantityCondition{ID: row.ID, Operator: op, Value: value}
		}
		return domain.MinOrderAmountCondition{ID: row.ID, Operator: op, Value: value}
	case domain.ConditionUserLoggedIn:
		value, err := decodeBool(row.Value)
		if err != nil {
			return invalid(true, err.Error())
		}
		return domain.UserLoggedInCondition{ID: row.ID, Value: value}
	default:
		return invalid(false, "unknown condition type")
	}
}

func decodeIDList(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("missing category list")
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err == nil {
		return compactIDs(ids), nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return compactIDs([]string{single}), nil
	}
	return nil, fmt.Errorf("category list must be an array of ids")
}

func compactIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func decodeNumber(raw json.RawMessage) (decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return decimal.Zero, fmt.Errorf("missing numeric value")
	}
	var value decimal.Decimal
	if err := value.UnmarshalJSON(raw); err != nil {
		return decimal.Zero, fmt.Errorf("value must be numeric")
	}
	return value, nil
}

func decodeBool(raw json.RawMessage) (bool, error) {
	raw = bytes.TrimSpace(raw)
	var value bool
	if err := json.Unmarshal(raw, &value); err == nil {
		return value, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if parsed, perr := strconv.ParseBool(strings.TrimSpace(text)); perr == nil {
			return parsed, nil
		}
	}
	return false, fmt.Errorf("value must be boolean")
}
