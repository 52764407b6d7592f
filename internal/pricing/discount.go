package pricing

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/VSydorenko/simplyCMS-core-sub001/internal/domain"
)

const (
	ReasonInactive       = "inactive"
	ReasonNotYetStarted  = "not yet started"
	ReasonExpired        = "expired"
	ReasonTargetMismatch = "target mismatch"
	ReasonSupersededOr   = "superseded by higher-priority discount in OR group"
	ReasonNotMinimum     = "not the minimum in MIN group"
	ReasonNotMaximum     = "not the maximum in MAX group"
)

var hundred = decimal.NewFromInt(100)

// Eligibility is the verdict for a single leaf discount. Reason is set when not eligible.
type Eligibility struct {
	Eligible bool
	Reason   string
	Warnings []domain.EvaluationWarning
}

// EvaluateDiscount runs the leaf checks in order and stops at the first failure:
// active flag, start, end, targets, then every condition.
func EvaluateDiscount(discount domain.Discount, dctx domain.DiscountContext, now time.Time) Eligibility {
	if !discount.IsActive {
		return Eligibility{Reason: ReasonInactive}
	}
	if !discount.StartsAt.IsZero() && now.Before(discount.StartsAt) {
		return Eligibility{Reason: ReasonNotYetStarted}
	}
	if !discount.EndsAt.IsZero() && now.After(discount.EndsAt) {
		return Eligibility{Reason: ReasonExpired}
	}

	var warnings []domain.EvaluationWarning
	if len(discount.Targets) > 0 {
		matched := false
		for _, target := range discount.Targets {
			ok, err := MatchesTarget(target, dctx)
			if err != nil {
				warnings = append(warnings, domain.EvaluationWarning{
					Code:       domain.WarningUnknownTarget,
					GroupID:    discount.GroupID,
					DiscountID: discount.ID,
					Message:    err.Error(),
				})
				continue
			}
			if ok {
				matched = true
				break
			}
		}
		if !matched {
			return Eligibility{Reason: ReasonTargetMismatch, Warnings: warnings}
		}
	}

	for _, cond := range discount.Conditions {
		ok, err := EvaluateCondition(cond, dctx)
		if err != nil {
			warnings = append(warnings, conditionWarning(discount, err))
			return Eligibility{Reason: "invalid condition: " + conditionLabel(cond), Warnings: warnings}
		}
		if !ok {
			return Eligibility{Reason: "condition failed: " + conditionLabel(cond), Warnings: warnings}
		}
	}

	switch discount.Type {
	case domain.DiscountTypePercent, domain.DiscountTypeFixedAmount, domain.DiscountTypeFixedPrice:
	default:
		warnings = append(warnings, domain.EvaluationWarning{
			Code:       domain.WarningUnknownDiscountType,
			GroupID:    discount.GroupID,
			DiscountID: discount.ID,
			Message:    fmt.Sprintf("unsupported discount type %q", discount.Type),
		})
		return Eligibility{Reason: fmt.Sprintf("unsupported discount type %q", discount.Type), Warnings: warnings}
	}

	return Eligibility{Eligible: true, Warnings: warnings}
}

func conditionLabel(cond domain.Condition) string {
	if cond == nil {
		return "unknown"
	}
	if label := string(cond.Type()); label != "" {
		return label
	}
	return "unknown"
}

func conditionWarning(discount domain.Discount, err error) domain.EvaluationWarning {
	code := domain.WarningInvalidCondition
	switch {
	case errors.Is(err, ErrUnknownCondition):
		code = domain.WarningUnknownCondition
	case errors.Is(err, ErrUnsupportedOperator):
		code = domain.WarningUnsupportedOperator
	}
	return domain.EvaluationWarning{
		Code:       code,
		GroupID:    discount.GroupID,
		DiscountID: discount.ID,
		Message:    err.Error(),
	}
}

// CalculateDiscountAmount returns the reduction discount produces on basePrice,
// rounded to DefaultPrecision and clamped to [0, basePrice].
func CalculateDiscountAmount(discount domain.Discount, basePrice decimal.Decimal) decimal.Decimal {
	return calculateAmount(discount, basePrice, DefaultPrecision)
}

func calculateAmount(discount domain.Discount, basePrice decimal.Decimal, precision int32) decimal.Decimal {
	if !basePrice.IsPositive() {
		return decimal.Zero
	}
	var amount decimal.Decimal
	switch discount.Type {
	case domain.DiscountTypePercent:
		amount = basePrice.Mul(discount.Value).Div(hundred)
	case domain.DiscountTypeFixedAmount:
		amount = discount.Value
	case domain.DiscountTypeFixedPrice:
		// A target price at or above the base price is a misconfiguration that takes the full base.
		if discount.Value.GreaterThanOrEqual(basePrice) {
			return basePrice
		}
		amount = basePrice.Sub(discount.Value)
	default:
		return decimal.Zero
	}
	return clampAmount(amount.Round(precision), basePrice)
}

func clampAmount(amount, basePrice decimal.Decimal) decimal.Decimal {
	if amount.IsNegative() {
		return decimal.Zero
	}
	if amount.GreaterThan(basePrice) {
		return basePrice
	}
	return amount
}
