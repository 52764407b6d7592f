package pricing

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/VSydorenko/simplyCMS-core-sub001/internal/domain"
)

// rescaleApplied scales the calculated amounts of applied in place so they sum to target.
// Shares are truncated to the working scale and the leftover units go to the largest
// remainders, so the sum is exact at any magnitude.
func rescaleApplied(applied []domain.AppliedDiscount, target decimal.Decimal, precision int32) {
	if len(applied) == 0 {
		return
	}
	scale := precision
	if exp := -target.Exponent(); exp > scale {
		scale = exp
	}
	weights := make([]decimal.Decimal, len(applied))
	for i, rec := range applied {
		weights[i] = rec.CalculatedAmount
	}
	shares := allocateByWeight(target, weights, scale)
	for i := range applied {
		applied[i].CalculatedAmount = shares[i]
	}
}

// allocateByWeight splits amount across weights in units of 10^-scale. Negative weights
// count as zero; when every weight is zero the amount is split evenly.
func allocateByWeight(amount decimal.Decimal, weights []decimal.Decimal, scale int32) []decimal.Decimal {
	allocations := make([]decimal.Decimal, len(weights))
	for i := range allocations {
		allocations[i] = decimal.Zero
	}
	if len(weights) == 0 || !amount.IsPositive() {
		return allocations
	}
	unit := decimal.New(1, -scale)

	totalWeight := decimal.Zero
	for _, w := range weights {
		if w.IsPositive() {
			totalWeight = totalWeight.Add(w)
		}
	}

	type share struct {
		idx       int
		remainder decimal.Decimal
	}
	remainders := make([]share, len(weights))
	distributed := decimal.Zero
	for i, w := range weights {
		var part, rem decimal.Decimal
		switch {
		case totalWeight.IsZero():
			part, rem = amount.QuoRem(decimal.NewFromInt(int64(len(weights))), scale)
		case w.IsPositive():
			part, rem = amount.Mul(w).QuoRem(totalWeight, scale)
		default:
			part, rem = decimal.Zero, decimal.Zero
		}
		allocations[i] = part
		distributed = distributed.Add(part)
		remainders[i] = share{idx: i, remainder: rem}
	}

	// leftover is below one unit per weight, so it fits an int64
	leftover := amount.Sub(distributed).Div(unit).IntPart()
	if leftover <= 0 {
		return allocations
	}
	sort.SliceStable(remainders, func(i, j int) bool {
		if remainders[i].remainder.Equal(remainders[j].remainder) {
			return remainders[i].idx < remainders[j].idx
		}
		return remainders[i].remainder.GreaterThan(remainders[j].remainder)
	})
	for _, entry := range remainders {
		if leftover == 0 {
			break
		}
		allocations[entry.idx] = allocations[entry.idx].Add(unit)
		leftover--
	}
	return allocations
}
