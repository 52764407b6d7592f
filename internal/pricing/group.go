package pricing

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/VSydorenko/simplyCMS-core-sub001/internal/domain"
)

type groupOutcome struct {
	amount   decimal.Decimal
	applied  []domain.AppliedDiscount
	rejected []domain.RejectedDiscount
}

// poolItem is one candidate inside a group: a direct leaf or a whole child group.
type poolItem struct {
	priority int
	seq      int
	amount   decimal.Decimal
	applied  []domain.AppliedDiscount
}

func (ev *evaluation) group(g domain.DiscountGroup, depth int) (groupOutcome, error) {
	if depth > ev.engine.maxDepth {
		return groupOutcome{}, fmt.Errorf("%w: group %q at depth %d (max %d)", ErrGroupDepthExceeded, g.ID, depth, ev.engine.maxDepth)
	}
	out := groupOutcome{
		amount:   decimal.Zero,
		applied:  make([]domain.AppliedDiscount, 0),
		rejected: make([]domain.RejectedDiscount, 0),
	}
	if !g.IsActive || !withinWindow(g.StartsAt, g.EndsAt, ev.now) {
		return out, nil
	}

	pool := make([]poolItem, 0, len(g.Discounts)+len(g.Children))
	for _, d := range sortDiscounts(g.Discounts) {
		if d.GroupID == "" {
			d.GroupID = g.ID
		}
		verdict := EvaluateDiscount(d, ev.dctx, ev.now)
		for _, w := range verdict.Warnings {
			ev.warn(w)
		}
		if !verdict.Eligible {
			out.rejected = append(out.rejected, rejectedFrom(d, g, verdict.Reason))
			continue
		}
		if d.Value.IsNegative() {
			ev.warn(domain.EvaluationWarning{
				Code:       domain.WarningNegativeValue,
				GroupID:    g.ID,
				DiscountID: d.ID,
				Message:    fmt.Sprintf("negative discount value %s", d.Value.String()),
			})
		}
		amount := calculateAmount(d, ev.base, ev.engine.precision)
		pool = append(pool, poolItem{
			priority: d.Priority,
			seq:      len(pool),
			amount:   amount,
			applied: []domain.AppliedDiscount{{
				DiscountID:       d.ID,
				Name:             d.Name,
				Type:             d.Type,
				Value:            d.Value,
				CalculatedAmount: amount,
				GroupID:          g.ID,
				GroupName:        g.Name,
			}},
		})
	}

	for _, child := range sortGroups(g.Children) {
		childOut, err := ev.group(child, depth+1)
		if err != nil {
			return groupOutcome{}, err
		}
		out.rejected = append(out.rejected, childOut.rejected...)
		if len(childOut.applied) == 0 {
			continue
		}
		pool = append(pool, poolItem{
			priority: child.Priority,
			seq:      len(pool),
			amount:   childOut.amount,
			applied:  childOut.applied,
		})
	}

	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].priority == pool[j].priority {
			return pool[i].seq < pool[j].seq
		}
		return pool[i].priority < pool[j].priority
	})

	winners, losers, reason := ev.combine(g, pool)
	for _, item := range winners {
		out.amount = out.amount.Add(item.amount)
		out.applied = append(out.applied, item.applied...)
	}
	for _, item := range losers {
		for _, rec := range item.applied {
			out.rejected = append(out.rejected, domain.RejectedDiscount{
				DiscountID: rec.DiscountID,
				Name:       rec.Name,
				GroupID:    rec.GroupID,
				GroupName:  rec.GroupName,
				Reason:     reason,
			})
		}
	}

	if out.amount.GreaterThan(ev.base) {
		ev.engine.logger(ev.ctx, "pricing_discount_clamped", map[string]any{
			"scope":     "group",
			"groupId":   g.ID,
			"requested": out.amount.String(),
			"basePrice": ev.base.String(),
		})
		out.amount = ev.base
		rescaleApplied(out.applied, out.amount, ev.engine.precision)
	}
	return out, nil
}

// combine applies the group operator to an ordered pool.
func (ev *evaluation) combine(g domain.DiscountGroup, pool []poolItem) (winners, losers []poolItem, reason string) {
	if len(pool) == 0 {
		return nil, nil, ""
	}
	op := domain.GroupOperator(strings.ToLower(strings.TrimSpace(string(g.Operator))))
	switch op {
	case domain.GroupOperatorAnd:
		return pool, nil, ""
	case domain.GroupOperatorNot:
		ev.warn(domain.EvaluationWarning{
			Code:    domain.WarningNotOperator,
			GroupID: g.ID,
			Message: "group operator \"not\" is evaluated as \"and\"",
		})
		return pool, nil, ""
	case domain.GroupOperatorOr:
		idx := 0
		for i, item := range pool {
			if !item.amount.IsZero() {
				idx = i
				break
			}
		}
		return pick(pool, idx), without(pool, idx), ReasonSupersededOr
	case domain.GroupOperatorMin:
		idx := -1
		for i, item := range pool {
			if item.amount.IsZero() {
				continue
			}
			if idx < 0 || item.amount.LessThan(pool[idx].amount) {
				idx = i
			}
		}
		if idx < 0 {
			idx = 0
		}
		return pick(pool, idx), without(pool, idx), ReasonNotMinimum
	case domain.GroupOperatorMax:
		idx := 0
		for i, item := range pool {
			if item.amount.GreaterThan(pool[idx].amount) {
				idx = i
			}
		}
		return pick(pool, idx), without(pool, idx), ReasonNotMaximum
	default:
		ev.warn(domain.EvaluationWarning{
			Code:    domain.WarningUnknownGroupOp,
			GroupID: g.ID,
			Message: fmt.Sprintf("unsupported group operator %q", g.Operator),
		})
		return nil, pool, fmt.Sprintf("unsupported group operator %q", g.Operator)
	}
}

func pick(pool []poolItem, idx int) []poolItem {
	return []poolItem{pool[idx]}
}

func without(pool []poolItem, idx int) []poolItem {
	rest := make([]poolItem, 0, len(pool)-1)
	rest = append(rest, pool[:idx]...)
	return append(rest, pool[idx+1:]...)
}

func rejectedFrom(d domain.Discount, g domain.DiscountGroup, reason string) domain.RejectedDiscount {
	return domain.RejectedDiscount{
		DiscountID: d.ID,
		Name:       d.Name,
		GroupID:    g.ID,
		GroupName:  g.Name,
		Reason:     reason,
	}
}
