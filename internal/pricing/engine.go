package pricing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/VSydorenko/simplyCMS-core-sub001/internal/domain"
)

const (
	// DefaultPrecision is the number of decimal places kept for calculated amounts.
	DefaultPrecision int32 = 2
	// DefaultMaxDepth bounds group nesting; deeper trees are reported as cycles.
	DefaultMaxDepth = 32
)

// EngineOptions configures an Engine. A zero MaxDepth selects DefaultMaxDepth.
// Precision counts decimal places; zero means whole units and a negative value
// selects DefaultPrecision.
type EngineOptions struct {
	Precision int32
	MaxDepth  int
	Logger    func(context.Context, string, map[string]any)
}

// Engine evaluates discount forests. It holds no per-call state and is safe for concurrent use.
type Engine struct {
	precision int32
	maxDepth  int
	logger    func(context.Context, string, map[string]any)
}

var defaultEngine = NewEngine(EngineOptions{Precision: DefaultPrecision})

// NewEngine constructs an engine from opts.
func NewEngine(opts EngineOptions) *Engine {
	precision := opts.Precision
	if precision < 0 {
		precision = DefaultPrecision
	}
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	logger := opts.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Engine{
		precision: precision,
		maxDepth:  maxDepth,
		logger:    logger,
	}
}

// Precision returns the number of decimal places used for amounts.
func (e *Engine) Precision() int32 {
	return e.precision
}

// MaxDepth returns the deepest group nesting the engine evaluates.
func (e *Engine) MaxDepth() int {
	return e.maxDepth
}

// ResolveDiscount evaluates roots against basePrice with the default engine.
func ResolveDiscount(basePrice decimal.Decimal, roots []domain.DiscountGroup, dctx domain.DiscountContext, now time.Time) (domain.ResolutionResult, error) {
	return defaultEngine.ResolveDiscount(context.Background(), basePrice, roots, dctx, now)
}

// ResolveDiscount folds every root group into a final price. Roots are evaluated in
// ascending priority against the same base price and their amounts are summed, then
// clamped to the base price. The only errors are a negative base price and a group
// forest nested beyond the configured depth.
func (e *Engine) ResolveDiscount(ctx context.Context, basePrice decimal.Decimal, roots []domain.DiscountGroup, dctx domain.DiscountContext, now time.Time) (domain.ResolutionResult, error) {
	if basePrice.IsNegative() {
		return domain.ResolutionResult{}, fmt.Errorf("%w: %s", ErrInvalidBasePrice, basePrice.String())
	}
	if now.IsZero() {
		now = time.Now()
	}
	ev := e.newEvaluation(ctx, basePrice, dctx, now.UTC())

	ordered := sortGroups(roots)
	total := decimal.Zero
	applied := make([]domain.AppliedDiscount, 0)
	rejected := make([]domain.RejectedDiscount, 0)
	for _, root := range ordered {
		out, err := ev.group(root, 1)
		if err != nil {
			e.logger(ctx, "pricing_structural_error", map[string]any{
				"groupId": root.ID,
				"error":   err.Error(),
			})
			return domain.ResolutionResult{}, err
		}
		total = total.Add(out.amount)
		applied = append(applied, out.applied...)
		rejected = append(rejected, out.rejected...)
	}

	if total.GreaterThan(basePrice) {
		e.logger(ctx, "pricing_discount_clamped", map[string]any{
			"scope":     "total",
			"requested": total.String(),
			"basePrice": basePrice.String(),
		})
		total = basePrice
		rescaleApplied(applied, total, e.precision)
	}

	return domain.ResolutionResult{
		BasePrice:     basePrice,
		FinalPrice:    basePrice.Sub(total),
		TotalDiscount: total,
		Applied:       applied,
		Rejected:      rejected,
		Warnings:      ev.warnings,
	}, nil
}

// GroupResult is the outcome of evaluating one group and its subtree.
type GroupResult struct {
	DiscountAmount decimal.Decimal
	Applied        []domain.AppliedDiscount
	Rejected       []domain.RejectedDiscount
	Warnings       []domain.EvaluationWarning
}

// EvaluateGroup evaluates a single group with the default engine.
func EvaluateGroup(group domain.DiscountGroup, basePrice decimal.Decimal, dctx domain.DiscountContext, now time.Time) (GroupResult, error) {
	return defaultEngine.EvaluateGroup(context.Background(), group, basePrice, dctx, now)
}

// EvaluateGroup evaluates group and its descendants against basePrice.
func (e *Engine) EvaluateGroup(ctx context.Context, group domain.DiscountGroup, basePrice decimal.Decimal, dctx domain.DiscountContext, now time.Time) (GroupResult, error) {
	if basePrice.IsNegative() {
		return GroupResult{}, fmt.Errorf("%w: %s", ErrInvalidBasePrice, basePrice.String())
	}
	if now.IsZero() {
		now = time.Now()
	}
	ev := e.newEvaluation(ctx, basePrice, dctx, now.UTC())
	out, err := ev.group(group, 1)
	if err != nil {
		return GroupResult{}, err
	}
	return GroupResult{
		DiscountAmount: out.amount,
		Applied:        out.applied,
		Rejected:       out.rejected,
		Warnings:       ev.warnings,
	}, nil
}

// evaluation carries the request-scoped inputs of one engine call.
type evaluation struct {
	engine   *Engine
	ctx      context.Context
	base     decimal.Decimal
	dctx     domain.DiscountContext
	now      time.Time
	warnings []domain.EvaluationWarning
}

func (e *Engine) newEvaluation(ctx context.Context, basePrice decimal.Decimal, dctx domain.DiscountContext, now time.Time) *evaluation {
	if ctx == nil {
		ctx = context.Background()
	}
	return &evaluation{
		engine:   e,
		ctx:      ctx,
		base:     basePrice,
		dctx:     dctx,
		now:      now,
		warnings: make([]domain.EvaluationWarning, 0),
	}
}

func (ev *evaluation) warn(w domain.EvaluationWarning) {
	ev.warnings = append(ev.warnings, w)
	ev.engine.logger(ev.ctx, "pricing_warning", map[string]any{
		"code":       string(w.Code),
		"groupId":    w.GroupID,
		"discountId": w.DiscountID,
		"message":    w.Message,
	})
}

func sortGroups(groups []domain.DiscountGroup) []domain.DiscountGroup {
	ordered := make([]domain.DiscountGroup, len(groups))
	copy(ordered, groups)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})
	return ordered
}

func sortDiscounts(discounts []domain.Discount) []domain.Discount {
	ordered := make([]domain.Discount, len(discounts))
	copy(ordered, discounts)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})
	return ordered
}

func withinWindow(start, end, now time.Time) bool {
	if !start.IsZero() && now.Before(start) {
		return false
	}
	if !end.IsZero() && now.After(end) {
		return false
	}
	return true
}
