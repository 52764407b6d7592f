package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/VSydorenko/simplyCMS-core-sub001/internal/domain"
	"github.com/VSydorenko/simplyCMS-core-sub001/internal/platform/observability"
	"github.com/VSydorenko/simplyCMS-core-sub001/internal/pricing"
	"github.com/VSydorenko/simplyCMS-core-sub001/internal/repositories"
)

const maxQuoteQuantity = 1_000_000

var tracer = otel.Tracer("github.com/VSydorenko/simplyCMS-core-sub001/internal/services")

// PricingRecorder receives per-quote outcomes. *observability.PricingMetrics satisfies it.
type PricingRecorder interface {
	RecordResolution(ctx context.Context, outcome observability.PriceOutcome)
	RecordUnavailable(ctx context.Context, source string)
}

// PricingServiceDeps wires the repositories and engine settings used by the pricing service.
type PricingServiceDeps struct {
	Prices     repositories.PriceRepository
	PriceTiers repositories.PriceTierRepository
	Profiles   repositories.ProfileRepository
	Catalog    repositories.CatalogRepository
	Discounts  repositories.DiscountRepository
	Engine     *pricing.Engine
	// DefaultTierID takes precedence over the tier flagged as default in storage.
	DefaultTierID string
	Metrics       PricingRecorder
	Clock         func() time.Time
	Logger        func(context.Context, string, map[string]any)
}

type pricingService struct {
	prices        repositories.PriceRepository
	tiers         repositories.PriceTierRepository
	profiles      repositories.ProfileRepository
	catalog       repositories.CatalogRepository
	discounts     repositories.DiscountRepository
	engine        *pricing.Engine
	defaultTierID string
	metrics       PricingRecorder
	now           func() time.Time
	logger        func(context.Context, string, map[string]any)
}

var _ PricingService = (*pricingService)(nil)

// NewPricingService constructs a PricingService enforcing dependency validation.
func NewPricingService(deps PricingServiceDeps) (PricingService, error) {
	switch {
	case deps.Prices == nil:
		return nil, errors.New("pricing service: price repository is required")
	case deps.Discounts == nil:
		return nil, errors.New("pricing service: discount repository is required")
	case deps.Catalog == nil:
		return nil, errors.New("pricing service: catalog repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	engine := deps.Engine
	if engine == nil {
		engine = pricing.NewEngine(pricing.EngineOptions{Precision: pricing.DefaultPrecision, Logger: logger})
	}

	return &pricingService{
		prices:        deps.Prices,
		tiers:         deps.PriceTiers,
		profiles:      deps.Profiles,
		catalog:       deps.Catalog,
		discounts:     deps.Discounts,
		engine:        engine,
		defaultTierID: strings.TrimSpace(deps.DefaultTierID),
		metrics:       deps.Metrics,
		now:           func() time.Time { return clock().UTC() },
		logger:        logger,
	}, nil
}

func (s *pricingService) Quote(ctx context.Context, cmd QuoteCommand) (quote PriceQuote, err error) {
	ctx, span := tracer.Start(ctx, "PricingService.Quote", trace.WithAttributes(
		attribute.String("pricing.product_id", cmd.ProductID),
		attribute.String("pricing.modification_id", cmd.ModificationID),
	))
	defer func() { endSpan(span, err) }()

	cmd, err = normaliseQuoteCommand(cmd)
	if err != nil {
		return PriceQuote{}, err
	}
	now := cmd.Now
	if now.IsZero() {
		now = s.now()
	}
	quote = PriceQuote{
		ProductID:      cmd.ProductID,
		ModificationID: cmd.ModificationID,
		PricedAt:       now.UTC(),
	}
	step := func(name, format string, args ...any) {
		quote.Steps = append(quote.Steps, QuoteStep{Name: name, Detail: fmt.Sprintf(format, args...)})
	}

	profile, err := s.loadProfile(ctx, cmd.UserID)
	if err != nil {
		return PriceQuote{}, err
	}
	switch {
	case cmd.UserID == "":
		step("profile", "anonymous requester")
	case profile.UserCategoryID == "" && profile.PriceTierID == "":
		step("profile", "user %s has no category or price type", cmd.UserID)
	default:
		step("profile", "user %s category=%q price_type=%q", cmd.UserID, profile.UserCategoryID, profile.PriceTierID)
	}

	defaultTier, err := s.resolveDefaultTier(ctx)
	if err != nil {
		return PriceQuote{}, err
	}
	requested := firstNonEmpty(cmd.PriceTierID, profile.PriceTierID, defaultTier)
	quote.RequestedTierID = requested
	switch {
	case cmd.PriceTierID != "":
		step("tier", "price type %s requested explicitly", requested)
	case profile.PriceTierID != "":
		step("tier", "price type %s from profile", requested)
	default:
		step("tier", "default price type %q", requested)
	}

	entries, err := s.prices.ListByProduct(ctx, cmd.ProductID)
	if err != nil {
		return PriceQuote{}, s.translateRepoError(err)
	}
	resolution := pricing.ResolvePrice(entries, requested, defaultTier, cmd.ModificationID)
	if !resolution.Available() {
		if s.metrics != nil {
			s.metrics.RecordUnavailable(ctx, "quote")
		}
		s.logger(ctx, "pricing_price_unavailable", map[string]any{
			"productId":      cmd.ProductID,
			"modificationId": cmd.ModificationID,
			"priceTierId":    requested,
			"defaultTierId":  defaultTier,
		})
		return PriceQuote{}, fmt.Errorf("%w: product %s in price type %q", ErrPriceUnavailable, cmd.ProductID, requested)
	}
	quote.BasePrice = resolution.Price.Decimal
	quote.OldPrice = resolution.OldPrice
	quote.PriceTierID = resolution.PriceTierID
	quote.UsedDefaultTier = resolution.UsedDefaultTier
	if resolution.UsedDefaultTier {
		step("price", "base price %s from default price type %s", quote.BasePrice.String(), resolution.PriceTierID)
	} else {
		step("price", "base price %s from price type %s", quote.BasePrice.String(), resolution.PriceTierID)
	}

	product, err := s.catalog.FindProduct(ctx, cmd.ProductID)
	if err != nil {
		if isRepoNotFound(err) {
			return PriceQuote{}, fmt.Errorf("%w: %s", ErrProductNotFound, cmd.ProductID)
		}
		return PriceQuote{}, s.translateRepoError(err)
	}
	quote.ProductName = product.Name
	sectionID := firstNonEmpty(cmd.SectionID, product.SectionID)

	cartTotal := cmd.CartTotal.Decimal
	if !cmd.CartTotal.Valid {
		cartTotal = cmd.ExistingSubtotal.Decimal.Add(quote.BasePrice.Mul(decimal.NewFromInt(int64(cmd.Quantity))))
	}
	dctx := domain.DiscountContext{
		UserID:         cmd.UserID,
		UserCategoryID: profile.UserCategoryID,
		Quantity:       cmd.Quantity,
		CartTotal:      cartTotal,
		ProductID:      cmd.ProductID,
		ModificationID: cmd.ModificationID,
		SectionID:      sectionID,
		IsLoggedIn:     profile.IsLoggedIn,
	}
	quote.Context = dctx

	rows, err := s.discounts.ListRowsByPriceTier(ctx, resolution.PriceTierID)
	if err != nil {
		return PriceQuote{}, s.translateRepoError(err)
	}
	forest, err := pricing.BuildForest(rows)
	if err != nil {
		s.logger(ctx, "pricing_structural_error", map[string]any{"priceTierId": resolution.PriceTierID, "error": err.Error()})
		return PriceQuote{}, fmt.Errorf("%w: %v", ErrPricingConfiguration, err)
	}
	for _, w := range forest.Warnings {
		s.logger(ctx, "pricing_warning", map[string]any{
			"code":       string(w.Code),
			"groupId":    w.GroupID,
			"discountId": w.DiscountID,
			"message":    w.Message,
		})
	}
	roots := pricing.RootsForTier(forest.Roots, resolution.PriceTierID)
	step("discounts", "%d root groups loaded for price type %s", len(roots), resolution.PriceTierID)

	result, err := s.engine.ResolveDiscount(ctx, quote.BasePrice, roots, dctx, now)
	if err != nil {
		if pricing.IsStructural(err) {
			return PriceQuote{}, fmt.Errorf("%w: %v", ErrPricingConfiguration, err)
		}
		return PriceQuote{}, fmt.Errorf("%w: %v", ErrPricingInvalidInput, err)
	}
	if len(forest.Warnings) > 0 {
		result.Warnings = append(append([]domain.EvaluationWarning{}, forest.Warnings...), result.Warnings...)
	}
	quote.Result = result
	step("result", "final price %s after %d applied and %d rejected discounts", result.FinalPrice.String(), len(result.Applied), len(result.Rejected))

	s.report(ctx, "quote", quote)
	span.SetAttributes(
		attribute.String("pricing.price_tier_id", quote.PriceTierID),
		attribute.Int("pricing.applied", len(result.Applied)),
	)
	return quote, nil
}

func (s *pricingService) Evaluate(ctx context.Context, cmd EvaluateCommand) (quote PriceQuote, err error) {
	ctx, span := tracer.Start(ctx, "PricingService.Evaluate")
	defer func() { endSpan(span, err) }()

	dctx := cmd.Context
	dctx.ProductID = strings.TrimSpace(dctx.ProductID)
	dctx.ModificationID = strings.TrimSpace(dctx.ModificationID)
	if dctx.Quantity == 0 {
		dctx.Quantity = 1
	}
	if dctx.Quantity < 0 || dctx.CartTotal.IsNegative() {
		return PriceQuote{}, fmt.Errorf("%w: quantity and cart total must be non-negative", ErrPricingInvalidInput)
	}
	now := cmd.Now
	if now.IsZero() {
		now = s.now()
	}

	requested := firstNonEmpty(strings.TrimSpace(cmd.PriceTierID), strings.TrimSpace(cmd.DefaultTierID))
	resolution := pricing.ResolvePrice(cmd.Prices, requested, strings.TrimSpace(cmd.DefaultTierID), dctx.ModificationID)
	if !resolution.Available() {
		if s.metrics != nil {
			s.metrics.RecordUnavailable(ctx, "evaluate")
		}
		return PriceQuote{}, fmt.Errorf("%w: no price row in price type %q", ErrPriceUnavailable, requested)
	}

	roots := pricing.RootsForTier(cmd.Groups, resolution.PriceTierID)
	result, err := s.engine.ResolveDiscount(ctx, resolution.Price.Decimal, roots, dctx, now)
	if err != nil {
		if pricing.IsStructural(err) {
			return PriceQuote{}, fmt.Errorf("%w: %v", ErrPricingConfiguration, err)
		}
		return PriceQuote{}, fmt.Errorf("%w: %v", ErrPricingInvalidInput, err)
	}

	quote = PriceQuote{
		ProductID:       dctx.ProductID,
		ModificationID:  dctx.ModificationID,
		RequestedTierID: requested,
		PriceTierID:     resolution.PriceTierID,
		UsedDefaultTier: resolution.UsedDefaultTier,
		BasePrice:       resolution.Price.Decimal,
		OldPrice:        resolution.OldPrice,
		Context:         dctx,
		Result:          result,
		PricedAt:        now.UTC(),
		Steps: []QuoteStep{
			{Name: "price", Detail: fmt.Sprintf("base price %s from price type %s", resolution.Price.Decimal.String(), resolution.PriceTierID)},
			{Name: "discounts", Detail: fmt.Sprintf("%d of %d root groups apply to price type %s", len(roots), len(cmd.Groups), resolution.PriceTierID)},
			{Name: "result", Detail: fmt.Sprintf("final price %s after %d applied and %d rejected discounts", result.FinalPrice.String(), len(result.Applied), len(result.Rejected))},
		},
	}
	s.report(ctx, "evaluate", quote)
	return quote, nil
}

func (s *pricingService) loadProfile(ctx context.Context, userID string) (domain.PricingProfile, error) {
	if userID == "" {
		return domain.PricingProfile{}, nil
	}
	profile := domain.PricingProfile{UserID: userID, IsLoggedIn: true}
	if s.profiles == nil {
		return profile, nil
	}
	found, err := s.profiles.FindPricingProfile(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return profile, nil
		}
		return domain.PricingProfile{}, s.translateRepoError(err)
	}
	found.UserID = userID
	found.IsLoggedIn = true
	return found, nil
}

func (s *pricingService) resolveDefaultTier(ctx context.Context) (string, error) {
	if s.defaultTierID != "" || s.tiers == nil {
		return s.defaultTierID, nil
	}
	id, err := s.tiers.DefaultTierID(ctx)
	if err != nil {
		if isRepoNotFound(err) {
			return "", nil
		}
		return "", s.translateRepoError(err)
	}
	return strings.TrimSpace(id), nil
}

func (s *pricingService) report(ctx context.Context, source string, quote PriceQuote) {
	result := quote.Result
	s.logger(ctx, "pricing_quote", map[string]any{
		"source":        source,
		"productId":     quote.ProductID,
		"priceTierId":   quote.PriceTierID,
		"basePrice":     quote.BasePrice.String(),
		"finalPrice":    result.FinalPrice.String(),
		"totalDiscount": result.TotalDiscount.String(),
	})
	if s.metrics != nil {
		s.metrics.RecordResolution(ctx, observability.PriceOutcome{
			Source:          source,
			PriceTierID:     quote.PriceTierID,
			UsedDefaultTier: quote.UsedDefaultTier,
			Applied:         len(result.Applied),
			Rejected:        len(result.Rejected),
			Warnings:        len(result.Warnings),
			Discounted:      result.TotalDiscount.IsPositive(),
		})
	}
}

func (s *pricingService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrPricingUnavailable, err)
}

func normaliseQuoteCommand(cmd QuoteCommand) (QuoteCommand, error) {
	cmd.ProductID = strings.TrimSpace(cmd.ProductID)
	cmd.ModificationID = strings.TrimSpace(cmd.ModificationID)
	cmd.UserID = strings.TrimSpace(cmd.UserID)
	cmd.PriceTierID = strings.TrimSpace(cmd.PriceTierID)
	cmd.SectionID = strings.TrimSpace(cmd.SectionID)

	if cmd.ProductID == "" {
		return cmd, fmt.Errorf("%w: product id is required", ErrPricingInvalidInput)
	}
	if cmd.Quantity == 0 {
		cmd.Quantity = 1
	}
	if cmd.Quantity < 0 || cmd.Quantity > maxQuoteQuantity {
		return cmd, fmt.Errorf("%w: quantity must be between 1 and %d", ErrPricingInvalidInput, maxQuoteQuantity)
	}
	if cmd.CartTotal.Valid && cmd.CartTotal.Decimal.IsNegative() {
		return cmd, fmt.Errorf("%w: cart total must be non-negative", ErrPricingInvalidInput)
	}
	if cmd.ExistingSubtotal.Valid && cmd.ExistingSubtotal.Decimal.IsNegative() {
		return cmd, fmt.Errorf("%w: order subtotal must be non-negative", ErrPricingInvalidInput)
	}
	return cmd, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
