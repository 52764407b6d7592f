package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"

	domain "github.com/VSydorenko/simplyCMS-core-sub001/internal/domain"
	"github.com/VSydorenko/simplyCMS-core-sub001/internal/platform/httpx"
	"github.com/VSydorenko/simplyCMS-core-sub001/internal/platform/requestctx"
	"github.com/VSydorenko/simplyCMS-core-sub001/internal/pricing"
	"github.com/VSydorenko/simplyCMS-core-sub001/internal/services"
)

const (
	maxQuoteBodySize    = 4 * 1024
	maxEvaluateBodySize = 256 * 1024
	maxQuoteQuantity    = 1_000_000

	defaultEvaluateLimit  = 60
	defaultEvaluateWindow = time.Minute
)

// PricingHandlers exposes price quotes and storage-free evaluation.
type PricingHandlers struct {
	pricing services.PricingService
	limiter *windowLimiter
	policy  *bluemonday.Policy
}

// PricingHandlerOption customises PricingHandlers.
type PricingHandlerOption func(*pricingHandlerConfig)

type pricingHandlerConfig struct {
	limit  int
	window time.Duration
	clock  func() time.Time
}

// WithEvaluateRateLimit bounds /pricing:evaluate calls per caller. A non-positive limit disables it.
func WithEvaluateRateLimit(limit int, window time.Duration) PricingHandlerOption {
	return func(cfg *pricingHandlerConfig) {
		cfg.limit = limit
		cfg.window = window
	}
}

// WithPricingHandlerClock overrides the limiter clock.
func WithPricingHandlerClock(clock func() time.Time) PricingHandlerOption {
	return func(cfg *pricingHandlerConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// NewPricingHandlers wires the pricing endpoints.
func NewPricingHandlers(pricingService services.PricingService, opts ...PricingHandlerOption) *PricingHandlers {
	cfg := pricingHandlerConfig{limit: defaultEvaluateLimit, window: defaultEvaluateWindow, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &PricingHandlers{
		pricing: pricingService,
		limiter: newWindowLimiter(cfg.limit, cfg.window, cfg.clock),
		policy:  bluemonday.StrictPolicy(),
	}
}

// Routes registers the pricing endpoints.
func (h *PricingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/pricing:quote", h.quote)
	r.With(rateLimit(h.limiter, callerKey)).Post("/pricing:evaluate", h.evaluate)
}

type quoteRequest struct {
	ProductID      string              `json:"productId"`
	ModificationID string              `json:"modificationId"`
	UserID         string              `json:"userId"`
	PriceTypeID    string              `json:"priceTypeId"`
	SectionID      string              `json:"sectionId"`
	Quantity       int                 `json:"quantity"`
	CartTotal      decimal.NullDecimal `json:"cartTotal"`
	Now            *time.Time          `json:"now"`
}

func (h *PricingHandlers) quote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pricing == nil {
		httpx.WriteError(ctx, w, httpx.NewError("pricing_service_unavailable", "pricing service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req quoteRequest
	if err := decodeJSONBody(r, maxQuoteBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if strings.TrimSpace(req.ProductID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "productId is required", http.StatusBadRequest).WithField("productId"))
		return
	}
	if req.Quantity < 0 || req.Quantity > maxQuoteQuantity {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "quantity must be between 0 and 1000000", http.StatusBadRequest).WithField("quantity"))
		return
	}
	if req.CartTotal.Valid && req.CartTotal.Decimal.IsNegative() {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "cartTotal must not be negative", http.StatusBadRequest).WithField("cartTotal"))
		return
	}

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		if caller, ok := requestctx.CallerFrom(ctx); ok {
			userID = caller.UserID
		}
	}

	cmd := services.QuoteCommand{
		ProductID:      strings.TrimSpace(req.ProductID),
		ModificationID: strings.TrimSpace(req.ModificationID),
		UserID:         userID,
		PriceTierID:    strings.TrimSpace(req.PriceTypeID),
		SectionID:      strings.TrimSpace(req.SectionID),
		Quantity:       req.Quantity,
		CartTotal:      req.CartTotal,
	}
	if req.Now != nil {
		cmd.Now = req.Now.UTC()
	}

	quote, err := h.pricing.Quote(ctx, cmd)
	if err != nil {
		writePricingError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, h.quotePayload(quote))
}

type evaluateRequest struct {
	Prices             []priceEntryPayload    `json:"prices"`
	Groups             []discountGroupPayload `json:"groups"`
	PriceTypeID        string                 `json:"priceTypeId"`
	DefaultPriceTypeID string                 `json:"defaultPriceTypeId"`
	Context            discountContextPayload `json:"context"`
	Now                *time.Time             `json:"now"`
}

type priceEntryPayload struct {
	PriceTypeID    string              `json:"priceTypeId"`
	ProductID      string              `json:"productId"`
	ModificationID string              `json:"modificationId"`
	Price          decimal.Decimal     `json:"price"`
	OldPrice       decimal.NullDecimal `json:"oldPrice"`
}

type discountGroupPayload struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Operator    string                 `json:"operator"`
	IsActive    *bool                  `json:"isActive"`
	Priority    int                    `json:"priority"`
	StartsAt    *time.Time             `json:"startsAt"`
	EndsAt      *time.Time             `json:"endsAt"`
	PriceTypeID string                 `json:"priceTypeId"`
	Discounts   []discountPayload      `json:"discounts"`
	Children    []discountGroupPayload `json:"children"`
}

type discountPayload struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Type       string             `json:"type"`
	Value      decimal.Decimal    `json:"value"`
	Priority   int                `json:"priority"`
	IsActive   *bool              `json:"isActive"`
	StartsAt   *time.Time         `json:"startsAt"`
	EndsAt     *time.Time         `json:"endsAt"`
	Targets    []targetPayload    `json:"targets"`
	Conditions []conditionPayload `json:"conditions"`
}

type targetPayload struct {
	Type     string `json:"type"`
	TargetID string `json:"targetId"`
}

type conditionPayload struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Operator string          `json:"operator"`
	Value    json.RawMessage `json:"value"`
}

type discountContextPayload struct {
	UserID         string          `json:"userId"`
	UserCategoryID string          `json:"userCategoryId"`
	Quantity       int             `json:"quantity"`
	CartTotal      decimal.Decimal `json:"cartTotal"`
	ProductID      string          `json:"productId"`
	ModificationID string          `json:"modificationId"`
	SectionID      string          `json:"sectionId"`
	IsLoggedIn     bool            `json:"isLoggedIn"`
}

func (h *PricingHandlers) evaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pricing == nil {
		httpx.WriteError(ctx, w, httpx.NewError("pricing_service_unavailable", "pricing service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req evaluateRequest
	if err := decodeJSONBody(r, maxEvaluateBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if len(req.Prices) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "prices must contain at least one entry", http.StatusBadRequest).WithField("prices"))
		return
	}
	for _, p := range req.Prices {
		if p.Price.IsNegative() {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "price must not be negative", http.StatusBadRequest).WithField("prices"))
			return
		}
	}

	cmd := services.EvaluateCommand{
		PriceTierID:   req.PriceTypeID,
		DefaultTierID: req.DefaultPriceTypeID,
		Context: domain.DiscountContext{
			UserID:         strings.TrimSpace(req.Context.UserID),
			UserCategoryID: strings.TrimSpace(req.Context.UserCategoryID),
			Quantity:       req.Context.Quantity,
			CartTotal:      req.Context.CartTotal,
			ProductID:      req.Context.ProductID,
			ModificationID: req.Context.ModificationID,
			SectionID:      strings.TrimSpace(req.Context.SectionID),
			IsLoggedIn:     req.Context.IsLoggedIn,
		},
		Prices: make([]domain.PriceEntry, 0, len(req.Prices)),
		Groups: make([]domain.DiscountGroup, 0, len(req.Groups)),
	}
	for _, p := range req.Prices {
		cmd.Prices = append(cmd.Prices, domain.PriceEntry{
			PriceTierID:    strings.TrimSpace(p.PriceTypeID),
			ProductID:      strings.TrimSpace(p.ProductID),
			ModificationID: strings.TrimSpace(p.ModificationID),
			Price:          p.Price,
			OldPrice:       p.OldPrice,
		})
	}
	for _, g := range req.Groups {
		cmd.Groups = append(cmd.Groups, g.toDomain(""))
	}
	if req.Now != nil {
		cmd.Now = req.Now.UTC()
	}

	quote, err := h.pricing.Evaluate(ctx, cmd)
	if err != nil {
		writePricingError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, h.quotePayload(quote))
}

func (g discountGroupPayload) toDomain(parentTier string) domain.DiscountGroup {
	tier := strings.TrimSpace(g.PriceTypeID)
	if tier == "" {
		tier = parentTier
	}
	group := domain.DiscountGroup{
		ID:          strings.TrimSpace(g.ID),
		Name:        g.Name,
		Operator:    domain.GroupOperator(strings.ToLower(strings.TrimSpace(g.Operator))),
		IsActive:    activeFlag(g.IsActive),
		Priority:    g.Priority,
		StartsAt:    timeValue(g.StartsAt),
		EndsAt:      timeValue(g.EndsAt),
		PriceTierID: tier,
	}
	for _, d := range g.Discounts {
		group.Discounts = append(group.Discounts, d.toDomain(group.ID))
	}
	for _, child := range g.Children {
		group.Children = append(group.Children, child.toDomain(tier))
	}
	return group
}

func (d discountPayload) toDomain(groupID string) domain.Discount {
	discount := domain.Discount{
		ID:       strings.TrimSpace(d.ID),
		GroupID:  groupID,
		Name:     d.Name,
		Type:     domain.DiscountType(strings.ToLower(strings.TrimSpace(d.Type))),
		Value:    d.Value,
		Priority: d.Priority,
		IsActive: activeFlag(d.IsActive),
		StartsAt: timeValue(d.StartsAt),
		EndsAt:   timeValue(d.EndsAt),
	}
	for _, t := range d.Targets {
		discount.Targets = append(discount.Targets, domain.DiscountTarget{
			Type:     domain.TargetType(strings.ToLower(strings.TrimSpace(t.Type))),
			TargetID: strings.TrimSpace(t.TargetID),
		})
	}
	for _, c := range d.Conditions {
		discount.Conditions = append(discount.Conditions, pricing.DecodeCondition(domain.DiscountConditionRow{
			ID:            c.ID,
			DiscountID:    discount.ID,
			ConditionType: c.Type,
			Operator:      c.Operator,
			Value:         c.Value,
		}))
	}
	return discount
}

func activeFlag(v *bool) bool {
	if v == nil {
		return true
	}
	return *v
}

func timeValue(v *time.Time) time.Time {
	if v == nil {
		return time.Time{}
	}
	return v.UTC()
}

type quoteResponse struct {
	ProductID            string                 `json:"productId"`
	ProductName          string                 `json:"productName,omitempty"`
	ModificationID       string                 `json:"modificationId,omitempty"`
	RequestedPriceTypeID string                 `json:"requestedPriceTypeId,omitempty"`
	PriceTypeID          string                 `json:"priceTypeId"`
	UsedDefaultPriceType bool                   `json:"usedDefaultPriceType"`
	BasePrice            decimal.Decimal        `json:"basePrice"`
	OldPrice             decimal.NullDecimal    `json:"oldPrice"`
	FinalPrice           decimal.Decimal        `json:"finalPrice"`
	TotalDiscount        decimal.Decimal        `json:"totalDiscount"`
	Context              discountContextPayload `json:"context"`
	Applied              []appliedPayload       `json:"appliedDiscounts"`
	Rejected             []rejectedPayload      `json:"rejectedDiscounts"`
	Warnings             []warningPayload       `json:"warnings"`
	Steps                []stepPayload          `json:"steps"`
	PricedAt             string                 `json:"pricedAt"`
}

type appliedPayload struct {
	DiscountID       string          `json:"discountId"`
	Name             string          `json:"name"`
	Type             string          `json:"type"`
	Value            decimal.Decimal `json:"value"`
	CalculatedAmount decimal.Decimal `json:"calculatedAmount"`
	GroupID          string          `json:"groupId"`
	GroupName        string          `json:"groupName"`
}

type rejectedPayload struct {
	DiscountID string `json:"discountId"`
	Name       string `json:"name"`
	GroupID    string `json:"groupId"`
	GroupName  string `json:"groupName"`
	Reason     string `json:"reason"`
}

type warningPayload struct {
	Code       string `json:"code"`
	GroupID    string `json:"groupId,omitempty"`
	DiscountID string `json:"discountId,omitempty"`
	Message    string `json:"message"`
}

type stepPayload struct {
	Name   string `json:"name"`
	Detail string `json:"detail"`
}

func (h *PricingHandlers) quotePayload(q services.PriceQuote) quoteResponse {
	resp := quoteResponse{
		ProductID:            q.ProductID,
		ProductName:          h.clean(q.ProductName),
		ModificationID:       q.ModificationID,
		RequestedPriceTypeID: q.RequestedTierID,
		PriceTypeID:          q.PriceTierID,
		UsedDefaultPriceType: q.UsedDefaultTier,
		BasePrice:            q.BasePrice,
		OldPrice:             q.OldPrice,
		FinalPrice:           q.Result.FinalPrice,
		TotalDiscount:        q.Result.TotalDiscount,
		Context: discountContextPayload{
			UserID:         q.Context.UserID,
			UserCategoryID: q.Context.UserCategoryID,
			Quantity:       q.Context.Quantity,
			CartTotal:      q.Context.CartTotal,
			ProductID:      q.Context.ProductID,
			ModificationID: q.Context.ModificationID,
			SectionID:      q.Context.SectionID,
			IsLoggedIn:     q.Context.IsLoggedIn,
		},
		Applied:  make([]appliedPayload, 0, len(q.Result.Applied)),
		Rejected: make([]rejectedPayload, 0, len(q.Result.Rejected)),
		Warnings: make([]warningPayload, 0, len(q.Result.Warnings)),
		Steps:    make([]stepPayload, 0, len(q.Steps)),
		PricedAt: q.PricedAt.UTC().Format(time.RFC3339),
	}
	for _, a := range q.Result.Applied {
		resp.Applied = append(resp.Applied, appliedPayload{
			DiscountID:       a.DiscountID,
			Name:             h.clean(a.Name),
			Type:             string(a.Type),
			Value:            a.Value,
			CalculatedAmount: a.CalculatedAmount,
			GroupID:          a.GroupID,
			GroupName:        h.clean(a.GroupName),
		})
	}
	for _, rj := range q.Result.Rejected {
		resp.Rejected = append(resp.Rejected, rejectedPayload{
			DiscountID: rj.DiscountID,
			Name:       h.clean(rj.Name),
			GroupID:    rj.GroupID,
			GroupName:  h.clean(rj.GroupName),
			Reason:     rj.Reason,
		})
	}
	for _, wn := range q.Result.Warnings {
		resp.Warnings = append(resp.Warnings, warningPayload{
			Code:       string(wn.Code),
			GroupID:    wn.GroupID,
			DiscountID: wn.DiscountID,
			Message:    h.clean(wn.Message),
		})
	}
	for _, s := range q.Steps {
		resp.Steps = append(resp.Steps, stepPayload{Name: s.Name, Detail: h.clean(s.Detail)})
	}
	return resp
}

// clean strips markup from admin entered labels before they are echoed back.
func (h *PricingHandlers) clean(value string) string {
	if value == "" || h.policy == nil {
		return value
	}
	return strings.TrimSpace(h.policy.Sanitize(value))
}

func callerKey(r *http.Request) string {
	if caller, ok := requestctx.CallerFrom(r.Context()); ok {
		return "user:" + caller.UserID
	}
	return "ip:" + r.RemoteAddr
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body too large", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON: "+err.Error(), http.StatusBadRequest))
	}
}

func writePricingError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrPricingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPriceUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("price_unavailable", "no price is configured for this product", http.StatusNotFound))
	case errors.Is(err, services.ErrPricingConfiguration):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_discount_configuration", "discount configuration is invalid", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrPricingUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("pricing_unavailable", "pricing temporarily unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "pricing timed out", http.StatusGatewayTimeout))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to price product", http.StatusInternalServerError))
	}
}
