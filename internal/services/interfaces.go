package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/VSydorenko/simplyCMS-core-sub001/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	PriceEntry            = domain.PriceEntry
	PriceResolution       = domain.PriceResolution
	DiscountGroup         = domain.DiscountGroup
	DiscountContext       = domain.DiscountContext
	ResolutionResult      = domain.ResolutionResult
	AppliedDiscount       = domain.AppliedDiscount
	RejectedDiscount      = domain.RejectedDiscount
	EvaluationWarning     = domain.EvaluationWarning
	OrderItem             = domain.OrderItem
	OrderItemDiscountData = domain.OrderItemDiscountData
	SystemHealthReport    = domain.SystemHealthReport
)

// PricingService resolves base prices and discounts for a single product or variant.
type PricingService interface {
	// Quote prices a product for a requester using stored prices and discount configuration.
	Quote(ctx context.Context, cmd QuoteCommand) (PriceQuote, error)
	// Evaluate prices a caller supplied configuration without touching storage.
	Evaluate(ctx context.Context, cmd EvaluateCommand) (PriceQuote, error)
}

// OrderItemService prices order lines and persists the outcome.
type OrderItemService interface {
	AddItem(ctx context.Context, cmd AddOrderItemCommand) (OrderItem, error)
	RepriceItem(ctx context.Context, cmd RepriceOrderItemCommand) (OrderItem, error)
}

// SystemService exposes health information.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// OrderItemEventPublisher emits an event after an order line has been priced.
type OrderItemEventPublisher interface {
	PublishOrderItemPriced(ctx context.Context, event OrderItemPricedEvent) (string, error)
}

// QuoteCommand describes one price computation. PriceTierID overrides the requester's tier and
// SectionID overrides the product's catalog section; both are meant for diagnostics.
type QuoteCommand struct {
	ProductID      string
	ModificationID string
	UserID         string
	PriceTierID    string
	SectionID      string
	Quantity       int
	// CartTotal is used verbatim when valid. Otherwise the cart total is ExistingSubtotal
	// (zero when invalid) plus basePrice*Quantity.
	CartTotal        decimal.NullDecimal
	ExistingSubtotal decimal.NullDecimal
	Now              time.Time
}

// EvaluateCommand carries a complete pricing configuration for storage-free evaluation.
type EvaluateCommand struct {
	Prices        []PriceEntry
	Groups        []DiscountGroup
	PriceTierID   string
	DefaultTierID string
	Context       DiscountContext
	Now           time.Time
}

// QuoteStep is one diagnostic line describing how a quote was reached.
type QuoteStep struct {
	Name   string
	Detail string
}

// PriceQuote is the priced outcome together with the inputs that produced it.
type PriceQuote struct {
	ProductID       string
	ProductName     string
	ModificationID  string
	RequestedTierID string
	PriceTierID     string
	UsedDefaultTier bool
	BasePrice       decimal.Decimal
	OldPrice        decimal.NullDecimal
	Context         DiscountContext
	Result          ResolutionResult
	Steps           []QuoteStep
	PricedAt        time.Time
}

// AddOrderItemCommand adds a priced line to an order.
type AddOrderItemCommand struct {
	OrderID        string
	ProductID      string
	ModificationID string
	Quantity       int
	ActorID        string
}

// RepriceOrderItemCommand recomputes an existing line. A positive Quantity replaces the stored one.
type RepriceOrderItemCommand struct {
	OrderID  string
	ItemID   string
	Quantity int
	ActorID  string
}

// OrderItemPricedEvent is published once per persisted order line price.
type OrderItemPricedEvent struct {
	EventID        string          `json:"eventId"`
	Type           string          `json:"type"`
	Reason         string          `json:"reason"`
	OrderID        string          `json:"orderId"`
	ItemID         string          `json:"itemId"`
	ProductID      string          `json:"productId"`
	ModificationID string          `json:"modificationId,omitempty"`
	Quantity       int             `json:"quantity"`
	BasePrice      decimal.Decimal `json:"basePrice"`
	Price          decimal.Decimal `json:"price"`
	Total          decimal.Decimal `json:"total"`
	TotalDiscount  decimal.Decimal `json:"totalDiscount"`
	PriceTierID    string          `json:"priceTierId,omitempty"`
	DiscountIDs    []string        `json:"discountIds"`
	ActorID        string          `json:"actorId,omitempty"`
	OccurredAt     time.Time       `json:"occurredAt"`
}

const (
	// OrderItemPricedEventType identifies OrderItemPricedEvent messages.
	OrderItemPricedEventType = "order_item.priced"
	OrderItemReasonAdded     = "added"
	OrderItemReasonRepriced  = "repriced"
)
