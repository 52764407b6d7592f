package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricingProfile is what the pricing flow needs to know about a requester.
type PricingProfile struct {
	UserID         string
	UserCategoryID string
	PriceTierID    string
	IsLoggedIn     bool
}

// ProductRef links a product to its catalog section.
type ProductRef struct {
	ID        string
	Name      string
	SectionID string
	IsActive  bool
}

// OrderRef is the minimal order header used when repricing its lines.
type OrderRef struct {
	ID     string
	UserID string
	Status string
}

// OrderItem is a priced order line.
type OrderItem struct {
	ID             string
	OrderID        string
	ProductID      string
	ModificationID string
	Name           string
	Quantity       int
	Price          decimal.Decimal
	Total          decimal.Decimal
	DiscountData   OrderItemDiscountData
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OrderItemDiscountData is the snapshot persisted with an order line.
type OrderItemDiscountData struct {
	BasePrice        decimal.Decimal
	OldPrice         decimal.NullDecimal
	PriceTierID      string
	TotalDiscount    decimal.Decimal
	AppliedDiscounts []AppliedDiscount
	PricedAt         time.Time
}
