package repositories

import (
	"context"

	"github.com/shopspring/decimal"

	domain "github.com/VSydorenko/simplyCMS-core-sub001/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Prices() PriceRepository
	PriceTiers() PriceTierRepository
	Profiles() ProfileRepository
	Catalog() CatalogRepository
	Discounts() DiscountRepository
	Orders() OrderRepository
	OrderItems() OrderItemRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PriceRepository reads per-tier product prices.
type PriceRepository interface {
	// ListByProduct returns every price row of the product across tiers and modifications,
	// in storage order. An unknown product yields an empty slice, not an error.
	ListByProduct(ctx context.Context, productID string) ([]domain.PriceEntry, error)
}

// PriceTierRepository resolves the tier used when a requester has none.
type PriceTierRepository interface {
	DefaultTierID(ctx context.Context) (string, error)
}

// ProfileRepository loads the pricing-relevant part of a user profile.
type ProfileRepository interface {
	FindPricingProfile(ctx context.Context, userID string) (domain.PricingProfile, error)
}

// CatalogRepository resolves product metadata needed for target matching.
type CatalogRepository interface {
	FindProduct(ctx context.Context, productID string) (domain.ProductRef, error)
}

// DiscountRepository returns the flat discount configuration attached to a price tier.
type DiscountRepository interface {
	ListRowsByPriceTier(ctx context.Context, priceTierID string) (domain.DiscountRows, error)
}

// OrderRepository reads order headers.
type OrderRepository interface {
	FindOrder(ctx context.Context, orderID string) (domain.OrderRef, error)
}

// OrderItemRepository persists priced order lines.
type OrderItemRepository interface {
	Insert(ctx context.Context, item domain.OrderItem) error
	Update(ctx context.Context, item domain.OrderItem) error
	FindByID(ctx context.Context, orderID, itemID string) (domain.OrderItem, error)
	// SumByOrder totals the lines of the order, skipping excludeItemID when non-empty.
	SumByOrder(ctx context.Context, orderID, excludeItemID string) (decimal.Decimal, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
