// Package postgres implements the repositories over the shop's Postgres schema.
package postgres

import (
	"context"
	"errors"

	ppostgres "github.com/VSydorenko/simplyCMS-core-sub001/internal/platform/postgres"
	"github.com/VSydorenko/simplyCMS-core-sub001/internal/repositories"
)

type registry struct {
	provider   *ppostgres.Provider
	prices     *PriceRepository
	tiers      *PriceTierRepository
	profiles   *ProfileRepository
	catalog    *CatalogRepository
	discounts  *DiscountRepository
	orders     *OrderRepository
	orderItems *OrderItemRepository
}

var _ repositories.Registry = (*registry)(nil)

// NewRegistry wires every Postgres repository onto provider.
func NewRegistry(provider *ppostgres.Provider) (repositories.Registry, error) {
	if provider == nil {
		return nil, errors.New("postgres registry: provider is required")
	}
	return &registry{
		provider:   provider,
		prices:     NewPriceRepository(provider),
		tiers:      NewPriceTierRepository(provider),
		profiles:   NewProfileRepository(provider),
		catalog:    NewCatalogRepository(provider),
		discounts:  NewDiscountRepository(provider),
		orders:     NewOrderRepository(provider),
		orderItems: NewOrderItemRepository(provider),
	}, nil
}

func (r *registry) Close(context.Context) error { return r.provider.Close() }

func (r *registry) Prices() repositories.PriceRepository         { return r.prices }
func (r *registry) PriceTiers() repositories.PriceTierRepository { return r.tiers }
func (r *registry) Profiles() repositories.ProfileRepository     { return r.profiles }
func (r *registry) Catalog() repositories.CatalogRepository      { return r.catalog }
func (r *registry) Discounts() repositories.DiscountRepository   { return r.discounts }
func (r *registry) Orders() repositories.OrderRepository         { return r.orders }
func (r *registry) OrderItems() repositories.OrderItemRepository { return r.orderItems }

func (r *registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.provider.RunInTx(ctx, fn)
}
