package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/VSydorenko/simplyCMS-core-sub001/internal/domain"
	ppostgres "github.com/VSydorenko/simplyCMS-core-sub001/internal/platform/postgres"
	"github.com/VSydorenko/simplyCMS-core-sub001/internal/repositories"
)

const listPricesByProductQuery = `SELECT price_type_id, product_id, COALESCE(modification_id::text, '') AS modification_id, price, old_price
FROM prices
WHERE product_id = $1
ORDER BY created_at, id`

const defaultTierQuery = `SELECT id FROM price_types WHERE is_default = true ORDER BY sort_order, id LIMIT 1`

type priceRow struct {
	PriceTypeID    string              `db:"price_type_id"`
	ProductID      string              `db:"product_id"`
	ModificationID string              `db:"modification_id"`
	Price          decimal.Decimal     `db:"price"`
	OldPrice       decimal.NullDecimal `db:"old_price"`
}

// PriceRepository reads the prices table.
type PriceRepository struct {
	provider *ppostgres.Provider
}

var _ repositories.PriceRepository = (*PriceRepository)(nil)

// NewPriceRepository constructs a PriceRepository.
func NewPriceRepository(provider *ppostgres.Provider) *PriceRepository {
	return &PriceRepository{provider: provider}
}

// ListByProduct returns the product's price rows in insertion order so "first match wins"
// stays stable across calls.
func (r *PriceRepository) ListByProduct(ctx context.Context, productID string) ([]domain.PriceEntry, error) {
	q, err := r.provider.Executor(ctx)
	if err != nil {
		return nil, err
	}
	var rows []priceRow
	if err := q.SelectContext(ctx, &rows, listPricesByProductQuery, productID); err != nil {
		return nil, ppostgres.WrapError("prices.list_by_product", err)
	}
	entries := make([]domain.PriceEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, domain.PriceEntry{
			PriceTierID:    row.PriceTypeID,
			ProductID:      row.ProductID,
			ModificationID: row.ModificationID,
			Price:          row.Price,
			OldPrice:       row.OldPrice,
		})
	}
	return entries, nil
}

// PriceTierRepository reads the price_types table.
type PriceTierRepository struct {
	provider *ppostgres.Provider
}

var _ repositories.PriceTierRepository = (*PriceTierRepository)(nil)

// NewPriceTierRepository constructs a PriceTierRepository.
func NewPriceTierRepository(provider *ppostgres.Provider) *PriceTierRepository {
	return &PriceTierRepository{provider: provider}
}

// DefaultTierID returns the price type flagged as default. A shop without one is reported as
// not found.
func (r *PriceTierRepository) DefaultTierID(ctx context.Context) (string, error) {
	q, err := r.provider.Executor(ctx)
	if err != nil {
		return "", err
	}
	var id sql.NullString
	if err := q.GetContext(ctx, &id, defaultTierQuery); err != nil {
		return "", ppostgres.WrapError("price_types.default", err)
	}
	if strings.TrimSpace(id.String) == "" {
		return "", ppostgres.NotFound("price_types.default", "default price type")
	}
	return id.String, nil
}
