package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/VSydorenko/simplyCMS-core-sub001/internal/domain"
	ppostgres "github.com/VSydorenko/simplyCMS-core-sub001/internal/platform/postgres"
	"github.com/VSydorenko/simplyCMS-core-sub001/internal/repositories"
)

const findOrderQuery = `SELECT id, COALESCE(user_id::text, '') AS user_id, status FROM orders WHERE id = $1`

const insertOrderItemQuery = `INSERT INTO order_items
    (id, order_id, product_id, modification_id, name, quantity, price, total, discount_data, created_at, updated_at)
VALUES ($1, $2, $3, NULLIF($4, '')::uuid, $5, $6, $7, $8, $9, $10, $11)`

const updateOrderItemQuery = `UPDATE order_items
SET quantity = $3, price = $4, total = $5, discount_data = $6, updated_at = $7
WHERE id = $1 AND order_id = $2`

const findOrderItemQuery = `SELECT id, order_id, product_id, COALESCE(modification_id::text, '') AS modification_id,
       name, quantity, price, total, discount_data, created_at, updated_at
FROM order_items
WHERE order_id = $1 AND id = $2`

const sumOrderItemsQuery = `SELECT COALESCE(SUM(total), 0) FROM order_items
WHERE order_id = $1 AND ($2 = '' OR id::text <> $2)`

type orderRow struct {
	ID     string `db:"id"`
	UserID string `db:"user_id"`
	Status string `db:"status"`
}

type orderItemRow struct {
	ID             string          `db:"id"`
	OrderID        string          `db:"order_id"`
	ProductID      string          `db:"product_id"`
	ModificationID string          `db:"modification_id"`
	Name           string          `db:"name"`
	Quantity       int             `db:"quantity"`
	Price          decimal.Decimal `db:"price"`
	Total          decimal.Decimal `db:"total"`
	DiscountData   []byte          `db:"discount_data"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

// discountDataDocument is the jsonb layout of order_items.discount_data.
type discountDataDocument struct {
	BasePrice        decimal.Decimal       `json:"basePrice"`
	OldPrice         decimal.NullDecimal   `json:"oldPrice"`
	PriceTypeID      string                `json:"priceTypeId,omitempty"`
	TotalDiscount    decimal.Decimal       `json:"totalDiscount"`
	AppliedDiscounts []appliedDiscountJSON `json:"appliedDiscounts"`
	PricedAt         time.Time             `json:"pricedAt"`
}

type appliedDiscountJSON struct {
	DiscountID       string          `json:"discountId"`
	Name             string          `json:"name"`
	Type             string          `json:"type"`
	Value            decimal.Decimal `json:"value"`
	CalculatedAmount decimal.Decimal `json:"calculatedAmount"`
	GroupID          string          `json:"groupId"`
	GroupName        string          `json:"groupName"`
}

func encodeDiscountData(data domain.OrderItemDiscountData) ([]byte, error) {
	doc := discountDataDocument{
		BasePrice:        data.BasePrice,
		OldPrice:         data.OldPrice,
		PriceTypeID:      data.PriceTierID,
		TotalDiscount:    data.TotalDiscount,
		AppliedDiscounts: make([]appliedDiscountJSON, 0, len(data.AppliedDiscounts)),
		PricedAt:         data.PricedAt.UTC(),
	}
	for _, a := range data.AppliedDiscounts {
		doc.AppliedDiscounts = append(doc.AppliedDiscounts, appliedDiscountJSON{
			DiscountID:       a.DiscountID,
			Name:             a.Name,
			Type:             string(a.Type),
			Value:            a.Value,
			CalculatedAmount: a.CalculatedAmount,
			GroupID:          a.GroupID,
			GroupName:        a.GroupName,
		})
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("order_items: encode discount data: %w", err)
	}
	return payload, nil
}

func decodeDiscountData(raw []byte) (domain.OrderItemDiscountData, error) {
	if len(raw) == 0 {
		return domain.OrderItemDiscountData{}, nil
	}
	var doc discountDataDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.OrderItemDiscountData{}, fmt.Errorf("order_items: decode discount data: %w", err)
	}
	data := domain.OrderItemDiscountData{
		BasePrice:        doc.BasePrice,
		OldPrice:         doc.OldPrice,
		PriceTierID:      doc.PriceTypeID,
		TotalDiscount:    doc.TotalDiscount,
		AppliedDiscounts: make([]domain.AppliedDiscount, 0, len(doc.AppliedDiscounts)),
		PricedAt:         doc.PricedAt.UTC(),
	}
	for _, a := range doc.AppliedDiscounts {
		data.AppliedDiscounts = append(data.AppliedDiscounts, domain.AppliedDiscount{
			DiscountID:       a.DiscountID,
			Name:             a.Name,
			Type:             domain.DiscountType(a.Type),
			Value:            a.Value,
			CalculatedAmount: a.CalculatedAmount,
			GroupID:          a.GroupID,
			GroupName:        a.GroupName,
		})
	}
	return data, nil
}

// OrderRepository reads order headers.
type OrderRepository struct {
	provider *ppostgres.Provider
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs an OrderRepository.
func NewOrderRepository(provider *ppostgres.Provider) *OrderRepository {
	return &OrderRepository{provider: provider}
}

// FindOrder loads an order header.
func (r *OrderRepository) FindOrder(ctx context.Context, orderID string) (domain.OrderRef, error) {
	q, err := r.provider.Executor(ctx)
	if err != nil {
		return domain.OrderRef{}, err
	}
	var row orderRow
	if err := q.GetContext(ctx, &row, findOrderQuery, orderID); err != nil {
		return domain.OrderRef{}, ppostgres.WrapError("orders.find", err)
	}
	return domain.OrderRef{ID: row.ID, UserID: row.UserID, Status: row.Status}, nil
}

// OrderItemRepository persists priced order lines.
type OrderItemRepository struct {
	provider *ppostgres.Provider
}

var _ repositories.OrderItemRepository = (*OrderItemRepository)(nil)

// NewOrderItemRepository constructs an OrderItemRepository.
func NewOrderItemRepository(provider *ppostgres.Provider) *OrderItemRepository {
	return &OrderItemRepository{provider: provider}
}

// Insert stores a new line. A duplicate id surfaces as a conflict.
func (r *OrderItemRepository) Insert(ctx context.Context, item domain.OrderItem) error {
	q, err := r.provider.Executor(ctx)
	if err != nil {
		return err
	}
	payload, err := encodeDiscountData(item.DiscountData)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, insertOrderItemQuery,
		item.ID, item.OrderID, item.ProductID, item.ModificationID, item.Name, item.Quantity,
		item.Price, item.Total, payload, item.CreatedAt.UTC(), item.UpdatedAt.UTC(),
	)
	return ppostgres.WrapError("order_items.insert", err)
}

// Update rewrites the priced fields of an existing line.
func (r *OrderItemRepository) Update(ctx context.Context, item domain.OrderItem) error {
	q, err := r.provider.Executor(ctx)
	if err != nil {
		return err
	}
	payload, err := encodeDiscountData(item.DiscountData)
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, updateOrderItemQuery,
		item.ID, item.OrderID, item.Quantity, item.Price, item.Total, payload, item.UpdatedAt.UTC(),
	)
	if err != nil {
		return ppostgres.WrapError("order_items.update", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return ppostgres.WrapError("order_items.update", err)
	}
	if affected == 0 {
		return ppostgres.NotFound("order_items.update", "order item "+item.ID)
	}
	return nil
}

// FindByID loads a line of orderID.
func (r *OrderItemRepository) FindByID(ctx context.Context, orderID, itemID string) (domain.OrderItem, error) {
	q, err := r.provider.Executor(ctx)
	if err != nil {
		return domain.OrderItem{}, err
	}
	var row orderItemRow
	if err := q.GetContext(ctx, &row, findOrderItemQuery, orderID, itemID); err != nil {
		return domain.OrderItem{}, ppostgres.WrapError("order_items.find", err)
	}
	data, err := decodeDiscountData(row.DiscountData)
	if err != nil {
		return domain.OrderItem{}, err
	}
	return domain.OrderItem{
		ID:             row.ID,
		OrderID:        row.OrderID,
		ProductID:      row.ProductID,
		ModificationID: row.ModificationID,
		Name:           row.Name,
		Quantity:       row.Quantity,
		Price:          row.Price,
		Total:          row.Total,
		DiscountData:   data,
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
	}, nil
}

// SumByOrder totals the lines of orderID, leaving out excludeItemID when it is set.
func (r *OrderItemRepository) SumByOrder(ctx context.Context, orderID, excludeItemID string) (decimal.Decimal, error) {
	q, err := r.provider.Executor(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	var total decimal.Decimal
	if err := q.GetContext(ctx, &total, sumOrderItemsQuery, orderID, excludeItemID); err != nil {
		return decimal.Zero, ppostgres.WrapError("order_items.sum", err)
	}
	return total, nil
}
