package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/VSydorenko/simplyCMS-core-sub001/internal/platform/httpx"
	"github.com/VSydorenko/simplyCMS-core-sub001/internal/platform/requestctx"
	"github.com/VSydorenko/simplyCMS-core-sub001/internal/services"
)

const maxOrderItemBodySize = 4 * 1024

// OrderItemHandlers prices and stores order lines.
type OrderItemHandlers struct {
	items services.OrderItemService
}

// NewOrderItemHandlers wires the order line endpoints.
func NewOrderItemHandlers(items services.OrderItemService) *OrderItemHandlers {
	return &OrderItemHandlers{items: items}
}

// Routes registers the /orders endpoints.
func (h *OrderItemHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/{orderId}/items", h.addItem)
	r.Post("/{orderId}/items/{itemId}:reprice", h.repriceItem)
}

type addOrderItemRequest struct {
	ProductID      string `json:"productId"`
	ModificationID string `json:"modificationId"`
	Quantity       int    `json:"quantity"`
}

type repriceOrderItemRequest struct {
	Quantity int `json:"quantity"`
}

type orderItemResponse struct {
	ID             string                       `json:"id"`
	OrderID        string                       `json:"orderId"`
	ProductID      string                       `json:"productId"`
	ModificationID string                       `json:"modificationId,omitempty"`
	Name           string                       `json:"name"`
	Quantity       int                          `json:"quantity"`
	Price          decimal.Decimal              `json:"price"`
	Total          decimal.Decimal              `json:"total"`
	DiscountData   orderItemDiscountDataPayload `json:"discountData"`
	CreatedAt      string                       `json:"createdAt"`
	UpdatedAt      string                       `json:"updatedAt"`
}

type orderItemDiscountDataPayload struct {
	BasePrice        decimal.Decimal     `json:"basePrice"`
	OldPrice         decimal.NullDecimal `json:"oldPrice"`
	PriceTypeID      string              `json:"priceTypeId,omitempty"`
	TotalDiscount    decimal.Decimal     `json:"totalDiscount"`
	AppliedDiscounts []appliedPayload    `json:"appliedDiscounts"`
	PricedAt         string              `json:"pricedAt"`
}

func (h *OrderItemHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.items == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	orderID, ok := pathUUID(ctx, w, r, "orderId")
	if !ok {
		return
	}

	var req addOrderItemRequest
	if err := decodeJSONBody(r, maxOrderItemBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	productID := strings.TrimSpace(req.ProductID)
	if _, err := uuid.Parse(productID); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "productId must be a UUID", http.StatusBadRequest).WithField("productId"))
		return
	}
	modificationID := strings.TrimSpace(req.ModificationID)
	if modificationID != "" {
		if _, err := uuid.Parse(modificationID); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "modificationId must be a UUID", http.StatusBadRequest).WithField("modificationId"))
			return
		}
	}
	if req.Quantity <= 0 || req.Quantity > maxQuoteQuantity {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "quantity must be between 1 and 1000000", http.StatusBadRequest).WithField("quantity"))
		return
	}

	item, err := h.items.AddItem(ctx, services.AddOrderItemCommand{
		OrderID:        orderID,
		ProductID:      productID,
		ModificationID: modificationID,
		Quantity:       req.Quantity,
		ActorID:        actorID(ctx),
	})
	if err != nil {
		writeOrderItemError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, orderItemPayload(item))
}

func (h *OrderItemHandlers) repriceItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.items == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	orderID, ok := pathUUID(ctx, w, r, "orderId")
	if !ok {
		return
	}
	itemID, ok := pathUUID(ctx, w, r, "itemId")
	if !ok {
		return
	}

	// An empty body reprices at the stored quantity.
	var req repriceOrderItemRequest
	if err := decodeJSONBody(r, maxOrderItemBodySize, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeBodyError(ctx, w, err)
		return
	}
	if req.Quantity < 0 || req.Quantity > maxQuoteQuantity {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "quantity must be between 1 and 1000000", http.StatusBadRequest).WithField("quantity"))
		return
	}

	item, err := h.items.RepriceItem(ctx, services.RepriceOrderItemCommand{
		OrderID:  orderID,
		ItemID:   itemID,
		Quantity: req.Quantity,
		ActorID:  actorID(ctx),
	})
	if err != nil {
		writeOrderItemError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderItemPayload(item))
}

func pathUUID(ctx context.Context, w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	parsed, err := uuid.Parse(raw)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", name+" must be a UUID", http.StatusBadRequest).WithField(name))
		return "", false
	}
	return parsed.String(), true
}

func actorID(ctx context.Context) string {
	if caller, ok := requestctx.CallerFrom(ctx); ok {
		return caller.UserID
	}
	return ""
}

func orderItemPayload(item services.OrderItem) orderItemResponse {
	data := item.DiscountData
	applied := make([]appliedPayload, 0, len(data.AppliedDiscounts))
	for _, a := range data.AppliedDiscounts {
		applied = append(applied, appliedPayload{
			DiscountID:       a.DiscountID,
			Name:             a.Name,
			Type:             string(a.Type),
			Value:            a.Value,
			CalculatedAmount: a.CalculatedAmount,
			GroupID:          a.GroupID,
			GroupName:        a.GroupName,
		})
	}
	return orderItemResponse{
		ID:             item.ID,
		OrderID:        item.OrderID,
		ProductID:      item.ProductID,
		ModificationID: item.ModificationID,
		Name:           item.Name,
		Quantity:       item.Quantity,
		Price:          item.Price,
		Total:          item.Total,
		DiscountData: orderItemDiscountDataPayload{
			BasePrice:        data.BasePrice,
			OldPrice:         data.OldPrice,
			PriceTypeID:      data.PriceTierID,
			TotalDiscount:    data.TotalDiscount,
			AppliedDiscounts: applied,
			PricedAt:         formatTime(data.PricedAt),
		},
		CreatedAt: formatTime(item.CreatedAt),
		UpdatedAt: formatTime(item.UpdatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func writeOrderItemError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderItemInvalidInput), errors.Is(err, services.ErrPricingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_item_not_found", "order item not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderClosed):
		httpx.WriteError(ctx, w, httpx.NewError("order_closed", "order no longer accepts changes", http.StatusConflict))
	case errors.Is(err, services.ErrOrderItemConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_item_conflict", "order item was modified concurrently", http.StatusConflict))
	case errors.Is(err, services.ErrOrderItemUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service temporarily unavailable", http.StatusServiceUnavailable))
	default:
		writePricingError(ctx, w, err)
	}
}
