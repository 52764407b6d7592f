package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	domain "github.com/VSydorenko/simplyCMS-core-sub001/internal/domain"
	"github.com/VSydorenko/simplyCMS-core-sub001/internal/pricing"
	"github.com/VSydorenko/simplyCMS-core-sub001/internal/repositories"
)

var closedOrderStatuses = map[string]struct{}{
	"completed": {},
	"cancelled": {},
	"refunded":  {},
}

type orderItemStore interface {
	repositories.UnitOfWork
	Orders() repositories.OrderRepository
	OrderItems() repositories.OrderItemRepository
}

// OrderItemServiceDeps wires the collaborators used to price order lines.
type OrderItemServiceDeps struct {
	Store       orderItemStore
	Pricing     PricingService
	Publisher   OrderItemEventPublisher
	Precision   int32
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type orderItemService struct {
	store     orderItemStore
	pricing   PricingService
	publisher OrderItemEventPublisher
	precision int32
	now       func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

var _ OrderItemService = (*orderItemService)(nil)

// NewOrderItemService constructs an OrderItemService enforcing dependency validation.
func NewOrderItemService(deps OrderItemServiceDeps) (OrderItemService, error) {
	if deps.Store == nil {
		return nil, errors.New("order item service: store is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("order item service: pricing service is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = uuid.NewString
	}
	precision := deps.Precision
	if precision < 0 {
		precision = pricing.DefaultPrecision
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &orderItemService{
		store:     deps.Store,
		pricing:   deps.Pricing,
		publisher: deps.Publisher,
		precision: precision,
		now:       func() time.Time { return clock().UTC() },
		newID:     idGen,
		logger:    logger,
	}, nil
}

// AddItem prices a new line for the order's customer and stores it. The cart total seen by
// order amount conditions is the order's current subtotal plus this line at base price.
func (s *orderItemService) AddItem(ctx context.Context, cmd AddOrderItemCommand) (OrderItem, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	productID := strings.TrimSpace(cmd.ProductID)
	if orderID == "" || productID == "" {
		return OrderItem{}, fmt.Errorf("%w: order id and product id are required", ErrOrderItemInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return OrderItem{}, fmt.Errorf("%w: quantity must be positive", ErrOrderItemInvalidInput)
	}

	var item OrderItem
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		order, err := s.loadOpenOrder(ctx, orderID)
		if err != nil {
			return err
		}
		subtotal, err := s.store.OrderItems().SumByOrder(ctx, orderID, "")
		if err != nil {
			return s.translateRepoError(err)
		}

		quote, err := s.pricing.Quote(ctx, QuoteCommand{
			ProductID:        productID,
			ModificationID:   strings.TrimSpace(cmd.ModificationID),
			UserID:           order.UserID,
			Quantity:         cmd.Quantity,
			ExistingSubtotal: decimal.NewNullDecimal(subtotal),
		})
		if err != nil {
			return err
		}

		now := s.now()
		item = OrderItem{
			ID:             s.newID(),
			OrderID:        orderID,
			ProductID:      productID,
			ModificationID: quote.ModificationID,
			Name:           quote.ProductName,
			Quantity:       cmd.Quantity,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		s.applyQuote(&item, quote)

		if err := s.store.OrderItems().Insert(ctx, item); err != nil {
			return s.translateRepoError(err)
		}
		return nil
	})
	if err != nil {
		return OrderItem{}, err
	}

	s.publish(ctx, item, OrderItemReasonAdded, cmd.ActorID)
	return item, nil
}

// RepriceItem recomputes an existing line against the current configuration.
func (s *orderItemService) RepriceItem(ctx context.Context, cmd RepriceOrderItemCommand) (OrderItem, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	itemID := strings.TrimSpace(cmd.ItemID)
	if orderID == "" || itemID == "" {
		return OrderItem{}, fmt.Errorf("%w: order id and item id are required", ErrOrderItemInvalidInput)
	}
	if cmd.Quantity < 0 {
		return OrderItem{}, fmt.Errorf("%w: quantity must be positive", ErrOrderItemInvalidInput)
	}

	var item OrderItem
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		order, err := s.loadOpenOrder(ctx, orderID)
		if err != nil {
			return err
		}
		existing, err := s.store.OrderItems().FindByID(ctx, orderID, itemID)
		if err != nil {
			if isRepoNotFound(err) {
				return fmt.Errorf("%w: %s", ErrOrderItemNotFound, itemID)
			}
			return s.translateRepoError(err)
		}
		if cmd.Quantity > 0 {
			existing.Quantity = cmd.Quantity
		}
		subtotal, err := s.store.OrderItems().SumByOrder(ctx, orderID, itemID)
		if err != nil {
			return s.translateRepoError(err)
		}

		quote, err := s.pricing.Quote(ctx, QuoteCommand{
			ProductID:        existing.ProductID,
			ModificationID:   existing.ModificationID,
			UserID:           order.UserID,
			Quantity:         existing.Quantity,
			ExistingSubtotal: decimal.NewNullDecimal(subtotal),
		})
		if err != nil {
			return err
		}

		existing.UpdatedAt = s.now()
		s.applyQuote(&existing, quote)
		if err := s.store.OrderItems().Update(ctx, existing); err != nil {
			if isRepoNotFound(err) {
				return fmt.Errorf("%w: %s", ErrOrderItemNotFound, itemID)
			}
			return s.translateRepoError(err)
		}
		item = existing
		return nil
	})
	if err != nil {
		return OrderItem{}, err
	}

	s.publish(ctx, item, OrderItemReasonRepriced, cmd.ActorID)
	return item, nil
}

func (s *orderItemService) loadOpenOrder(ctx context.Context, orderID string) (domain.OrderRef, error) {
	order, err := s.store.Orders().FindOrder(ctx, orderID)
	if err != nil {
		if isRepoNotFound(err) {
			return domain.OrderRef{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		return domain.OrderRef{}, s.translateRepoError(err)
	}
	if _, closed := closedOrderStatuses[strings.ToLower(strings.TrimSpace(order.Status))]; closed {
		return domain.OrderRef{}, fmt.Errorf("%w: order %s is %s", ErrOrderClosed, orderID, order.Status)
	}
	return order, nil
}

func (s *orderItemService) applyQuote(item *OrderItem, quote PriceQuote) {
	result := quote.Result
	item.Price = result.FinalPrice
	item.Total = result.FinalPrice.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(s.precision)
	if item.Name == "" {
		item.Name = quote.ProductName
	}
	applied := make([]domain.AppliedDiscount, len(result.Applied))
	copy(applied, result.Applied)
	item.DiscountData = domain.OrderItemDiscountData{
		BasePrice:        quote.BasePrice,
		OldPrice:         quote.OldPrice,
		PriceTierID:      quote.PriceTierID,
		TotalDiscount:    result.TotalDiscount,
		AppliedDiscounts: applied,
		PricedAt:         quote.PricedAt,
	}
}

// publish is best effort; the line is already committed.
func (s *orderItemService) publish(ctx context.Context, item OrderItem, reason, actorID string) {
	if s.publisher == nil {
		return
	}
	ids := make([]string, 0, len(item.DiscountData.AppliedDiscounts))
	for _, a := range item.DiscountData.AppliedDiscounts {
		ids = append(ids, a.DiscountID)
	}
	event := OrderItemPricedEvent{
		Type:           OrderItemPricedEventType,
		Reason:         reason,
		OrderID:        item.OrderID,
		ItemID:         item.ID,
		ProductID:      item.ProductID,
		ModificationID: item.ModificationID,
		Quantity:       item.Quantity,
		BasePrice:      item.DiscountData.BasePrice,
		Price:          item.Price,
		Total:          item.Total,
		TotalDiscount:  item.DiscountData.TotalDiscount,
		PriceTierID:    item.DiscountData.PriceTierID,
		DiscountIDs:    ids,
		ActorID:        strings.TrimSpace(actorID),
		OccurredAt:     item.UpdatedAt,
	}
	messageID, err := s.publisher.PublishOrderItemPriced(ctx, event)
	if err != nil {
		s.logger(ctx, "order_item_publish_error", map[string]any{
			"orderId": item.OrderID,
			"itemId":  item.ID,
			"error":   err.Error(),
		})
		return
	}
	s.logger(ctx, "order_item_published", map[string]any{
		"orderId":   item.OrderID,
		"itemId":    item.ID,
		"messageId": messageID,
	})
}

func (s *orderItemService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	switch {
	case isRepoConflict(err):
		return fmt.Errorf("%w: %v", ErrOrderItemConflict, err)
	case isRepoNotFound(err):
		return fmt.Errorf("%w: %v", ErrOrderItemNotFound, err)
	}
	return fmt.Errorf("%w: %v", ErrOrderItemUnavailable, err)
}
