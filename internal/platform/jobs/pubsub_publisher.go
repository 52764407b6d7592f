package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/oklog/ulid/v2"

	"github.com/VSydorenko/simplyCMS-core-sub001/internal/services"
)

// PubSubOrderItemPublisher publishes order item pricing events to a Pub/Sub topic.
type PubSubOrderItemPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
	newID   func() string
	now     func() time.Time
}

var _ services.OrderItemEventPublisher = (*PubSubOrderItemPublisher)(nil)

// NewPubSubOrderItemPublisher constructs a Pub/Sub backed order item event publisher.
func NewPubSubOrderItemPublisher(topic *pubsub.Topic) (*PubSubOrderItemPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub order item publisher: topic is required")
	}
	return &PubSubOrderItemPublisher{
		topic:   topic,
		marshal: json.Marshal,
		newID:   func() string { return ulid.Make().String() },
		now:     time.Now,
	}, nil
}

// PublishOrderItemPriced publishes event, assigning an event id when missing. Messages are
// ordered per order when the topic has message ordering enabled.
func (p *PubSubOrderItemPublisher) PublishOrderItemPriced(ctx context.Context, event services.OrderItemPricedEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub order item publisher: not initialised")
	}

	if strings.TrimSpace(event.EventID) == "" {
		event.EventID = p.newID()
	}
	if event.Type == "" {
		event.Type = services.OrderItemPricedEventType
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = p.now()
	}
	event.OccurredAt = event.OccurredAt.UTC()
	if event.DiscountIDs == nil {
		event.DiscountIDs = []string{}
	}

	data, err := p.marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal order item event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventId", event.EventID)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "reason", event.Reason)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "itemId", event.ItemID)
	setAttr(attrs, "priceTypeId", event.PriceTierID)

	msg := &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	}
	if p.topic.EnableMessageOrdering {
		msg.OrderingKey = event.OrderID
	}
	result := p.topic.Publish(ctx, msg)

	id, err := result.Get(ctx)
	if err != nil {
		if msg.OrderingKey != "" {
			p.topic.ResumePublish(msg.OrderingKey)
		}
		return "", fmt.Errorf("publish order item event: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
