package service

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shestoi/storefront/services/order/internal/repository"
)

// OrderCreatedEvent payload события order.created
type OrderCreatedEvent struct {
	EventID      string                  `json:"event_id"`
	EventType    string                  `json:"event_type"`
	EventVersion int                     `json:"event_version"`
	OccurredAt   string                  `json:"occurred_at"`
	OrderID      string                  `json:"order_id"`
	UserID       int64                   `json:"user_id"`
	TotalPrice   string                  `json:"total_price"`
	Items        []OrderCreatedEventItem `json:"items"`
}

// OrderCreatedEventItem позиция в событии order.created
type OrderCreatedEventItem struct {
	ProductID int64  `json:"product_id"`
	SizeID    int64  `json:"size_id"`
	Quantity  int64  `json:"quantity"`
	Price     string `json:"price"`
}

// orderCreatedEvent готовит outbox запись, которая пишется в одной транзакции с заказом
func (s *OrderService) orderCreatedEvent(orderID string, userID int64, total decimal.Decimal, items []repository.OrderItem) (*repository.OutboxEvent, error) {
	if s.cfg.OrderCreatedTopic == "" {
		return nil, nil
	}

	ev := OrderCreatedEvent{
		EventID:      s.newID(),
		EventType:    "order.created",
		EventVersion: 1,
		OccurredAt:   s.now().UTC().Format(time.RFC3339),
		OrderID:      orderID,
		UserID:       userID,
		TotalPrice:   total.StringFixed(2),
		Items:        make([]OrderCreatedEventItem, 0, len(items)),
	}
	for _, it := range items {
		ev.Items = append(ev.Items, OrderCreatedEventItem{
			ProductID: it.ProductID,
			SizeID:    it.SizeID,
			Quantity:  it.Quantity,
			Price:     it.Price.StringFixed(2),
		})
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal order created event: %w", err)
	}
	return &repository.OutboxEvent{
		EventID:     ev.EventID,
		AggregateID: orderID,
		Topic:       s.cfg.OrderCreatedTopic,
		Payload:     payload,
	}, nil
}
