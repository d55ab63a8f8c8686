package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType определяет тип события изменения заказа.
type EventType string

const (
	EventOrderCreated EventType = "order.created"
	EventOrderUpdated EventType = "order.updated"
	EventOrderDeleted EventType = "order.deleted"

	EventOrderItemCreated EventType = "order_item.created"
	EventOrderItemUpdated EventType = "order_item.updated"
	EventOrderItemDeleted EventType = "order_item.deleted"
)

// AggregateOrder — тип агрегата для всех событий: позиции публикуются
// с ключом заказа, чтобы сохранялся порядок в партиции.
const AggregateOrder = "order"

// ChangeEvent описывает изменение заказа или его позиции.
type ChangeEvent struct {
	EventType  EventType  `json:"event_type"`
	OrderID    uuid.UUID  `json:"order_id"`
	ItemID     *uuid.UUID `json:"item_id,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
	Order      *Order     `json:"order,omitempty"`
	Item       *OrderItem `json:"item,omitempty"`
}

// NewOrderEvent создаёт событие уровня заказа. order может быть nil (удаление).
func NewOrderEvent(eventType EventType, orderID uuid.UUID, order *Order, at time.Time) ChangeEvent {
	return ChangeEvent{
		EventType:  eventType,
		OrderID:    orderID,
		OccurredAt: at.UTC(),
		Order:      order,
	}
}

// NewItemEvent создаёт событие уровня позиции. item может быть nil (удаление).
func NewItemEvent(eventType EventType, orderID, itemID uuid.UUID, item *OrderItem, at time.Time) ChangeEvent {
	id := itemID
	return ChangeEvent{
		EventType:  eventType,
		OrderID:    orderID,
		ItemID:     &id,
		OccurredAt: at.UTC(),
		Item:       item,
	}
}

// OutboxMessage упаковывает событие в сообщение outbox.
func (e ChangeEvent) OutboxMessage() (OutboxMessage, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal %s event: %w", e.EventType, err)
	}
	return OutboxMessage{
		AggregateType: AggregateOrder,
		AggregateID:   e.OrderID.String(),
		EventType:     string(e.EventType),
		Payload:       payload,
	}, nil
}
