package domain

import (
	"context"

	"github.com/google/uuid"
)

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет заказ вместе с позициями. Возвращает ErrOrderAlreadyExists, если ID занят.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ с позициями или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id uuid.UUID) (Order, error)
	// List возвращает все заказы с позициями в порядке хранилища.
	List(ctx context.Context) ([]Order, error)
	// Count возвращает количество заказов.
	Count(ctx context.Context) (int, error)
	// Update перезаписывает скалярные поля заказа, позиции не трогает.
	Update(ctx context.Context, id uuid.UUID, upd OrderUpdate) (Order, error)
	// Delete удаляет заказ и каскадно все его позиции.
	Delete(ctx context.Context, id uuid.UUID) error

	// ListItems возвращает позиции заказа или ErrOrderNotFound.
	ListItems(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error)
	// GetItem возвращает позицию заказа.
	GetItem(ctx context.Context, orderID, itemID uuid.UUID) (OrderItem, error)
	// CreateItem добавляет позицию в существующий заказ (item.OrderID).
	CreateItem(ctx context.Context, item OrderItem) error
	// UpdateItem перезаписывает название, количество и цену позиции.
	UpdateItem(ctx context.Context, orderID, itemID uuid.UUID, upd OrderItemUpdate) (OrderItem, error)
	// DeleteItem удаляет позицию заказа.
	DeleteItem(ctx context.Context, orderID, itemID uuid.UUID) error
}

// Locker сериализует операцию между экземплярами сервиса, которые делят одно хранилище.
type Locker interface {
	WithLock(ctx context.Context, fn func(ctx context.Context) error) error
}
