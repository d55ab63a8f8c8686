package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

// orderRepositoryInMemory — in-memory реализация OrderRepository.
// Все операции выполняются под одним мьютексом; наружу отдаются только копии.
type orderRepositoryInMemory struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]*domain.Order
	// seq хранит порядок вставки заказов.
	seq []uuid.UUID
	// itemOwners отображает ID позиции на ID заказа-владельца.
	itemOwners map[uuid.UUID]uuid.UUID
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		orders:     make(map[uuid.UUID]*domain.Order),
		itemOwners: make(map[uuid.UUID]uuid.UUID),
	}
}

// Create сохраняет новый заказ вместе с позициями, если ID ещё не заняты.
func (r *orderRepositoryInMemory) Create(ctx context.Context, order domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID]; exists {
		return domain.ErrOrderAlreadyExists
	}
	batch := make(map[uuid.UUID]struct{}, len(order.Items))
	for _, item := range order.Items {
		if _, taken := r.itemOwners[item.ID]; taken {
			return domain.ErrOrderItemAlreadyExists
		}
		if _, dup := batch[item.ID]; dup {
			return domain.ErrOrderItemAlreadyExists
		}
		batch[item.ID] = struct{}{}
	}

	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	stored := order.Clone()
	r.orders[order.ID] = &stored
	r.seq = append(r.seq, order.ID)
	for _, item := range stored.Items {
		r.itemOwners[item.ID] = order.ID
	}
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(ctx context.Context, id uuid.UUID) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order.Clone(), nil
}

// List возвращает заказы в порядке их создания.
func (r *orderRepositoryInMemory) List(ctx context.Context) ([]domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0, len(r.seq))
	for _, id := range r.seq {
		result = append(result, r.orders[id].Clone())
	}
	return result, nil
}

func (r *orderRepositoryInMemory) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.orders), nil
}

// Update перезаписывает скалярные поля заказа.
func (r *orderRepositoryInMemory) Update(ctx context.Context, id uuid.UUID, upd domain.OrderUpdate) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	upd.Apply(order)
	return order.Clone(), nil
}

// Delete удаляет заказ; позиции уходят вместе с ним.
func (r *orderRepositoryInMemory) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	for _, item := range order.Items {
		delete(r.itemOwners, item.ID)
	}
	delete(r.orders, id)
	if idx := slices.Index(r.seq, id); idx >= 0 {
		r.seq = slices.Delete(r.seq, idx, idx+1)
	}
	return nil
}

func (r *orderRepositoryInMemory) ListItems(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	items := make([]domain.OrderItem, len(order.Items))
	copy(items, order.Items)
	return items, nil
}

func (r *orderRepositoryInMemory) GetItem(ctx context.Context, orderID, itemID uuid.UUID) (domain.OrderItem, error) {
	if err := ctx.Err(); err != nil {
		return domain.OrderItem{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	order, idx, err := r.locateItem(orderID, itemID)
	if err != nil {
		return domain.OrderItem{}, err
	}
	return order.Items[idx], nil
}

// CreateItem добавляет позицию в конец списка позиций заказа.
func (r *orderRepositoryInMemory) CreateItem(ctx context.Context, item domain.OrderItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[item.OrderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if _, taken := r.itemOwners[item.ID]; taken {
		return domain.ErrOrderItemAlreadyExists
	}
	order.Items = append(order.Items, item)
	r.itemOwners[item.ID] = order.ID
	return nil
}

func (r *orderRepositoryInMemory) UpdateItem(ctx context.Context, orderID, itemID uuid.UUID, upd domain.OrderItemUpdate) (domain.OrderItem, error) {
	if err := ctx.Err(); err != nil {
		return domain.OrderItem{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	order, idx, err := r.locateItem(orderID, itemID)
	if err != nil {
		return domain.OrderItem{}, err
	}
	upd.Apply(&order.Items[idx])
	return order.Items[idx], nil
}

func (r *orderRepositoryInMemory) DeleteItem(ctx context.Context, orderID, itemID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	order, idx, err := r.locateItem(orderID, itemID)
	if err != nil {
		return err
	}
	order.Items = slices.Delete(order.Items, idx, idx+1)
	delete(r.itemOwners, itemID)
	return nil
}

// locateItem ищет позицию внутри заказа. Вызывается под блокировкой.
func (r *orderRepositoryInMemory) locateItem(orderID, itemID uuid.UUID) (*domain.Order, int, error) {
	order, ok := r.orders[orderID]
	if !ok {
		return nil, -1, domain.ErrOrderNotFound
	}
	for idx := range order.Items {
		if order.Items[idx].ID == itemID {
			return order, idx, nil
		}
	}
	return nil, -1, domain.ErrOrderItemNotFound
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
