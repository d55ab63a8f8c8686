package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

// Options задаёт необязательные зависимости сервиса.
type Options struct {
	Logger *log.Entry
	Outbox domain.OutboxRepository
	Now    func() time.Time
	NewID  func() uuid.UUID

	// SeedLock сериализует Seed между репликами; nil, если процесс единственный.
	SeedLock domain.Locker
}

// Option настраивает Service.
type Option func(*Options)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithOutbox включает запись событий изменения заказов в outbox.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(opts *Options) {
		opts.Outbox = outbox
	}
}

// WithSeedLock задаёт блокировку, под которой выполняется Seed.
func WithSeedLock(lock domain.Locker) Option {
	return func(opts *Options) {
		opts.SeedLock = lock
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(opts *Options) {
		opts.Now = now
	}
}

// WithIDGenerator подменяет генератор идентификаторов.
func WithIDGenerator(newID func() uuid.UUID) Option {
	return func(opts *Options) {
		opts.NewID = newID
	}
}

// Service реализует операции над заказами и их позициями поверх OrderRepository.
type Service struct {
	repo     domain.OrderRepository
	outbox   domain.OutboxRepository
	seedLock domain.Locker
	logger   *log.Entry
	now      func() time.Time
	newID    func() uuid.UUID
}

// NewService конструирует сервис заказов.
func NewService(repo domain.OrderRepository, options ...Option) *Service {
	opts := Options{}
	for _, option := range options {
		option(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "order-service")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.New
	}

	return &Service{
		repo:     repo,
		outbox:   opts.Outbox,
		seedLock: opts.SeedLock,
		logger:   opts.Logger,
		now:      opts.Now,
		newID:    opts.NewID,
	}
}

// ListOrders возвращает все заказы с позициями.
func (s *Service) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return s.repo.List(ctx)
}

// GetOrder возвращает заказ по ID.
func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (domain.Order, error) {
	return s.repo.Get(ctx, id)
}

// CreateOrder сохраняет заказ вместе с вложенными позициями.
// Недостающие ID назначаются, содержимое полей не проверяется.
func (s *Service) CreateOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	order.Prepare(s.newID)

	if err := s.repo.Create(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("create order %s: %w", order.ID, err)
	}

	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"items":    len(order.Items),
	}).Info("order created")

	s.emit(ctx, domain.NewOrderEvent(domain.EventOrderCreated, order.ID, &order, s.now()))
	return order, nil
}

// UpdateOrder перезаписывает order_number, customer_name, order_date и total_amount.
// Позиции заказа не меняются.
func (s *Service) UpdateOrder(ctx context.Context, id uuid.UUID, upd domain.OrderUpdate) (domain.Order, error) {
	order, err := s.repo.Update(ctx, id, upd)
	if err != nil {
		return domain.Order{}, err
	}

	s.logger.WithField("order_id", id).Info("order updated")
	s.emit(ctx, domain.NewOrderEvent(domain.EventOrderUpdated, id, &order, s.now()))
	return order, nil
}

// DeleteOrder удаляет заказ вместе со всеми позициями.
func (s *Service) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.WithField("order_id", id).Info("order deleted")
	s.emit(ctx, domain.NewOrderEvent(domain.EventOrderDeleted, id, nil, s.now()))
	return nil
}

// ListItems возвращает позиции заказа или ErrOrderNotFound.
func (s *Service) ListItems(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	return s.repo.ListItems(ctx, orderID)
}

// GetItem возвращает позицию заказа.
func (s *Service) GetItem(ctx context.Context, orderID, itemID uuid.UUID) (domain.OrderItem, error) {
	return s.repo.GetItem(ctx, orderID, itemID)
}

// CreateItem добавляет позицию в заказ orderID.
// order_id из тела запроса игнорируется, позиция всегда принадлежит заказу из пути.
func (s *Service) CreateItem(ctx context.Context, orderID uuid.UUID, item domain.OrderItem) (domain.OrderItem, error) {
	if item.ID == uuid.Nil {
		item.ID = s.newID()
	}
	item.OrderID = orderID

	if err := s.repo.CreateItem(ctx, item); err != nil {
		return domain.OrderItem{}, err
	}

	s.logger.WithFields(log.Fields{
		"order_id": orderID,
		"item_id":  item.ID,
	}).Info("order item created")

	s.emit(ctx, domain.NewItemEvent(domain.EventOrderItemCreated, orderID, item.ID, &item, s.now()))
	return item, nil
}

// UpdateItem перезаписывает product_name, quantity и unit_price позиции.
func (s *Service) UpdateItem(ctx context.Context, orderID, itemID uuid.UUID, upd domain.OrderItemUpdate) (domain.OrderItem, error) {
	item, err := s.repo.UpdateItem(ctx, orderID, itemID, upd)
	if err != nil {
		return domain.OrderItem{}, err
	}

	s.logger.WithFields(log.Fields{
		"order_id": orderID,
		"item_id":  itemID,
	}).Info("order item updated")

	s.emit(ctx, domain.NewItemEvent(domain.EventOrderItemUpdated, orderID, itemID, &item, s.now()))
	return item, nil
}

// DeleteItem удаляет позицию из заказа.
func (s *Service) DeleteItem(ctx context.Context, orderID, itemID uuid.UUID) error {
	if err := s.repo.DeleteItem(ctx, orderID, itemID); err != nil {
		return err
	}

	s.logger.WithFields(log.Fields{
		"order_id": orderID,
		"item_id":  itemID,
	}).Info("order item deleted")

	s.emit(ctx, domain.NewItemEvent(domain.EventOrderItemDeleted, orderID, itemID, nil, s.now()))
	return nil
}

// emit кладёт событие в outbox. Ошибка только логируется: изменение уже сохранено.
func (s *Service) emit(ctx context.Context, event domain.ChangeEvent) {
	if s.outbox == nil {
		return
	}

	entry := s.logger.WithFields(log.Fields{
		"event_type": event.EventType,
		"order_id":   event.OrderID,
	})

	msg, err := event.OutboxMessage()
	if err != nil {
		entry.WithError(err).Warn("failed to build outbox message")
		return
	}
	if _, err := s.outbox.Enqueue(ctx, msg); err != nil {
		entry.WithError(err).Warn("failed to enqueue change event")
	}
}
