package orders

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

// defaultOrders возвращает демонстрационные заказы относительно момента now.
func (s *Service) defaultOrders() []domain.Order {
	now := s.now()

	return []domain.Order{
		{
			CustomerName: "John Doe",
			OrderDate:    now.AddDate(0, 0, -1),
			TotalAmount:  decimal.RequireFromString("1050.00"),
			Items: []domain.OrderItem{
				{ProductName: "Laptop", Quantity: 1, UnitPrice: decimal.RequireFromString("1000.00")},
				{ProductName: "Mouse", Quantity: 1, UnitPrice: decimal.RequireFromString("50.00")},
			},
		},
		{
			CustomerName: "Jane Smith",
			OrderDate:    now,
			TotalAmount:  decimal.RequireFromString("250.00"),
			Items: []domain.OrderItem{
				{ProductName: "Monitor", Quantity: 1, UnitPrice: decimal.RequireFromString("250.00")},
			},
		},
	}
}

// Seed создаёт демонстрационные заказы, если хранилище пустое.
// Вызывается один раз при старте процесса; повторный вызов ничего не меняет.
// С заданной SeedLock проверка и вставка выполняются под блокировкой,
// и реплики, стартующие одновременно, не создают демо-данные дважды.
func (s *Service) Seed(ctx context.Context) (int, error) {
	if s.seedLock == nil {
		return s.seed(ctx)
	}

	created := 0
	err := s.seedLock.WithLock(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.seed(ctx)
		return err
	})
	if err != nil {
		return created, fmt.Errorf("seed under lock: %w", err)
	}
	return created, nil
}

func (s *Service) seed(ctx context.Context) (int, error) {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	if count > 0 {
		s.logger.WithField("orders", count).Debug("store is not empty, seeding skipped")
		return 0, nil
	}

	created := 0
	for _, order := range s.defaultOrders() {
		if _, err := s.CreateOrder(ctx, order); err != nil {
			return created, fmt.Errorf("seed order for %q: %w", order.CustomerName, err)
		}
		created++
	}

	s.logger.WithFields(log.Fields{"orders": created}).Info("seed data created")
	return created, nil
}
