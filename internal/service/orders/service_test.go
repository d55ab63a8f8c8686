package orders

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
	"github.com/vladislavdragonenkov/orderstore/internal/storage/memory"
)

var fixedNow = time.Date(2024, 6, 10, 15, 30, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *memory.OutboxRepository) {
	t.Helper()

	outbox := memory.NewOutboxRepository()
	logger := log.New()
	logger.SetLevel(log.WarnLevel)

	svc := NewService(
		memory.NewOrderRepository(),
		WithOutbox(outbox),
		WithLogger(logger.WithField("component", "order-service-test")),
		WithClock(func() time.Time { return fixedNow }),
	)
	return svc, outbox
}

func sampleOrder() domain.Order {
	return domain.Order{
		OrderNumber:  "SO-1",
		CustomerName: "Alice",
		OrderDate:    time.Date(2024, 6, 1, 10, 0, 0, 0, time.FixedZone("MSK", 3*60*60)),
		TotalAmount:  decimal.RequireFromString("62.50"),
		Items: []domain.OrderItem{
			{ProductName: "Cable", Quantity: 5, UnitPrice: decimal.RequireFromString("10.5")},
			{ProductName: "Plug", Quantity: 2, UnitPrice: decimal.RequireFromString("5")},
		},
	}
}

func TestService_CreateOrder_StampsItems(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, sampleOrder())
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, created.ID)
	require.Len(t, created.Items, 2)
	for _, item := range created.Items {
		assert.NotEqual(t, uuid.Nil, item.ID)
		assert.Equal(t, created.ID, item.OrderID)
	}
	assert.Equal(t, time.UTC, created.OrderDate.Location())
	assert.True(t, created.Items[0].TotalPrice().Equal(decimal.RequireFromString("52.5")))

	stored, err := svc.GetOrder(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Items, stored.Items)
}

func TestService_CreateOrder_KeepsCallerIDs(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	order := sampleOrder()
	order.ID = uuid.New()
	order.Items[0].ID = uuid.New()

	created, err := svc.CreateOrder(ctx, order)
	require.NoError(t, err)
	assert.Equal(t, order.ID, created.ID)
	assert.Equal(t, order.Items[0].ID, created.Items[0].ID)

	_, err = svc.CreateOrder(ctx, order)
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err))
}

func TestService_CreateOrder_AcceptsAnyContent(t *testing.T) {
	svc, _ := newTestService(t)

	created, err := svc.CreateOrder(context.Background(), domain.Order{
		Items: []domain.OrderItem{{Quantity: -3, UnitPrice: decimal.RequireFromString("-1.25")}},
	})
	require.NoError(t, err)
	assert.Empty(t, created.CustomerName)
	assert.True(t, created.Items[0].TotalPrice().Equal(decimal.RequireFromString("3.75")))
}

func TestService_UpdateOrder_LeavesItemsUntouched(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, sampleOrder())
	require.NoError(t, err)

	updated, err := svc.UpdateOrder(ctx, created.ID, domain.OrderUpdate{
		OrderNumber:  "SO-2",
		CustomerName: "Bob",
		OrderDate:    fixedNow,
		TotalAmount:  decimal.RequireFromString("1"),
	})
	require.NoError(t, err)

	assert.Equal(t, "SO-2", updated.OrderNumber)
	assert.Equal(t, "Bob", updated.CustomerName)
	assert.True(t, updated.TotalAmount.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, created.Items, updated.Items)
}

func TestService_NotFound(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	missing := uuid.New()

	_, err := svc.GetOrder(ctx, missing)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	_, err = svc.UpdateOrder(ctx, missing, domain.OrderUpdate{})
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	assert.ErrorIs(t, svc.DeleteOrder(ctx, missing), domain.ErrOrderNotFound)

	_, err = svc.ListItems(ctx, missing)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	_, err = svc.CreateItem(ctx, missing, domain.OrderItem{ProductName: "x"})
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	created, err := svc.CreateOrder(ctx, sampleOrder())
	require.NoError(t, err)

	_, err = svc.GetItem(ctx, created.ID, missing)
	assert.True(t, domain.IsNotFound(err))
	_, err = svc.UpdateItem(ctx, created.ID, missing, domain.OrderItemUpdate{})
	assert.True(t, domain.IsNotFound(err))
	assert.True(t, domain.IsNotFound(svc.DeleteItem(ctx, created.ID, missing)))

	// Позиция существует, но принадлежит другому заказу.
	other, err := svc.CreateOrder(ctx, sampleOrder())
	require.NoError(t, err)
	_, err = svc.GetItem(ctx, other.ID, created.Items[0].ID)
	assert.True(t, domain.IsNotFound(err))
}

func TestService_ItemLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, sampleOrder())
	require.NoError(t, err)

	item, err := svc.CreateItem(ctx, order.ID, domain.OrderItem{
		OrderID:     uuid.New(),
		ProductName: "Adapter",
		Quantity:    3,
		UnitPrice:   decimal.RequireFromString("2.20"),
	})
	require.NoError(t, err)
	assert.Equal(t, order.ID, item.OrderID)

	items, err := svc.ListItems(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, item.ID, items[2].ID)

	updated, err := svc.UpdateItem(ctx, order.ID, item.ID, domain.OrderItemUpdate{
		ProductName: "USB Adapter",
		Quantity:    4,
		UnitPrice:   decimal.RequireFromString("2.50"),
	})
	require.NoError(t, err)
	assert.Equal(t, "USB Adapter", updated.ProductName)
	assert.True(t, updated.TotalPrice().Equal(decimal.NewFromInt(10)))

	require.NoError(t, svc.DeleteItem(ctx, order.ID, item.ID))
	_, err = svc.GetItem(ctx, order.ID, item.ID)
	assert.ErrorIs(t, err, domain.ErrOrderItemNotFound)
}

func TestService_DeleteOrder_CascadesItems(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, sampleOrder())
	require.NoError(t, err)
	require.NoError(t, svc.DeleteOrder(ctx, order.ID))

	for _, item := range order.Items {
		_, err := svc.GetItem(ctx, order.ID, item.ID)
		assert.True(t, domain.IsNotFound(err))
	}
}

func TestService_EnqueuesChangeEvents(t *testing.T) {
	svc, outbox := newTestService(t)
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, sampleOrder())
	require.NoError(t, err)
	_, err = svc.UpdateOrder(ctx, order.ID, order.UpdateFields())
	require.NoError(t, err)
	item, err := svc.CreateItem(ctx, order.ID, domain.OrderItem{ProductName: "x"})
	require.NoError(t, err)
	_, err = svc.UpdateItem(ctx, order.ID, item.ID, item.UpdateFields())
	require.NoError(t, err)
	require.NoError(t, svc.DeleteItem(ctx, order.ID, item.ID))
	require.NoError(t, svc.DeleteOrder(ctx, order.ID))

	// Неудачные операции событий не порождают.
	_, err = svc.GetOrder(ctx, order.ID)
	require.Error(t, err)
	require.Error(t, svc.DeleteOrder(ctx, order.ID))

	pending := outbox.AllPending()
	require.Len(t, pending, 6)

	want := []domain.EventType{
		domain.EventOrderCreated,
		domain.EventOrderUpdated,
		domain.EventOrderItemCreated,
		domain.EventOrderItemUpdated,
		domain.EventOrderItemDeleted,
		domain.EventOrderDeleted,
	}
	for idx, msg := range pending {
		assert.Equal(t, string(want[idx]), msg.EventType)
		assert.Equal(t, order.ID.String(), msg.AggregateID)
		assert.Equal(t, domain.AggregateOrder, msg.AggregateType)
	}
}

type failingOutbox struct{ memory.OutboxRepository }

func (f *failingOutbox) Enqueue(context.Context, domain.OutboxMessage) (domain.OutboxMessage, error) {
	return domain.OutboxMessage{}, errors.New("outbox is down")
}

func TestService_OutboxFailureDoesNotFailRequest(t *testing.T) {
	svc := NewService(memory.NewOrderRepository(), WithOutbox(&failingOutbox{}))

	created, err := svc.CreateOrder(context.Background(), sampleOrder())
	require.NoError(t, err)

	_, err = svc.GetOrder(context.Background(), created.ID)
	require.NoError(t, err)
}

func TestService_Seed(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	again, err := svc.Seed(ctx)
	require.NoError(t, err)
	assert.Zero(t, again)

	orders, err := svc.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 2)

	john := orders[0]
	assert.Equal(t, "John Doe", john.CustomerName)
	assert.True(t, john.TotalAmount.Equal(decimal.RequireFromString("1050")))
	assert.Equal(t, fixedNow.AddDate(0, 0, -1), john.OrderDate)
	require.Len(t, john.Items, 2)
	assert.Equal(t, "Laptop", john.Items[0].ProductName)
	assert.Equal(t, "Mouse", john.Items[1].ProductName)

	jane := orders[1]
	assert.Equal(t, "Jane Smith", jane.CustomerName)
	require.Len(t, jane.Items, 1)
	assert.True(t, jane.Items[0].TotalPrice().Equal(decimal.RequireFromString("250")))
}

func TestService_SeedSkipsNonEmptyStore(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateOrder(ctx, sampleOrder())
	require.NoError(t, err)

	created, err := svc.Seed(ctx)
	require.NoError(t, err)
	assert.Zero(t, created)

	orders, err := svc.ListOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

// mutexLock — блокировка в пределах процесса, считающая захваты.
type mutexLock struct {
	mu       sync.Mutex
	acquired atomic.Int32
	err      error
}

func (l *mutexLock) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	if l.err != nil {
		return l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquired.Add(1)
	return fn(ctx)
}

func TestService_SeedConcurrentReplicasShareLock(t *testing.T) {
	repo := memory.NewOrderRepository()
	lock := &mutexLock{}
	ctx := context.Background()

	const replicas = 8
	created := make([]int, replicas)
	var wg sync.WaitGroup
	for i := 0; i < replicas; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc := NewService(repo, WithSeedLock(lock), WithClock(func() time.Time { return fixedNow }))
			n, err := svc.Seed(ctx)
			assert.NoError(t, err)
			created[i] = n
		}()
	}
	wg.Wait()

	total := 0
	for _, n := range created {
		total += n
	}
	assert.Equal(t, 2, total)
	assert.EqualValues(t, replicas, lock.acquired.Load())

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestService_SeedLockError(t *testing.T) {
	repo := memory.NewOrderRepository()
	lockErr := errors.New("lock unavailable")
	svc := NewService(repo, WithSeedLock(&mutexLock{err: lockErr}))

	created, err := svc.Seed(context.Background())
	require.ErrorIs(t, err, lockErr)
	assert.Zero(t, created)

	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}
