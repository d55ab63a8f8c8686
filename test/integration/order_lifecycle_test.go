package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
	"github.com/vladislavdragonenkov/orderstore/internal/metrics"
	"github.com/vladislavdragonenkov/orderstore/internal/service/orders"
	"github.com/vladislavdragonenkov/orderstore/internal/storage/memory"
	"github.com/vladislavdragonenkov/orderstore/internal/transport/rest"
)

// OrderLifecycleTestSuite прогоняет жизненный цикл заказа через REST API
// поверх in-memory хранилища.
type OrderLifecycleTestSuite struct {
	suite.Suite
	server  *httptest.Server
	outbox  *memory.OutboxRepository
	service *orders.Service
}

func (suite *OrderLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel) // Уменьшаем шум в тестах
	logger := baseLogger.WithField("component", "integration-test")

	suite.outbox = memory.NewOutboxRepository()
	suite.service = orders.NewService(
		memory.NewOrderRepository(),
		orders.WithLogger(logger),
		orders.WithOutbox(suite.outbox),
	)
	_, err := suite.service.Seed(context.Background())
	require.NoError(suite.T(), err)

	router := rest.NewRouter(suite.service, rest.Options{
		Logger:  logger,
		Metrics: metrics.NewHTTPMetrics(prometheus.NewRegistry()),
	})
	suite.server = httptest.NewServer(router)
}

func (suite *OrderLifecycleTestSuite) TearDownTest() {
	suite.server.Close()
}

func (suite *OrderLifecycleTestSuite) do(method, path string, body any) (int, []byte) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(suite.T(), err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, suite.server.URL+path, reader)
	require.NoError(suite.T(), err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := suite.server.Client().Do(req)
	require.NoError(suite.T(), err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(suite.T(), err)
	return resp.StatusCode, raw
}

func (suite *OrderLifecycleTestSuite) createOrder(customer string, items ...map[string]any) domain.Order {
	code, raw := suite.do(http.MethodPost, "/orders", map[string]any{
		"order_number":  "ORD-" + customer,
		"customer_name": customer,
		"order_date":    "2024-05-01T10:00:00Z",
		"total_amount":  100,
		"items":         items,
	})
	require.Equal(suite.T(), http.StatusCreated, code, string(raw))

	var order domain.Order
	require.NoError(suite.T(), json.Unmarshal(raw, &order))
	return order
}

func (suite *OrderLifecycleTestSuite) TestCreateOrderStampsItems() {
	order := suite.createOrder("Alice",
		map[string]any{"product_name": "Keyboard", "quantity": 1, "unit_price": 70},
		map[string]any{"product_name": "Cable", "quantity": 3, "unit_price": 10},
	)

	require.NotEqual(suite.T(), uuid.Nil, order.ID)
	require.Len(suite.T(), order.Items, 2)

	code, raw := suite.do(http.MethodGet, fmt.Sprintf("/orders/%s/items", order.ID), nil)
	require.Equal(suite.T(), http.StatusOK, code)

	var items []domain.OrderItem
	require.NoError(suite.T(), json.Unmarshal(raw, &items))
	require.Len(suite.T(), items, 2)
	for _, item := range items {
		require.Equal(suite.T(), order.ID, item.OrderID)
		require.NotEqual(suite.T(), uuid.Nil, item.ID)
	}
}

func (suite *OrderLifecycleTestSuite) TestItemTotalPrice() {
	order := suite.createOrder("Bob")

	code, raw := suite.do(http.MethodPost, fmt.Sprintf("/orders/%s/items", order.ID), map[string]any{
		"product_name": "Widget",
		"quantity":     5,
		"unit_price":   10.5,
	})
	require.Equal(suite.T(), http.StatusCreated, code, string(raw))

	var item struct {
		TotalPrice decimal.Decimal `json:"total_price"`
	}
	require.NoError(suite.T(), json.Unmarshal(raw, &item))
	require.True(suite.T(), item.TotalPrice.Equal(decimal.RequireFromString("52.5")), item.TotalPrice.String())
}

func (suite *OrderLifecycleTestSuite) TestNotFound() {
	for _, path := range []string{
		"/orders/" + uuid.NewString(),
		"/orders/999999999999",
		"/orders/" + uuid.NewString() + "/items",
		"/orders/" + uuid.NewString() + "/items/" + uuid.NewString(),
	} {
		code, raw := suite.do(http.MethodGet, path, nil)
		require.Equal(suite.T(), http.StatusNotFound, code, path)
		require.Empty(suite.T(), raw, path)
	}
}

func (suite *OrderLifecycleTestSuite) TestDeleteCascadesToItems() {
	order := suite.createOrder("Carol",
		map[string]any{"product_name": "Lamp", "quantity": 1, "unit_price": 30},
	)
	itemPath := fmt.Sprintf("/orders/%s/items/%s", order.ID, order.Items[0].ID)

	code, _ := suite.do(http.MethodGet, itemPath, nil)
	require.Equal(suite.T(), http.StatusOK, code)

	code, _ = suite.do(http.MethodDelete, fmt.Sprintf("/orders/%s", order.ID), nil)
	require.Equal(suite.T(), http.StatusNoContent, code)

	code, _ = suite.do(http.MethodGet, itemPath, nil)
	require.Equal(suite.T(), http.StatusNotFound, code)
}

func (suite *OrderLifecycleTestSuite) TestUpdateKeepsItems() {
	order := suite.createOrder("Dave",
		map[string]any{"product_name": "Chair", "quantity": 2, "unit_price": 45},
	)

	code, raw := suite.do(http.MethodPut, fmt.Sprintf("/orders/%s", order.ID), map[string]any{
		"order_number":  "ORD-NEW",
		"customer_name": "David",
		"order_date":    "2024-06-01T00:00:00Z",
		"total_amount":  1,
		"items":         []map[string]any{},
	})
	require.Equal(suite.T(), http.StatusOK, code, string(raw))

	var updated domain.Order
	require.NoError(suite.T(), json.Unmarshal(raw, &updated))
	require.Equal(suite.T(), "ORD-NEW", updated.OrderNumber)
	require.Equal(suite.T(), "David", updated.CustomerName)
	require.Equal(suite.T(), order.Items, updated.Items)
}

func (suite *OrderLifecycleTestSuite) TestListIncludesCreatedOrders() {
	const n = 3
	for i := 0; i < n; i++ {
		suite.createOrder(fmt.Sprintf("customer-%d", i))
	}

	code, raw := suite.do(http.MethodGet, "/orders", nil)
	require.Equal(suite.T(), http.StatusOK, code)

	var list []domain.Order
	require.NoError(suite.T(), json.Unmarshal(raw, &list))
	require.GreaterOrEqual(suite.T(), len(list), n)
}

func (suite *OrderLifecycleTestSuite) TestChangeEventsRecorded() {
	order := suite.createOrder("Eve")
	code, _ := suite.do(http.MethodDelete, fmt.Sprintf("/orders/%s", order.ID), nil)
	require.Equal(suite.T(), http.StatusNoContent, code)

	// Первые два события пишет seed.
	pending, err := suite.outbox.PullPending(context.Background(), 10)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), pending, 4)
	require.Equal(suite.T(), string(domain.EventOrderCreated), pending[2].EventType)
	require.Equal(suite.T(), string(domain.EventOrderDeleted), pending[3].EventType)
	require.Equal(suite.T(), order.ID.String(), pending[3].AggregateID)
}

func TestOrderLifecycleTestSuite(t *testing.T) {
	suite.Run(t, new(OrderLifecycleTestSuite))
}
