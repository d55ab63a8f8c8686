package rest

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
	"github.com/vladislavdragonenkov/orderstore/internal/metrics"
)

// OrderService — операции, которые REST-слой вызывает у сервиса заказов.
type OrderService interface {
	ListOrders(ctx context.Context) ([]domain.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (domain.Order, error)
	CreateOrder(ctx context.Context, order domain.Order) (domain.Order, error)
	UpdateOrder(ctx context.Context, id uuid.UUID, upd domain.OrderUpdate) (domain.Order, error)
	DeleteOrder(ctx context.Context, id uuid.UUID) error

	ListItems(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error)
	GetItem(ctx context.Context, orderID, itemID uuid.UUID) (domain.OrderItem, error)
	CreateItem(ctx context.Context, orderID uuid.UUID, item domain.OrderItem) (domain.OrderItem, error)
	UpdateItem(ctx context.Context, orderID, itemID uuid.UUID, upd domain.OrderItemUpdate) (domain.OrderItem, error)
	DeleteItem(ctx context.Context, orderID, itemID uuid.UUID) error
}

// Options задаёт необязательные параметры роутера.
type Options struct {
	Logger         *log.Entry
	Metrics        *metrics.HTTPMetrics
	AllowedOrigins []string
	// TracerProvider и Propagator по умолчанию берутся из глобального otel.
	TracerProvider trace.TracerProvider
	Propagator     propagation.TextMapPropagator
}

// Handler обслуживает REST API заказов.
type Handler struct {
	svc    OrderService
	logger *log.Entry
}

// NewRouter собирает chi-роутер со всеми маршрутами и middleware.
func NewRouter(svc OrderService, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "rest")
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	h := &Handler{svc: svc, logger: logger}

	router := chi.NewRouter()
	router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(logger))
	if opts.Metrics != nil {
		router.Use(observe(opts.Metrics))
	}
	router.Use(recoverer(logger))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{"Location"},
		MaxAge:         300,
	}))

	router.Get("/orders", h.listOrders)
	router.Post("/orders", h.createOrder)
	router.Get("/orders/{orderID}", h.getOrder)
	router.Put("/orders/{orderID}", h.updateOrder)
	router.Delete("/orders/{orderID}", h.deleteOrder)

	router.Get("/orders/{orderID}/items", h.listItems)
	router.Post("/orders/{orderID}/items", h.createItem)
	router.Get("/orders/{orderID}/items/{itemID}", h.getItem)
	router.Put("/orders/{orderID}/items/{itemID}", h.updateItem)
	router.Delete("/orders/{orderID}/items/{itemID}", h.deleteItem)

	var otelOpts []otelhttp.Option
	if opts.TracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(opts.TracerProvider))
	}
	if opts.Propagator != nil {
		otelOpts = append(otelOpts, otelhttp.WithPropagators(opts.Propagator))
	}
	return otelhttp.NewHandler(router, "orders-api", otelOpts...)
}
