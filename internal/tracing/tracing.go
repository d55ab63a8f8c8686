// Package tracing настраивает OpenTelemetry: W3C-пропагатор и, если задан
// адрес коллектора, экспорт спанов по OTLP/gRPC.
package tracing

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vladislavdragonenkov/orderstore/internal/version"
)

const batchTimeout = 5 * time.Second

// Config описывает экспорт трейсов.
type Config struct {
	// Endpoint — host:port OTLP gRPC коллектора; пустое значение отключает экспорт.
	Endpoint    string
	ServiceName string
}

// ShutdownFunc сбрасывает накопленные спаны и закрывает экспортёр.
type ShutdownFunc func(context.Context) error

// NewPropagator возвращает пропагатор W3C traceparent + baggage.
func NewPropagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

// Setup регистрирует глобальные пропагатор и TracerProvider.
func Setup(ctx context.Context, cfg Config, logger *log.Entry) (trace.TracerProvider, ShutdownFunc, error) {
	otel.SetTextMapPropagator(NewPropagator())

	if cfg.Endpoint == "" {
		logger.Info("трейсинг отключён: OTLP endpoint не задан")
		return noop.NewTracerProvider(), func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create otlp trace exporter: %w", err)
	}

	provider := NewProvider(exporter, cfg.ServiceName)
	otel.SetTracerProvider(provider)

	logger.WithFields(log.Fields{
		"endpoint":     cfg.Endpoint,
		"service_name": cfg.ServiceName,
	}).Info("otel tracer provider initialized")
	return provider, provider.Shutdown, nil
}

// NewProvider создаёт TracerProvider с пакетной отправкой в exporter.
func NewProvider(exporter sdktrace.SpanExporter, serviceName string) *sdktrace.TracerProvider {
	if serviceName == "" {
		serviceName = "order-store"
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(batchTimeout)),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version.GetVersion()),
		)),
	)
}
