package observability

import (
	"context"
	"time"

	"github.com/annel0/plotmines/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// TracerName имя трассировщика операций с шахтами
const TracerName = "github.com/annel0/plotmines"

// Config параметры экспорта трасс
type Config struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"` // host:port OTLP HTTP; пусто - localhost:4318
	Insecure bool   `yaml:"insecure"`
}

// InitTelemetry настраивает OTLP экспортер и устанавливает глобальный TracerProvider.
// Возвращает функцию shutdown, которую нужно вызвать при завершении приложения.
// При выключенной телеметрии остаётся no-op провайдер.
func InitTelemetry(ctx context.Context, serviceName string, cfg Config) (func(context.Context) error, error) {
	if !cfg.Enabled {
		logging.Debug("📡 OpenTelemetry выключен")
		return func(context.Context) error { return nil }, nil
	}

	var opts []otlptracehttp.Option
	if cfg.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, err
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exp),
		trace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "localhost:4318"
	}
	logging.Info("📡 OpenTelemetry инициализирован (OTLP → %s, service=%s)", endpoint, serviceName)

	shutdown := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}
	return shutdown, nil
}

// StartSpan открывает span операции над шахтой
func StartSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	return otel.Tracer(TracerName).Start(ctx, op, oteltrace.WithAttributes(attrs...))
}

// EndSpan закрывает span, отмечая ошибку
func EndSpan(span oteltrace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
