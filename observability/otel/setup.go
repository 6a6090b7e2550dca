package otel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/KamdynS/bedrock-agents/observability"
)

// Config controls OTLP export. Endpoint and headers otherwise follow the standard OTEL_EXPORTER_OTLP_* variables.
type Config struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	Sampler     string  `yaml:"sampler"`
	SampleRatio float64 `yaml:"sample_ratio"`
	Metrics     bool    `yaml:"metrics"`
}

// ShutdownFunc flushes and stops the installed providers.
type ShutdownFunc func(context.Context) error

// Setup installs the OTLP trace (and optionally metric) pipeline as the global provider
// and points the observability facade at it. A disabled config installs only propagators.
func Setup(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	if !cfg.Enabled {
		slog.Info("tracing_configured", "tracing_enabled", false)
		return func(context.Context) error { return nil }, nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "bedrock-agents"
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(attribute.String("service.name", cfg.ServiceName)),
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	topts := []otlptracegrpc.Option{}
	if cfg.Endpoint != "" {
		topts = append(topts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
	}
	if cfg.Insecure {
		topts = append(topts, otlptracegrpc.WithInsecure())
	}
	texp, err := otlptracegrpc.New(ctx, topts...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(texp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(Sampler(cfg.Sampler, cfg.SampleRatio)),
	)
	otel.SetTracerProvider(tp)
	observability.SetTracer(NewTracer(cfg.ServiceName, tp))
	shutdowns := []ShutdownFunc{tp.Shutdown}

	if cfg.Metrics {
		mopts := []otlpmetricgrpc.Option{}
		if cfg.Endpoint != "" {
			mopts = append(mopts, otlpmetricgrpc.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			mopts = append(mopts, otlpmetricgrpc.WithInsecure())
		}
		mexp, err := otlpmetricgrpc.New(ctx, mopts...)
		if err != nil {
			_ = tp.Shutdown(ctx)
			return nil, fmt.Errorf("create metric exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(mexp, sdkmetric.WithInterval(30*time.Second))),
			sdkmetric.WithResource(res),
		)
		otel.SetMeterProvider(mp)
		m, err := NewMetrics(cfg.ServiceName, mp)
		if err != nil {
			_ = tp.Shutdown(ctx)
			return nil, err
		}
		observability.SetMetrics(m)
		shutdowns = append(shutdowns, mp.Shutdown)
	}

	slog.Info("tracing_configured",
		"tracing_enabled", true,
		"otlp_endpoint", cfg.Endpoint,
		"sampler", cfg.Sampler,
		"sample_ratio", strconv.FormatFloat(cfg.SampleRatio, 'f', -1, 64),
	)
	return func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdowns {
			errs = append(errs, fn(ctx))
		}
		return errors.Join(errs...)
	}, nil
}

// Sampler maps an OTEL_TRACES_SAMPLER style name onto a sampler. Unknown names sample by parent, always on.
func Sampler(name string, ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	switch name {
	case "always_on":
		return sdktrace.AlwaysSample()
	case "always_off":
		return sdktrace.NeverSample()
	case "traceidratio":
		return sdktrace.TraceIDRatioBased(ratio)
	case "parentbased_always_off":
		return sdktrace.ParentBased(sdktrace.NeverSample())
	case "parentbased_traceidratio":
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	default:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
}
