package telemetry

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.26.0"
)

type Options struct {
	ServiceName    string
	ServiceVersion string
	// Endpoint is the OTLP gRPC collector address. Tracing stays a no-op
	// when it is empty.
	Endpoint string
	Insecure bool
	Logger   logrus.FieldLogger
}

type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// Setup installs the global tracer provider and W3C trace context propagation.
// Exporter failures are logged and leave tracing disabled.
func Setup(ctx context.Context, options Options) ShutdownFunc {
	log := options.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if options.Endpoint == "" {
		log.Debug("otel exporter endpoint not set, tracing disabled")
		return noopShutdown
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(options.Endpoint)}
	if options.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		log.WithError(err).Error("otel exporter error")
		return noopShutdown
	}

	attrs := []resource.Option{resource.WithAttributes(semconv.ServiceName(options.ServiceName))}
	if options.ServiceVersion != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceVersion(options.ServiceVersion)))
	}
	res, err := resource.New(ctx, attrs...)
	if err != nil {
		log.WithError(err).Warn("otel resource error")
	}

	provider := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	log.WithField("endpoint", options.Endpoint).Info("otel tracing enabled")

	return provider.Shutdown
}
