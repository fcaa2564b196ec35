// Package telemetry installs the OpenTelemetry tracer provider.
package telemetry

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/amaumene/grabarr/internal/config"
)

// TracerName is the instrumentation name used by every component
const TracerName = "github.com/amaumene/grabarr"

// Tracer returns the pipeline tracer from the global provider
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// Setup installs the global tracer provider and returns its shutdown func
func Setup(cfg config.TelemetryConfig, logger *logrus.Logger) func(context.Context) error {
	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func(context.Context) error { return nil }
	}

	res := resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSpanProcessor(NewLogProcessor(logger)),
	)
	otel.SetTracerProvider(tp)

	logger.WithField("service", cfg.ServiceName).Info("Tracing enabled")
	return tp.Shutdown
}

// LogProcessor logs finished spans at debug level
type LogProcessor struct {
	logger *logrus.Logger
}

// NewLogProcessor creates a new span processor writing to logger
func NewLogProcessor(logger *logrus.Logger) *LogProcessor {
	return &LogProcessor{logger: logger}
}

// OnStart is a no-op
func (p *LogProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

// OnEnd logs the span
func (p *LogProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	fields := logrus.Fields{
		"span":     s.Name(),
		"trace_id": s.SpanContext().TraceID().String(),
		"duration": s.EndTime().Sub(s.StartTime()),
		"status":   s.Status().Code.String(),
	}
	for _, kv := range s.Attributes() {
		fields[string(kv.Key)] = kv.Value.Emit()
	}
	p.logger.WithFields(fields).Debug("Span finished")
}

// Shutdown is a no-op
func (p *LogProcessor) Shutdown(context.Context) error { return nil }

// ForceFlush is a no-op
func (p *LogProcessor) ForceFlush(context.Context) error { return nil }
