package observability

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"

	"github.com/shpitdev/cable-intel/internal/logger"
	"github.com/shpitdev/cable-intel/internal/utils"
)

// TelemetryConfig is parsed from AI_SDK_TELEMETRY_*; any value outside
// true/false/1/0/yes/no is a startup error.
type TelemetryConfig struct {
	Enabled       bool
	RecordInputs  bool
	RecordOutputs bool
}

func LoadTelemetryConfig() (TelemetryConfig, error) {
	enabled, err := utils.GetEnvAsBool("AI_SDK_TELEMETRY_ENABLED", false)
	if err != nil {
		return TelemetryConfig{}, err
	}
	recordInputs, err := utils.GetEnvAsBool("AI_SDK_TELEMETRY_RECORD_INPUTS", false)
	if err != nil {
		return TelemetryConfig{}, err
	}
	recordOutputs, err := utils.GetEnvAsBool("AI_SDK_TELEMETRY_RECORD_OUTPUTS", false)
	if err != nil {
		return TelemetryConfig{}, err
	}
	return TelemetryConfig{
		Enabled:       enabled,
		RecordInputs:  recordInputs,
		RecordOutputs: recordOutputs,
	}, nil
}

var (
	otelOnce     sync.Once
	otelShutdown func(context.Context) error
)

// InitOTel installs the global tracer provider when telemetry is enabled.
// Returns a shutdown hook (nil when telemetry is off).
func InitOTel(ctx context.Context, log *logger.Logger, cfg TelemetryConfig, serviceName string) func(context.Context) error {
	otelOnce.Do(func() {
		if !cfg.Enabled {
			return
		}
		if strings.TrimSpace(serviceName) == "" {
			serviceName = "cable-intel"
		}
		res, err := resource.New(
			ctx,
			resource.WithAttributes(
				semconv.ServiceNameKey.String(serviceName),
				attribute.String("service.component", "ingest-api"),
			),
		)
		if err != nil && log != nil {
			log.Warn("otel resource init failed (continuing)", "error", err)
		}

		exporter, expErr := buildTraceExporter(ctx, log)
		if expErr != nil && log != nil {
			log.Warn("otel exporter init failed (continuing)", "error", expErr)
		}
		var tp *sdktrace.TracerProvider
		if exporter != nil {
			tp = sdktrace.NewTracerProvider(
				sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
				sdktrace.WithResource(res),
			)
		} else {
			tp = sdktrace.NewTracerProvider(sdktrace.WithResource(res))
		}
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
		otelShutdown = tp.Shutdown
		if log != nil {
			log.Info("otel tracing initialized", "service", serviceName)
		}
	})
	return otelShutdown
}

// buildTraceExporter prefers OTLP-HTTP when an endpoint is configured and
// falls back to stdout for local runs.
func buildTraceExporter(ctx context.Context, log *logger.Logger) (sdktrace.SpanExporter, error) {
	endpoint := strings.TrimSpace(utils.GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "", nil))
	if endpoint != "" {
		return otlptracehttp.New(ctx,
			otlptracehttp.WithEndpointURL(endpoint),
		)
	}
	if log != nil {
		log.Debug("OTEL_EXPORTER_OTLP_ENDPOINT not set, exporting spans to stdout")
	}
	return stdouttrace.New(stdouttrace.WithPrettyPrint())
}
