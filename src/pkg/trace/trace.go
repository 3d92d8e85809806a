// Package trace wires OpenTelemetry tracing for a single pipeline run.
//
// When the performance report is enabled, spans are exported as JSON to
// <outputDir>/performance.json and metrics to <outputDir>/metrics.json. Otherwise the
// global no-op providers stay installed and StartSpan costs nothing.
package trace

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

var logger = log.WithField("package", "trace")

// PerformanceReportFile is the span export file name inside the output dir
const PerformanceReportFile = "performance.json"

// MetricsReportFile is the metric export file name inside the output dir
const MetricsReportFile = "metrics.json"

const tracerName = "iacguard"

// InitTracer installs global tracer and meter providers. The returned shutdown flushes
// spans and metrics and closes the export files; it is safe to call when tracing is disabled.
func InitTracer(serviceName string, enabled bool, outputDir string) (func(), error) {
	if !enabled {
		return func() {}, nil
	}
	logger.WithField("outputDir", outputDir).Info("InitTracer: starting...")

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
	)

	tracePath := filepath.Join(outputDir, PerformanceReportFile)
	tf, err := os.Create(tracePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create performance report file: %w", err)
	}
	tp, err := initTracerProvider(tf, res)
	if err != nil {
		_ = tf.Close()
		return nil, err
	}

	metricsPath := filepath.Join(outputDir, MetricsReportFile)
	mf, err := os.Create(metricsPath)
	if err != nil {
		_ = tp.Shutdown(context.Background())
		_ = tf.Close()
		return nil, fmt.Errorf("failed to create metrics report file: %w", err)
	}
	mp, err := initMeterProvider(mf, res)
	if err != nil {
		_ = tp.Shutdown(context.Background())
		_ = tf.Close()
		_ = mf.Close()
		return nil, err
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	shutdown := func() {
		ctx := context.Background()
		if err := tp.Shutdown(ctx); err != nil {
			logger.WithField("error", err).Warn("Failed to shutdown tracer provider")
		}
		// Shutdown runs a final collection through the periodic reader
		if err := mp.Shutdown(ctx); err != nil {
			logger.WithField("error", err).Warn("Failed to shutdown meter provider")
		}
		if err := tf.Close(); err != nil {
			logger.WithField("error", err).Warn("Failed to close performance report file")
		}
		if err := mf.Close(); err != nil {
			logger.WithField("error", err).Warn("Failed to close metrics report file")
		}
		logger.WithFields(log.Fields{"traces": tracePath, "metrics": metricsPath}).Info("Performance report written")
	}
	logger.Info("InitTracer: done.")
	return shutdown, nil
}

func initTracerProvider(w io.Writer, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(w),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(res),
	), nil
}

func initMeterProvider(w io.Writer, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	exporter, err := stdoutmetric.New(
		stdoutmetric.WithWriter(w),
		stdoutmetric.WithPrettyPrint(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
	), nil
}

// StartSpan starts a span from the global provider
func StartSpan(ctx context.Context, name string, opts ...oteltrace.SpanStartOption) (context.Context, oteltrace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}
