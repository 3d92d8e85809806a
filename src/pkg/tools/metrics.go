package tools

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/gh-nvat/iacguard/src/pkg/models"
	itrace "github.com/gh-nvat/iacguard/src/pkg/trace"
)

var meter = otel.Meter("iacguard.tools")

var (
	toolLatency   metric.Float64Histogram
	toolRuns      metric.Int64Counter
	findingsFound metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		toolLatency, err = meter.Float64Histogram(
			"tool_run_duration_seconds",
			metric.WithDescription("Duration of analyzer subprocess runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		toolRuns, err = meter.Int64Counter(
			"tool_runs_total",
			metric.WithDescription("Total number of analyzer runs"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		findingsFound, err = meter.Int64Counter(
			"tool_findings_total",
			metric.WithDescription("Total number of findings by tool and severity"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func startToolSpan(ctx context.Context, tool models.Tool, binary, target string) (context.Context, trace.Span) {
	return itrace.StartSpan(ctx, "Adapter.Run."+string(tool),
		trace.WithAttributes(
			attribute.String("tool.name", string(tool)),
			attribute.String("tool.binary", binary),
			attribute.String("tool.target", target),
		),
	)
}

func setToolSpanResult(span trace.Span, result *models.ToolResult) {
	span.SetAttributes(
		attribute.Int("tool.exit_code", result.ExitCode),
		attribute.Bool("tool.ran_successfully", result.RanSuccessfully),
		attribute.Int("tool.finding_count", len(result.Findings)),
		attribute.Int("tool.blocking_count", len(result.BlockingFindings())),
	)
}

// recordToolMetrics records one adapter run. kind is empty for a run that produced a result.
func recordToolMetrics(ctx context.Context, tool models.Tool, duration time.Duration, result *models.ToolResult, kind ErrorKind) {
	if err := initMetrics(); err != nil {
		return
	}

	outcome := "ok"
	switch {
	case kind != "":
		outcome = string(kind)
	case result != nil && !result.RanSuccessfully:
		outcome = string(KindScanFailed)
	}
	attrs := metric.WithAttributes(
		attribute.String("tool", string(tool)),
		attribute.String("outcome", outcome),
	)
	toolLatency.Record(ctx, duration.Seconds(), attrs)
	toolRuns.Add(ctx, 1, attrs)

	if result == nil {
		return
	}
	counts := make(map[models.Severity]int64)
	for _, f := range result.Findings {
		counts[f.Severity]++
	}
	for sev, n := range counts {
		findingsFound.Add(ctx, n, metric.WithAttributes(
			attribute.String("tool", string(tool)),
			attribute.String("severity", sev.String()),
		))
	}
}
