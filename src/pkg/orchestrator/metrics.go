package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/gh-nvat/iacguard/src/pkg/models"
)

var meter = otel.Meter("iacguard.orchestrator")

var (
	scanLatency metric.Float64Histogram
	scanTotal   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		scanLatency, err = meter.Float64Histogram(
			"scan_duration_seconds",
			metric.WithDescription("Duration of a full scan"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		scanTotal, err = meter.Int64Counter(
			"scan_total",
			metric.WithDescription("Total number of scans by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordScanMetrics records one scan. A nil verdict is an aborted scan.
func recordScanMetrics(ctx context.Context, duration time.Duration, verdict *models.Verdict) {
	if err := initMetrics(); err != nil {
		return
	}
	outcome := "error"
	if verdict != nil {
		outcome = "failed"
		if verdict.Passed {
			outcome = "passed"
		}
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	scanLatency.Record(ctx, duration.Seconds(), attrs)
	scanTotal.Add(ctx, 1, attrs)
}
