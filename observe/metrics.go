package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records trust-core request and minting metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordRequest records one dispatched request: which auth method
	// resolved the caller, the terminal HTTP status, and the duration.
	RecordRequest(ctx context.Context, authMethod string, status int, duration time.Duration)

	// RecordMint records one delegation token mint attempt.
	// Outcome is "success", "bad_request", "forbidden" or "error".
	RecordMint(ctx context.Context, outcome string, duration time.Duration)
}

// metricsImpl is the concrete implementation of Metrics.
type metricsImpl struct {
	requestCount metric.Int64Counter
	requestHist  metric.Float64Histogram
	mintCount    metric.Int64Counter
	mintHist     metric.Float64Histogram
}

// NewMetrics creates a Metrics instance with the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	requestCount, err := meter.Int64Counter(
		"auth.request.total",
		metric.WithDescription("Total number of dispatched requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	requestHist, err := meter.Float64Histogram(
		"auth.request.duration_ms",
		metric.WithDescription("Request dispatch duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	mintCount, err := meter.Int64Counter(
		"delegation.mint.total",
		metric.WithDescription("Total number of delegation token mint attempts"),
		metric.WithUnit("{mint}"),
	)
	if err != nil {
		return nil, err
	}

	mintHist, err := meter.Float64Histogram(
		"delegation.mint.duration_ms",
		metric.WithDescription("Delegation token mint duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		requestCount: requestCount,
		requestHist:  requestHist,
		mintCount:    mintCount,
		mintHist:     mintHist,
	}, nil
}

func (m *metricsImpl) RecordRequest(ctx context.Context, authMethod string, status int, duration time.Duration) {
	opt := metric.WithAttributes(
		attribute.String("auth.method", authMethod),
		attribute.Int("http.status", status),
	)
	m.requestCount.Add(ctx, 1, opt)
	m.requestHist.Record(ctx, float64(duration)/float64(time.Millisecond), opt)
}

func (m *metricsImpl) RecordMint(ctx context.Context, outcome string, duration time.Duration) {
	opt := metric.WithAttributes(attribute.String("mint.outcome", outcome))
	m.mintCount.Add(ctx, 1, opt)
	m.mintHist.Record(ctx, float64(duration)/float64(time.Millisecond), opt)
}

// NopMetrics discards all measurements.
type NopMetrics struct{}

func (NopMetrics) RecordRequest(context.Context, string, int, time.Duration) {}
func (NopMetrics) RecordMint(context.Context, string, time.Duration)         {}

// Ensure implementations satisfy the interface.
var (
	_ Metrics = (*metricsImpl)(nil)
	_ Metrics = NopMetrics{}
)
