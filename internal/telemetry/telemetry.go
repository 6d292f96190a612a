// Package telemetry holds the OpenTelemetry tracer and metric instruments
// used by the case pipeline. Instruments come from the global providers, so
// they are no-ops until a host process installs real providers.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/Pg1910/clinical-rag"

// Tracer returns the package tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartSpan starts a span named name with the given attributes.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// Metrics holds the pipeline counters.
type Metrics struct {
	LLMAttempts    metric.Int64Counter
	LLMRetries     metric.Int64Counter
	CasesCompleted metric.Int64Counter
	CasesFailed    metric.Int64Counter
	RecordsIndexed metric.Int64Counter
}

// NewMetrics creates the pipeline counters on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	attempts, err := meter.Int64Counter(
		"copilot.llm.attempts",
		metric.WithDescription("Number of inference attempts"),
	)
	if err != nil {
		return nil, err
	}

	retries, err := meter.Int64Counter(
		"copilot.llm.retries",
		metric.WithDescription("Number of shrink-and-retry transitions"),
	)
	if err != nil {
		return nil, err
	}

	completed, err := meter.Int64Counter(
		"copilot.cases.completed",
		metric.WithDescription("Number of cases that produced a report"),
	)
	if err != nil {
		return nil, err
	}

	failed, err := meter.Int64Counter(
		"copilot.cases.failed",
		metric.WithDescription("Number of cases that failed"),
	)
	if err != nil {
		return nil, err
	}

	indexed, err := meter.Int64Counter(
		"copilot.index.records",
		metric.WithDescription("Number of evidence records indexed"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		LLMAttempts:    attempts,
		LLMRetries:     retries,
		CasesCompleted: completed,
		CasesFailed:    failed,
		RecordsIndexed: indexed,
	}, nil
}

// Default returns counters that never fail to construct. If the global
// meter rejects an instrument, no-op counters are used instead.
func Default() *Metrics {
	m, err := NewMetrics()
	if err != nil {
		return noopMetrics()
	}
	return m
}

// Add increments a counter with attributes. A nil receiver or counter is ignored.
func Add(ctx context.Context, c metric.Int64Counter, n int64, attrs ...attribute.KeyValue) {
	if c == nil {
		return
	}
	c.Add(ctx, n, metric.WithAttributes(attrs...))
}
