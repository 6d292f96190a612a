package telemetry

import "go.opentelemetry.io/otel/metric/noop"

func noopMetrics() *Metrics {
	meter := noop.NewMeterProvider().Meter(instrumentationName)
	attempts, _ := meter.Int64Counter("copilot.llm.attempts")
	retries, _ := meter.Int64Counter("copilot.llm.retries")
	completed, _ := meter.Int64Counter("copilot.cases.completed")
	failed, _ := meter.Int64Counter("copilot.cases.failed")
	indexed, _ := meter.Int64Counter("copilot.index.records")
	return &Metrics{
		LLMAttempts:    attempts,
		LLMRetries:     retries,
		CasesCompleted: completed,
		CasesFailed:    failed,
		RecordsIndexed: indexed,
	}
}
