package observe

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "lifeos"

// Metrics holds the agent's metric instruments.
type Metrics struct {
	Runs          metric.Int64Counter
	RunIterations metric.Int64Histogram
	ToolCalls     metric.Int64Counter
	ToolFailures  metric.Int64Counter
	TouchFailures metric.Int64Counter
	CachedResults metric.Int64Counter
}

// NewMetrics creates all metric instruments on the global meter provider.
// If any instrument cannot be created, no-op instruments are used instead.
func NewMetrics() *Metrics {
	m, err := newMetrics(otel.Meter(meterName))
	if err != nil {
		m, _ = newMetrics(noop.NewMeterProvider().Meter(meterName))
	}
	return m
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.Runs, err = meter.Int64Counter("lifeos.runs",
		metric.WithDescription("Number of agent runs by outcome"))
	if err != nil {
		return nil, err
	}

	m.RunIterations, err = meter.Int64Histogram("lifeos.run.iterations",
		metric.WithDescription("Iterations used per agent run"))
	if err != nil {
		return nil, err
	}

	m.ToolCalls, err = meter.Int64Counter("lifeos.tool_calls",
		metric.WithDescription("Number of tool calls"))
	if err != nil {
		return nil, err
	}

	m.ToolFailures, err = meter.Int64Counter("lifeos.tool_failures",
		metric.WithDescription("Number of tool calls folded back as errors"))
	if err != nil {
		return nil, err
	}

	m.TouchFailures, err = meter.Int64Counter("lifeos.touch_failures",
		metric.WithDescription("Number of failed memory access updates"))
	if err != nil {
		return nil, err
	}

	m.CachedResults, err = meter.Int64Counter("lifeos.cached_results",
		metric.WithDescription("Number of tool results moved into the result cache"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordRun counts a finished run.
func (m *Metrics) RecordRun(ctx context.Context, outcome string, iterations int) {
	m.Runs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.RunIterations.Record(ctx, int64(iterations))
}

// RecordToolCall counts one tool call and, if it failed, one failure.
func (m *Metrics) RecordToolCall(ctx context.Context, tool string, failed bool) {
	attrs := metric.WithAttributes(attribute.String("tool", tool))
	m.ToolCalls.Add(ctx, 1, attrs)
	if failed {
		m.ToolFailures.Add(ctx, 1, attrs)
	}
}
