// Package metrics holds the OpenTelemetry instruments recorded by the
// conversation service.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "fundamentallm"

// Metrics holds all metric instruments. A nil *Metrics records nothing.
type Metrics struct {
	ConversationsCreated metric.Int64Counter
	TurnsCompleted       metric.Int64Counter
	TurnsFailed          metric.Int64Counter
	TurnsSkipped         metric.Int64Counter
	Imports              metric.Int64Counter
	TokensUsed           metric.Int64Counter
	LLMDuration          metric.Float64Histogram
}

// New creates all metric instruments on the given provider.
func New(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	m := &Metrics{}
	var err error

	m.ConversationsCreated, err = meter.Int64Counter("fundamentallm.conversations.created",
		metric.WithDescription("Number of conversations created"))
	if err != nil {
		return nil, err
	}

	m.TurnsCompleted, err = meter.Int64Counter("fundamentallm.turns.completed",
		metric.WithDescription("Number of exchanges persisted"))
	if err != nil {
		return nil, err
	}

	m.TurnsFailed, err = meter.Int64Counter("fundamentallm.turns.failed",
		metric.WithDescription("Number of exchanges that failed"))
	if err != nil {
		return nil, err
	}

	m.TurnsSkipped, err = meter.Int64Counter("fundamentallm.turns.skipped",
		metric.WithDescription("Number of blank messages ignored"))
	if err != nil {
		return nil, err
	}

	m.Imports, err = meter.Int64Counter("fundamentallm.imports",
		metric.WithDescription("Number of history imports by outcome"))
	if err != nil {
		return nil, err
	}

	m.TokensUsed, err = meter.Int64Counter("fundamentallm.llm.tokens",
		metric.WithDescription("Total tokens reported by the model provider"))
	if err != nil {
		return nil, err
	}

	m.LLMDuration, err = meter.Float64Histogram("fundamentallm.llm.duration_seconds",
		metric.WithDescription("Model call latency in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) ConversationCreated(ctx context.Context, withQuestion bool) {
	if m == nil {
		return
	}
	m.ConversationsCreated.Add(ctx, 1, metric.WithAttributes(attribute.Bool("with_question", withQuestion)))
}

// LLMCall records the latency of one model call.
func (m *Metrics) LLMCall(ctx context.Context, operation string, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.LLMDuration.Record(ctx, took.Seconds(), metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Bool("error", err != nil),
	))
}

func (m *Metrics) TurnCompleted(ctx context.Context, totalTokens int) {
	if m == nil {
		return
	}
	m.TurnsCompleted.Add(ctx, 1)
	if totalTokens > 0 {
		m.TokensUsed.Add(ctx, int64(totalTokens))
	}
}

// TurnFailed records a failed exchange; stage names where it failed.
func (m *Metrics) TurnFailed(ctx context.Context, stage string) {
	if m == nil {
		return
	}
	m.TurnsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

func (m *Metrics) TurnSkipped(ctx context.Context) {
	if m == nil {
		return
	}
	m.TurnsSkipped.Add(ctx, 1)
}

func (m *Metrics) Import(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.Imports.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
