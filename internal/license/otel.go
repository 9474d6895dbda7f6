package license

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the OpenTelemetry instruments for the license engine
type Metrics struct {
	activationsTotal   metric.Int64Counter
	validationsTotal   metric.Int64Counter
	validationDuration metric.Float64Histogram
}

// NewMetrics creates the license engine instruments on the given meter
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	activations, err := meter.Int64Counter("license.activations.total",
		metric.WithDescription("License activation attempts by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create activations counter: %w", err)
	}

	validations, err := meter.Int64Counter("license.validations.total",
		metric.WithDescription("License validation checks by resulting status"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create validations counter: %w", err)
	}

	duration, err := meter.Float64Histogram("license.validation.duration",
		metric.WithDescription("License validation check duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	return &Metrics{
		activationsTotal:   activations,
		validationsTotal:   validations,
		validationDuration: duration,
	}, nil
}

// RecordActivation counts one activation attempt
func (m *Metrics) RecordActivation(ctx context.Context, success bool, reason string) {
	m.activationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("success", success),
		attribute.String("reason", reason),
	))
}

// RecordValidation counts one validation check and its duration
func (m *Metrics) RecordValidation(ctx context.Context, status string, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.validationsTotal.Add(ctx, 1, attrs)
	m.validationDuration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
}
