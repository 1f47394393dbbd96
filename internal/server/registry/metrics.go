package registry

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/agentstation/livefeed/internal/server/registry"

// metrics holds the registry's OpenTelemetry instruments. Instruments that
// fail to register are left nil and skipped.
type metrics struct {
	events     metric.Int64Counter
	deliveries metric.Int64Counter
	reaped     metric.Int64Counter
}

func newMetrics(provider metric.MeterProvider, r *Registry, logger *zerolog.Logger) *metrics {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)
	m := &metrics{}

	var err error
	if m.events, err = meter.Int64Counter("livefeed.broadcast.events",
		metric.WithDescription("Envelopes passed to Broadcast"),
	); err != nil {
		logger.Warn().Err(err).Msg("Failed to create broadcast events counter")
	}
	if m.deliveries, err = meter.Int64Counter("livefeed.broadcast.deliveries",
		metric.WithDescription("Envelopes handed to a connection"),
	); err != nil {
		logger.Warn().Err(err).Msg("Failed to create deliveries counter")
	}
	if m.reaped, err = meter.Int64Counter("livefeed.connections.reaped",
		metric.WithDescription("Connections removed after a failed write"),
	); err != nil {
		logger.Warn().Err(err).Msg("Failed to create reaped counter")
	}
	if _, err = meter.Int64ObservableGauge("livefeed.connections.open",
		metric.WithDescription("Currently registered connections"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(r.Count()))
			return nil
		}),
	); err != nil {
		logger.Warn().Err(err).Msg("Failed to create open connections gauge")
	}

	return m
}

func (m *metrics) broadcast(eventType string, delivered int) {
	attrs := metric.WithAttributes(attribute.String("type", eventType))
	if m.events != nil {
		m.events.Add(context.Background(), 1, attrs)
	}
	if m.deliveries != nil && delivered > 0 {
		m.deliveries.Add(context.Background(), int64(delivered), attrs)
	}
}

func (m *metrics) reap(reason string) {
	if m.reaped != nil {
		m.reaped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}
