package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"backoffice/authcore/internal/audit"
	"backoffice/authcore/internal/audit/domain"
)

// Instruments are the counters and histograms recorded by the HTTP layer and the access-event path.
type Instruments struct {
	decisions    metric.Int64Counter
	accessEvents metric.Int64Counter
	duration     metric.Float64Histogram
}

// NewInstruments registers the instruments on meter.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	decisions, err := meter.Int64Counter("authcore.decisions",
		metric.WithDescription("Authorization decisions by gate and outcome"))
	if err != nil {
		return nil, err
	}
	events, err := meter.Int64Counter("authcore.access_events",
		metric.WithDescription("Access events written, by kind"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("authcore.http.server.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	return &Instruments{decisions: decisions, accessEvents: events, duration: duration}, nil
}

// Decision counts one decision of gate with outcome. Nil-safe.
func (i *Instruments) Decision(ctx context.Context, gate, outcome string) {
	if i == nil {
		return
	}
	i.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("gate", gate), attribute.String("outcome", outcome)))
}

// Request records one HTTP request. Nil-safe.
func (i *Instruments) Request(ctx context.Context, route, method string, status int, elapsed time.Duration) {
	if i == nil {
		return
	}
	i.duration.Record(ctx, float64(elapsed.Microseconds())/1000, metric.WithAttributes(
		attribute.String("http.route", route),
		attribute.String("http.request.method", method),
		attribute.Int("http.response.status_code", status),
	))
}

// CountingSink wraps next and counts every written event by kind.
func (i *Instruments) CountingSink(next audit.Sink) audit.Sink {
	return audit.SinkFunc(func(ctx context.Context, e *domain.AccessEvent) error {
		if i != nil && e != nil {
			i.accessEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(e.Kind))))
		}
		if next == nil {
			return nil
		}
		return next.Write(ctx, e)
	})
}
