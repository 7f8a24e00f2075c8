package audit

import (
	"context"
	"errors"

	"backoffice/authcore/internal/audit/domain"
)

// Sink persists or forwards one access event. Implementations: the Postgres repository,
// the Kafka producer and the OTel log emitter.
type Sink interface {
	Write(ctx context.Context, e *domain.AccessEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e *domain.AccessEvent) error

func (f SinkFunc) Write(ctx context.Context, e *domain.AccessEvent) error { return f(ctx, e) }

// MultiSink writes to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, e *domain.AccessEvent) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Write(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
