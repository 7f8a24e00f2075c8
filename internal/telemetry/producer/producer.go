// Package producer publishes access events to Kafka and consumes them in the access-event worker.
package producer

import (
	"context"

	"backoffice/authcore/internal/audit/domain"
)

// Producer publishes access events. Callers use it best-effort through the audit dispatcher.
type Producer interface {
	// Write publishes one event. Implements audit.Sink.
	Write(ctx context.Context, e *domain.AccessEvent) error
	// Close releases resources. Safe to call if already closed.
	Close() error
}
