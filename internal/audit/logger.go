package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"backoffice/authcore/internal/audit/domain"
)

// Recorder records access events. Record is best-effort and never fails the caller.
type Recorder interface {
	Record(ctx context.Context, e domain.AccessEvent)
}

// Logger implements Recorder by stamping events and queueing them on a Dispatcher.
type Logger struct {
	dispatcher *Dispatcher
	now        func() time.Time
}

// NewLogger returns a Recorder that enqueues on d. d may be nil; then events are discarded.
func NewLogger(d *Dispatcher) *Logger {
	return &Logger{dispatcher: d, now: func() time.Time { return time.Now().UTC() }}
}

// Record assigns an id and timestamp when missing, then enqueues the event.
func (l *Logger) Record(_ context.Context, e domain.AccessEvent) {
	if l == nil || l.dispatcher == nil || e.Kind == "" {
		return
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now()
	}
	l.dispatcher.Enqueue(&e)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Record(context.Context, domain.AccessEvent) {}
