package otel

import (
	"context"
	"encoding/json"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"backoffice/authcore/internal/audit"
	"backoffice/authcore/internal/audit/domain"
)

const scopeName = "backoffice.authcore.access"

type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewEventSink returns an audit sink that emits access events as OTel log records via provider.
// If provider is nil, the sink discards events.
func NewEventSink(provider *sdklog.LoggerProvider) audit.Sink {
	if provider == nil {
		return audit.SinkFunc(func(context.Context, *domain.AccessEvent) error { return nil })
	}
	return &eventSink{logger: provider.Logger(scopeName)}
}

type eventSink struct {
	logger recordEmitter
}

// Write converts the event to a log record. The body is the event's metadata as JSON.
func (s *eventSink) Write(ctx context.Context, e *domain.AccessEvent) error {
	if e == nil {
		return nil
	}
	rec := otellog.Record{}
	ts := e.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetSeverity(severity(e.Kind))
	rec.SetEventName(string(e.Kind))
	if len(e.Metadata) > 0 {
		body, err := json.Marshal(e.Metadata)
		if err != nil {
			return err
		}
		rec.SetBody(otellog.BytesValue(body))
	}
	rec.AddAttributes(otellog.String("event_id", e.ID), otellog.String("kind", string(e.Kind)))
	if e.ActorUserID != "" {
		rec.AddAttributes(otellog.String("actor_user_id", e.ActorUserID))
	}
	if e.TenantID != "" {
		rec.AddAttributes(otellog.String("tenant_id", e.TenantID))
	}
	if e.IP != "" {
		rec.AddAttributes(otellog.String("client_ip", e.IP))
	}
	s.logger.Emit(ctx, rec)
	return nil
}

func severity(k domain.Kind) otellog.Severity {
	switch k {
	case domain.KindLoginFailure, domain.KindMFAFailure, domain.KindDeviceUnapproved:
		return otellog.SeverityWarn
	default:
		return otellog.SeverityInfo
	}
}
