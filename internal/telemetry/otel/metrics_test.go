package otel

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"backoffice/authcore/internal/audit"
	"backoffice/authcore/internal/audit/domain"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] += dp.Value
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					out[m.Name] += int64(dp.Count)
				}
			}
		}
	}
	return out
}

func TestInstruments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	inst, err := NewInstruments(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewInstruments: %v", err)
	}
	ctx := context.Background()
	inst.Decision(ctx, "tenant_access", "granted")
	inst.Decision(ctx, "reauth", "reauth_required")
	inst.Request(ctx, "/api/v1/sessions", "GET", 200, 3*time.Millisecond)

	var written int
	sink := inst.CountingSink(audit.SinkFunc(func(context.Context, *domain.AccessEvent) error {
		written++
		return nil
	}))
	if err := sink.Write(ctx, &domain.AccessEvent{Kind: domain.KindLogout}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if written != 1 {
		t.Errorf("next sink writes = %d, want 1", written)
	}

	got := collect(t, reader)
	if got["authcore.decisions"] != 2 {
		t.Errorf("decisions = %d, want 2", got["authcore.decisions"])
	}
	if got["authcore.access_events"] != 1 {
		t.Errorf("access_events = %d, want 1", got["authcore.access_events"])
	}
	if got["authcore.http.server.duration"] != 1 {
		t.Errorf("duration count = %d, want 1", got["authcore.http.server.duration"])
	}
}

func TestInstruments_NilSafe(t *testing.T) {
	var inst *Instruments
	inst.Decision(context.Background(), "g", "o")
	inst.Request(context.Background(), "/", "GET", 200, time.Millisecond)
	if err := inst.CountingSink(nil).Write(context.Background(), &domain.AccessEvent{Kind: domain.KindLogout}); err != nil {
		t.Errorf("Write: %v", err)
	}
}
