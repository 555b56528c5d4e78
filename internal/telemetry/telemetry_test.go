package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/desertthunder/witx/internal/models"
	"github.com/desertthunder/witx/internal/shared"
	tu "github.com/desertthunder/witx/internal/testing"
	"github.com/desertthunder/witx/internal/wiql"
)

type instrumented struct {
	tracker *InstrumentedTracker
	spans   *tracetest.SpanRecorder
	reader  *sdkmetric.ManualReader
}

func newInstrumented(t *testing.T, inner *tu.FakeTracker) instrumented {
	t.Helper()

	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
	})

	return instrumented{
		tracker: newInstrumentedTracker(inner, tp.Tracer(trackerScopeName), mp.Meter(trackerScopeName)),
		spans:   spans,
		reader:  reader,
	}
}

// sumOf collects the named int64 counter and totals its data points.
func sumOf(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect failed: %v", err)
	}

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s is not an int64 sum: %T", name, m.Data)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestInstrumentedTracker(t *testing.T) {
	ctx := context.Background()

	t.Run("spans per operation", func(t *testing.T) {
		fake := tu.NewFakeTracker("alpha", 0)
		story := fake.Add("Alpha", "User Story", "Login", nil)
		fake.Add("Alpha", "Task", "Write tests", nil)
		in := newInstrumented(t, fake)

		records, err := in.tracker.Query(ctx, wiql.ProjectQuery("Alpha"))
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("expected 2 records, got %d", len(records))
		}

		h, err := in.tracker.Create(ctx, map[string]any{models.FieldTitle: "Copy"}, "Task", "Alpha")
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		src, _ := fake.Handle(story.ID)
		if err := in.tracker.AddRelation(ctx, src, *h, models.RelationForward); err != nil {
			t.Fatalf("AddRelation failed: %v", err)
		}

		ended := in.spans.Ended()
		want := []string{"tracker.Query", "tracker.Create", "tracker.AddRelation"}
		if len(ended) != len(want) {
			t.Fatalf("expected %d spans, got %d", len(want), len(ended))
		}
		for i, name := range want {
			if ended[i].Name() != name {
				t.Errorf("span %d: expected %s, got %s", i, name, ended[i].Name())
			}
			if ended[i].Status().Code == codes.Error {
				t.Errorf("span %s should not be an error", name)
			}
		}

		if got := sumOf(t, in.reader, "witx.tracker.operations"); got != 3 {
			t.Errorf("expected 3 operations, got %d", got)
		}
		if got := sumOf(t, in.reader, "witx.tracker.errors"); got != 0 {
			t.Errorf("expected no errors, got %d", got)
		}
	})

	t.Run("errors mark span and counter", func(t *testing.T) {
		fake := tu.NewFakeTracker("beta", 100)
		fake.FailCreate("Broken", errors.New("rejected"))
		in := newInstrumented(t, fake)

		_, err := in.tracker.Create(ctx, map[string]any{models.FieldTitle: "Broken"}, "Task", "Beta")
		if !errors.Is(err, shared.ErrRemoteWrite) {
			t.Fatalf("expected ErrRemoteWrite passed through, got %v", err)
		}

		ended := in.spans.Ended()
		if len(ended) != 1 {
			t.Fatalf("expected 1 span, got %d", len(ended))
		}
		if ended[0].Status().Code != codes.Error {
			t.Errorf("expected error status, got %v", ended[0].Status())
		}
		if len(ended[0].Events()) == 0 {
			t.Error("expected recorded error event")
		}

		if got := sumOf(t, in.reader, "witx.tracker.errors"); got != 1 {
			t.Errorf("expected 1 error, got %d", got)
		}
	})

	t.Run("name and unwrap", func(t *testing.T) {
		fake := tu.NewFakeTracker("gamma", 0)
		in := newInstrumented(t, fake)

		if in.tracker.Name() != "gamma" {
			t.Errorf("expected name gamma, got %s", in.tracker.Name())
		}
		if in.tracker.Unwrap() != fake {
			t.Error("Unwrap should return the inner tracker")
		}
	})
}

func TestInit(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled installs no-op providers", func(t *testing.T) {
		shutdown, err := Init(ctx, shared.TelemetryConfig{}, "test")
		if err != nil {
			t.Fatalf("Init failed: %v", err)
		}
		if Enabled() {
			t.Error("telemetry should be disabled")
		}

		fake := tu.NewFakeTracker("alpha", 0)
		if WrapTracker(fake) != fake {
			t.Error("WrapTracker should return the tracker unchanged when disabled")
		}
		if err := shutdown(ctx); err != nil {
			t.Errorf("shutdown failed: %v", err)
		}
	})

	t.Run("enabled wraps trackers", func(t *testing.T) {
		shutdown, err := Init(ctx, shared.TelemetryConfig{Enabled: true, ServiceName: "witx-test"}, "test")
		if err != nil {
			t.Fatalf("Init failed: %v", err)
		}
		defer func() {
			if err := shutdown(ctx); err != nil {
				t.Errorf("shutdown failed: %v", err)
			}
			if Enabled() {
				t.Error("shutdown should disable telemetry")
			}
		}()

		if !Enabled() {
			t.Fatal("telemetry should be enabled")
		}

		wrapped := WrapTracker(tu.NewFakeTracker("alpha", 0))
		if _, ok := wrapped.(*InstrumentedTracker); !ok {
			t.Errorf("expected *InstrumentedTracker, got %T", wrapped)
		}
	})
}
