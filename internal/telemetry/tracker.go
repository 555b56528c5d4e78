package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/desertthunder/witx/internal/models"
	"github.com/desertthunder/witx/internal/services"
)

const trackerScopeName = "github.com/desertthunder/witx/tracker"

var _ services.Tracker = (*InstrumentedTracker)(nil)

// InstrumentedTracker wraps services.Tracker with OTel tracing and metrics.
// Every remote call gets a span and is counted in witx.tracker.* metrics.
type InstrumentedTracker struct {
	inner  services.Tracker
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// WrapTracker returns t decorated with OTel instrumentation.
// When telemetry is disabled, t is returned as-is.
func WrapTracker(t services.Tracker) services.Tracker {
	if !Enabled() {
		return t
	}
	return newInstrumentedTracker(t, Tracer(trackerScopeName), Meter(trackerScopeName))
}

func newInstrumentedTracker(t services.Tracker, tracer trace.Tracer, m metric.Meter) *InstrumentedTracker {
	ops, _ := m.Int64Counter("witx.tracker.operations",
		metric.WithDescription("Total tracker operations executed"),
	)
	dur, _ := m.Float64Histogram("witx.tracker.operation.duration",
		metric.WithDescription("Tracker operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("witx.tracker.errors",
		metric.WithDescription("Total tracker operation errors"),
	)
	return &InstrumentedTracker{inner: t, tracer: tracer, ops: ops, dur: dur, errs: errs}
}

// Unwrap returns the decorated tracker.
func (s *InstrumentedTracker) Unwrap() services.Tracker { return s.inner }

func (s *InstrumentedTracker) Name() string { return s.inner.Name() }

// op starts a span and records a metric for the named tracker operation.
func (s *InstrumentedTracker) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, []attribute.KeyValue, time.Time) {
	all := append([]attribute.KeyValue{
		attribute.String("witx.tracker", s.inner.Name()),
		attribute.String("witx.operation", name),
	}, attrs...)
	ctx, span := s.tracer.Start(ctx, "tracker."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all[:2]...))
	return ctx, span, all[:2], time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedTracker) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

func (s *InstrumentedTracker) Query(ctx context.Context, query string) ([]models.WorkRecord, error) {
	ctx, span, attrs, t := s.op(ctx, "Query", attribute.String("witx.query", query))
	v, err := s.inner.Query(ctx, query)
	span.SetAttributes(attribute.Int("witx.record.count", len(v)))
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedTracker) Create(ctx context.Context, fields map[string]any, recordType, project string) (*models.Handle, error) {
	ctx, span, attrs, t := s.op(ctx, "Create",
		attribute.String("witx.record.type", recordType),
		attribute.String("witx.project", project),
	)
	h, err := s.inner.Create(ctx, fields, recordType, project)
	if h != nil {
		span.SetAttributes(attribute.Int("witx.record.id", h.ID))
	}
	s.done(ctx, span, t, err, attrs...)
	return h, err
}

func (s *InstrumentedTracker) AddRelation(ctx context.Context, source, target models.Handle, kind string) error {
	ctx, span, attrs, t := s.op(ctx, "AddRelation",
		attribute.Int("witx.source.id", source.ID),
		attribute.Int("witx.target.id", target.ID),
		attribute.String("witx.relation", kind),
	)
	err := s.inner.AddRelation(ctx, source, target, kind)
	s.done(ctx, span, t, err, attrs...)
	return err
}
