// Package telemetry centralises the adapter's dual-stream logging. The system
// stream is a slog.Logger for operators; the trace stream is one JSON record
// per line describing every component event. Each trace also feeds the
// OpenTelemetry instruments registered on the configured MeterProvider.
package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/voice"
)

const (
	meterName = "github.com/nupi-ai/plugin-tts-voice-customizer"

	eventsMetric   = "voicekit.component.events"
	durationMetric = "voicekit.component.duration"
	errorsMetric   = "voicekit.component.errors"
)

// durationBuckets are histogram boundaries in milliseconds. Component work is
// in-memory, so most events land well below one millisecond.
var durationBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250,
}

// Record is the JSON shape of one trace line.
type Record struct {
	TraceID    string         `json:"trace_id"`
	Component  string         `json:"component"`
	Event      string         `json:"event"`
	Timestamp  time.Time      `json:"timestamp"`
	Data       map[string]any `json:"data"`
	DurationMS float64        `json:"duration_ms"`
}

// Recorder fans component events out to the system log, the trace stream
// and the metric instruments. It is safe for concurrent use.
type Recorder struct {
	logger *slog.Logger

	mu    sync.Mutex
	trace io.Writer

	events   metric.Int64Counter
	duration metric.Float64Histogram
	failures metric.Int64Counter
}

// Option customises a Recorder.
type Option func(*recorderOptions)

type recorderOptions struct {
	trace         io.Writer
	meterProvider metric.MeterProvider
}

// WithTraceWriter sets the destination of the trace stream. The default
// discards trace records.
func WithTraceWriter(w io.Writer) Option {
	return func(o *recorderOptions) { o.trace = w }
}

// WithMeterProvider sets the provider used to create the metric instruments.
// The default is the global provider returned by otel.GetMeterProvider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *recorderOptions) { o.meterProvider = mp }
}

// NewRecorder constructs a telemetry recorder using the provided slog.Logger.
func NewRecorder(logger *slog.Logger, opts ...Option) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	o := recorderOptions{trace: io.Discard}
	for _, opt := range opts {
		opt(&o)
	}
	if o.trace == nil {
		o.trace = io.Discard
	}
	if o.meterProvider == nil {
		o.meterProvider = otel.GetMeterProvider()
	}

	r := &Recorder{logger: logger, trace: o.trace}
	if err := r.initInstruments(o.meterProvider.Meter(meterName)); err != nil {
		logger.Warn("telemetry: metric instruments unavailable, falling back to noop", "error", err)
		_ = r.initInstruments(noop.NewMeterProvider().Meter(meterName))
	}
	return r
}

// Discard returns a recorder that drops both streams. Components fall back to
// it when constructed without a recorder.
func Discard() *Recorder {
	return NewRecorder(
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithMeterProvider(noop.NewMeterProvider()),
	)
}

func (r *Recorder) initInstruments(m metric.Meter) error {
	var err error
	if r.events, err = m.Int64Counter(eventsMetric,
		metric.WithDescription("Component trace events by component and event."),
	); err != nil {
		return err
	}
	if r.duration, err = m.Float64Histogram(durationMetric,
		metric.WithDescription("Duration of completed component operations."),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return err
	}
	if r.failures, err = m.Int64Counter(errorsMetric,
		metric.WithDescription("Component failures by component and error code."),
	); err != nil {
		return err
	}
	return nil
}

// Logger returns the underlying slog.Logger for direct use.
func (r *Recorder) Logger() *slog.Logger {
	return r.logger
}

// Component returns the system logger tagged with the component name.
func (r *Recorder) Component(name string) *slog.Logger {
	return r.logger.With("component", name)
}

// Trace writes one trace record. A positive elapsed marks the end of an
// operation and is also recorded on the duration histogram.
func (r *Recorder) Trace(component, event string, data map[string]any, elapsed time.Duration) {
	if data == nil {
		data = map[string]any{}
	}
	ms := float64(elapsed) / float64(time.Millisecond)
	rec := Record{
		TraceID:    uuid.NewString(),
		Component:  component,
		Event:      event,
		Timestamp:  time.Now().UTC(),
		Data:       data,
		DurationMS: ms,
	}
	r.write(rec)

	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("component", component),
		attribute.String("event", event),
	)
	r.events.Add(ctx, 1, attrs)
	if elapsed > 0 {
		r.duration.Record(ctx, ms, metric.WithAttributes(attribute.String("component", component)))
	}
}

// Fail reports a component failure: an error line on the system log, an
// event trace carrying the error record, and an increment of the error
// counter.
func (r *Recorder) Fail(err *voice.ComponentError, event string) {
	if err == nil {
		return
	}
	r.logger.Error("component failure",
		"component", err.Component,
		"error_code", err.Code,
		"recovery", string(err.Recovery),
		"error", err.Message,
		"context", err.Context,
	)
	r.Trace(err.Component, event, err.Fields(), 0)
	r.failures.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("component", err.Component),
		attribute.String("error_code", err.Code),
	))
}

// Failure wraps err in a ComponentError, reports it through Fail and returns
// it for the caller to propagate.
func (r *Recorder) Failure(component, event, code string, recovery voice.Recovery, err error, fields map[string]any) error {
	ce := voice.NewComponentError(component, code, recovery, err, fields)
	r.Fail(ce, event)
	return ce
}

func (r *Recorder) write(rec Record) {
	line, err := json.Marshal(rec)
	if err != nil {
		r.logger.Warn("telemetry: encode trace record", "event", rec.Event, "error", err)
		return
	}
	line = append(line, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.trace.Write(line); err != nil {
		r.logger.Warn("telemetry: write trace record", "event", rec.Event, "error", err)
	}
}

// OpenTraceLog opens path for appending trace records, creating the parent
// directory if needed.
func OpenTraceLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
