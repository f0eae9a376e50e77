package telemetry

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// Metrics owns an SDK MeterProvider read on demand, so a process can report
// the recorder's event and error counters when it finishes.
type Metrics struct {
	provider *sdkmetric.MeterProvider
	reader   *sdkmetric.ManualReader
}

// NewMetrics returns a provider with a manual reader attached.
func NewMetrics() *Metrics {
	reader := sdkmetric.NewManualReader()
	return &Metrics{
		provider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		reader:   reader,
	}
}

// Provider is passed to NewRecorder through WithMeterProvider.
func (m *Metrics) Provider() metric.MeterProvider {
	return m.provider
}

// Count is one counter total.
type Count struct {
	Name  string
	Value int64
}

// Summary totals the recorder counters since start-up.
type Summary struct {
	// Events is keyed by component.
	Events []Count
	// Errors is keyed by error code.
	Errors []Count
}

// Summary collects the current counter values.
func (m *Metrics) Summary(ctx context.Context) (Summary, error) {
	var rm metricdata.ResourceMetrics
	if err := m.reader.Collect(ctx, &rm); err != nil {
		return Summary{}, err
	}
	events := map[string]int64{}
	errs := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			sum, ok := md.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			switch md.Name {
			case eventsMetric:
				addPoints(events, sum, "component")
			case errorsMetric:
				addPoints(errs, sum, "error_code")
			}
		}
	}
	return Summary{Events: sortedCounts(events), Errors: sortedCounts(errs)}, nil
}

// Shutdown releases the provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}

func addPoints(into map[string]int64, sum metricdata.Sum[int64], key attribute.Key) {
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(key)
		into[v.AsString()] += dp.Value
	}
}

func sortedCounts(m map[string]int64) []Count {
	out := make([]Count, 0, len(m))
	for name, v := range m {
		out = append(out, Count{Name: name, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
