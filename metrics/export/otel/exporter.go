package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/labkit"
	"github.com/MrEthical07/labkit/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// OTelExporter publishes engine metrics as observable instruments. Labelled
// families become attributes on a single instrument.
type OTelExporter struct {
	source       internaldefs.Source
	registration metric.Registration

	families map[string]metric.Int64Observable
	buckets  metric.Int64ObservableGauge
	count    metric.Int64ObservableCounter
	sum      metric.Float64ObservableCounter
}

func NewOTelExporter(meter metric.Meter, engine *labkit.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

// NewOTelExporterFromSource registers one instrument per family plus the
// latency bucket, count and sum instruments, all read by a single callback.
func NewOTelExporterFromSource(meter metric.Meter, source internaldefs.Source) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{
		source:   source,
		families: make(map[string]metric.Int64Observable, len(internaldefs.Families)),
	}
	observables := make([]metric.Observable, 0, len(internaldefs.Families)+3)

	for _, f := range internaldefs.Families {
		var (
			ins metric.Int64Observable
			err error
		)
		if f.Kind == internaldefs.Gauge {
			ins, err = meter.Int64ObservableGauge(f.Name, metric.WithDescription(f.Help))
		} else {
			ins, err = meter.Int64ObservableCounter(f.Name, metric.WithDescription(f.Help))
		}
		if err != nil {
			return nil, fmt.Errorf("create instrument %s: %w", f.Name, err)
		}
		e.families[f.Name] = ins
		observables = append(observables, ins)
	}

	var err error
	name := internaldefs.LatencyName
	if e.buckets, err = meter.Int64ObservableGauge(name+"_bucket",
		metric.WithDescription("Cumulative gate latency bucket counts by upper bound (le).")); err != nil {
		return nil, fmt.Errorf("create instrument %s_bucket: %w", name, err)
	}
	if e.count, err = meter.Int64ObservableCounter(name+"_count",
		metric.WithDescription(internaldefs.LatencyHelp)); err != nil {
		return nil, fmt.Errorf("create instrument %s_count: %w", name, err)
	}
	if e.sum, err = meter.Float64ObservableCounter(name+"_sum",
		metric.WithDescription(internaldefs.LatencyHelp), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create instrument %s_sum: %w", name, err)
	}
	observables = append(observables, e.buckets, e.count, e.sum)

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *OTelExporter) observe(ctx context.Context, o metric.Observer) error {
	sample := internaldefs.Collect(ctx, e.source)

	for name, points := range sample.Points {
		ins, ok := e.families[name]
		if !ok {
			continue
		}
		for _, pt := range points {
			o.ObserveInt64(ins, int64(pt.Value), metric.WithAttributes(attributes(pt.Labels)...))
		}
	}

	if lat := sample.Latency; lat != nil {
		for i, le := range internaldefs.HistogramBounds {
			o.ObserveInt64(e.buckets, int64(lat.Cumulative[i]), metric.WithAttributes(attribute.String("le", le)))
		}
		o.ObserveInt64(e.count, int64(lat.Count()))
		o.ObserveFloat64(e.sum, lat.Sum.Seconds())
	}
	return nil
}

func attributes(labels []internaldefs.Label) []attribute.KeyValue {
	out := make([]attribute.KeyValue, len(labels))
	for i, l := range labels {
		out[i] = attribute.String(l.Key, l.Value)
	}
	return out
}

// Close unregisters the callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
