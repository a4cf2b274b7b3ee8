package otel

import (
	"context"
	"errors"
	"fmt"

	zen "github.com/natedunn/convex-zen-sub000"
	"github.com/natedunn/convex-zen-sub000/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() zen.MetricsSnapshot
	AuditDropped() uint64
}

// Option configures an OTelExporter.
type Option func(*OTelExporter)

// WithAttributes attaches attrs to every observation, e.g. a service or
// tenant name.
func WithAttributes(attrs ...attribute.KeyValue) Option {
	return func(e *OTelExporter) {
		e.attrs = append(e.attrs, attrs...)
	}
}

type counterInstrument struct {
	id  zen.MetricID
	obs metric.Int64ObservableCounter
}

// latencyInstrument reports a snapshot histogram as cumulative bucket counts
// on one gauge keyed by "le", plus a sample count.
type latencyInstrument struct {
	id      zen.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableCounter
	le      [8]metric.ObserveOption
}

// OTelExporter publishes engine metrics as observable instruments. A single
// callback reads one snapshot per collection cycle.
type OTelExporter struct {
	source       metricsSource
	attrs        []attribute.KeyValue
	common       metric.ObserveOption
	registration metric.Registration
	counters     []counterInstrument
	latencies    []latencyInstrument
	auditDropped metric.Int64ObservableCounter
}

// NewOTelExporter registers instruments on meter that read from engine.
func NewOTelExporter(meter metric.Meter, engine *zen.Engine, opts ...Option) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine, opts...)
}

// NewOTelExporterFromSource is NewOTelExporter for any metrics source.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource, opts ...Option) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	for _, opt := range opts {
		opt(e)
	}
	e.common = metric.WithAttributes(e.attrs...)

	var observables []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		obs, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", def.Name, err)
		}
		e.counters = append(e.counters, counterInstrument{id: def.ID, obs: obs})
		observables = append(observables, obs)
	}

	for _, def := range internaldefs.HistogramDefs {
		inst, err := e.newLatencyInstrument(meter, def)
		if err != nil {
			return nil, err
		}
		e.latencies = append(e.latencies, inst)
		observables = append(observables, inst.buckets, inst.count)
	}

	dropped, err := meter.Int64ObservableCounter(
		internaldefs.AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp),
	)
	if err != nil {
		return nil, fmt.Errorf("counter %s: %w", internaldefs.AuditDroppedName, err)
	}
	e.auditDropped = dropped
	observables = append(observables, dropped)

	reg, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func (e *OTelExporter) newLatencyInstrument(meter metric.Meter, def internaldefs.HistogramDef) (latencyInstrument, error) {
	inst := latencyInstrument{id: def.ID}

	buckets, err := meter.Int64ObservableGauge(def.Name+"_bucket",
		metric.WithDescription(def.Help+" Cumulative count per upper bound."),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return inst, fmt.Errorf("gauge %s_bucket: %w", def.Name, err)
	}
	count, err := meter.Int64ObservableCounter(def.Name+"_count",
		metric.WithDescription(def.Help+" Total samples."),
	)
	if err != nil {
		return inst, fmt.Errorf("counter %s_count: %w", def.Name, err)
	}

	inst.buckets, inst.count = buckets, count
	for i, le := range internaldefs.HistogramBounds {
		attrs := append([]attribute.KeyValue{attribute.String("le", le)}, e.attrs...)
		inst.le[i] = metric.WithAttributes(attrs...)
	}
	return inst, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()

	for _, c := range e.counters {
		o.ObserveInt64(c.obs, int64(snap.Counters[c.id]), e.common)
	}
	for _, l := range e.latencies {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[l.id]))
		for i, v := range cumulative {
			o.ObserveInt64(l.buckets, int64(v), l.le[i])
		}
		o.ObserveInt64(l.count, int64(cumulative[len(cumulative)-1]), e.common)
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()), e.common)
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
