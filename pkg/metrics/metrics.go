// Prometheus text-format metrics
//
// Counters, gauges and histograms keyed by label sets, collected in a
// Registry whose Gather output is served on the view server's /metrics
// endpoint. Series are written in label order so scrapes are stable.
//
// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MetricType is the Prometheus TYPE of a metric.
type MetricType int

const (
	TypeCounter MetricType = iota
	TypeGauge
	TypeHistogram
)

func (t MetricType) String() string {
	switch t {
	case TypeCounter:
		return "counter"
	case TypeGauge:
		return "gauge"
	case TypeHistogram:
		return "histogram"
	default:
		return "untyped"
	}
}

// Labels is a set of label name/value pairs.
type Labels map[string]string

// Key returns a canonical encoding of the set, usable as a map key.
func (l Labels) Key() string {
	var sb strings.Builder
	for i, k := range l.names() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(l[k])
	}
	return sb.String()
}

// String formats the set as `{a="1",b="2"}`, or "" when empty.
func (l Labels) String() string {
	if len(l) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range l.names() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteString(`="`)
		sb.WriteString(labelEscaper.Replace(l[k]))
		sb.WriteByte('"')
	}
	sb.WriteByte('}')
	return sb.String()
}

// With returns a copy of l with name set to value.
func (l Labels) With(name, value string) Labels {
	out := make(Labels, len(l)+1)
	for k, v := range l {
		out[k] = v
	}
	out[name] = value
	return out
}

func (l Labels) names() []string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

// Metric is anything the Registry can expose.
type Metric interface {
	Name() string
	Help() string
	Type() MetricType
	Write(sb *strings.Builder)
}

// vec is the label-keyed storage shared by all metric kinds.
type vec[V any] struct {
	name, help string
	mu         sync.Mutex
	series     map[string]*V
	labels     map[string]Labels
}

func (v *vec[V]) setup(name, help string) {
	v.name, v.help = name, help
	v.series = map[string]*V{}
	v.labels = map[string]Labels{}
}

func (v *vec[V]) Name() string { return v.name }
func (v *vec[V]) Help() string { return v.help }

// with returns the series for labels, creating it with init. Callers hold mu.
func (v *vec[V]) with(labels Labels, init func() *V) *V {
	key := labels.Key()
	s, ok := v.series[key]
	if !ok {
		s = init()
		v.series[key] = s
		cp := make(Labels, len(labels))
		for k, val := range labels {
			cp[k] = val
		}
		v.labels[key] = cp
	}
	return s
}

func (v *vec[V]) header(sb *strings.Builder, t MetricType) {
	fmt.Fprintf(sb, "# HELP %s %s\n# TYPE %s %s\n", v.name, v.help, v.name, t)
}

// each visits the series in key order. Callers hold mu.
func (v *vec[V]) each(fn func(labels Labels, s *V)) {
	keys := make([]string, 0, len(v.series))
	for k := range v.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fn(v.labels[k], v.series[k])
	}
}

// Counter only goes up.
type Counter struct {
	vec[uint64]
}

func NewCounter(name, help string) *Counter {
	c := &Counter{}
	c.setup(name, help)
	return c
}

func (c *Counter) Type() MetricType { return TypeCounter }

func (c *Counter) Inc(labels Labels) { c.Add(labels, 1) }

func (c *Counter) Add(labels Labels, delta uint64) {
	c.mu.Lock()
	*c.with(labels, func() *uint64 { return new(uint64) }) += delta
	c.mu.Unlock()
}

// Get returns the value for labels, 0 for an unseen set.
func (c *Counter) Get(labels Labels) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.series[labels.Key()]; ok {
		return *s
	}
	return 0
}

func (c *Counter) Write(sb *strings.Builder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.header(sb, TypeCounter)
	c.each(func(l Labels, v *uint64) {
		fmt.Fprintf(sb, "%s%s %d\n", c.name, l, *v)
	})
}

// Gauge holds a value that can go up and down.
type Gauge struct {
	vec[float64]
}

func NewGauge(name, help string) *Gauge {
	g := &Gauge{}
	g.setup(name, help)
	return g
}

func (g *Gauge) Type() MetricType { return TypeGauge }

func (g *Gauge) Set(labels Labels, value float64) {
	g.mu.Lock()
	*g.with(labels, func() *float64 { return new(float64) }) = value
	g.mu.Unlock()
}

func (g *Gauge) Add(labels Labels, delta float64) {
	g.mu.Lock()
	*g.with(labels, func() *float64 { return new(float64) }) += delta
	g.mu.Unlock()
}

func (g *Gauge) Inc(labels Labels) { g.Add(labels, 1) }
func (g *Gauge) Dec(labels Labels) { g.Add(labels, -1) }

func (g *Gauge) Get(labels Labels) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.series[labels.Key()]; ok {
		return *s
	}
	return 0
}

func (g *Gauge) Write(sb *strings.Builder) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.header(sb, TypeGauge)
	g.each(func(l Labels, v *float64) {
		fmt.Fprintf(sb, "%s%s %s\n", g.name, l, formatFloat(*v))
	})
}

// Histogram counts observations into cumulative buckets.
type Histogram struct {
	vec[histogramValue]
	buckets []float64
}

type histogramValue struct {
	count  uint64
	sum    float64
	counts []uint64
}

// NewHistogram creates a histogram with the given upper bounds. The +Inf
// bucket is implicit.
func NewHistogram(name, help string, buckets []float64) *Histogram {
	sorted := append([]float64(nil), buckets...)
	sort.Float64s(sorted)
	h := &Histogram{buckets: sorted}
	h.setup(name, help)
	return h
}

// DefaultBuckets suits durations in seconds from milliseconds to tens of seconds.
func DefaultBuckets() []float64 {
	return []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}
}

// ExponentialBuckets returns count bounds starting at start, each factor
// times the previous.
func ExponentialBuckets(start, factor float64, count int) []float64 {
	out := make([]float64, count)
	for i := range out {
		out[i] = start
		start *= factor
	}
	return out
}

func (h *Histogram) Type() MetricType { return TypeHistogram }

func (h *Histogram) Observe(labels Labels, value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	hv := h.with(labels, func() *histogramValue {
		return &histogramValue{counts: make([]uint64, len(h.buckets))}
	})
	hv.count++
	hv.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			hv.counts[i]++
			break
		}
	}
}

// Since observes the seconds elapsed since start.
func (h *Histogram) Since(labels Labels, start time.Time) {
	h.Observe(labels, time.Since(start).Seconds())
}

// Snapshot is a point-in-time copy of one histogram series.
type Snapshot struct {
	Count uint64
	Sum   float64
	// Cumulative maps each upper bound to the observations at or below it.
	Cumulative map[float64]uint64
}

func (h *Histogram) Snapshot(labels Labels) Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	snap := Snapshot{Cumulative: make(map[float64]uint64, len(h.buckets))}
	hv, ok := h.series[labels.Key()]
	if !ok {
		return snap
	}
	snap.Count, snap.Sum = hv.count, hv.sum
	var cum uint64
	for i, bound := range h.buckets {
		cum += hv.counts[i]
		snap.Cumulative[bound] = cum
	}
	return snap
}

func (h *Histogram) Write(sb *strings.Builder) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.header(sb, TypeHistogram)
	h.each(func(l Labels, hv *histogramValue) {
		var cum uint64
		for i, bound := range h.buckets {
			cum += hv.counts[i]
			fmt.Fprintf(sb, "%s_bucket%s %d\n", h.name, l.With("le", formatFloat(bound)), cum)
		}
		fmt.Fprintf(sb, "%s_bucket%s %d\n", h.name, l.With("le", "+Inf"), hv.count)
		fmt.Fprintf(sb, "%s_sum%s %s\n", h.name, l, formatFloat(hv.sum))
		fmt.Fprintf(sb, "%s_count%s %d\n", h.name, l, hv.count)
	})
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Registry exposes metrics in registration order.
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]Metric
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{metrics: make(map[string]Metric)}
}

func (r *Registry) Register(m Metric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.metrics[m.Name()]; exists {
		return fmt.Errorf("metric %q already registered", m.Name())
	}
	r.metrics[m.Name()] = m
	r.order = append(r.order, m.Name())
	return nil
}

func (r *Registry) MustRegister(metrics ...Metric) {
	for _, m := range metrics {
		if err := r.Register(m); err != nil {
			panic(err)
		}
	}
}

func (r *Registry) Get(name string) Metric {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metrics[name]
}

// Gather renders every metric in Prometheus text exposition format.
func (r *Registry) Gather() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sb strings.Builder
	for _, name := range r.order {
		r.metrics[name].Write(&sb)
	}
	return sb.String()
}
