package metrics

import "time"

// Load outcomes used as the "outcome" label.
const (
	OutcomeFinished  = "finished"
	OutcomeEmpty     = "empty"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// LoadMetrics instruments model loading.
type LoadMetrics struct {
	Loads        *Counter
	Lines        *Counter
	Warnings     *Counter
	Segments     *Counter
	Layers       *Gauge
	InFlight     *Gauge
	ParseSeconds *Histogram
}

// NewLoadMetrics creates the load metric set and registers it with r.
func NewLoadMetrics(r *Registry) *LoadMetrics {
	m := &LoadMetrics{
		Loads:        NewCounter("layerview_loads_total", "Model loads by outcome."),
		Lines:        NewCounter("layerview_lines_parsed_total", "G-code lines read by completed loads."),
		Warnings:     NewCounter("layerview_warnings_total", "Recoverable line warnings by error code."),
		Segments:     NewCounter("layerview_segments_total", "Segments produced by completed loads, by kind."),
		Layers:       NewGauge("layerview_model_layers", "Layer count of the currently published model."),
		InFlight:     NewGauge("layerview_loads_in_flight", "Loads currently parsing."),
		ParseSeconds: NewHistogram("layerview_parse_duration_seconds", "Wall time of parse passes.", DefaultBuckets()),
	}
	r.MustRegister(m.Loads, m.Lines, m.Warnings, m.Segments, m.Layers, m.InFlight, m.ParseSeconds)
	return m
}

// Started marks a load as in flight and returns the function that ends it
// with the given outcome.
func (m *LoadMetrics) Started() func(outcome string) {
	start := time.Now()
	m.InFlight.Inc(nil)
	return func(outcome string) {
		m.InFlight.Dec(nil)
		m.Loads.Inc(Labels{"outcome": outcome})
		if outcome != OutcomeCancelled {
			m.ParseSeconds.Since(nil, start)
		}
	}
}

// Warning counts n warnings with the given code.
func (m *LoadMetrics) Warning(code string, n int) {
	if n > 0 {
		m.Warnings.Add(Labels{"code": code}, uint64(n))
	}
}

// Published records the shape of a newly published model.
func (m *LoadMetrics) Published(lines, layers, printSegs, travelSegs int) {
	m.Lines.Add(nil, uint64(lines))
	m.Segments.Add(Labels{"kind": "print"}, uint64(printSegs))
	m.Segments.Add(Labels{"kind": "travel"}, uint64(travelSegs))
	m.Layers.Set(nil, float64(layers))
}

// Cleared resets the published-model gauge.
func (m *LoadMetrics) Cleared() {
	m.Layers.Set(nil, 0)
}
