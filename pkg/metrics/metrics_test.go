// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"strings"
	"sync"
	"testing"
)

func TestCounter(t *testing.T) {
	c := NewCounter("loads_total", "Loads")
	if v := c.Get(nil); v != 0 {
		t.Errorf("initial value %d", v)
	}
	c.Inc(nil)
	c.Add(nil, 4)
	c.Inc(Labels{"outcome": "failed"})
	if v := c.Get(nil); v != 5 {
		t.Errorf("unlabeled = %d, want 5", v)
	}
	if v := c.Get(Labels{"outcome": "failed"}); v != 1 {
		t.Errorf("labeled = %d, want 1", v)
	}
}

func TestCounterConcurrent(t *testing.T) {
	c := NewCounter("c", "c")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.Inc(Labels{"k": "v"})
			}
		}()
	}
	wg.Wait()
	if v := c.Get(Labels{"k": "v"}); v != 8000 {
		t.Errorf("got %d, want 8000", v)
	}
}

func TestGauge(t *testing.T) {
	g := NewGauge("layers", "Layers")
	g.Set(nil, 10)
	g.Inc(nil)
	g.Dec(nil)
	g.Dec(nil)
	g.Add(nil, 0.5)
	if v := g.Get(nil); v != 9.5 {
		t.Errorf("got %v, want 9.5", v)
	}
}

func TestHistogram(t *testing.T) {
	h := NewHistogram("parse_seconds", "Parse time", []float64{1, 0.1, 10})
	for _, v := range []float64{0.0625, 0.5, 0.5, 5, 50} {
		h.Observe(nil, v)
	}
	s := h.Snapshot(nil)
	if s.Count != 5 || s.Sum != 56.0625 {
		t.Errorf("count/sum = %d/%v", s.Count, s.Sum)
	}
	want := map[float64]uint64{0.1: 1, 1: 3, 10: 4}
	for bound, n := range want {
		if s.Cumulative[bound] != n {
			t.Errorf("le=%v: %d, want %d", bound, s.Cumulative[bound], n)
		}
	}
}

func TestLabelsString(t *testing.T) {
	l := Labels{"b": "x\"y", "a": "1"}
	if got := l.String(); got != `{a="1",b="x\"y"}` {
		t.Errorf("got %s", got)
	}
	if got := Labels(nil).String(); got != "" {
		t.Errorf("empty labels formatted as %q", got)
	}
	if l.Key() != (Labels{"a": "1", "b": "x\"y"}).Key() {
		t.Error("key depends on map order")
	}
}

func TestGatherFormat(t *testing.T) {
	r := NewRegistry()
	c := NewCounter("events_total", "Events seen.")
	h := NewHistogram("op_seconds", "Op time.", []float64{1})
	r.MustRegister(c, h)
	c.Inc(Labels{"kind": "b"})
	c.Inc(Labels{"kind": "a"})
	h.Observe(nil, 0.5)

	want := strings.Join([]string{
		"# HELP events_total Events seen.",
		"# TYPE events_total counter",
		`events_total{kind="a"} 1`,
		`events_total{kind="b"} 1`,
		"# HELP op_seconds Op time.",
		"# TYPE op_seconds histogram",
		`op_seconds_bucket{le="1"} 1`,
		`op_seconds_bucket{le="+Inf"} 1`,
		"op_seconds_sum 0.5",
		"op_seconds_count 1",
		"",
	}, "\n")
	if got := r.Gather(); got != want {
		t.Errorf("Gather:\n%s\nwant:\n%s", got, want)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(NewGauge("g", "g"))
	if err := r.Register(NewCounter("g", "g")); err == nil {
		t.Error("duplicate name accepted")
	}
	if r.Get("g").Type() != TypeGauge {
		t.Error("original metric replaced")
	}
}

func TestLoadMetrics(t *testing.T) {
	r := NewRegistry()
	m := NewLoadMetrics(r)

	done := m.Started()
	if m.InFlight.Get(nil) != 1 {
		t.Error("load not in flight")
	}
	done(OutcomeFinished)
	m.Published(100, 3, 20, 5)
	m.Warning("GCODE_PARSE", 2)
	m.Warning("GCODE_PARSE", 0)

	m.Started()(OutcomeCancelled)

	if m.InFlight.Get(nil) != 0 {
		t.Error("in-flight gauge not released")
	}
	if m.Loads.Get(Labels{"outcome": OutcomeFinished}) != 1 || m.Loads.Get(Labels{"outcome": OutcomeCancelled}) != 1 {
		t.Error("outcomes not counted")
	}
	if m.ParseSeconds.Snapshot(nil).Count != 1 {
		t.Error("cancelled loads should not be timed")
	}
	if m.Segments.Get(Labels{"kind": "print"}) != 20 || m.Layers.Get(nil) != 3 {
		t.Error("model shape not recorded")
	}
	if m.Warnings.Get(Labels{"code": "GCODE_PARSE"}) != 2 {
		t.Error("warnings not counted")
	}
	m.Cleared()
	if m.Layers.Get(nil) != 0 {
		t.Error("layers gauge not reset")
	}
	if !strings.Contains(r.Gather(), "layerview_parse_duration_seconds_count 1") {
		t.Error("histogram missing from exposition")
	}
}
