// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package layers

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	lverrors "layerview/pkg/errors"
	"layerview/pkg/model"
)

func flat(x0, x1, z float64, kind model.SegmentKind) model.Segment {
	return model.Segment{
		Start:       mgl64.Vec3{x0, 0, z},
		End:         mgl64.Vec3{x1, 0, z},
		Kind:        kind,
		Feedrate:    1200 + x1,
		Temperature: 200,
	}
}

func lift(z0, z1 float64) model.Segment {
	return model.Segment{Start: mgl64.Vec3{0, 0, z0}, End: mgl64.Vec3{0, 0, z1}}
}

func build(t *testing.T, segs ...model.Segment) (Result, []error) {
	t.Helper()
	b := NewBuilder(DefaultOptions())
	var warns []error
	for _, s := range segs {
		if err := b.Add(s); err != nil {
			warns = append(warns, err)
		}
	}
	return b.Finish(), warns
}

func zs(r Result) []float64 {
	out := make([]float64, len(r.Layers))
	for i, l := range r.Layers {
		out[i] = l.Z
	}
	return out
}

func TestTwoLayers(t *testing.T) {
	r, warns := build(t,
		lift(0, 0.2),
		flat(0, 10, 0.2, model.Print),
		flat(10, 20, 0.2, model.Print),
		lift(0.2, 0.4),
		flat(20, 30, 0.4, model.Travel),
		flat(30, 40, 0.4, model.Print),
	)
	if len(warns) != 0 {
		t.Fatalf("unexpected warnings %v", warns)
	}
	if got := zs(r); len(got) != 2 || got[0] != 0.2 || got[1] != 0.4 {
		t.Fatalf("layers at %v", got)
	}
	for i, l := range r.Layers {
		if l.Index != i || l.Thickness != 0.2 {
			t.Errorf("layer %d index %d thickness %v", i, l.Index, l.Thickness)
		}
		for _, s := range l.Segments {
			if s.Layer != i || s.Start.Z() != l.Z || s.End.Z() != l.Z {
				t.Errorf("segment not bound to layer %d: %+v", i, s)
			}
		}
	}
	if n := len(r.Layers[1].Segments); n != 2 {
		t.Errorf("layer 1 should keep the travel leading to its first print, got %d segments", n)
	}
	if r.Transitions != 2 {
		t.Errorf("transitions %d, want 2", r.Transitions)
	}
}

func TestZHopDoesNotCreateLayer(t *testing.T) {
	r, _ := build(t,
		flat(0, 10, 0.2, model.Print),
		lift(0.2, 0.6),
		flat(10, 50, 0.6, model.Travel),
		lift(0.6, 0.2),
		flat(50, 60, 0.2, model.Print),
	)
	if len(r.Layers) != 1 {
		t.Fatalf("expected one layer, got %v", zs(r))
	}
	if n := len(r.Layers[0].Segments); n != 2 {
		t.Errorf("expected 2 segments, got %d", n)
	}
	if r.Transitions != 3 {
		t.Errorf("transitions %d, want 3 (two lifts and the held-back travel)", r.Transitions)
	}
}

func TestTravelOnlyFirstLayerDropped(t *testing.T) {
	r, _ := build(t,
		flat(0, 100, 5, model.Travel),
		lift(5, 0.2),
		flat(0, 10, 0.2, model.Print),
	)
	if got := zs(r); len(got) != 1 || got[0] != 0.2 {
		t.Fatalf("layers at %v", got)
	}
	if r.Priming != nil {
		t.Error("a travel-only layer must not become a priming layer")
	}
}

func TestFirstLayerCreatedLazilyByTravel(t *testing.T) {
	r, _ := build(t, flat(0, 10, 0, model.Travel), flat(10, 20, 0, model.Travel))
	if len(r.Layers) != 1 || len(r.Layers[0].Segments) != 2 {
		t.Fatalf("expected one travel layer, got %+v", r.Layers)
	}
	if r.Layers[0].Thickness != 0 {
		t.Errorf("thickness %v", r.Layers[0].Thickness)
	}
}

func TestPendingTravelDiscardedAtEnd(t *testing.T) {
	r, _ := build(t,
		flat(0, 10, 0.2, model.Print),
		lift(0.2, 10),
		flat(0, 100, 10, model.Travel),
	)
	if len(r.Layers) != 1 || len(r.Layers[0].Segments) != 1 {
		t.Fatalf("park move leaked into layers: %+v", r.Layers)
	}
	if r.Transitions != 2 {
		t.Errorf("transitions %d, want 2", r.Transitions)
	}
}

func TestReturnToExistingLayerCoalesces(t *testing.T) {
	r, warns := build(t,
		flat(0, 1, 0.2, model.Print),
		flat(0, 1, 0.4, model.Print),
		flat(1, 2, 0.2, model.Print),
	)
	if len(warns) != 0 {
		t.Errorf("returning to an existing layer should not warn: %v", warns)
	}
	if got := zs(r); len(got) != 2 {
		t.Fatalf("layers at %v", got)
	}
	if n := len(r.Layers[0].Segments); n != 2 {
		t.Errorf("layer 0 should hold 2 segments, got %d", n)
	}
}

func TestPrimingLayer(t *testing.T) {
	r, warns := build(t,
		flat(-50, 50, 0.3, model.Print),
		lift(0.3, 0.2),
		flat(0, 10, 0.2, model.Print),
		lift(0.2, 0.4),
		flat(0, 10, 0.4, model.Print),
	)
	if len(warns) != 0 {
		t.Errorf("priming descent should not warn: %v", warns)
	}
	if r.Priming == nil || r.Priming.Z != 0.3 || r.Priming.Index != -1 {
		t.Fatalf("priming layer %+v", r.Priming)
	}
	if r.Priming.Segments[0].Layer != -1 {
		t.Error("priming segments should carry layer -1")
	}
	if got := zs(r); len(got) != 2 || got[0] != 0.2 {
		t.Errorf("layers at %v", got)
	}
	if r.Layers[0].Thickness != 0.2 {
		t.Errorf("first layer thickness %v", r.Layers[0].Thickness)
	}
}

func TestLateDescentWarns(t *testing.T) {
	r, warns := build(t,
		flat(0, 1, 0.2, model.Print),
		flat(0, 1, 0.4, model.Print),
		flat(0, 1, 0.3, model.Print),
	)
	if len(warns) != 1 || !lverrors.Is(warns[0], lverrors.ErrLayerZDescent) {
		t.Fatalf("expected one LAYER_Z_DESCENT warning, got %v", warns)
	}
	want := []float64{0.2, 0.3, 0.4}
	got := zs(r)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("layers at %v, want %v", got, want)
		}
	}
	if r.Layers[1].Thickness != 0.1 || r.Layers[2].Thickness != 0.1 {
		t.Errorf("thickness %v %v", r.Layers[1].Thickness, r.Layers[2].Thickness)
	}
	if r.Priming != nil {
		t.Error("no priming layer expected")
	}
}

func TestZResolutionMergesNearHeights(t *testing.T) {
	r, _ := build(t,
		flat(0, 1, 0.2, model.Print),
		model.Segment{Start: mgl64.Vec3{1, 0, 0.2}, End: mgl64.Vec3{2, 0, 0.2002}, Kind: model.Print},
		flat(2, 3, 0.2003, model.Print),
	)
	if len(r.Layers) != 1 || len(r.Layers[0].Segments) != 3 {
		t.Fatalf("expected near heights merged, got %v", zs(r))
	}
	for _, s := range r.Layers[0].Segments {
		if s.End.Z() != 0.2 {
			t.Errorf("endpoint Z not snapped: %v", s.End)
		}
	}
}

func TestRanges(t *testing.T) {
	r, _ := build(t,
		flat(0, 10, 0.2, model.Print),
		flat(10, 30, 0.2, model.Travel),
	)
	l := r.Layers[0]
	if l.Feedrate != (model.Range{Min: 1210, Max: 1230}) {
		t.Errorf("feedrate range %+v", l.Feedrate)
	}
	if l.Temperature != (model.Range{Min: 200, Max: 200}) {
		t.Errorf("temperature range %+v", l.Temperature)
	}
}

func TestEmptyBuild(t *testing.T) {
	r, _ := build(t, lift(0, 5))
	if len(r.Layers) != 0 || r.Priming != nil || r.Transitions != 1 {
		t.Errorf("unexpected result %+v", r)
	}
}
