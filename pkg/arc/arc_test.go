// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package arc

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	lverrors "layerview/pkg/errors"
	"layerview/pkg/machine"
)

func arcMove(start, end mgl64.Vec3, i, j float64, cw bool) machine.Move {
	return machine.Move{
		Start:       start,
		End:         end,
		Extrusion:   2,
		Feedrate:    1200,
		Temperature: 210,
		Line:        5,
		Arc:         &machine.ArcSpec{Clockwise: cw, Offset: mgl64.Vec2{i, j}},
	}
}

func TestFullCircleStaysWithinTolerance(t *testing.T) {
	for _, cw := range []bool{false, true} {
		start := mgl64.Vec3{10, 0, 0.2}
		m := arcMove(start, start, -10, 0, cw)
		opts := Options{Tolerance: 0.05, MaxSegments: 4096}
		chords, err := Interpolate(m, opts)
		if err != nil {
			t.Fatalf("Interpolate: %v", err)
		}
		if want := SegmentCount(10, 2*math.Pi, opts); len(chords) != want {
			t.Errorf("expected %d chords, got %d", want, len(chords))
		}
		if !chords[len(chords)-1].End.ApproxEqual(start) {
			t.Errorf("circle not closed: %v", chords[len(chords)-1].End)
		}
		center := mgl64.Vec2{0, 0}
		for k, c := range chords {
			if k > 0 && !c.Start.ApproxEqual(chords[k-1].End) {
				t.Fatalf("chord %d not connected", k)
			}
			mid := c.Start.Add(c.End).Mul(0.5).Vec2()
			if dev := 10 - mid.Sub(center).Len(); dev < 0 || dev > opts.Tolerance+1e-9 {
				t.Errorf("chord %d midpoint deviation %v exceeds tolerance", k, dev)
			}
			if math.Abs(c.Start.Vec2().Len()-10) > 1e-9 {
				t.Errorf("chord %d start off circle", k)
			}
		}
	}
}

func TestQuarterArcDirection(t *testing.T) {
	// Counter-clockwise from (10,0) to (0,10) around the origin stays in the
	// first quadrant. Clockwise takes the long way through the other three.
	ccw, err := Interpolate(arcMove(mgl64.Vec3{10, 0, 0}, mgl64.Vec3{0, 10, 0}, -10, 0, false), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range ccw {
		if c.End.X() < -1e-9 || c.End.Y() < -1e-9 {
			t.Fatalf("ccw arc left the first quadrant at %v", c.End)
		}
	}
	cw, err := Interpolate(arcMove(mgl64.Vec3{10, 0, 0}, mgl64.Vec3{0, 10, 0}, -10, 0, true), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(cw) <= len(ccw) {
		t.Errorf("three-quarter arc should need more chords: cw %d ccw %d", len(cw), len(ccw))
	}
	if !cw[len(cw)-1].End.ApproxEqual(mgl64.Vec3{0, 10, 0}) {
		t.Errorf("cw arc ends at %v", cw[len(cw)-1].End)
	}
}

func TestExtrusionAndAttributesDistributed(t *testing.T) {
	chords, err := Interpolate(arcMove(mgl64.Vec3{10, 0, 0}, mgl64.Vec3{-10, 0, 1}, -10, 0, false), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	var e float64
	for _, c := range chords {
		e += c.Extrusion
		if c.Feedrate != 1200 || c.Temperature != 210 || c.Line != 5 || c.Arc != nil {
			t.Fatalf("chord attributes not copied: %+v", c)
		}
	}
	if math.Abs(e-2) > 1e-9 {
		t.Errorf("total extrusion %v, want 2", e)
	}
	last := chords[len(chords)-1].End
	if last != (mgl64.Vec3{-10, 0, 1}) {
		t.Errorf("helical arc must end exactly at target, got %v", last)
	}
	mid := chords[len(chords)/2].Start.Z()
	if mid <= 0 || mid >= 1 {
		t.Errorf("Z should rise linearly, got %v halfway", mid)
	}
}

func TestRadiusForm(t *testing.T) {
	m := machine.Move{
		Start: mgl64.Vec3{0, 0, 0},
		End:   mgl64.Vec3{1, 1, 0},
		Arc:   &machine.ArcSpec{Radius: 1},
	}
	chords, err := Interpolate(m, Options{Tolerance: 0.001, MaxSegments: 100})
	if err != nil {
		t.Fatal(err)
	}
	// Center is (0,1); every vertex lies on the unit circle around it.
	for _, c := range chords {
		if d := c.End.Vec2().Sub(mgl64.Vec2{0, 1}).Len(); math.Abs(d-1) > 1e-9 {
			t.Errorf("vertex %v off circle (d=%v)", c.End, d)
		}
	}
}

func TestDegenerateArcs(t *testing.T) {
	tests := []struct {
		name string
		m    machine.Move
	}{
		{"no center", arcMove(mgl64.Vec3{}, mgl64.Vec3{1, 0, 0}, 0, 0, false)},
		{"non-finite", arcMove(mgl64.Vec3{math.NaN(), 0, 0}, mgl64.Vec3{1, 0, 0}, 1, 0, false)},
		{"radius with coincident ends", machine.Move{Arc: &machine.ArcSpec{Radius: 5}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Interpolate(tt.m, DefaultOptions())
			if !lverrors.Is(err, lverrors.ErrGeometryArc) {
				t.Errorf("expected GEOMETRY_ARC, got %v", err)
			}
		})
	}
}

func TestLinearMovePassesThrough(t *testing.T) {
	m := machine.Move{Start: mgl64.Vec3{}, End: mgl64.Vec3{1, 0, 0}, Extrusion: 1}
	out, err := Interpolate(m, DefaultOptions())
	if err != nil || len(out) != 1 || out[0] != m {
		t.Errorf("linear move altered: %v %v", out, err)
	}
}

func TestSegmentCount(t *testing.T) {
	opts := Options{Tolerance: 0.05, MaxSegments: 10}
	if n := SegmentCount(1000, 2*math.Pi, opts); n != 10 {
		t.Errorf("expected cap of 10, got %d", n)
	}
	if n := SegmentCount(0.01, math.Pi, opts); n != 1 {
		t.Errorf("tolerance larger than radius should give one chord, got %d", n)
	}
	if n := SegmentCount(5, 0, opts); n != 1 {
		t.Errorf("zero sweep should give one chord, got %d", n)
	}
}

func TestSweep(t *testing.T) {
	r0 := mgl64.Vec2{1, 0}
	r1 := mgl64.Vec2{0, 1}
	if s := Sweep(r0, r1, false, false); math.Abs(s-math.Pi/2) > 1e-12 {
		t.Errorf("ccw quarter = %v", s)
	}
	if s := Sweep(r0, r1, true, false); math.Abs(s+3*math.Pi/2) > 1e-12 {
		t.Errorf("cw three quarters = %v", s)
	}
	if s := Sweep(r0, r0, true, true); s != -2*math.Pi {
		t.Errorf("cw full circle = %v", s)
	}
}
