// Package arc flattens G2/G3 moves into chains of straight chords.
//
// The sweep computation follows Marlin's plan_arc(). The chord count is chosen
// from a deviation tolerance instead of a fixed chord length: a chord of a
// circle of radius r spanning angle θ deviates from the arc by
// r·(1-cos(θ/2)), so θ = 2·acos(1-tol/r) is the widest angle that stays
// within tol.
//
// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.
package arc

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	lverrors "layerview/pkg/errors"
	"layerview/pkg/machine"
)

// Options controls chord generation.
type Options struct {
	// Tolerance is the maximum distance between a chord and the true arc, in mm.
	Tolerance float64
	// MaxSegments caps the chord count of a single arc.
	MaxSegments int
}

// DefaultOptions returns a 0.05 mm tolerance and a 2048 chord cap.
func DefaultOptions() Options {
	return Options{Tolerance: 0.05, MaxSegments: 2048}
}

// pointEpsilon decides when an arc's start and end coincide.
const pointEpsilon = 1e-9

// Interpolate expands an arc move into linear moves. Feedrate, temperature
// and line are copied to every chord. Extrusion is distributed in proportion
// to chord length. The last chord ends exactly at m.End.
func Interpolate(m machine.Move, opts Options) ([]machine.Move, error) {
	if m.Arc == nil {
		return []machine.Move{m}, nil
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultOptions().Tolerance
	}
	if opts.MaxSegments < 1 {
		opts.MaxSegments = DefaultOptions().MaxSegments
	}
	if !finiteVec3(m.Start) || !finiteVec3(m.End) || !finite(m.Arc.Offset.X()) ||
		!finite(m.Arc.Offset.Y()) || !finite(m.Arc.Radius) {
		return nil, geometryError(m, "non-finite arc parameters")
	}

	offset := m.Arc.Offset
	if offset.Len() == 0 {
		if m.Arc.Radius == 0 {
			return nil, geometryError(m, "arc has neither I/J center nor R radius")
		}
		var err error
		if offset, err = centerFromRadius(m); err != nil {
			return nil, err
		}
	}

	radius := offset.Len()
	if radius == 0 {
		return nil, geometryError(m, "zero radius arc")
	}
	center := m.Start.Vec2().Add(offset)
	fromCenter := offset.Mul(-1)
	sweep := Sweep(fromCenter, m.End.Vec2().Sub(center), m.Arc.Clockwise,
		m.Start.Vec2().Sub(m.End.Vec2()).Len() < pointEpsilon)

	n := SegmentCount(radius, sweep, opts)
	dz := m.End.Z() - m.Start.Z()

	points := make([]mgl64.Vec3, n+1)
	points[0] = m.Start
	for k := 1; k < n; k++ {
		frac := float64(k) / float64(n)
		p := center.Add(mgl64.Rotate2D(sweep * frac).Mul2x1(fromCenter))
		points[k] = mgl64.Vec3{p.X(), p.Y(), m.Start.Z() + dz*frac}
	}
	points[n] = m.End

	var total float64
	lengths := make([]float64, n)
	for k := 0; k < n; k++ {
		lengths[k] = points[k+1].Sub(points[k]).Len()
		total += lengths[k]
	}

	chords := make([]machine.Move, n)
	for k := range chords {
		share := 1 / float64(n)
		if total > 0 {
			share = lengths[k] / total
		}
		chords[k] = machine.Move{
			Start:       points[k],
			End:         points[k+1],
			Extrusion:   m.Extrusion * share,
			Feedrate:    m.Feedrate,
			Temperature: m.Temperature,
			Line:        m.Line,
		}
	}
	return chords, nil
}

// Sweep returns the signed angle travelled from the start radius vector r0 to
// the end radius vector r1. Clockwise sweeps are negative. When closed is true
// (start and end coincide) the arc is a full circle.
func Sweep(r0, r1 mgl64.Vec2, clockwise, closed bool) float64 {
	if closed {
		if clockwise {
			return -2 * math.Pi
		}
		return 2 * math.Pi
	}
	angle := math.Atan2(r0.X()*r1.Y()-r0.Y()*r1.X(), r0.X()*r1.X()+r0.Y()*r1.Y())
	if angle < 0 {
		angle += 2 * math.Pi
	}
	if clockwise {
		angle -= 2 * math.Pi
	}
	return angle
}

// SegmentCount returns the number of chords needed to keep the deviation of
// an arc of the given radius and sweep under opts.Tolerance.
func SegmentCount(radius, sweep float64, opts Options) int {
	cos := mgl64.Clamp(1-opts.Tolerance/radius, -1, 1)
	step := 2 * math.Acos(cos)
	n := 1
	if step > 0 {
		n = int(math.Ceil(math.Abs(sweep) / step))
	}
	if n < 1 {
		n = 1
	}
	if n > opts.MaxSegments {
		n = opts.MaxSegments
	}
	return n
}

// centerFromRadius derives the I/J offset of an R-form arc. A positive R
// selects the shorter arc, a negative R the longer one.
func centerFromRadius(m machine.Move) (mgl64.Vec2, error) {
	p1 := m.Start.Vec2()
	chord := m.End.Vec2().Sub(p1)
	d := chord.Len()
	if d < pointEpsilon {
		return mgl64.Vec2{}, geometryError(m, "R-form arc with coincident endpoints")
	}
	r := m.Arc.Radius
	side := 1.0
	if m.Arc.Clockwise != (r < 0) {
		side = -1
	}
	h2 := (r - d/2) * (r + d/2)
	h := 0.0
	if h2 > 0 {
		h = math.Sqrt(h2)
	}
	mid := p1.Add(chord.Mul(0.5))
	perp := mgl64.Vec2{-chord.Y() / d, chord.X() / d}
	center := mid.Add(perp.Mul(side * h))
	return center.Sub(p1), nil
}

func geometryError(m machine.Move, reason string) error {
	return lverrors.ArcError(reason).SetLine(m.Line)
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func finiteVec3(v mgl64.Vec3) bool { return finite(v.X()) && finite(v.Y()) && finite(v.Z()) }
