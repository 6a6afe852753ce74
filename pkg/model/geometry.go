// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package model

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Range is a closed interval. The zero value is the point 0; use EmptyRange
// to start an accumulation.
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// EmptyRange returns a range that contains nothing and absorbs the first
// value passed to Extend.
func EmptyRange() Range {
	return Range{Min: math.Inf(1), Max: math.Inf(-1)}
}

func (r Range) IsEmpty() bool { return r.Min > r.Max }

func (r Range) Extend(v float64) Range {
	return Range{Min: math.Min(r.Min, v), Max: math.Max(r.Max, v)}
}

func (r Range) Union(o Range) Range {
	return Range{Min: math.Min(r.Min, o.Min), Max: math.Max(r.Max, o.Max)}
}

func (r Range) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

// ContainsRange reports whether o lies within r.
func (r Range) ContainsRange(o Range) bool { return o.Min >= r.Min && o.Max <= r.Max }

func (r Range) Span() float64 { return r.Max - r.Min }

func (r Range) Mid() float64 { return (r.Min + r.Max) / 2 }

// Box is an axis-aligned bounding box.
type Box struct {
	Min mgl64.Vec3 `json:"min" yaml:"min"`
	Max mgl64.Vec3 `json:"max" yaml:"max"`
}

// EmptyBox returns a box that contains nothing.
func EmptyBox() Box {
	inf := math.Inf(1)
	return Box{Min: mgl64.Vec3{inf, inf, inf}, Max: mgl64.Vec3{-inf, -inf, -inf}}
}

func (b Box) IsEmpty() bool {
	return b.Min.X() > b.Max.X() || b.Min.Y() > b.Max.Y() || b.Min.Z() > b.Max.Z()
}

func (b Box) Extend(p mgl64.Vec3) Box {
	for i := 0; i < 3; i++ {
		b.Min[i] = math.Min(b.Min[i], p[i])
		b.Max[i] = math.Max(b.Max[i], p[i])
	}
	return b
}

func (b Box) Union(o Box) Box {
	if o.IsEmpty() {
		return b
	}
	if b.IsEmpty() {
		return o
	}
	return b.Extend(o.Min).Extend(o.Max)
}

func (b Box) Contains(p mgl64.Vec3) bool {
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] || p[i] > b.Max[i] {
			return false
		}
	}
	return true
}

// Size returns the extent along each axis.
func (b Box) Size() mgl64.Vec3 {
	if b.IsEmpty() {
		return mgl64.Vec3{}
	}
	return b.Max.Sub(b.Min)
}

func (b Box) Center() mgl64.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}
