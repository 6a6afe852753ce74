// Package model holds the layer-indexed toolpath produced by a parse pass.
//
// A Model is built once and never modified afterwards, so it may be read from
// any number of goroutines.
//
// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.
package model

import (
	"github.com/go-gl/mathgl/mgl64"

	lverrors "layerview/pkg/errors"
)

// SegmentKind distinguishes extruding moves from travel.
type SegmentKind uint8

const (
	Travel SegmentKind = iota
	Print
)

func (k SegmentKind) String() string {
	if k == Print {
		return "print"
	}
	return "travel"
}

func (k SegmentKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Segment is one straight toolpath piece.
type Segment struct {
	Start       mgl64.Vec3  `json:"start" yaml:"start"`
	End         mgl64.Vec3  `json:"end" yaml:"end"`
	Kind        SegmentKind `json:"kind" yaml:"kind"`
	Feedrate    float64     `json:"feedrate" yaml:"feedrate"`
	Temperature float64     `json:"temperature" yaml:"temperature"`
	Extrusion   float64     `json:"extrusion" yaml:"extrusion"`
	// Line is the source line of the command that produced the segment.
	Line int `json:"line" yaml:"line"`
	// Layer is the index of the owning layer, -1 for the priming layer.
	Layer int `json:"layer" yaml:"layer"`
}

func (s Segment) Length() float64 { return s.End.Sub(s.Start).Len() }

// Layer groups the flat segments printed at one Z height.
type Layer struct {
	Index     int       `json:"index" yaml:"index"`
	Z         float64   `json:"z" yaml:"z"`
	Thickness float64   `json:"thickness" yaml:"thickness"`
	Segments  []Segment `json:"segments" yaml:"segments"`

	Feedrate    Range `json:"feedrate" yaml:"feedrate"`
	Temperature Range `json:"temperature" yaml:"temperature"`
}

// Bounds returns the box around every segment endpoint of the layer.
func (l *Layer) Bounds() Box {
	b := EmptyBox()
	for _, s := range l.Segments {
		b = b.Extend(s.Start).Extend(s.End)
	}
	return b
}

// CountKind returns how many segments of kind k the layer holds.
func (l *Layer) CountKind(k SegmentKind) int {
	n := 0
	for _, s := range l.Segments {
		if s.Kind == k {
			n++
		}
	}
	return n
}

// Stats summarizes a parse pass.
type Stats struct {
	Lines          int     `json:"lines" yaml:"lines"`
	Commands       int     `json:"commands" yaml:"commands"`
	PrintSegments  int     `json:"print_segments" yaml:"print_segments"`
	TravelSegments int     `json:"travel_segments" yaml:"travel_segments"`
	Transitions    int     `json:"transitions" yaml:"transitions"`
	Extrusion      float64 `json:"extrusion" yaml:"extrusion"`
	PrintLength    float64 `json:"print_length" yaml:"print_length"`
	TravelLength   float64 `json:"travel_length" yaml:"travel_length"`
}

// Model is the aggregated, layer-indexed toolpath.
type Model struct {
	Layers []Layer
	// Priming is the purge layer printed before a descent to the first real
	// layer, if the file has one. It takes no part in indices or ranges.
	Priming *Layer

	Bounds      Box
	Feedrate    Range
	Temperature Range
	Thickness   Range

	Stats Stats
}

// Aggregate computes global bounds, ranges and segment statistics over
// layers. stats carries the counters only the parse pass knows (lines,
// commands, transitions); segment counters are filled in here. A model
// without segments is an EMPTY_MODEL error.
func Aggregate(layers []Layer, priming *Layer, stats Stats) (*Model, error) {
	m := &Model{
		Layers:      layers,
		Priming:     priming,
		Bounds:      EmptyBox(),
		Feedrate:    EmptyRange(),
		Temperature: EmptyRange(),
		Thickness:   EmptyRange(),
	}
	stats.PrintSegments, stats.TravelSegments = 0, 0
	stats.Extrusion, stats.PrintLength, stats.TravelLength = 0, 0, 0

	for i := range layers {
		l := &layers[i]
		m.Feedrate = m.Feedrate.Union(l.Feedrate)
		m.Temperature = m.Temperature.Union(l.Temperature)
		m.Thickness = m.Thickness.Extend(l.Thickness)
		for _, s := range l.Segments {
			m.Bounds = m.Bounds.Extend(s.Start).Extend(s.End)
			if s.Kind == Print {
				stats.PrintSegments++
				stats.Extrusion += s.Extrusion
				stats.PrintLength += s.Length()
			} else {
				stats.TravelSegments++
				stats.TravelLength += s.Length()
			}
		}
	}
	if stats.PrintSegments+stats.TravelSegments == 0 {
		return nil, lverrors.EmptyModelError()
	}
	m.Stats = stats
	return m, nil
}

func (m *Model) LayerCount() int { return len(m.Layers) }

// Layer returns the layer with the given index.
func (m *Model) Layer(i int) (*Layer, bool) {
	if i < 0 || i >= len(m.Layers) {
		return nil, false
	}
	return &m.Layers[i], true
}

// SegmentCount is the number of segments across all layers.
func (m *Model) SegmentCount() int {
	return m.Stats.PrintSegments + m.Stats.TravelSegments
}

// BoundsWithPriming extends Bounds by the priming layer, if any.
func (m *Model) BoundsWithPriming() Box {
	if m.Priming == nil {
		return m.Bounds
	}
	return m.Bounds.Union(m.Priming.Bounds())
}
