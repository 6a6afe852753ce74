// Package layers groups a stream of toolpath segments into Z layers.
//
// The builder sees segments in file order, one at a time. A segment whose
// start and end share a Z height is flat and belongs to the layer at that
// height; any other segment is a transition (layer change, Z hop, park move)
// and belongs to no layer. A height becomes a layer only once something is
// printed there: travel at a new height is held back and dropped if the
// nozzle leaves again without printing.
//
// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.
package layers

import (
	"math"
	"sort"

	lverrors "layerview/pkg/errors"
	"layerview/pkg/model"
)

// Options controls layer detection.
type Options struct {
	// ZResolution is the height quantum: heights closer than this are the
	// same layer.
	ZResolution float64
}

// DefaultOptions returns a 0.001 mm height quantum.
func DefaultOptions() Options { return Options{ZResolution: 0.001} }

type layerAcc struct {
	key      int64
	z        float64
	segs     []model.Segment
	feed     model.Range
	temp     model.Range
	printing bool
}

func (l *layerAcc) add(s model.Segment) {
	s.Start[2], s.End[2] = l.z, l.z
	l.segs = append(l.segs, s)
	l.feed = l.feed.Extend(s.Feedrate)
	l.temp = l.temp.Extend(s.Temperature)
	if s.Kind == model.Print {
		l.printing = true
	}
}

// Builder accumulates layers. It is not safe for concurrent use.
type Builder struct {
	res float64

	byKey   map[int64]*layerAcc
	current *layerAcc
	priming *layerAcc

	pending    []model.Segment
	pendingKey int64

	transitions int
}

// NewBuilder returns an empty builder.
func NewBuilder(opts Options) *Builder {
	if opts.ZResolution <= 0 {
		opts.ZResolution = DefaultOptions().ZResolution
	}
	return &Builder{
		res:   opts.ZResolution,
		byKey: make(map[int64]*layerAcc),
	}
}

func (b *Builder) key(z float64) int64 {
	return int64(math.Round(z / b.res))
}

// Add feeds the next segment. The returned error, if any, is a recoverable
// LAYER_Z_DESCENT warning; the segment has been placed regardless.
func (b *Builder) Add(s model.Segment) error {
	k := b.key(s.Start.Z())
	if k != b.key(s.End.Z()) {
		b.transitions++
		return nil
	}

	switch {
	case b.current == nil:
		b.current = b.open(k, s.Start.Z())
		b.current.add(s)
		return nil
	case k == b.current.key:
		b.dropPending()
		b.current.add(s)
		return nil
	case s.Kind == model.Travel:
		if len(b.pending) > 0 && b.pendingKey != k {
			b.dropPending()
		}
		b.pendingKey = k
		b.pending = append(b.pending, s)
		return nil
	}
	return b.settle(k, s)
}

// settle makes height k the current layer because s prints there.
func (b *Builder) settle(k int64, s model.Segment) error {
	var warn error
	if len(b.pending) > 0 && b.pendingKey != k {
		b.dropPending()
	}
	if !b.current.printing {
		// Only the lazily opened first layer can be travel-only.
		b.transitions += len(b.current.segs)
		delete(b.byKey, b.current.key)
	}

	target, ok := b.byKey[k]
	if !ok {
		if top, found := b.topKey(); found && k < top {
			if len(b.byKey) == 1 && b.priming == nil {
				b.priming = b.byKey[top]
				delete(b.byKey, top)
			} else {
				warn = lverrors.ZDescentError(s.Start.Z(), float64(top)*b.res).SetLine(s.Line)
			}
		}
		target = b.open(k, s.Start.Z())
	}
	for _, p := range b.pending {
		target.add(p)
	}
	b.pending = b.pending[:0]
	target.add(s)
	b.current = target
	return warn
}

func (b *Builder) open(k int64, z float64) *layerAcc {
	l := &layerAcc{key: k, z: z, feed: model.EmptyRange(), temp: model.EmptyRange()}
	b.byKey[k] = l
	return l
}

func (b *Builder) topKey() (int64, bool) {
	var top int64
	found := false
	for k := range b.byKey {
		if !found || k > top {
			top, found = k, true
		}
	}
	return top, found
}

func (b *Builder) dropPending() {
	b.transitions += len(b.pending)
	b.pending = b.pending[:0]
}

// Result is the outcome of a build.
type Result struct {
	Layers  []model.Layer
	Priming *model.Layer
	// Transitions counts segments that belong to no layer.
	Transitions int
}

// Finish orders the layers by height and assigns indices and thicknesses.
// Travel still waiting for a print is discarded. The builder must not be
// used afterwards.
func (b *Builder) Finish() Result {
	b.dropPending()

	accs := make([]*layerAcc, 0, len(b.byKey))
	for _, l := range b.byKey {
		accs = append(accs, l)
	}
	sort.Slice(accs, func(i, j int) bool { return accs[i].key < accs[j].key })

	res := Result{Layers: make([]model.Layer, len(accs)), Transitions: b.transitions}
	prevZ := 0.0
	for i, acc := range accs {
		res.Layers[i] = freeze(acc, i, b.quantize(acc.z-prevZ))
		prevZ = acc.z
	}
	if b.priming != nil {
		p := freeze(b.priming, -1, b.quantize(b.priming.z))
		res.Priming = &p
	}
	return res
}

// quantize rounds a height difference to the Z resolution so that thickness
// does not carry float subtraction noise.
func (b *Builder) quantize(v float64) float64 {
	inv := 1 / b.res
	return math.Round(v*inv) / inv
}

func freeze(acc *layerAcc, index int, thickness float64) model.Layer {
	for i := range acc.segs {
		acc.segs[i].Layer = index
	}
	return model.Layer{
		Index:       index,
		Z:           acc.z,
		Thickness:   thickness,
		Segments:    acc.segs,
		Feedrate:    acc.feed,
		Temperature: acc.temp,
	}
}
