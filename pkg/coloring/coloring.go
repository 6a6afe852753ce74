// Package coloring maps printing parameters of a model onto [0,1] weights
// and gradient colors.
//
// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.
package coloring

import (
	"image/color"
	"math"
	"strconv"
	"strings"

	lverrors "layerview/pkg/errors"
	"layerview/pkg/model"
)

// Parameter selects the attribute that drives coloring.
type Parameter int

const (
	None Parameter = iota
	Feedrate
	Thickness
	Temperature
)

// Unparametrized is the weight reported when no parameter is selected.
const Unparametrized = -1.0

var parameterNames = [...]string{"none", "feedrate", "thickness", "temperature"}

func (p Parameter) String() string {
	if p < None || p > Temperature {
		return "parameter(" + strconv.Itoa(int(p)) + ")"
	}
	return parameterNames[p]
}

// ParseParameter accepts the names printed by String, case-insensitively.
func ParseParameter(s string) (Parameter, error) {
	for i, name := range parameterNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return Parameter(i), nil
		}
	}
	return None, lverrors.New(lverrors.ErrConfigValidation,
		"unknown coloring parameter '"+s+"' (want one of "+strings.Join(parameterNames[:], ", ")+")")
}

// Unit returns the unit suffix of the parameter's values.
func (p Parameter) Unit() string {
	switch p {
	case Feedrate:
		return model.UnitMMPerMin
	case Thickness:
		return model.UnitMM
	case Temperature:
		return model.UnitCelsius
	}
	return ""
}

// Normalize maps v onto [0,1] relative to r. A degenerate range maps every
// value to 0.5.
func Normalize(v float64, r model.Range) float64 {
	if r.IsEmpty() || r.Span() == 0 {
		return 0.5
	}
	return math.Max(0, math.Min(1, (v-r.Min)/r.Span()))
}

// Mapper holds the selected parameter. It lives outside the model so the
// selection survives loading and clearing models.
type Mapper struct {
	Parameter Parameter
}

// Range returns the model-wide range of the selected parameter.
func (m Mapper) Range(md *model.Model) (model.Range, bool) {
	switch m.Parameter {
	case Feedrate:
		return md.Feedrate, true
	case Thickness:
		return md.Thickness, true
	case Temperature:
		return md.Temperature, true
	}
	return model.Range{}, false
}

// Layer returns the weight of a whole layer, computed from the midpoint of
// the layer's own range (its thickness for Thickness).
func (m Mapper) Layer(md *model.Model, l *model.Layer) float64 {
	r, ok := m.Range(md)
	if !ok {
		return Unparametrized
	}
	var v float64
	switch m.Parameter {
	case Feedrate:
		v = l.Feedrate.Mid()
	case Temperature:
		v = l.Temperature.Mid()
	case Thickness:
		v = l.Thickness
	}
	return Normalize(v, r)
}

// Segment returns the weight of one segment of layer l: its own feedrate or
// temperature, or the thickness of the layer.
func (m Mapper) Segment(md *model.Model, l *model.Layer, s model.Segment) float64 {
	r, ok := m.Range(md)
	if !ok {
		return Unparametrized
	}
	var v float64
	switch m.Parameter {
	case Feedrate:
		v = s.Feedrate
	case Temperature:
		v = s.Temperature
	case Thickness:
		v = l.Thickness
	}
	return Normalize(v, r)
}

// Legend returns the texts for the low, middle and high end of the gradient.
// All three are empty when no parameter is selected.
func (m Mapper) Legend(md *model.Model) (low, mid, high string) {
	r, ok := m.Range(md)
	if !ok {
		return "", "", ""
	}
	unit := m.Parameter.Unit()
	f := func(v float64) string {
		return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64) + unit
	}
	return f(r.Min), f(r.Mid()), f(r.Max)
}

// Gradient quantizes weights onto a linear color ramp.
type Gradient struct {
	Start, End color.RGBA
	// Constant is used for unparametrized weights.
	Constant color.RGBA
	// Steps is the number of distinct colors on the ramp.
	Steps int
}

// DefaultGradient is blue to red in 100 steps with a neutral gray constant.
func DefaultGradient() Gradient {
	return Gradient{
		Start:    color.RGBA{0, 0, 255, 255},
		End:      color.RGBA{255, 0, 0, 255},
		Constant: color.RGBA{200, 200, 200, 255},
		Steps:    100,
	}
}

// NewGradient builds an opaque gradient from RGB triples, keeping the
// default constant color.
func NewGradient(start, end [3]uint8, steps int) Gradient {
	g := DefaultGradient()
	g.Start = color.RGBA{start[0], start[1], start[2], 255}
	g.End = color.RGBA{end[0], end[1], end[2], 255}
	if steps > 0 {
		g.Steps = steps
	}
	return g
}

// At returns the color for weight w. Negative weights yield Constant.
func (g Gradient) At(w float64) color.RGBA {
	if w < 0 || math.IsNaN(w) {
		return g.Constant
	}
	steps := g.Steps
	if steps < 2 {
		steps = 2
	}
	idx := math.Round(math.Min(w, 1) * float64(steps-1))
	t := idx / float64(steps-1)
	lerp := func(a, b uint8) uint8 {
		return uint8(math.Round(float64(a) + (float64(b)-float64(a))*t))
	}
	return color.RGBA{
		R: lerp(g.Start.R, g.End.R),
		G: lerp(g.Start.G, g.End.G),
		B: lerp(g.Start.B, g.End.B),
		A: lerp(g.Start.A, g.End.A),
	}
}

// Hex formats c as "#rrggbb".
func Hex(c color.RGBA) string {
	const digits = "0123456789abcdef"
	b := []byte{'#', 0, 0, 0, 0, 0, 0}
	for i, v := range []uint8{c.R, c.G, c.B} {
		b[1+2*i] = digits[v>>4]
		b[2+2*i] = digits[v&0x0f]
	}
	return string(b)
}
