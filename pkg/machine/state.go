// Package machine resolves G-code commands against the positioning state of
// an FDM printer.
//
// Positions follow the usual host convention: the machine position is kept
// in "last", and G92 offsets in "base", so the G-code coordinate of an axis is
// last-base. Absolute moves set last = value+base, relative moves add to
// last, and G92 only rewrites base.
//
// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.
package machine

import (
	"math"
	"strconv"

	"github.com/go-gl/mathgl/mgl64"

	lverrors "layerview/pkg/errors"
	"layerview/pkg/gcode"
)

// Axis indexes into a State position.
const (
	AxisX = iota
	AxisY
	AxisZ
	AxisE
)

const mmPerInch = 25.4

// relativeRound is the quantum relative moves are rounded to, so that long
// runs of relative steps accumulate deterministically.
const relativeRound = 1e9

// State is the positioning state of one parse pass. It is a plain value:
// Apply returns the successor state and never mutates its input.
type State struct {
	AbsoluteXYZ bool
	AbsoluteE   bool

	// Last is the machine position of X, Y, Z and E.
	Last [4]float64
	// Base holds the G92 offsets.
	Base [4]float64

	// Feedrate is the modal F word in mm/min.
	Feedrate float64
	// Temperature is the last commanded hotend target in °C.
	Temperature float64

	// Scale converts input units to millimeters: 1 or 25.4.
	Scale float64
}

// NewState returns the power-on state: absolute positioning and extrusion,
// millimeters, all axes at zero.
func NewState(defaultFeedrate float64) State {
	return State{
		AbsoluteXYZ: true,
		AbsoluteE:   true,
		Feedrate:    defaultFeedrate,
		Scale:       1,
	}
}

// Position returns the machine XYZ position.
func (s State) Position() mgl64.Vec3 {
	return mgl64.Vec3{s.Last[AxisX], s.Last[AxisY], s.Last[AxisZ]}
}

// GCodePosition returns the G-code coordinate of every axis, i.e. the
// position as the file sees it after G92 offsets.
func (s State) GCodePosition() [4]float64 {
	var out [4]float64
	for i := range out {
		out[i] = s.Last[i] - s.Base[i]
	}
	return out
}

// Move is a resolved motion command.
type Move struct {
	Start, End mgl64.Vec3
	// Extrusion is the filament advanced during the move. Negative values
	// are retractions.
	Extrusion   float64
	Feedrate    float64
	Temperature float64
	Line        int
	// Arc is set for G2/G3.
	Arc *ArcSpec
}

// Printing reports whether the move lays down material.
func (m Move) Printing() bool { return m.Extrusion > 0 }

// ArcSpec carries the arc-specific words of a G2/G3 move.
type ArcSpec struct {
	Clockwise bool
	// Offset is the I/J vector from the start point to the center.
	Offset mgl64.Vec2
	// Radius is the R word, zero when the arc was given in I/J form.
	Radius float64
}

var axisLetters = [4]byte{'X', 'Y', 'Z', 'E'}

// Apply advances s by one command. It returns the new state and, for motion
// commands, the resolved move. Commands without effect on positioning return
// s unchanged and a nil move. A returned error is a recoverable warning; the
// state is then left unchanged.
func Apply(s State, cmd gcode.Command) (State, *Move, error) {
	switch cmd.Kind() {
	case gcode.KindAbsolutePositioning:
		s.AbsoluteXYZ = true
	case gcode.KindRelativePositioning:
		s.AbsoluteXYZ = false
	case gcode.KindAbsoluteExtrusion:
		s.AbsoluteE = true
	case gcode.KindRelativeExtrusion:
		s.AbsoluteE = false
	case gcode.KindInches:
		s.Scale = mmPerInch
	case gcode.KindMillimeters:
		s.Scale = 1
	case gcode.KindSetTemperature, gcode.KindSetTemperatureWait:
		if v, ok := cmd.Param('S'); ok {
			s.Temperature = v
		}
	case gcode.KindHome:
		s = home(s, cmd)
	case gcode.KindSetPosition:
		s = setPosition(s, cmd)
	case gcode.KindRapidMove, gcode.KindLinearMove, gcode.KindArcCW, gcode.KindArcCCW:
		return move(s, cmd)
	}
	return s, nil, nil
}

// home zeroes the named axes, or X, Y and Z when none is named, and drops
// their G92 offsets.
func home(s State, cmd gcode.Command) State {
	all := !cmd.Has('X') && !cmd.Has('Y') && !cmd.Has('Z')
	for axis := AxisX; axis <= AxisZ; axis++ {
		if all || cmd.Has(axisLetters[axis]) {
			s.Last[axis] = 0
			s.Base[axis] = 0
		}
	}
	return s
}

// setPosition implements G92. Without arguments every axis is declared zero.
func setPosition(s State, cmd gcode.Command) State {
	named := false
	for axis, l := range axisLetters {
		if v, ok := cmd.Param(l); ok {
			named = true
			s.Base[axis] = s.Last[axis] - v*s.Scale
		}
	}
	if !named {
		s.Base = s.Last
	}
	return s
}

func move(s State, cmd gcode.Command) (State, *Move, error) {
	if f, ok := cmd.Param('F'); ok {
		if f <= 0 {
			return s, nil, lverrors.InvalidParamError(cmd.Name(), 'F', strconv.FormatFloat(f, 'f', -1, 64), "must be positive").
				SetLine(cmd.Line())
		}
		s.Feedrate = f * s.Scale
	}

	start := s.Position()
	startE := s.Last[AxisE]
	for axis, l := range axisLetters {
		v, ok := cmd.Param(l)
		if !ok {
			continue
		}
		v *= s.Scale
		absolute := s.AbsoluteXYZ
		if axis == AxisE {
			absolute = s.AbsoluteE
		}
		if absolute {
			s.Last[axis] = v + s.Base[axis]
		} else {
			s.Last[axis] = roundRelative(s.Last[axis] + v)
		}
	}

	m := &Move{
		Start:       start,
		End:         s.Position(),
		Extrusion:   roundRelative(s.Last[AxisE] - startE),
		Feedrate:    s.Feedrate,
		Temperature: s.Temperature,
		Line:        cmd.Line(),
	}
	if cmd.Kind().IsArc() {
		i, _ := cmd.Param('I')
		j, _ := cmd.Param('J')
		r, _ := cmd.Param('R')
		m.Arc = &ArcSpec{
			Clockwise: cmd.Kind() == gcode.KindArcCW,
			Offset:    mgl64.Vec2{i * s.Scale, j * s.Scale},
			Radius:    r * s.Scale,
		}
	}
	return s, m, nil
}

func roundRelative(v float64) float64 {
	return math.Round(v*relativeRound) / relativeRound
}
