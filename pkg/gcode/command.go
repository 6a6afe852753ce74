// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package gcode

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind enumerates the commands that affect the toolpath. Everything else is
// KindUnknown and is ignored downstream.
type Kind int

const (
	KindUnknown Kind = iota
	KindRapidMove
	KindLinearMove
	KindArcCW
	KindArcCCW
	KindInches
	KindMillimeters
	KindHome
	KindAbsolutePositioning
	KindRelativePositioning
	KindSetPosition
	KindAbsoluteExtrusion
	KindRelativeExtrusion
	KindSetTemperature
	KindSetTemperatureWait
)

var kindNames = map[Kind]string{
	KindUnknown:             "unknown",
	KindRapidMove:           "rapid_move",
	KindLinearMove:          "linear_move",
	KindArcCW:               "arc_cw",
	KindArcCCW:              "arc_ccw",
	KindInches:              "inches",
	KindMillimeters:         "millimeters",
	KindHome:                "home",
	KindAbsolutePositioning: "absolute_positioning",
	KindRelativePositioning: "relative_positioning",
	KindSetPosition:         "set_position",
	KindAbsoluteExtrusion:   "absolute_extrusion",
	KindRelativeExtrusion:   "relative_extrusion",
	KindSetTemperature:      "set_temperature",
	KindSetTemperatureWait:  "set_temperature_wait",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// IsMove reports whether the kind produces motion.
func (k Kind) IsMove() bool {
	switch k {
	case KindRapidMove, KindLinearMove, KindArcCW, KindArcCCW:
		return true
	}
	return false
}

// IsArc reports whether the kind is a circular move.
func (k Kind) IsArc() bool { return k == KindArcCW || k == KindArcCCW }

type word struct {
	letter byte
	code   int
}

// commandSpec describes a recognized command: its kind and which parameter
// letters it accepts. Letters in bare may appear without a value.
type commandSpec struct {
	kind   Kind
	params string
	bare   string
}

var commandTable = map[word]commandSpec{
	{'G', 0}:   {KindRapidMove, "XYZEFHRS", ""},
	{'G', 1}:   {KindLinearMove, "XYZEFHRS", ""},
	{'G', 2}:   {KindArcCW, "XYZEFIJRP", ""},
	{'G', 3}:   {KindArcCCW, "XYZEFIJRP", ""},
	{'G', 20}:  {KindInches, "", ""},
	{'G', 21}:  {KindMillimeters, "", ""},
	{'G', 28}:  {KindHome, "XYZW", "XYZW"},
	{'G', 90}:  {KindAbsolutePositioning, "", ""},
	{'G', 91}:  {KindRelativePositioning, "", ""},
	{'G', 92}:  {KindSetPosition, "XYZE", ""},
	{'M', 82}:  {KindAbsoluteExtrusion, "", ""},
	{'M', 83}:  {KindRelativeExtrusion, "", ""},
	{'M', 104}: {KindSetTemperature, "SRTD", ""},
	{'M', 109}: {KindSetTemperatureWait, "SRTD", ""},
}

// Command is one tokenized G-code line. It is immutable: all fields are
// unexported and read through accessors, so a Command can be shared freely.
type Command struct {
	letter  byte
	code    int
	kind    Kind
	line    int
	present uint32
	values  [26]float64
}

func (c Command) Letter() byte { return c.letter }
func (c Command) Code() int    { return c.code }
func (c Command) Kind() Kind   { return c.kind }

// Line is the 1-based source line the command came from.
func (c Command) Line() int { return c.line }

// Name is the command word, e.g. "G1" or "M104".
func (c Command) Name() string {
	if c.letter == 0 {
		return ""
	}
	return string(c.letter) + strconv.Itoa(c.code)
}

func paramIndex(letter byte) int {
	letter = upper(letter)
	if letter < 'A' || letter > 'Z' {
		return -1
	}
	return int(letter - 'A')
}

// Param returns the value of a parameter and whether it was present.
// An absent parameter is never reported as zero.
func (c Command) Param(letter byte) (float64, bool) {
	i := paramIndex(letter)
	if i < 0 || c.present&(1<<uint(i)) == 0 {
		return 0, false
	}
	return c.values[i], true
}

// Has reports whether the parameter letter appeared on the line.
func (c Command) Has(letter byte) bool {
	_, ok := c.Param(letter)
	return ok
}

// ParamLetters returns the present parameter letters in alphabetical order.
func (c Command) ParamLetters() []byte {
	var out []byte
	for i := 0; i < 26; i++ {
		if c.present&(1<<uint(i)) != 0 {
			out = append(out, byte('A'+i))
		}
	}
	return out
}

func (c Command) String() string {
	var sb strings.Builder
	sb.WriteString(c.Name())
	for _, l := range c.ParamLetters() {
		v, _ := c.Param(l)
		fmt.Fprintf(&sb, " %c%s", l, strconv.FormatFloat(v, 'f', -1, 64))
	}
	return sb.String()
}

// NewCommand builds a Command programmatically. Unrecognized words yield
// KindUnknown. Params keys must be letters.
func NewCommand(letter byte, code int, params map[byte]float64) Command {
	letter = upper(letter)
	c := Command{letter: letter, code: code}
	if spec, ok := commandTable[word{letter, code}]; ok {
		c.kind = spec.kind
	}
	for l, v := range params {
		if i := paramIndex(l); i >= 0 {
			c.present |= 1 << uint(i)
			c.values[i] = v
		}
	}
	return c
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}

func isLetter(b byte) bool {
	b = upper(b)
	return b >= 'A' && b <= 'Z'
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
