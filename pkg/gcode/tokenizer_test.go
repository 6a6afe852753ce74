// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package gcode

import (
	"strings"
	"testing"

	lverrors "layerview/pkg/errors"
)

func mustTokenize(t *testing.T, line string) Command {
	t.Helper()
	cmd, ok, err := Tokenize(line, 1)
	if err != nil {
		t.Fatalf("Tokenize(%q) error: %v", line, err)
	}
	if !ok {
		t.Fatalf("Tokenize(%q) returned no command", line)
	}
	return cmd
}

func TestTokenizeMove(t *testing.T) {
	cmd := mustTokenize(t, "G1 X10.5 Y-2 E0.04 F1800 ; perimeter")
	if cmd.Kind() != KindLinearMove || cmd.Name() != "G1" {
		t.Fatalf("unexpected command %v (%v)", cmd, cmd.Kind())
	}
	want := map[byte]float64{'X': 10.5, 'Y': -2, 'E': 0.04, 'F': 1800}
	for l, v := range want {
		got, ok := cmd.Param(l)
		if !ok || got != v {
			t.Errorf("param %c = %v, %v; want %v", l, got, ok, v)
		}
	}
	if cmd.Has('Z') {
		t.Error("absent Z must not be reported present")
	}
	if z, ok := cmd.Param('Z'); ok || z != 0 {
		t.Errorf("absent Z = %v, %v", z, ok)
	}
}

func TestTokenizeNoCommand(t *testing.T) {
	for _, line := range []string{"", "   ", "; only a comment", "(inline only)", "%", "N10", "*42"} {
		cmd, ok, err := Tokenize(line, 3)
		if err != nil || ok {
			t.Errorf("Tokenize(%q) = %v, %v, %v; want no-op", line, cmd, ok, err)
		}
	}
}

func TestTokenizeSyntaxVariants(t *testing.T) {
	tests := []struct {
		line string
		kind Kind
		x    float64
	}{
		{"g1 x3", KindLinearMove, 3},
		{"G1X3Y4", KindLinearMove, 3},
		{"N42 G1 X3*71", KindLinearMove, 3},
		{"N42G1X3", KindLinearMove, 3},
		{"G1 (move) X3 (fast)", KindLinearMove, 3},
		{"G0\tX3", KindRapidMove, 3},
		{"G01 X3", KindLinearMove, 3},
		{"G2 X3 Y0 I1.5 J0", KindArcCW, 3},
		{"G92 X3", KindSetPosition, 3},
	}
	for _, tt := range tests {
		cmd := mustTokenize(t, tt.line)
		if cmd.Kind() != tt.kind {
			t.Errorf("%q: kind %v, want %v", tt.line, cmd.Kind(), tt.kind)
		}
		if x, _ := cmd.Param('X'); x != tt.x {
			t.Errorf("%q: X = %v, want %v", tt.line, x, tt.x)
		}
	}
}

func TestTokenizeKinds(t *testing.T) {
	tests := map[string]Kind{
		"G20":            KindInches,
		"G21":            KindMillimeters,
		"G28":            KindHome,
		"G28 X Y":        KindHome,
		"G90":            KindAbsolutePositioning,
		"G91":            KindRelativePositioning,
		"M82":            KindAbsoluteExtrusion,
		"M83":            KindRelativeExtrusion,
		"M104 S210":      KindSetTemperature,
		"M109 S215":      KindSetTemperatureWait,
		"G3 X1 Y1 I1 J0": KindArcCCW,
	}
	for line, want := range tests {
		if got := mustTokenize(t, line).Kind(); got != want {
			t.Errorf("%q: kind %v, want %v", line, got, want)
		}
	}
}

func TestTokenizeHomeBareAxes(t *testing.T) {
	cmd := mustTokenize(t, "G28 X Z")
	if !cmd.Has('X') || !cmd.Has('Z') || cmd.Has('Y') {
		t.Errorf("unexpected axes %q", cmd.ParamLetters())
	}
}

func TestTokenizeUnknownCommands(t *testing.T) {
	for _, line := range []string{
		"M106 S255",
		"T0",
		"G29.1 Z0.2",
		"M117 Printing layer 3 of 90",
		"SET_FAN_SPEED FAN=part SPEED=0.5",
		"EXCLUDE_OBJECT_START NAME=cube",
		"GET_POSITION",
		"M73 P10 R22",
	} {
		cmd, ok, err := Tokenize(line, 1)
		if err != nil || !ok {
			t.Errorf("Tokenize(%q) = %v, %v; want unknown command", line, ok, err)
			continue
		}
		if cmd.Kind() != KindUnknown {
			t.Errorf("%q: kind %v, want unknown", line, cmd.Kind())
		}
	}
}

func TestTokenizeWarnings(t *testing.T) {
	tests := []struct {
		line string
		code lverrors.Code
	}{
		{"X10 Y10", lverrors.ErrGCodeParse},
		{"#define", lverrors.ErrGCodeParse},
		{"G", lverrors.ErrGCodeParse},
		{"G1 X10 (unterminated", lverrors.ErrGCodeParse},
		{"G1 Q5", lverrors.ErrGCodeInvalidParam},
		{"G1 X1.2.3", lverrors.ErrGCodeInvalidParam},
		{"G1 Xabc", lverrors.ErrGCodeInvalidParam},
		{"G1 X", lverrors.ErrGCodeInvalidParam},
		{"G90 X1", lverrors.ErrGCodeInvalidParam},
		{"M104 =200", lverrors.ErrGCodeInvalidParam},
		{"G1 X" + strings.Repeat("1", 300), lverrors.ErrGCodeLineTooLong},
	}
	for _, tt := range tests {
		_, ok, err := Tokenize(tt.line, 9)
		if ok {
			t.Errorf("%q: expected no command on error", tt.line)
		}
		if !lverrors.Is(err, tt.code) {
			t.Errorf("%q: expected %s, got %v", tt.line, tt.code, err)
			continue
		}
		e := err.(*lverrors.Error)
		if e.Line != 9 || e.Raw != tt.line {
			t.Errorf("%q: error not tagged with line and raw text: %+v", tt.line, e)
		}
	}
}

func TestLineLengthLimitDisabled(t *testing.T) {
	line := "G1 X" + strings.Repeat("1", 300)
	if _, ok, err := (Tokenizer{}).Tokenize(line, 1); err != nil || !ok {
		t.Errorf("zero Tokenizer should not limit length: %v", err)
	}
}

func TestLineLengthIgnoresComment(t *testing.T) {
	line := "G1 X1 ;" + strings.Repeat("c", 400)
	if _, _, err := Tokenize(line, 1); err != nil {
		t.Errorf("comment text should not count towards the limit: %v", err)
	}
}

func TestNewCommand(t *testing.T) {
	cmd := NewCommand('g', 1, map[byte]float64{'x': 2})
	if cmd.Kind() != KindLinearMove || cmd.String() != "G1 X2" {
		t.Errorf("unexpected %v (%s)", cmd.Kind(), cmd)
	}
	if NewCommand('M', 999, nil).Kind() != KindUnknown {
		t.Error("expected unknown kind")
	}
}

func TestKindPredicates(t *testing.T) {
	if !KindArcCW.IsMove() || !KindArcCW.IsArc() || KindLinearMove.IsArc() {
		t.Error("arc predicates wrong")
	}
	if KindHome.IsMove() {
		t.Error("home is not a move")
	}
	if KindSetTemperature.String() != "set_temperature" {
		t.Errorf("String = %q", KindSetTemperature.String())
	}
}

func BenchmarkTokenize(b *testing.B) {
	tok := Tokenizer{MaxLineLength: DefaultMaxLineLength}
	for i := 0; i < b.N; i++ {
		tok.Tokenize("G1 X102.345 Y88.120 E0.03521 F1800 ; infill", i)
	}
}
