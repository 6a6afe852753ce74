// Coded errors for layerview
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	stderrors "errors"
	"fmt"
)

// Code identifies the category of an error.
type Code string

const (
	// Configuration errors
	ErrConfigSection    Code = "CONFIG_SECTION"
	ErrConfigOption     Code = "CONFIG_OPTION"
	ErrConfigValidation Code = "CONFIG_VALIDATION"
	ErrConfigType       Code = "CONFIG_TYPE"

	// Line-level G-code problems. The line is skipped and parsing continues.
	ErrGCodeParse        Code = "GCODE_PARSE"
	ErrGCodeInvalidParam Code = "GCODE_INVALID_PARAM"
	ErrGCodeLineTooLong  Code = "GCODE_LINE_TOO_LONG"

	// Geometry problems. The offending move is skipped.
	ErrGeometryArc Code = "GEOMETRY_ARC"

	// Layer reconstruction anomalies.
	ErrLayerZDescent Code = "LAYER_Z_DESCENT"

	// Load outcomes that abort the whole pass.
	ErrModelEmpty    Code = "MODEL_EMPTY"
	ErrLoadCancelled Code = "LOAD_CANCELLED"
	ErrIORead        Code = "IO_READ"

	// A model query arrived while nothing is published.
	ErrNoModel Code = "MODEL_NOT_LOADED"

	// A requested file lies outside the G-code root or is not a file.
	ErrFilePath Code = "FILE_PATH"
)

// Error is the single error type returned across layerview packages.
type Error struct {
	Code    Code
	Message string

	// Line is the 1-based source line, 0 when not tied to a line.
	Line int

	// Raw is the offending source text, if any.
	Raw string

	// Section and Option locate configuration errors.
	Section string
	Option  string

	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Line > 0 {
		msg = fmt.Sprintf("line %d: %s", e.Line, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) SetLine(line int) *Error {
	e.Line = line
	return e
}

func (e *Error) SetRaw(raw string) *Error {
	e.Raw = raw
	return e
}

func (e *Error) SetSection(section string) *Error {
	e.Section = section
	return e
}

func (e *Error) SetOption(option string) *Error {
	e.Option = option
	return e
}

// New creates an Error with the given code.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Config errors

func ConfigSectionError(section string) *Error {
	return New(ErrConfigSection, fmt.Sprintf("section '%s' not found", section)).
		SetSection(section)
}

func ConfigOptionError(section, option string) *Error {
	return New(ErrConfigOption, fmt.Sprintf("option '%s' not found in section '%s'", option, section)).
		SetSection(section).
		SetOption(option)
}

func ConfigValidationError(section, option, reason string) *Error {
	return New(ErrConfigValidation, fmt.Sprintf("option '%s' in section '%s': %s", option, section, reason)).
		SetSection(section).
		SetOption(option)
}

func ConfigTypeError(section, option, value, targetType string, err error) *Error {
	return Wrap(err, ErrConfigType, fmt.Sprintf("option '%s' in section '%s': cannot parse '%s' as %s", option, section, value, targetType)).
		SetSection(section).
		SetOption(option)
}

// G-code errors

// ParseError reports a line that could not be tokenized.
func ParseError(raw, reason string) *Error {
	return New(ErrGCodeParse, reason).SetRaw(raw)
}

// InvalidParamError reports a parameter that is unknown for its command or
// carries a malformed value.
func InvalidParamError(command string, letter byte, value, reason string) *Error {
	return New(ErrGCodeInvalidParam, fmt.Sprintf("%s: parameter '%c%s' %s", command, letter, value, reason))
}

// LineTooLongError reports a code section longer than the configured limit.
func LineTooLongError(length, limit int) *Error {
	return New(ErrGCodeLineTooLong, fmt.Sprintf("line length %d exceeds limit %d", length, limit))
}

// Geometry errors

func ArcError(reason string) *Error {
	return New(ErrGeometryArc, reason)
}

// Layer errors

// ZDescentError reports a move that settles below an already printed layer.
func ZDescentError(z, top float64) *Error {
	return New(ErrLayerZDescent, fmt.Sprintf("print at Z%.3f below highest layer Z%.3f", z, top))
}

// Load outcomes

func EmptyModelError() *Error {
	return New(ErrModelEmpty, "file contains no drawable moves")
}

func NoModelError() *Error {
	return New(ErrNoModel, "no model loaded")
}

func CancelledError(cause error) *Error {
	return Wrap(cause, ErrLoadCancelled, "load cancelled")
}

func IOError(path string, err error) *Error {
	return Wrap(err, ErrIORead, fmt.Sprintf("cannot read '%s'", path))
}

func PathError(path, reason string) *Error {
	return New(ErrFilePath, fmt.Sprintf("'%s': %s", path, reason))
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether err's chain contains an *Error with the given code.
func Is(err error, code Code) bool {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Err
	}
	return false
}

func IsConfig(err error) bool {
	switch CodeOf(err) {
	case ErrConfigSection, ErrConfigOption, ErrConfigValidation, ErrConfigType:
		return true
	}
	return false
}

func IsGCode(err error) bool {
	switch CodeOf(err) {
	case ErrGCodeParse, ErrGCodeInvalidParam, ErrGCodeLineTooLong:
		return true
	}
	return false
}

// IsWarning reports whether err is recoverable at line level: the pass
// records it and keeps going.
func IsWarning(err error) bool {
	switch CodeOf(err) {
	case ErrGCodeParse, ErrGCodeInvalidParam, ErrGCodeLineTooLong,
		ErrGeometryArc, ErrLayerZDescent:
		return true
	}
	return false
}

func IsCancelled(err error) bool { return Is(err, ErrLoadCancelled) }
