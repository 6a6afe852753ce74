// Package gcode turns raw G-code lines into typed Commands.
//
// Accepted syntax is the RepRap/Marlin subset emitted by common slicers:
// optional N line numbers and *checksums, ';' and '( )' comments, a command
// word followed by letter/value parameters. Parameters may be separated by
// whitespace or packed ("G1X10Y5"). Commands outside the recognized set,
// including Klipper style extended commands, are returned as KindUnknown
// without inspecting their arguments.
//
// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.
package gcode

import (
	"strconv"
	"strings"

	lverrors "layerview/pkg/errors"
	"layerview/pkg/pool"
)

// DefaultMaxLineLength bounds the code part of a line.
const DefaultMaxLineLength = 256

// Letters that start a parameter word. A line beginning with one of these is
// a modal continuation, which is not supported.
const paramLetters = "XYZEFIJ"

// Tokenizer parses single lines. The zero value applies no length limit.
type Tokenizer struct {
	MaxLineLength int
}

// Tokenize parses a line with the default length limit.
func Tokenize(raw string, lineNum int) (Command, bool, error) {
	return Tokenizer{MaxLineLength: DefaultMaxLineLength}.Tokenize(raw, lineNum)
}

// Tokenize parses one raw line. ok is false when the line carries no command
// (blank, comment only, '%' program marker). A non-nil error is always a
// recoverable *errors.Error tagged with lineNum and the raw text.
func (t Tokenizer) Tokenize(raw string, lineNum int) (cmd Command, ok bool, err error) {
	cmd, ok, perr := t.tokenize(raw, lineNum)
	if perr != nil {
		return Command{}, false, perr.SetLine(lineNum).SetRaw(raw)
	}
	return cmd, ok, nil
}

func (t Tokenizer) tokenize(raw string, lineNum int) (Command, bool, *lverrors.Error) {
	code, perr := stripComments(raw)
	if perr != nil {
		return Command{}, false, perr
	}
	if i := strings.IndexByte(code, '*'); i >= 0 {
		code = code[:i]
	}
	code = strings.TrimSpace(code)
	if code == "" || code == "%" {
		return Command{}, false, nil
	}
	if t.MaxLineLength > 0 && len(code) > t.MaxLineLength {
		return Command{}, false, lverrors.LineTooLongError(len(code), t.MaxLineLength)
	}

	fp := pool.GetFieldSlice()
	defer pool.PutFieldSlice(fp)
	*fp = appendFields(*fp, code)
	fields := *fp

	// Drop the N word. It may be packed with the command ("N10G1X5").
	if head := fields[0]; upper(head[0]) == 'N' && len(head) > 1 && isDigit(head[1]) {
		i := 1
		for i < len(head) && isDigit(head[i]) {
			i++
		}
		if i == len(head) {
			fields = fields[1:]
		} else {
			fields[0] = head[i:]
		}
		if len(fields) == 0 {
			return Command{}, false, nil
		}
	}

	head := fields[0]
	if !isLetter(head[0]) {
		return Command{}, false, lverrors.ParseError(raw, "line does not start with a command word")
	}
	letter := upper(head[0])
	c := Command{line: lineNum}

	if letter != 'G' && letter != 'M' && letter != 'T' {
		if strings.IndexByte(paramLetters, letter) >= 0 && len(head) > 1 && isValueChar(head[1]) {
			return Command{}, false, lverrors.ParseError(raw, "parameter without a command word")
		}
		// Extended command such as SET_FAN_SPEED or EXCLUDE_OBJECT_START.
		return c, true, nil
	}

	i := 1
	for i < len(head) && isDigit(head[i]) {
		i++
	}
	if i == 1 {
		if len(head) == 1 {
			return Command{}, false, lverrors.ParseError(raw, "command word '"+head+"' has no code")
		}
		// Extended command starting with G, M or T, e.g. GET_POSITION.
		return c, true, nil
	}
	n, convErr := strconv.Atoi(head[1:i])
	if convErr != nil {
		return Command{}, false, lverrors.ParseError(raw, "command code '"+head[1:i]+"' out of range")
	}
	c.letter, c.code = letter, n

	if i < len(head) && head[i] == '.' {
		// Subcodes (G29.1) are outside the recognized set.
		return c, true, nil
	}
	spec, known := commandTable[word{letter, n}]
	if !known {
		return c, true, nil
	}
	c.kind = spec.kind

	if perr := parseParams(&c, spec, head[i:]); perr != nil {
		return Command{}, false, perr
	}
	for _, f := range fields[1:] {
		if perr := parseParams(&c, spec, f); perr != nil {
			return Command{}, false, perr
		}
	}
	return c, true, nil
}

// parseParams reads letter/value pairs packed in one whitespace-free chunk.
func parseParams(c *Command, spec commandSpec, chunk string) *lverrors.Error {
	for j := 0; j < len(chunk); {
		if !isLetter(chunk[j]) {
			return lverrors.InvalidParamError(c.Name(), chunk[j], "", "is not a parameter letter")
		}
		l := upper(chunk[j])
		j++
		k := j
		for k < len(chunk) && isValueChar(chunk[k]) {
			k++
		}
		val := chunk[j:k]
		j = k

		if strings.IndexByte(spec.params, l) < 0 {
			return lverrors.InvalidParamError(c.Name(), l, val, "is not accepted")
		}
		var v float64
		if val == "" {
			if strings.IndexByte(spec.bare, l) < 0 {
				return lverrors.InvalidParamError(c.Name(), l, val, "requires a value")
			}
		} else {
			var err error
			if v, err = strconv.ParseFloat(val, 64); err != nil {
				return lverrors.InvalidParamError(c.Name(), l, val, "is not a number")
			}
		}
		idx := paramIndex(l)
		c.present |= 1 << uint(idx)
		c.values[idx] = v
	}
	return nil
}

// stripComments removes ';' trailing comments and '( )' inline comments.
func stripComments(raw string) (string, *lverrors.Error) {
	if i := strings.IndexByte(raw, ';'); i >= 0 {
		raw = raw[:i]
	}
	if strings.IndexByte(raw, '(') < 0 {
		return raw, nil
	}
	var sb strings.Builder
	for {
		open := strings.IndexByte(raw, '(')
		if open < 0 {
			sb.WriteString(raw)
			return sb.String(), nil
		}
		end := strings.IndexByte(raw[open:], ')')
		if end < 0 {
			return "", lverrors.ParseError(raw, "unterminated '(' comment")
		}
		sb.WriteString(raw[:open])
		sb.WriteByte(' ')
		raw = raw[open+end+1:]
	}
}

// appendFields splits s on spaces and tabs.
func appendFields(dst []string, s string) []string {
	start := -1
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' || s[i] == '\t' {
			if start >= 0 {
				dst = append(dst, s[start:i])
				start = -1
			}
		} else if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		dst = append(dst, s[start:])
	}
	return dst
}

func isValueChar(b byte) bool {
	return isDigit(b) || b == '.' || b == '-' || b == '+'
}
