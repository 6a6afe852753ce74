// Package parse runs the single pass that turns a G-code stream into a
// layer-indexed model.
//
// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.
package parse

import (
	"bufio"
	"context"
	stderrors "errors"
	"io"
	"os"
	"time"

	"layerview/pkg/arc"
	"layerview/pkg/config"
	lverrors "layerview/pkg/errors"
	"layerview/pkg/gcode"
	"layerview/pkg/layers"
	"layerview/pkg/log"
	"layerview/pkg/machine"
	"layerview/pkg/model"
	"layerview/pkg/pool"
)

// progressEvery is the number of lines between progress callbacks.
const progressEvery = 4096

// Options configures a parse pass.
type Options struct {
	MaxLineLength   int
	MaxWarnings     int
	DefaultFeedrate float64
	Arcs            arc.Options
	Layers          layers.Options
}

// DefaultOptions mirrors config.Default.
func DefaultOptions() Options {
	return OptionsFromSettings(config.Default())
}

// OptionsFromSettings extracts the parse options from loaded settings.
func OptionsFromSettings(s config.Settings) Options {
	return Options{
		MaxLineLength:   s.Parser.MaxLineLength,
		MaxWarnings:     s.Parser.MaxWarnings,
		DefaultFeedrate: s.Parser.DefaultFeedrate,
		Arcs: arc.Options{
			Tolerance:   s.Arcs.Tolerance,
			MaxSegments: s.Arcs.MaxSegments,
		},
		Layers: layers.Options{ZResolution: s.Layers.ZResolution},
	}
}

// Warning is a recoverable problem found on one line.
type Warning struct {
	Line int             `json:"line" yaml:"line"`
	Code lverrors.Code   `json:"code" yaml:"code"`
	Raw  string          `json:"raw,omitempty" yaml:"raw,omitempty"`
	Err  *lverrors.Error `json:"-" yaml:"-"`
}

// Message is the warning text without line prefix.
func (w Warning) Message() string {
	if w.Err == nil {
		return ""
	}
	msg := w.Err.Message
	if w.Err.Err != nil {
		msg += ": " + w.Err.Err.Error()
	}
	return msg
}

// Progress is reported periodically while reading.
type Progress struct {
	Lines int
	// Bytes read so far and the total size, when known (0 otherwise).
	Bytes, Total int64
}

// Fraction returns the completed share in [0,1], or -1 when the total is
// unknown.
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return -1
	}
	return min(1, float64(p.Bytes)/float64(p.Total))
}

// ProgressFunc receives progress updates from the parsing goroutine.
type ProgressFunc func(Progress)

// Result is the outcome of a completed pass.
type Result struct {
	// Model is nil when the pass produced no segments.
	Model    *model.Model
	Warnings []Warning
	// WarningCount includes warnings dropped past Options.MaxWarnings.
	WarningCount int
	Duration     time.Duration
}

var logger = log.GetLogger("parse")

// File opens path and parses it. An unreadable file is an IO_READ error
// before any parsing takes place.
func File(ctx context.Context, path string, opts Options, progress ProgressFunc) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, lverrors.IOError(path, err)
	}
	defer f.Close()
	var total int64
	if fi, err := f.Stat(); err == nil {
		total = fi.Size()
	}
	return Parse(ctx, &sizedReader{r: f, total: total}, opts, progress)
}

// sizedReader counts bytes for progress reporting.
type sizedReader struct {
	r     io.Reader
	n     int64
	total int64
}

func (s *sizedReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	s.n += int64(n)
	return n, err
}

// Parse reads r to the end and builds the model. Cancellation is observed
// between lines and yields LOAD_CANCELLED with no result. A stream without
// segments yields MODEL_EMPTY together with a Result carrying the warnings.
func Parse(ctx context.Context, r io.Reader, opts Options, progress ProgressFunc) (*Result, error) {
	sized, ok := r.(*sizedReader)
	if !ok {
		sized = &sizedReader{r: r}
	}
	p := &pass{
		opts:    opts,
		tok:     gcode.Tokenizer{MaxLineLength: opts.MaxLineLength},
		state:   machine.NewState(opts.DefaultFeedrate),
		builder: layers.NewBuilder(opts.Layers),
		res:     &Result{},
	}
	start := time.Now()

	buf := pool.GetLineBuffer()
	defer pool.PutLineBuffer(buf)
	lr := lineReader{br: bufio.NewReaderSize(sized, pool.LineBufferSize), buf: (*buf)[:0], max: pool.MaxLineBytes}

	done := ctx.Done()
	lineNum := 0
	for {
		line, dropped, rerr := lr.next()
		if rerr != nil && rerr != io.EOF {
			return nil, lverrors.Wrap(rerr, lverrors.ErrIORead, "read input").SetLine(lineNum + 1)
		}
		if rerr == io.EOF && len(line) == 0 && dropped == 0 {
			break
		}
		select {
		case <-done:
			return nil, lverrors.CancelledError(ctx.Err())
		default:
		}
		lineNum++
		if dropped > 0 {
			p.warn(lverrors.LineTooLongError(len(line)+dropped, lr.max), string(line[:min(len(line), 80)]), lineNum)
		} else {
			p.line(string(line), lineNum)
		}
		if progress != nil && lineNum%progressEvery == 0 {
			progress(Progress{Lines: lineNum, Bytes: sized.n, Total: sized.total})
		}
		if rerr == io.EOF {
			break
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, lverrors.CancelledError(err)
	}
	if progress != nil {
		progress(Progress{Lines: lineNum, Bytes: sized.n, Total: sized.total})
	}

	built := p.builder.Finish()
	p.stats.Lines = lineNum
	p.stats.Transitions = built.Transitions
	p.res.Duration = time.Since(start)
	m, err := model.Aggregate(built.Layers, built.Priming, p.stats)
	if err != nil {
		logger.WithFields(log.Fields{"lines": lineNum, "warnings": p.res.WarningCount}).
			Debug("no segments")
		return p.res, err
	}
	p.res.Model = m
	logger.WithFields(log.Fields{
		"lines":    lineNum,
		"layers":   m.LayerCount(),
		"segments": m.SegmentCount(),
		"warnings": p.res.WarningCount,
		"elapsed":  p.res.Duration.Round(time.Millisecond),
	}).Debug("parsed")
	return p.res, nil
}

// lineReader splits input into physical lines. Bytes past max on one line
// are discarded and counted so the pass can report the line and go on.
type lineReader struct {
	br  *bufio.Reader
	buf []byte
	max int
}

// next returns the next line without its terminator and the number of bytes
// dropped from it. err is io.EOF on the final line, which may be empty.
func (lr *lineReader) next() (line []byte, dropped int, err error) {
	lr.buf = lr.buf[:0]
	for {
		chunk, rerr := lr.br.ReadSlice('\n')
		if room := lr.max - len(lr.buf); len(chunk) > room {
			lr.buf = append(lr.buf, chunk[:room]...)
			dropped += len(chunk) - room
			// The terminator is not part of the line.
			if chunk[len(chunk)-1] == '\n' {
				dropped--
			}
		} else {
			lr.buf = append(lr.buf, chunk...)
		}
		if rerr == bufio.ErrBufferFull {
			continue
		}
		return trimEOL(lr.buf), dropped, rerr
	}
}

func trimEOL(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\n' {
		b = b[:n-1]
	}
	if n := len(b); n > 0 && b[n-1] == '\r' {
		b = b[:n-1]
	}
	return b
}

// pass holds the mutable state of one Parse call.
type pass struct {
	opts    Options
	tok     gcode.Tokenizer
	state   machine.State
	builder *layers.Builder
	stats   model.Stats
	res     *Result
}

func (p *pass) line(raw string, lineNum int) {
	cmd, ok, err := p.tok.Tokenize(raw, lineNum)
	if err != nil {
		p.warn(err, raw, lineNum)
		return
	}
	if !ok {
		return
	}
	p.stats.Commands++

	next, mv, err := machine.Apply(p.state, cmd)
	if err != nil {
		p.warn(err, raw, lineNum)
		return
	}
	p.state = next
	if mv == nil {
		return
	}

	moves := []machine.Move{*mv}
	if mv.Arc != nil {
		moves, err = arc.Interpolate(*mv, p.opts.Arcs)
		if err != nil {
			p.warn(err, raw, lineNum)
			return
		}
	}
	for _, m := range moves {
		seg := model.Segment{
			Start:       m.Start,
			End:         m.End,
			Kind:        model.Travel,
			Feedrate:    m.Feedrate,
			Temperature: m.Temperature,
			Extrusion:   m.Extrusion,
			Line:        m.Line,
		}
		if m.Printing() {
			seg.Kind = model.Print
		}
		if err := p.builder.Add(seg); err != nil {
			p.warn(err, raw, lineNum)
		}
	}
}

func (p *pass) warn(err error, raw string, lineNum int) {
	p.res.WarningCount++
	if p.opts.MaxWarnings > 0 && len(p.res.Warnings) >= p.opts.MaxWarnings {
		return
	}
	var e *lverrors.Error
	if !stderrors.As(err, &e) {
		e = lverrors.Wrap(err, lverrors.ErrGCodeParse, "unexpected error")
	}
	if e.Line == 0 {
		e.SetLine(lineNum)
	}
	if e.Raw == "" {
		e.SetRaw(raw)
	}
	p.res.Warnings = append(p.res.Warnings, Warning{Line: e.Line, Code: e.Code, Raw: e.Raw, Err: e})
}
