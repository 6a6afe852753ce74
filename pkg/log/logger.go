// Structured logging for layerview
//
// Leveled logger with key/value fields, text or JSON output and per-component
// prefixes. Terminal colors are enabled only when the destination is a TTY.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level is the severity of a log record.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l Level) String() string {
	if l < DEBUG || l > ERROR {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel maps a level name to a Level. Unknown names yield INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Format selects the record encoding.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// ParseFormat maps "text" or "json" to a Format.
func ParseFormat(s string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text":
		return FormatText, true
	case "json":
		return FormatJSON, true
	}
	return FormatText, false
}

// Fields holds structured key/value pairs attached to a record.
type Fields map[string]any

// sink is the shared output state of a logger family. Loggers derived with
// WithPrefix write through the same sink so settings apply to all of them.
type sink struct {
	mu       sync.Mutex
	w        io.Writer
	level    Level
	format   Format
	colorize bool
	caller   bool
	timeFmt  string
}

// Logger writes leveled records tagged with a component prefix.
type Logger struct {
	prefix string
	out    *sink
}

// Entry is a pending record carrying fields.
type Entry struct {
	logger *Logger
	fields Fields
}

var levelColors = map[Level]string{
	DEBUG: "\x1b[36m",
	INFO:  "\x1b[32m",
	WARN:  "\x1b[33m",
	ERROR: "\x1b[31m",
}

const colorReset = "\x1b[0m"

// New creates a logger writing to stderr at INFO.
func New(prefix string) *Logger {
	return &Logger{
		prefix: prefix,
		out: &sink{
			w:        os.Stderr,
			level:    INFO,
			format:   FormatText,
			colorize: os.Getenv("NO_COLOR") == "" && isTerminal(os.Stderr),
			timeFmt:  "2006-01-02 15:04:05.000",
		},
	}
}

func (l *Logger) SetLevel(level Level) {
	l.out.mu.Lock()
	l.out.level = level
	l.out.mu.Unlock()
}

func (l *Logger) Level() Level {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	return l.out.level
}

// SetWriter redirects output. Colors are re-evaluated for the new writer.
func (l *Logger) SetWriter(w io.Writer) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	l.out.w = w
	f, ok := w.(*os.File)
	l.out.colorize = ok && os.Getenv("NO_COLOR") == "" && isTerminal(f)
}

func (l *Logger) SetFormat(f Format) {
	l.out.mu.Lock()
	l.out.format = f
	l.out.mu.Unlock()
}

func (l *Logger) SetColorize(enable bool) {
	l.out.mu.Lock()
	l.out.colorize = enable
	l.out.mu.Unlock()
}

func (l *Logger) SetCaller(enable bool) {
	l.out.mu.Lock()
	l.out.caller = enable
	l.out.mu.Unlock()
}

// WithPrefix returns a logger sharing this logger's output under another prefix.
func (l *Logger) WithPrefix(prefix string) *Logger {
	return &Logger{prefix: prefix, out: l.out}
}

func (l *Logger) Prefix() string { return l.prefix }

func (l *Logger) WithField(key string, value any) *Entry {
	return &Entry{logger: l, fields: Fields{key: value}}
}

func (l *Logger) WithFields(fields Fields) *Entry {
	cp := make(Fields, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return &Entry{logger: l, fields: cp}
}

func (l *Logger) WithError(err error) *Entry {
	return l.WithField("error", errString(err))
}

func (l *Logger) Debug(msg string, args ...any) { l.emit(DEBUG, msg, args, nil) }
func (l *Logger) Info(msg string, args ...any)  { l.emit(INFO, msg, args, nil) }
func (l *Logger) Warn(msg string, args ...any)  { l.emit(WARN, msg, args, nil) }
func (l *Logger) Error(msg string, args ...any) { l.emit(ERROR, msg, args, nil) }

func (e *Entry) WithField(key string, value any) *Entry {
	return e.WithFields(Fields{key: value})
}

func (e *Entry) WithFields(fields Fields) *Entry {
	merged := make(Fields, len(e.fields)+len(fields))
	for k, v := range e.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Entry{logger: e.logger, fields: merged}
}

func (e *Entry) WithError(err error) *Entry {
	return e.WithField("error", errString(err))
}

func (e *Entry) Debug(msg string, args ...any) { e.logger.emit(DEBUG, msg, args, e.fields) }
func (e *Entry) Info(msg string, args ...any)  { e.logger.emit(INFO, msg, args, e.fields) }
func (e *Entry) Warn(msg string, args ...any)  { e.logger.emit(WARN, msg, args, e.fields) }
func (e *Entry) Error(msg string, args ...any) { e.logger.emit(ERROR, msg, args, e.fields) }

func errString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}

// emit is called at a fixed depth from the public methods, so caller lookup
// uses a constant skip.
func (l *Logger) emit(level Level, msg string, args []any, fields Fields) {
	s := l.out
	s.mu.Lock()
	defer s.mu.Unlock()
	if level < s.level {
		return
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	var caller string
	if s.caller {
		if _, file, line, ok := runtime.Caller(2); ok {
			caller = fmt.Sprintf("%s:%d", filepath.Base(file), line)
		}
	}
	var rec string
	if s.format == FormatJSON {
		rec = l.encodeJSON(level, msg, caller, fields)
	} else {
		rec = l.encodeText(level, msg, caller, fields)
	}
	io.WriteString(s.w, rec)
}

func (l *Logger) encodeText(level Level, msg, caller string, fields Fields) string {
	var sb strings.Builder
	sb.WriteString(time.Now().Format(l.out.timeFmt))
	fmt.Fprintf(&sb, " [%-5s] ", level)
	if l.out.colorize {
		sb.WriteString(levelColors[level])
		sb.WriteString(l.prefix)
		sb.WriteString(colorReset)
	} else {
		sb.WriteString(l.prefix)
	}
	sb.WriteString(": ")
	sb.WriteString(msg)
	if caller != "" {
		sb.WriteString(" (" + caller + ")")
	}
	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString(" {")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s=%v", k, fields[k])
		}
		sb.WriteString("}")
	}
	sb.WriteByte('\n')
	return sb.String()
}

// jsonRecord is the JSON encoding of one record.
type jsonRecord struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Logger  string `json:"logger"`
	Message string `json:"msg"`
	Caller  string `json:"caller,omitempty"`
	Fields  Fields `json:"fields,omitempty"`
}

func (l *Logger) encodeJSON(level Level, msg, caller string, fields Fields) string {
	data, err := json.Marshal(jsonRecord{
		Time:    time.Now().Format(time.RFC3339Nano),
		Level:   level.String(),
		Logger:  l.prefix,
		Message: msg,
		Caller:  caller,
		Fields:  fields,
	})
	if err != nil {
		return fmt.Sprintf("{\"level\":\"ERROR\",\"msg\":%q}\n", "log encode: "+err.Error())
	}
	return string(data) + "\n"
}

var (
	rootMu sync.Mutex
	root   = newRoot()
)

func newRoot() *Logger {
	l := New("layerview")
	ConfigureFromEnv(l)
	return l
}

// Root returns the process-wide logger all component loggers derive from.
func Root() *Logger {
	rootMu.Lock()
	defer rootMu.Unlock()
	return root
}

// SetRoot replaces the process-wide logger.
func SetRoot(l *Logger) {
	rootMu.Lock()
	root = l
	rootMu.Unlock()
}

// GetLogger returns a component logger sharing the root output settings.
func GetLogger(prefix string) *Logger {
	return Root().WithPrefix(prefix)
}

// ConfigureFromEnv applies LAYERVIEW_LOG_LEVEL, LAYERVIEW_LOG_FORMAT,
// LAYERVIEW_LOG_CALLER and NO_COLOR.
func ConfigureFromEnv(l *Logger) {
	if v := os.Getenv("LAYERVIEW_LOG_LEVEL"); v != "" {
		l.SetLevel(ParseLevel(v))
	}
	if v := os.Getenv("LAYERVIEW_LOG_FORMAT"); v != "" {
		if f, ok := ParseFormat(v); ok {
			l.SetFormat(f)
		}
	}
	if os.Getenv("LAYERVIEW_LOG_CALLER") != "" {
		l.SetCaller(true)
	}
	if os.Getenv("NO_COLOR") != "" {
		l.SetColorize(false)
	}
}
