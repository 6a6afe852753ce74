package config

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	lverrors "layerview/pkg/errors"
)

// Section gives typed access to one [section] with access tracking.
type Section struct {
	name    string
	options map[string]string

	mu       sync.Mutex
	accessed map[string]struct{}
}

func newSection(name string) *Section {
	return &Section{
		name:     name,
		options:  make(map[string]string),
		accessed: make(map[string]struct{}),
	}
}

func (s *Section) Name() string { return s.name }

func (s *Section) HasOption(option string) bool {
	_, ok := s.options[strings.ToLower(option)]
	return ok
}

// lookup returns the raw value and marks the option as read.
func (s *Section) lookup(option string) (string, bool) {
	key := strings.ToLower(option)
	s.mu.Lock()
	s.accessed[key] = struct{}{}
	s.mu.Unlock()
	v, ok := s.options[key]
	return v, ok
}

// UnusedOptions returns the sorted options that were never read.
func (s *Section) UnusedOptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for opt := range s.options {
		if _, ok := s.accessed[opt]; !ok {
			out = append(out, opt)
		}
	}
	sort.Strings(out)
	return out
}

// Get returns a string option. Without a fallback a missing option is an
// error.
func (s *Section) Get(option string, fallback ...string) (string, error) {
	if v, ok := s.lookup(option); ok {
		return v, nil
	}
	if len(fallback) > 0 {
		return fallback[0], nil
	}
	return "", lverrors.ConfigOptionError(s.name, option)
}

func (s *Section) GetInt(option string, fallback ...int) (int, error) {
	v, ok := s.lookup(option)
	if !ok {
		if len(fallback) > 0 {
			return fallback[0], nil
		}
		return 0, lverrors.ConfigOptionError(s.name, option)
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, lverrors.ConfigTypeError(s.name, option, v, "integer", err)
	}
	return i, nil
}

// GetIntWithBounds reads an integer that must lie in [minVal, maxVal].
func (s *Section) GetIntWithBounds(option string, minVal, maxVal int, fallback ...int) (int, error) {
	i, err := s.GetInt(option, fallback...)
	if err != nil {
		return 0, err
	}
	if i < minVal || i > maxVal {
		return 0, lverrors.ConfigValidationError(s.name, option,
			"value "+strconv.Itoa(i)+" must be between "+strconv.Itoa(minVal)+" and "+strconv.Itoa(maxVal))
	}
	return i, nil
}

func (s *Section) GetFloat(option string, fallback ...float64) (float64, error) {
	v, ok := s.lookup(option)
	if !ok {
		if len(fallback) > 0 {
			return fallback[0], nil
		}
		return 0, lverrors.ConfigOptionError(s.name, option)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, lverrors.ConfigTypeError(s.name, option, v, "float", err)
	}
	return f, nil
}

// FloatBounds constrains GetFloatWithBounds. Nil fields are unchecked.
type FloatBounds struct {
	MinVal *float64 // >=
	MaxVal *float64 // <=
	Above  *float64 // >
	Below  *float64 // <
}

// Ptr is a helper for building FloatBounds literals.
func Ptr(v float64) *float64 { return &v }

func (s *Section) GetFloatWithBounds(option string, b FloatBounds, fallback ...float64) (float64, error) {
	f, err := s.GetFloat(option, fallback...)
	if err != nil {
		return 0, err
	}
	fmtf := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	var reason string
	switch {
	case b.MinVal != nil && f < *b.MinVal:
		reason = "must have minimum of " + fmtf(*b.MinVal)
	case b.MaxVal != nil && f > *b.MaxVal:
		reason = "must have maximum of " + fmtf(*b.MaxVal)
	case b.Above != nil && f <= *b.Above:
		reason = "must be above " + fmtf(*b.Above)
	case b.Below != nil && f >= *b.Below:
		reason = "must be below " + fmtf(*b.Below)
	default:
		return f, nil
	}
	return 0, lverrors.ConfigValidationError(s.name, option, "value "+fmtf(f)+" "+reason)
}

// GetBool accepts 1/true/yes/on and 0/false/no/off.
func (s *Section) GetBool(option string, fallback ...bool) (bool, error) {
	v, ok := s.lookup(option)
	if !ok {
		if len(fallback) > 0 {
			return fallback[0], nil
		}
		return false, lverrors.ConfigOptionError(s.name, option)
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, lverrors.ConfigTypeError(s.name, option, v, "boolean", nil)
}

// GetChoice reads a string that must case-insensitively match one of choices.
// The canonical spelling from choices is returned.
func (s *Section) GetChoice(option string, choices []string, fallback ...string) (string, error) {
	v, err := s.Get(option, fallback...)
	if err != nil {
		return "", err
	}
	for _, c := range choices {
		if strings.EqualFold(v, c) {
			return c, nil
		}
	}
	return "", lverrors.ConfigValidationError(s.name, option,
		"'"+v+"' is not one of "+strings.Join(choices, ", "))
}

// GetIntList reads a comma separated list of integers.
func (s *Section) GetIntList(option string, fallback ...[]int) ([]int, error) {
	v, ok := s.lookup(option)
	if !ok {
		if len(fallback) > 0 {
			return fallback[0], nil
		}
		return nil, lverrors.ConfigOptionError(s.name, option)
	}
	var out []int
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		i, err := strconv.Atoi(part)
		if err != nil {
			return nil, lverrors.ConfigTypeError(s.name, option, part, "integer", err)
		}
		out = append(out, i)
	}
	return out, nil
}
