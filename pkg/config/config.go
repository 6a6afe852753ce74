// Package config reads layerview's INI-style configuration file.
//
// Files consist of [section] headers followed by "key: value" or
// "key = value" lines. '#' and ';' start comments. Options are tracked as
// they are read so unused (likely misspelled) options can be reported.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.
package config

import (
	"bufio"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	lverrors "layerview/pkg/errors"
)

// Config is a parsed configuration file.
type Config struct {
	mu       sync.RWMutex
	sections map[string]*Section
	order    []string
}

// New creates an empty Config.
func New() *Config {
	return &Config{sections: make(map[string]*Section)}
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, lverrors.IOError(path, err)
	}
	defer f.Close()
	return Parse(f)
}

// LoadString parses configuration text.
func LoadString(data string) (*Config, error) {
	return Parse(strings.NewReader(data))
}

// Parse reads configuration text from r. Repeated sections are merged with
// later values winning.
func Parse(r io.Reader) (*Config, error) {
	c := New()
	var cur string
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := stripComment(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				return nil, lverrors.New(lverrors.ErrConfigSection, "unterminated section header").
					SetLine(lineNum).SetRaw(line)
			}
			cur = strings.ToLower(strings.TrimSpace(line[1 : len(line)-1]))
			if cur == "" {
				return nil, lverrors.New(lverrors.ErrConfigSection, "empty section header").
					SetLine(lineNum)
			}
			c.section(cur)
			continue
		}

		if cur == "" {
			return nil, lverrors.New(lverrors.ErrConfigOption, "option outside of any section").
				SetLine(lineNum).SetRaw(line)
		}

		sep := strings.IndexAny(line, ":=")
		if sep <= 0 {
			return nil, lverrors.New(lverrors.ErrConfigOption, "expected 'key: value'").
				SetLine(lineNum).SetRaw(line)
		}
		key := strings.ToLower(strings.TrimSpace(line[:sep]))
		value := strings.TrimSpace(line[sep+1:])
		c.section(cur).options[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, lverrors.Wrap(err, lverrors.ErrIORead, "reading configuration")
	}
	return c, nil
}

func stripComment(line string) string {
	if idx := strings.IndexAny(line, "#;"); idx >= 0 {
		line = line[:idx]
	}
	return strings.TrimSpace(line)
}

// section returns the named section, creating it if needed.
func (c *Config) section(name string) *Section {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sections[name]; ok {
		return s
	}
	s := newSection(name)
	c.sections[name] = s
	c.order = append(c.order, name)
	return s
}

// HasSection reports whether the named section is present.
func (c *Config) HasSection(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.sections[strings.ToLower(name)]
	return ok
}

// GetSection returns the named section or a CONFIG_SECTION error.
func (c *Config) GetSection(name string) (*Section, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sections[strings.ToLower(name)]
	if !ok {
		return nil, lverrors.ConfigSectionError(name)
	}
	return s, nil
}

// SectionOrEmpty returns the named section, or an empty section so that all
// reads fall back to their defaults.
func (c *Config) SectionOrEmpty(name string) *Section {
	if s, err := c.GetSection(name); err == nil {
		return s
	}
	return newSection(strings.ToLower(name))
}

// Sections returns section names in file order.
func (c *Config) Sections() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

// UnusedOptions lists "section.option" for every option never read.
func (c *Config) UnusedOptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	for _, name := range c.order {
		for _, opt := range c.sections[name].UnusedOptions() {
			out = append(out, name+"."+opt)
		}
	}
	sort.Strings(out)
	return out
}
