package config

import (
	lverrors "layerview/pkg/errors"
)

// Settings is the typed view of a layerview configuration file.
type Settings struct {
	Parser   ParserSettings
	Arcs     ArcSettings
	Layers   LayerSettings
	Coloring ColoringSettings
	Server   ServerSettings
	Log      LogSettings
}

type ParserSettings struct {
	// MaxLineLength bounds the code part of a line. 0 disables the check.
	MaxLineLength int
	// MaxWarnings caps collected warnings. The total count is kept regardless.
	MaxWarnings int
	// DefaultFeedrate tags moves issued before any F word (mm/min).
	DefaultFeedrate float64
}

type ArcSettings struct {
	// Tolerance is the maximum chord deviation from the true arc (mm).
	Tolerance   float64
	MaxSegments int
}

type LayerSettings struct {
	// ZResolution is the distance below which two Z heights are the same layer.
	ZResolution float64
}

type ColoringSettings struct {
	Parameter     string
	GradientStart [3]uint8
	GradientEnd   [3]uint8
	GradientSteps int
}

type ServerSettings struct {
	Address   string
	GCodeRoot string
}

type LogSettings struct {
	Level  string
	Format string
}

// Default returns the settings used when no configuration file is given.
func Default() Settings {
	return Settings{
		Parser: ParserSettings{
			MaxLineLength:   256,
			MaxWarnings:     1000,
			DefaultFeedrate: 40,
		},
		Arcs: ArcSettings{
			Tolerance:   0.05,
			MaxSegments: 2048,
		},
		Layers: LayerSettings{ZResolution: 0.001},
		Coloring: ColoringSettings{
			Parameter:     "none",
			GradientStart: [3]uint8{0, 0, 255},
			GradientEnd:   [3]uint8{255, 0, 0},
			GradientSteps: 100,
		},
		Server: ServerSettings{
			Address:   "127.0.0.1:7130",
			GCodeRoot: ".",
		},
		Log: LogSettings{Level: "info", Format: "text"},
	}
}

// LoadSettings reads the file at path and overlays it on Default.
func LoadSettings(path string) (Settings, error) {
	cfg, err := Load(path)
	if err != nil {
		return Settings{}, err
	}
	return FromConfig(cfg)
}

// FromConfig overlays cfg on Default. Absent sections and options keep their
// defaults.
func FromConfig(cfg *Config) (Settings, error) {
	s := Default()
	var err error

	p := cfg.SectionOrEmpty("parser")
	if s.Parser.MaxLineLength, err = p.GetIntWithBounds("max_line_length", 0, 1<<20, s.Parser.MaxLineLength); err != nil {
		return s, err
	}
	if s.Parser.MaxWarnings, err = p.GetIntWithBounds("max_warnings", 0, 1<<24, s.Parser.MaxWarnings); err != nil {
		return s, err
	}
	if s.Parser.DefaultFeedrate, err = p.GetFloatWithBounds("default_feedrate",
		FloatBounds{Above: Ptr(0)}, s.Parser.DefaultFeedrate); err != nil {
		return s, err
	}

	a := cfg.SectionOrEmpty("arcs")
	if s.Arcs.Tolerance, err = a.GetFloatWithBounds("tolerance",
		FloatBounds{Above: Ptr(0), MaxVal: Ptr(10)}, s.Arcs.Tolerance); err != nil {
		return s, err
	}
	if s.Arcs.MaxSegments, err = a.GetIntWithBounds("max_segments", 1, 1<<20, s.Arcs.MaxSegments); err != nil {
		return s, err
	}

	l := cfg.SectionOrEmpty("layers")
	if s.Layers.ZResolution, err = l.GetFloatWithBounds("z_resolution",
		FloatBounds{Above: Ptr(0), Below: Ptr(1)}, s.Layers.ZResolution); err != nil {
		return s, err
	}

	c := cfg.SectionOrEmpty("coloring")
	if s.Coloring.Parameter, err = c.GetChoice("parameter",
		[]string{"none", "feedrate", "thickness", "temperature"}, s.Coloring.Parameter); err != nil {
		return s, err
	}
	if s.Coloring.GradientStart, err = getRGB(c, "gradient_start", s.Coloring.GradientStart); err != nil {
		return s, err
	}
	if s.Coloring.GradientEnd, err = getRGB(c, "gradient_end", s.Coloring.GradientEnd); err != nil {
		return s, err
	}
	if s.Coloring.GradientSteps, err = c.GetIntWithBounds("gradient_steps", 2, 4096, s.Coloring.GradientSteps); err != nil {
		return s, err
	}

	srv := cfg.SectionOrEmpty("server")
	if s.Server.Address, err = srv.Get("address", s.Server.Address); err != nil {
		return s, err
	}
	if s.Server.GCodeRoot, err = srv.Get("gcode_root", s.Server.GCodeRoot); err != nil {
		return s, err
	}

	lg := cfg.SectionOrEmpty("log")
	if s.Log.Level, err = lg.GetChoice("level", []string{"debug", "info", "warn", "error"}, s.Log.Level); err != nil {
		return s, err
	}
	if s.Log.Format, err = lg.GetChoice("format", []string{"text", "json"}, s.Log.Format); err != nil {
		return s, err
	}
	return s, nil
}

// getRGB reads an "r, g, b" triple of 0-255 components.
func getRGB(sec *Section, option string, fallback [3]uint8) ([3]uint8, error) {
	vals, err := sec.GetIntList(option, []int{int(fallback[0]), int(fallback[1]), int(fallback[2])})
	if err != nil {
		return fallback, err
	}
	if len(vals) != 3 {
		return fallback, lverrors.ConfigValidationError(sec.Name(), option, "expected three components 'r, g, b'")
	}
	var rgb [3]uint8
	for i, v := range vals {
		if v < 0 || v > 255 {
			return fallback, lverrors.ConfigValidationError(sec.Name(), option, "components must be between 0 and 255")
		}
		rgb[i] = uint8(v)
	}
	return rgb, nil
}
