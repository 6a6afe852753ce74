package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"

	"layerview/pkg/coloring"
	"layerview/pkg/loader"
	"layerview/pkg/model"
)

type outputFormat int

const (
	formatText outputFormat = iota
	formatJSON
	formatYAML
)

func parseFormat(s string) (outputFormat, error) {
	switch strings.ToLower(s) {
	case "text", "":
		return formatText, nil
	case "json":
		return formatJSON, nil
	case "yaml", "yml":
		return formatYAML, nil
	}
	return formatText, fmt.Errorf("unknown format %q (want text, json or yaml)", s)
}

// textWarnings is how many warnings the text report lists.
const textWarnings = 20

type reportOptions struct {
	layer     int
	allLayers bool
}

type report struct {
	Source       string          `json:"source" yaml:"source"`
	Info         model.ModelInfo `json:"info" yaml:"info"`
	Bounds       model.Box       `json:"bounds" yaml:"bounds"`
	Coloring     legendReport    `json:"coloring" yaml:"coloring"`
	Layers       []layerReport   `json:"layers,omitempty" yaml:"layers,omitempty"`
	Layer        *layerDetail    `json:"layer,omitempty" yaml:"layer,omitempty"`
	WarningCount int             `json:"warning_count" yaml:"warning_count"`
	Warnings     []warningReport `json:"warnings" yaml:"warnings"`
}

type legendReport struct {
	Parameter string `json:"parameter" yaml:"parameter"`
	Low       string `json:"low,omitempty" yaml:"low,omitempty"`
	Mid       string `json:"mid,omitempty" yaml:"mid,omitempty"`
	High      string `json:"high,omitempty" yaml:"high,omitempty"`
}

type layerReport struct {
	model.LayerInfo `yaml:",inline"`
	Weight          float64 `json:"weight" yaml:"weight"`
	Color           string  `json:"color" yaml:"color"`
}

type layerDetail struct {
	Info     model.LayerInfo `json:"info" yaml:"info"`
	Segments []segmentReport `json:"segments" yaml:"segments"`
}

type segmentReport struct {
	Start       mgl64.Vec3 `json:"start" yaml:"start,flow"`
	End         mgl64.Vec3 `json:"end" yaml:"end,flow"`
	Kind        string     `json:"kind" yaml:"kind"`
	Feedrate    float64    `json:"feedrate" yaml:"feedrate"`
	Temperature float64    `json:"temperature" yaml:"temperature"`
	Extrusion   float64    `json:"extrusion" yaml:"extrusion"`
	Line        int        `json:"line" yaml:"line"`
	Weight      float64    `json:"weight" yaml:"weight"`
	Color       string     `json:"color" yaml:"color"`
}

type warningReport struct {
	Line    int    `json:"line" yaml:"line"`
	Code    string `json:"code" yaml:"code"`
	Message string `json:"message" yaml:"message"`
	Raw     string `json:"raw,omitempty" yaml:"raw,omitempty"`
}

func buildReport(l *loader.Loaded, mapper coloring.Mapper, gradient coloring.Gradient, opts reportOptions) *report {
	m := l.Model
	low, mid, high := mapper.Legend(m)
	rep := &report{
		Source:       l.Source,
		Info:         m.Info(),
		Bounds:       m.Bounds,
		Coloring:     legendReport{Parameter: mapper.Parameter.String(), Low: low, Mid: mid, High: high},
		WarningCount: l.WarningCount,
		Warnings:     make([]warningReport, len(l.Warnings)),
	}
	for i, w := range l.Warnings {
		rep.Warnings[i] = warningReport{Line: w.Line, Code: string(w.Code), Message: w.Message(), Raw: w.Raw}
	}
	if opts.allLayers {
		rep.Layers = make([]layerReport, m.LayerCount())
		for i := range m.Layers {
			info, _ := m.LayerInfo(i)
			weight := mapper.Layer(m, &m.Layers[i])
			rep.Layers[i] = layerReport{LayerInfo: info, Weight: weight, Color: coloring.Hex(gradient.At(weight))}
		}
	}
	if layer, ok := m.Layer(opts.layer); ok {
		info, _ := m.LayerInfo(opts.layer)
		detail := &layerDetail{Info: info, Segments: make([]segmentReport, len(layer.Segments))}
		for i, s := range layer.Segments {
			weight := mapper.Segment(m, layer, s)
			detail.Segments[i] = segmentReport{
				Start:       s.Start,
				End:         s.End,
				Kind:        s.Kind.String(),
				Feedrate:    s.Feedrate,
				Temperature: s.Temperature,
				Extrusion:   s.Extrusion,
				Line:        s.Line,
				Weight:      weight,
				Color:       coloring.Hex(gradient.At(weight)),
			}
		}
		rep.Layer = detail
	}
	return rep
}

func writeReport(w io.Writer, rep *report, format outputFormat) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rep); err != nil {
			return err
		}
		return enc.Close()
	}
	return writeText(w, rep)
}

func writeText(w io.Writer, rep *report) error {
	var sb strings.Builder
	info := rep.Info
	fmt.Fprintf(&sb, "Model: %s\n", rep.Source)
	fmt.Fprintf(&sb, "  Layers:   %s\n", info.TextLayerCount)
	fmt.Fprintf(&sb, "  Size:     %s x %s x %s\n", info.TextWidth, info.TextDepth, info.TextHeight)
	fmt.Fprintf(&sb, "  Segments: %d print, %d travel, %d transitions\n",
		info.Stats.PrintSegments, info.Stats.TravelSegments, info.Stats.Transitions)
	fmt.Fprintf(&sb, "  Filament: %.2fmm\n", info.Stats.Extrusion)
	if info.HasPriming {
		sb.WriteString("  Priming layer present\n")
	}
	if c := rep.Coloring; c.Low != "" {
		fmt.Fprintf(&sb, "  Coloring: %s %s .. %s .. %s\n", c.Parameter, c.Low, c.Mid, c.High)
	}

	if len(rep.Layers) > 0 {
		sb.WriteString("\nLayers:\n")
		for _, l := range rep.Layers {
			writeLayerLine(&sb, l.LayerInfo)
		}
	}
	if d := rep.Layer; d != nil {
		sb.WriteString("\nLayer:\n")
		writeLayerLine(&sb, d.Info)
		for _, s := range d.Segments {
			fmt.Fprintf(&sb, "    %-6s (%.3f, %.3f) -> (%.3f, %.3f)  F%g  line %d  %s\n",
				s.Kind, s.Start.X(), s.Start.Y(), s.End.X(), s.End.Y(), s.Feedrate, s.Line, s.Color)
		}
	}

	if rep.WarningCount > 0 {
		fmt.Fprintf(&sb, "\nWarnings (%d):\n", rep.WarningCount)
		for i, wr := range rep.Warnings {
			if i == textWarnings {
				fmt.Fprintf(&sb, "  ... %d more\n", rep.WarningCount-textWarnings)
				break
			}
			fmt.Fprintf(&sb, "  line %d: [%s] %s\n", wr.Line, wr.Code, wr.Message)
		}
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func writeLayerLine(sb *strings.Builder, l model.LayerInfo) {
	fmt.Fprintf(sb, "  #%-4d Z %-8s thickness %-8s %-12s %-18s %d segments\n",
		l.Number, l.TextZ, l.TextThickness, l.TextTemperature, l.TextFeedrate, l.Segments)
}
