package model

import (
	"math"
	"strconv"
)

// Unit suffixes used in the text fields of info records.
const (
	UnitMM       = "mm"
	UnitMMPerMin = "mm/min"
	UnitCelsius  = "°C"
)

// ModelInfo is the summary shown for a loaded model.
type ModelInfo struct {
	LayerCount int     `json:"layer_count" yaml:"layer_count"`
	Width      float64 `json:"width" yaml:"width"`
	Depth      float64 `json:"depth" yaml:"depth"`
	Height     float64 `json:"height" yaml:"height"`
	HasPriming bool    `json:"has_priming" yaml:"has_priming"`
	Stats      Stats   `json:"stats" yaml:"stats"`

	TextLayerCount string `json:"text_layer_count" yaml:"text_layer_count"`
	TextWidth      string `json:"text_width" yaml:"text_width"`
	TextDepth      string `json:"text_depth" yaml:"text_depth"`
	TextHeight     string `json:"text_height" yaml:"text_height"`
}

// LayerInfo is the summary shown for one layer.
type LayerInfo struct {
	Number      int     `json:"number" yaml:"number"`
	Z           float64 `json:"z" yaml:"z"`
	Thickness   float64 `json:"thickness" yaml:"thickness"`
	Temperature Range   `json:"temperature" yaml:"temperature"`
	Feedrate    Range   `json:"feedrate" yaml:"feedrate"`
	Segments    int     `json:"segments" yaml:"segments"`

	TextZ           string `json:"text_z" yaml:"text_z"`
	TextThickness   string `json:"text_thickness" yaml:"text_thickness"`
	TextTemperature string `json:"text_temperature" yaml:"text_temperature"`
	TextFeedrate    string `json:"text_feedrate" yaml:"text_feedrate"`
}

// Info returns the model summary. Width, depth and height are the X, Y and Z
// extents of the bounding box.
func (m *Model) Info() ModelInfo {
	size := m.Bounds.Size()
	return ModelInfo{
		LayerCount:     len(m.Layers),
		Width:          size.X(),
		Depth:          size.Y(),
		Height:         size.Z(),
		HasPriming:     m.Priming != nil,
		Stats:          m.Stats,
		TextLayerCount: strconv.Itoa(len(m.Layers)),
		TextWidth:      formatRounded(size.X()) + UnitMM,
		TextDepth:      formatRounded(size.Y()) + UnitMM,
		TextHeight:     formatRounded(size.Z()) + UnitMM,
	}
}

// LayerInfo returns the summary of layer i.
func (m *Model) LayerInfo(i int) (LayerInfo, bool) {
	l, ok := m.Layer(i)
	if !ok {
		return LayerInfo{}, false
	}
	return LayerInfo{
		Number:          l.Index,
		Z:               l.Z,
		Thickness:       l.Thickness,
		Temperature:     l.Temperature,
		Feedrate:        l.Feedrate,
		Segments:        len(l.Segments),
		TextZ:           formatRounded(l.Z) + UnitMM,
		TextThickness:   formatRounded(l.Thickness) + UnitMM,
		TextTemperature: formatRange(l.Temperature, UnitCelsius),
		TextFeedrate:    formatRange(l.Feedrate, UnitMMPerMin),
	}, true
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func formatRounded(v float64) string {
	return strconv.FormatFloat(round2(v), 'f', -1, 64)
}

// formatRange renders "min-max" plus unit, collapsing to one value when both
// ends round to the same text.
func formatRange(r Range, unit string) string {
	if r.IsEmpty() {
		return ""
	}
	lo, hi := formatRounded(r.Min), formatRounded(r.Max)
	if lo == hi {
		return lo + unit
	}
	return lo + "-" + hi + unit
}
