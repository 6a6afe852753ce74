package viewserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"layerview/pkg/coloring"
	lverrors "layerview/pkg/errors"
	"layerview/pkg/loader"
	"layerview/pkg/model"
	"layerview/pkg/parse"
)

// maxWarningsInResponse bounds the warnings embedded in a load response.
const maxWarningsInResponse = 100

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"model_loaded": s.loader.Current() != nil,
	})
}

func (s *Server) handleServerInfo(w http.ResponseWriter, r *http.Request) {
	writeResult(w, s.serverInfo())
}

func (s *Server) serverInfo() map[string]any {
	hostname, _ := os.Hostname()
	s.wsClientMu.RLock()
	clients := len(s.wsClients)
	s.wsClientMu.RUnlock()
	info := map[string]any{
		"hostname":        hostname,
		"uptime":          time.Since(s.startTime).Seconds(),
		"websocket_count": clients,
		"coloring":        s.Mapper().Parameter.String(),
		"model_loaded":    false,
	}
	if cur := s.loader.Current(); cur != nil {
		info["model_loaded"] = true
		info["source"] = cur.Source
		info["generation"] = cur.Generation
	}
	return info
}

type loadRequest struct {
	Path string `json:"path"`
	// Async returns immediately; the outcome arrives as websocket events.
	Async bool `json:"async"`
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	var req loadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("body must be {\"path\": <file>}"))
		return
	}
	if s.files == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("no G-code root configured"))
		return
	}
	full, err := s.files.ResolveFile(req.Path)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if req.Async {
		gen := s.loader.LoadAsync(full)
		writeJSON(w, http.StatusAccepted, map[string]any{"result": map[string]any{"generation": gen}})
		return
	}
	loaded, err := s.loader.Load(r.Context(), full)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeResult(w, s.modelSummary(loaded))
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.loader.Clear()
	writeResult(w, map[string]any{})
}

// current returns the published model or writes a 404.
func (s *Server) current(w http.ResponseWriter) *loader.Loaded {
	cur := s.loader.Current()
	if cur == nil {
		err := lverrors.NoModelError()
		writeError(w, statusFor(err), err)
	}
	return cur
}

type modelSummary struct {
	Source       string          `json:"source"`
	Generation   uint64          `json:"generation"`
	LoadedAt     time.Time       `json:"loaded_at"`
	DurationMS   int64           `json:"duration_ms"`
	Info         model.ModelInfo `json:"info"`
	Bounds       model.Box       `json:"bounds"`
	WarningCount int             `json:"warning_count"`
	Warnings     []warningView   `json:"warnings"`
	Coloring     legendView      `json:"coloring"`
}

type warningView struct {
	Line    int    `json:"line"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Raw     string `json:"raw,omitempty"`
}

type legendView struct {
	Parameter string `json:"parameter"`
	Low       string `json:"low,omitempty"`
	Mid       string `json:"mid,omitempty"`
	High      string `json:"high,omitempty"`
	LowColor  string `json:"low_color"`
	HighColor string `json:"high_color"`
}

func warningViews(ws []parse.Warning, limit int) []warningView {
	if limit > 0 && len(ws) > limit {
		ws = ws[:limit]
	}
	out := make([]warningView, len(ws))
	for i, w := range ws {
		out[i] = warningView{Line: w.Line, Code: string(w.Code), Message: w.Message(), Raw: w.Raw}
	}
	return out
}

func (s *Server) legend(m *model.Model, mapper coloring.Mapper) legendView {
	low, mid, high := mapper.Legend(m)
	return legendView{
		Parameter: mapper.Parameter.String(),
		Low:       low,
		Mid:       mid,
		High:      high,
		LowColor:  coloring.Hex(s.gradient.At(0)),
		HighColor: coloring.Hex(s.gradient.At(1)),
	}
}

func (s *Server) modelSummary(l *loader.Loaded) modelSummary {
	return modelSummary{
		Source:       l.Source,
		Generation:   l.Generation,
		LoadedAt:     l.LoadedAt,
		DurationMS:   l.Duration.Milliseconds(),
		Info:         l.Model.Info(),
		Bounds:       l.Model.Bounds,
		WarningCount: l.WarningCount,
		Warnings:     warningViews(l.Warnings, maxWarningsInResponse),
		Coloring:     s.legend(l.Model, s.Mapper()),
	}
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	if cur := s.current(w); cur != nil {
		writeResult(w, s.modelSummary(cur))
	}
}

func (s *Server) handleWarnings(w http.ResponseWriter, r *http.Request) {
	cur := s.current(w)
	if cur == nil {
		return
	}
	writeResult(w, map[string]any{
		"count":    cur.WarningCount,
		"warnings": warningViews(cur.Warnings, 0),
	})
}

// mapperFor returns the server's mapper, overridden by ?coloring=.
func (s *Server) mapperFor(r *http.Request) (coloring.Mapper, error) {
	m := s.Mapper()
	if v := r.URL.Query().Get("coloring"); v != "" {
		p, err := coloring.ParseParameter(v)
		if err != nil {
			return m, err
		}
		m.Parameter = p
	}
	return m, nil
}

type layerView struct {
	model.LayerInfo
	Weight float64 `json:"weight"`
	Color  string  `json:"color"`
}

func (s *Server) handleLayers(w http.ResponseWriter, r *http.Request) {
	mapper, err := s.mapperFor(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cur := s.current(w)
	if cur == nil {
		return
	}
	m := cur.Model
	out := make([]layerView, m.LayerCount())
	for i := range m.Layers {
		info, _ := m.LayerInfo(i)
		weight := mapper.Layer(m, &m.Layers[i])
		out[i] = layerView{LayerInfo: info, Weight: weight, Color: coloring.Hex(s.gradient.At(weight))}
	}
	writeResult(w, map[string]any{
		"layers":   out,
		"coloring": s.legend(m, mapper),
	})
}

type segmentView struct {
	Start       mgl64.Vec3 `json:"start"`
	End         mgl64.Vec3 `json:"end"`
	Kind        string     `json:"kind"`
	Feedrate    float64    `json:"feedrate"`
	Temperature float64    `json:"temperature"`
	Extrusion   float64    `json:"extrusion"`
	Line        int        `json:"line"`
	Weight      float64    `json:"weight"`
	Color       string     `json:"color"`
}

// handleLayer returns the segments of one layer with color weights. The
// index "priming" selects the priming layer.
func (s *Server) handleLayer(w http.ResponseWriter, r *http.Request) {
	mapper, err := s.mapperFor(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cur := s.current(w)
	if cur == nil {
		return
	}
	m := cur.Model

	var layer *model.Layer
	idx := r.PathValue("index")
	if idx == "priming" {
		layer = m.Priming
	} else if i, err := strconv.Atoi(idx); err == nil {
		layer, _ = m.Layer(i)
	}
	if layer == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("no layer %q (model has %d layers)", idx, m.LayerCount()))
		return
	}

	segs := make([]segmentView, len(layer.Segments))
	for i, seg := range layer.Segments {
		weight := mapper.Segment(m, layer, seg)
		segs[i] = segmentView{
			Start:       seg.Start,
			End:         seg.End,
			Kind:        seg.Kind.String(),
			Feedrate:    seg.Feedrate,
			Temperature: seg.Temperature,
			Extrusion:   seg.Extrusion,
			Line:        seg.Line,
			Weight:      weight,
			Color:       coloring.Hex(s.gradient.At(weight)),
		}
	}
	result := map[string]any{
		"index":     layer.Index,
		"z":         layer.Z,
		"thickness": layer.Thickness,
		"segments":  segs,
	}
	if info, ok := m.LayerInfo(layer.Index); ok {
		result["info"] = info
	}
	writeResult(w, result)
}

// handleHistory lists recent load attempts. Query parameters: limit, start
// and order ("asc" or "desc").
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	start, err := intParam(q.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	h := s.loader.History()
	writeResult(w, map[string]any{
		"count": h.Len(),
		"loads": h.List(limit, start, q.Get("order")),
	})
}

func (s *Server) handleHistoryTotals(w http.ResponseWriter, r *http.Request) {
	writeResult(w, map[string]any{"totals": s.loader.History().Totals()})
}

func (s *Server) handleHistoryReset(w http.ResponseWriter, r *http.Request) {
	s.loader.History().Reset()
	writeResult(w, "ok")
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid number %q", v)
	}
	return n, nil
}

func (s *Server) handleGetColoring(w http.ResponseWriter, r *http.Request) {
	result := map[string]any{"parameter": s.Mapper().Parameter.String()}
	if cur := s.loader.Current(); cur != nil {
		result["legend"] = s.legend(cur.Model, s.Mapper())
	}
	writeResult(w, result)
}

func (s *Server) handleSetColoring(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Parameter string `json:"parameter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p, err := coloring.ParseParameter(req.Parameter)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.SetColoring(p)
	writeResult(w, map[string]any{"parameter": p.String()})
}

func (s *Server) handleFileList(w http.ResponseWriter, r *http.Request) {
	if s.files == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("no G-code root configured"))
		return
	}
	files, dirs, err := s.files.List(r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeResult(w, map[string]any{"files": files, "dirs": dirs})
}

func (s *Server) handleGCodeFiles(w http.ResponseWriter, r *http.Request) {
	if s.files == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("no G-code root configured"))
		return
	}
	files, err := s.files.GCodeFiles()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeResult(w, files)
}

func (s *Server) handleFileMetadata(w http.ResponseWriter, r *http.Request) {
	if s.files == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("no G-code root configured"))
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing 'path' parameter"))
		return
	}
	meta, err := s.files.Metadata(path)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeResult(w, meta)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.Write([]byte(s.registry.Gather()))
}
