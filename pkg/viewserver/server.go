// Package viewserver serves loaded models to viewer frontends over HTTP and
// pushes load notifications over a JSON-RPC websocket.
package viewserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"layerview/pkg/coloring"
	lverrors "layerview/pkg/errors"
	"layerview/pkg/files"
	"layerview/pkg/loader"
	"layerview/pkg/log"
	"layerview/pkg/metrics"
)

// Config holds server configuration.
type Config struct {
	// Addr is the listen address, e.g. "127.0.0.1:7130".
	Addr string

	Loader   *loader.Service
	Files    *files.Manager
	Registry *metrics.Registry

	// Coloring is the initial coloring selection and gradient.
	Coloring coloring.Mapper
	Gradient coloring.Gradient
}

// Server exposes the loader's current model.
type Server struct {
	addr     string
	loader   *loader.Service
	files    *files.Manager
	registry *metrics.Registry
	gradient coloring.Gradient
	log      *log.Logger

	// mapper is the coloring selection. It outlives individual models.
	mapperMu sync.RWMutex
	mapper   coloring.Mapper

	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	wsClients  map[int64]*wsClient
	wsClientMu sync.RWMutex
	nextWSID   atomic.Int64

	unsubscribe func()
	startTime   time.Time
	running     atomic.Bool
}

// New creates a server. Files and Registry may be nil, in which case the
// corresponding endpoints report 404.
func New(cfg Config) *Server {
	s := &Server{
		addr:      cfg.Addr,
		loader:    cfg.Loader,
		files:     cfg.Files,
		registry:  cfg.Registry,
		gradient:  cfg.Gradient,
		mapper:    cfg.Coloring,
		log:       log.GetLogger("viewserver"),
		wsClients: make(map[int64]*wsClient),
		startTime: time.Now(),
	}
	if s.gradient.Steps == 0 {
		s.gradient = coloring.DefaultGradient()
	}
	s.wsUpgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	events, unsubscribe := s.loader.Subscribe(256)
	s.unsubscribe = unsubscribe
	go s.forwardEvents(events)
	return s
}

// Handler returns the HTTP handler with every endpoint registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /server/info", s.handleServerInfo)

	mux.HandleFunc("POST /model/load", s.handleLoad)
	mux.HandleFunc("DELETE /model", s.handleClear)
	mux.HandleFunc("GET /model/info", s.handleModelInfo)
	mux.HandleFunc("GET /model/warnings", s.handleWarnings)
	mux.HandleFunc("GET /model/layers", s.handleLayers)
	mux.HandleFunc("GET /model/layers/{index}", s.handleLayer)
	mux.HandleFunc("GET /model/history", s.handleHistory)
	mux.HandleFunc("GET /model/history/totals", s.handleHistoryTotals)
	mux.HandleFunc("DELETE /model/history", s.handleHistoryReset)

	mux.HandleFunc("GET /coloring", s.handleGetColoring)
	mux.HandleFunc("POST /coloring", s.handleSetColoring)

	mux.HandleFunc("GET /files", s.handleFileList)
	mux.HandleFunc("GET /files/gcode", s.handleGCodeFiles)
	mux.HandleFunc("GET /files/metadata", s.handleFileMetadata)

	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("/websocket", s.handleWebSocket)

	return corsMiddleware(mux)
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.running.Store(true)
	s.log.Info("listening on %s", ln.Addr())

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.Serve(ln) }()

	select {
	case err := <-errCh:
		s.running.Store(false)
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Stop()
	err := s.httpServer.Shutdown(shutdownCtx)
	if e := <-errCh; !errors.Is(e, http.ErrServerClosed) && err == nil {
		err = e
	}
	return err
}

// Stop disconnects websocket clients and detaches from the loader.
func (s *Server) Stop() {
	s.running.Store(false)
	s.unsubscribe()

	s.wsClientMu.Lock()
	for _, c := range s.wsClients {
		c.Close()
	}
	s.wsClients = make(map[int64]*wsClient)
	s.wsClientMu.Unlock()
}

// Mapper returns the current coloring selection.
func (s *Server) Mapper() coloring.Mapper {
	s.mapperMu.RLock()
	defer s.mapperMu.RUnlock()
	return s.mapper
}

// SetColoring changes the coloring selection and notifies websocket clients.
func (s *Server) SetColoring(p coloring.Parameter) {
	s.mapperMu.Lock()
	s.mapper.Parameter = p
	s.mapperMu.Unlock()
	s.broadcast("notify_coloring_changed", map[string]any{"parameter": p.String()})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// JSON response helpers. Successful responses are wrapped in "result".

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeResult(w http.ResponseWriter, result any) {
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

type errorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": errorBody{
		Code:    status,
		Type:    string(lverrors.CodeOf(err)),
		Message: err.Error(),
	}})
}

// statusFor maps an error code to an HTTP status.
func statusFor(err error) int {
	switch code := lverrors.CodeOf(err); {
	case code == lverrors.ErrFilePath, lverrors.IsConfig(err):
		return http.StatusBadRequest
	case code == lverrors.ErrIORead, code == lverrors.ErrNoModel:
		return http.StatusNotFound
	case code == lverrors.ErrModelEmpty:
		return http.StatusUnprocessableEntity
	case code == lverrors.ErrLoadCancelled:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
