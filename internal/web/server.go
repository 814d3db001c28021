// Package web implements the HTTP control plane: config/template
// inspection and mutation, starting and streaming a run, and serving
// persisted images. Generalized from the teacher's Server
// (internal/web/server.go): same http.Server timeout constants and
// ServeMux method-pattern routing, same graceful-shutdown shape, with the
// teacher's chat/session surface replaced by the run lifecycle this system
// actually exposes.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hurricanerix/imggen/internal/config"
	"github.com/hurricanerix/imggen/internal/events"
	"github.com/hurricanerix/imggen/internal/logging"
	"github.com/hurricanerix/imggen/internal/orchestrator"
	"github.com/hurricanerix/imggen/internal/startup"
)

const (
	// DefaultAddr is the default address the control plane listens on.
	DefaultAddr = "localhost:8080"

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 15 * time.Second
	// WriteTimeout is the maximum duration before timing out writes. SSE
	// handlers disable this per-connection, same as the teacher does.
	WriteTimeout = 15 * time.Second
	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout = 60 * time.Second
	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 30 * time.Second
)

// ErrRunActive is returned by StartRun when a run is already in progress.
var ErrRunActive = errors.New("a run is already active")

// Server provides the HTTP control plane described by the run
// configuration's GET/PUT config and template endpoints, run lifecycle, SSE
// event stream, and image serving.
type Server struct {
	addr   string
	server *http.Server
	logger *logging.Logger

	mu           sync.Mutex
	cfg          *config.RunCfg
	tmpl         *config.TemplateYaml
	bus          *events.Bus
	activeRunID  string
	activeCancel context.CancelFunc

	metrics *metricsCollector
}

// NewServer constructs a Server bound to addr (DefaultAddr if empty),
// initialized with cfg and tmpl as the current config/template.
func NewServer(addr string, cfg *config.RunCfg, tmpl *config.TemplateYaml, logger *logging.Logger) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	s := &Server{
		addr:    addr,
		logger:  logger,
		cfg:     cfg,
		tmpl:    tmpl,
		bus:     events.NewBus(0),
		metrics: newMetricsCollector(),
	}

	go s.metrics.watch(s.bus)

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  ReadTimeout,
		WriteTimeout: WriteTimeout,
		IdleTimeout:  IdleTimeout,
	}
	return s
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /config", s.handleConfigGet)
	mux.HandleFunc("PUT /config", s.handleConfigPut)
	mux.HandleFunc("GET /template", s.handleTemplateGet)
	mux.HandleFunc("PUT /template", s.handleTemplatePut)
	mux.HandleFunc("POST /run", s.handleRunStart)
	mux.HandleFunc("GET /run/{id}/events", s.handleRunEvents)
	mux.HandleFunc("GET /images", s.handleImages)
	mux.HandleFunc("GET /images/{name}", s.handleImage)
	mux.Handle("GET /metrics", s.metrics.handler())
}

// ListenAndServe starts the HTTP server and blocks until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		s.bus.Close()
		return nil
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

func (s *Server) log(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Info(format, args...)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleConfigGet(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleConfigPut(w http.ResponseWriter, r *http.Request) {
	var cfg config.RunCfg
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid config JSON: "+err.Error())
		return
	}
	if err := cfg.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	s.cfg = &cfg
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, &cfg)
}

func (s *Server) handleTemplateGet(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	tmpl := s.tmpl
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, tmpl)
}

func (s *Server) handleTemplatePut(w http.ResponseWriter, r *http.Request) {
	var tmpl config.TemplateYaml
	if err := json.NewDecoder(r.Body).Decode(&tmpl); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid template JSON: "+err.Error())
		return
	}
	if err := tmpl.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	s.tmpl = &tmpl
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, &tmpl)
}

// handleRunStart starts a new run if none is active, or responds 409
// Conflict naming the currently active run_id (scenario S6).
func (s *Server) handleRunStart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.activeRunID != "" {
		activeID := s.activeRunID
		s.mu.Unlock()
		writeJSONError(w, http.StatusConflict, fmt.Sprintf("run %s is already active", activeID))
		return
	}

	cfg := s.cfg
	tmpl := s.tmpl
	runID := uuid.NewString()

	ctx, cancel := context.WithCancel(context.Background())
	s.activeRunID = runID
	s.activeCancel = cancel
	s.mu.Unlock()

	o, err := startup.BuildOrchestrator(cfg, tmpl, runID, cfg.OutDir, false, s.bus, s.logger)
	if err != nil {
		s.mu.Lock()
		s.activeRunID = ""
		s.activeCancel = nil
		s.mu.Unlock()
		cancel()
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	go s.runAndClear(ctx, cancel, runID, o)

	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (s *Server) runAndClear(ctx context.Context, cancel context.CancelFunc, runID string, o *orchestrator.Orchestrator) {
	defer cancel()
	if err := o.Run(ctx); err != nil {
		s.log("run %s failed: %v", runID, err)
	}
	s.mu.Lock()
	if s.activeRunID == runID {
		s.activeRunID = ""
		s.activeCancel = nil
	}
	s.mu.Unlock()
}

// handleRunEvents streams the event bus as server-sent events, filtered to
// the run_id named in the path.
func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ch, cancel := s.bus.Subscribe()
	defer cancel()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.RunID != runID {
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
			flusher.Flush()
			if ev.Kind == events.KindFinished || ev.Kind == events.KindFailed {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
