// Package server serves the simulation panel over HTTP: an HTML page, a JSON
// control API, a websocket stream of notifications and Prometheus metrics.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nvandessel/usersim/internal/notify"
	"github.com/nvandessel/usersim/internal/panel"
	"github.com/nvandessel/usersim/internal/ratelimit"
)

// DefaultNotificationLimit caps /api/notifications when no limit is given.
const DefaultNotificationLimit = 20

// NotificationLister returns stored notifications, newest first.
type NotificationLister interface {
	Recent(ctx context.Context, limit int) ([]notify.Record, error)
}

// Options configures a Server. Panel is required.
type Options struct {
	Panel *panel.Panel

	// Inbox backs /api/notifications. Optional.
	Inbox NotificationLister

	// Hub serves /ws and receives view updates. Optional.
	Hub *notify.Hub

	// Metrics serves /metrics. Optional.
	Metrics http.Handler

	// Limiter throttles control requests per route. Optional.
	Limiter *ratelimit.Limiter

	// Addr to listen on. Empty picks a free localhost port.
	Addr string

	Logger *slog.Logger
}

// Server serves the panel page and handles control API requests.
type Server struct {
	panel   *panel.Panel
	inbox   NotificationLister
	hub     *notify.Hub
	metrics http.Handler
	limiter *ratelimit.Limiter
	logger  *slog.Logger
	tmpl    *template.Template

	listenAddr string
	mu         sync.Mutex
	addr       string
}

// New creates a panel server.
func New(opts Options) (*Server, error) {
	tmpl, err := template.ParseFS(templates, "templates/panel.html")
	if err != nil {
		return nil, fmt.Errorf("parsing panel template: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		panel:      opts.Panel,
		inbox:      opts.Inbox,
		hub:        opts.Hub,
		metrics:    opts.Metrics,
		limiter:    opts.Limiter,
		logger:     logger,
		tmpl:       tmpl,
		listenAddr: opts.Addr,
	}, nil
}

// Addr returns the address the server is listening on (e.g., "localhost:PORT").
// Returns empty string if the server hasn't started yet.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// URL returns the panel's base URL, or "" before the server starts.
func (s *Server) URL() string {
	addr := s.Addr()
	if addr == "" {
		return ""
	}
	return "http://" + addr
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("POST /api/load", s.limited(s.handleLoad))
	mux.HandleFunc("POST /api/target", s.limited(s.handleTarget))
	mux.HandleFunc("POST /api/percent", s.limited(s.handlePercent))
	mux.HandleFunc("POST /api/start", s.limited(s.handleStart))
	mux.HandleFunc("POST /api/stop", s.limited(s.handleStop))
	mux.HandleFunc("POST /api/toggle", s.limited(s.handleToggle))
	mux.HandleFunc("POST /api/step", s.limited(s.handleStep))
	mux.HandleFunc("GET /api/notifications", s.handleNotifications)
	if s.hub != nil {
		mux.Handle("GET /ws", s.hub)
	}
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

// ListenAndServe starts the HTTP server and blocks until the context is
// cancelled. Returns nil on clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	listenAddr := s.listenAddr
	if listenAddr == "" {
		// Let the OS pick a free port.
		listenAddr = "localhost:0"
	}
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	httpServer := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	s.logger.Info("panel server listening", "url", s.URL())

	// Graceful shutdown when context is cancelled.
	go func() {
		<-ctx.Done()
		if s.hub != nil {
			s.hub.Close()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	err = httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// limited rejects requests with 429 once the route's bucket is empty.
func (s *Server) limited(h http.HandlerFunc) http.HandlerFunc {
	if s.limiter == nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if !s.limiter.Allow(key) {
			if wait := s.limiter.RetryAfter(key); wait > 0 {
				secs := int((wait + time.Second - 1) / time.Second)
				w.Header().Set("Retry-After", strconv.Itoa(secs))
			}
			s.writeError(w, http.StatusTooManyRequests, fmt.Errorf("rate limit exceeded for %s", key))
			return
		}
		h(w, r)
	}
}

type indexData struct {
	View          panel.View
	Notifications []notify.Record
	WebSocket     bool
}

// handleIndex renders the panel page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := indexData{View: s.panel.View(), WebSocket: s.hub != nil}
	if s.inbox != nil {
		records, err := s.inbox.Recent(r.Context(), DefaultNotificationLimit)
		if err != nil {
			s.logger.Warn("reading notifications failed", "error", err)
		}
		data.Notifications = records
	}

	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, data); err != nil {
		http.Error(w, "render error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.panel.View())
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	if err := s.panel.Load(r.Context()); err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.respondView(w)
}

type targetRequest struct {
	Count *int `json:"count"`
}

func (s *Server) handleTarget(w http.ResponseWriter, r *http.Request) {
	var req targetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Count == nil {
		s.writeError(w, http.StatusBadRequest, errors.New(`expected {"count": <integer>}`))
		return
	}
	s.panel.SetTargetActiveUsers(*req.Count)
	s.respondView(w)
}

// percentRequest carries raw operator text. Malformed text is accepted and
// stored as NaN.
type percentRequest struct {
	Percent json.RawMessage `json:"percent"`
}

func (s *Server) handlePercent(w http.ResponseWriter, r *http.Request) {
	var req percentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Percent == nil {
		s.writeError(w, http.StatusBadRequest, errors.New(`expected {"percent": <text or number>}`))
		return
	}
	s.panel.SetChangePercentText(percentText(req.Percent))
	s.respondView(w)
}

// percentText accepts both "12.5" and 12.5.
func percentText(raw json.RawMessage) string {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	return string(raw)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if !s.panel.Start() {
		st := s.panel.State()
		if !st.Simulating {
			err := st.StartErr()
			if err == nil {
				err = panel.ErrClosed
			}
			s.writeError(w, http.StatusConflict, err)
			return
		}
	}
	s.respondView(w)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.panel.Stop()
	s.respondView(w)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	before := s.panel.State()
	if before.ToggleDisabled() {
		s.writeError(w, http.StatusConflict, panel.ErrNoTarget)
		return
	}
	if !s.panel.Toggle() && !before.Simulating {
		s.writeError(w, http.StatusConflict, panel.ErrClosed)
		return
	}
	s.respondView(w)
}

type stepResponse struct {
	Notification panel.Notification `json:"notification"`
	View         panel.View         `json:"view"`
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	n, err := s.panel.Step(r.Context())
	if err != nil {
		s.writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, stepResponse{Notification: n, View: s.panel.View()})
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	limit := DefaultNotificationLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit: %q", v))
			return
		}
		limit = n
	}

	records := []notify.Record{}
	if s.inbox != nil {
		got, err := s.inbox.Recent(r.Context(), limit)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
		if got != nil {
			records = got
		}
	}
	writeJSON(w, http.StatusOK, records)
}

// respondView writes the current view and pushes it to websocket clients.
func (s *Server) respondView(w http.ResponseWriter) {
	v := s.panel.View()
	if s.hub != nil {
		s.hub.Publish("view", v)
	}
	writeJSON(w, http.StatusOK, v)
}

type errorResponse struct {
	Error string     `json:"error"`
	View  panel.View `json:"view"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Debug("panel request failed", "status", status, "error", err)
	writeJSON(w, status, errorResponse{Error: err.Error(), View: s.panel.View()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
