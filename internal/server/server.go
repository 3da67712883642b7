// Package server exposes the local HTTP API: notification ingest, rule and
// log management, preferences, the speaking gate and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hammamikhairi/smartnotifier/internal/app"
	"github.com/hammamikhairi/smartnotifier/internal/domain"
	"github.com/hammamikhairi/smartnotifier/internal/gate"
	"github.com/hammamikhairi/smartnotifier/internal/listener"
	"github.com/hammamikhairi/smartnotifier/internal/logger"
	"github.com/hammamikhairi/smartnotifier/internal/metrics"
)

// Ingest is the listener side the server needs. *listener.Listener
// implements it.
type Ingest interface {
	Post(n domain.Notification) error
	Subscribe() (<-chan struct{}, func())
}

// Server routes HTTP requests to the application.
type Server struct {
	app      *app.App
	ingest   Ingest
	gate     *gate.Gate
	log      *logger.Logger
	mux      *http.ServeMux
	upgrader websocket.Upgrader

	closing   chan struct{} // closed on shutdown, ends log streams
	closeOnce sync.Once
}

// New builds the server and its routes.
func New(a *app.App, ingest Ingest, g *gate.Gate, log *logger.Logger) *Server {
	s := &Server{
		app:     a,
		ingest:  ingest,
		gate:    g,
		log:     log,
		mux:     http.NewServeMux(),
		closing: make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /v1/notifications", s.handlePostNotification)

	s.mux.HandleFunc("GET /v1/logs", s.handleListLogs)
	s.mux.HandleFunc("GET /v1/logs/stream", s.handleLogStream)
	s.mux.HandleFunc("POST /v1/logs/{id}/rule", s.handleRuleFromLog)

	s.mux.HandleFunc("GET /v1/rules", s.handleListRules)
	s.mux.HandleFunc("POST /v1/rules", s.handleAddRule)
	s.mux.HandleFunc("GET /v1/rules/{id}", s.handleGetRule)
	s.mux.HandleFunc("PUT /v1/rules/{id}", s.handleUpdateRule)
	s.mux.HandleFunc("DELETE /v1/rules/{id}", s.handleDeleteRule)
	s.mux.HandleFunc("PUT /v1/rules/{id}/enabled", s.handleSetEnabled)
	s.mux.HandleFunc("POST /v1/rules/{id}/duplicate", s.handleDuplicateRule)

	s.mux.HandleFunc("GET /v1/prefs", s.handleGetPrefs)
	s.mux.HandleFunc("PUT /v1/prefs", s.handlePutPrefs)
	s.mux.HandleFunc("GET /v1/gate", s.handleGetGate)
	s.mux.HandleFunc("PUT /v1/gate", s.handlePutGate)
	s.mux.HandleFunc("POST /v1/check", s.handleCheck)

	s.mux.Handle("GET /metrics", metrics.PromHandler())
	s.mux.Handle("GET /v1/stats", metrics.JSONHandler())
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http: listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info("http: stopped")
	return nil
}

// Close ends open log streams. Hijacked websocket connections are not
// tracked by http.Server.Shutdown.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.closing) })
}

// ── helpers ──────────────────────────────────────────────────────

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateRule), errors.Is(err, domain.ErrTooManySameNames):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidRule), errors.Is(err, domain.ErrBlankTitle),
		errors.Is(err, domain.ErrInvalidNotification),
		errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, listener.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.log.Error("http: %v", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

var errBadRequest = errors.New("bad request")

type badRequest struct{ msg string }

func (e badRequest) Error() string        { return e.msg }
func (e badRequest) Is(target error) bool { return target == errBadRequest }

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest{msg: "invalid body: " + err.Error()}
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest{msg: "invalid id " + strconv.Quote(r.PathValue("id"))}
	}
	return id, nil
}
