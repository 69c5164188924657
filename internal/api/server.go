// Package api exposes the composer session to the console over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"examdesk/internal/composer"
	"examdesk/internal/journal"
)

// HistoryReader lists journaled submissions and deletions.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

// ReadyCheck is one dependency checked by /readyz.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HTTPServer serves the console API.
type HTTPServer struct {
	server  *http.Server
	session *composer.Session
	history HistoryReader
	checks  []ReadyCheck
	logger  *zerolog.Logger
}

// NewHTTPServer builds the server. history may be nil when the journal is disabled.
func NewHTTPServer(addr string, session *composer.Session, history HistoryReader, checks []ReadyCheck, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	s := &HTTPServer{
		session: session,
		history: history,
		checks:  checks,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/session", s.handleSession)
	mux.HandleFunc("PUT /api/session/selection", s.handleSelection)
	mux.HandleFunc("POST /api/session/reload", s.handleReload)

	mux.HandleFunc("GET /api/drafts", s.handleDrafts)
	mux.HandleFunc("PATCH /api/drafts/{subjectID}", s.handleDraftField)

	mux.HandleFunc("POST /api/submissions", s.handleRequestSubmission)
	mux.HandleFunc("POST /api/submissions/{id}/confirm", s.handleConfirmSubmission)
	mux.HandleFunc("DELETE /api/submissions/{id}", s.handleDiscardSubmission)

	mux.HandleFunc("GET /api/schedules", s.handleSchedules)
	mux.HandleFunc("GET /api/schedules/blocks", s.handleBlocks)
	mux.HandleFunc("DELETE /api/schedules/{id}", s.handleDeleteSchedule)

	mux.HandleFunc("GET /print/schedule", s.handlePrint)
	mux.HandleFunc("GET /export/schedule.xlsx", s.handleExport)

	mux.HandleFunc("GET /api/notices", s.handleNotices)
	mux.HandleFunc("GET /api/history", s.handleHistory)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routed handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown is called.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("console API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	for _, c := range s.checks {
		if err := c.Check(ctx); err != nil {
			s.logger.Warn().Err(err).Str("check", c.Name).Msg("readiness check failed")
			http.Error(w, c.Name+" not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}
