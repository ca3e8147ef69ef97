package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/poswatch/internal/domain"
	"github.com/vadiminshakov/poswatch/internal/services/history"
	"go.uber.org/zap"
)

const (
	changePollInterval = 2 * time.Second
	heartbeatInterval  = 30 * time.Second
)

// HistoryService answers the read queries served by the API.
type HistoryService interface {
	Overview(ctx context.Context) (history.Overview, error)
	DailyMetrics(ctx context.Context, slug, day string) (domain.DailyMetrics, error)
	Diff(ctx context.Context, changeID int64) (history.ChangeDiff, error)
	DailyLog(ctx context.Context, slug, day string) ([]history.LogEntry, error)
	SuggestSymbols(ctx context.Context, slug, q string, limit int) (history.SymbolSuggestions, error)
	Underlyings(ctx context.Context, slug, underlying string) (history.UnderlyingEvents, error)
	SymbolLifecycle(ctx context.Context, slug, symbol, product string) (history.SymbolLifecycle, error)
	Status(ctx context.Context) (history.Status, error)
	DeleteDay(ctx context.Context, day string) (history.DeleteResult, error)
}

type changeReader interface {
	EventsAfter(seq uint64) ([]domain.ChangeEvent, error)
}

// Server exposes the JSON API, the change stream and Prometheus metrics.
type Server struct {
	Addr    string
	History HistoryService
	Changes changeReader
	Metrics http.Handler
	Logger  *zap.Logger

	pollInterval time.Duration
}

// NewServer creates a new web server instance. changes and metrics may be nil.
func NewServer(addr string, svc HistoryService, changes changeReader, metrics http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		Addr:         addr,
		History:      svc,
		Changes:      changes,
		Metrics:      metrics,
		Logger:       logger,
		pollInterval: changePollInterval,
	}
}

// Handler returns the routing table of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/overview", s.handleOverview)
	mux.HandleFunc("GET /api/profiles/{slug}/metrics/{date}", s.handleDailyMetrics)
	mux.HandleFunc("GET /api/diff/{id}", s.handleDiff)
	mux.HandleFunc("GET /api/daily_log/{slug}/{date}", s.handleDailyLog)
	mux.HandleFunc("GET /api/profile_symbol_suggest/{slug}", s.handleSymbolSuggest)
	mux.HandleFunc("GET /api/profile_all_underlyings/{slug}", s.handleUnderlyings)
	mux.HandleFunc("GET /api/profile_symbol_lifecycle/{slug}", s.handleSymbolLifecycle)
	mux.HandleFunc("GET /api/scraper-status", s.handleStatus)
	mux.HandleFunc("DELETE /api/dates/{date}", s.handleDeleteDay)
	mux.HandleFunc("GET /changes/stream", s.handleChangeStream)
	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics)
	}
	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.Logger.Info("http server listening", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	out, err := s.History.Overview(r.Context())
	s.respond(w, out, err)
}

func (s *Server) handleDailyMetrics(w http.ResponseWriter, r *http.Request) {
	out, err := s.History.DailyMetrics(r.Context(), r.PathValue("slug"), r.PathValue("date"))
	s.respond(w, out, err)
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "change id must be an integer")
		return
	}
	out, err := s.History.Diff(r.Context(), id)
	s.respond(w, out, err)
}

func (s *Server) handleDailyLog(w http.ResponseWriter, r *http.Request) {
	entries, err := s.History.DailyLog(r.Context(), r.PathValue("slug"), r.PathValue("date"))
	s.respond(w, map[string]interface{}{"events": entries}, err)
}

func (s *Server) handleSymbolSuggest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil {
		limit = 0
	}
	out, err := s.History.SuggestSymbols(r.Context(), r.PathValue("slug"), q.Get("q"), limit)
	s.respond(w, out, err)
}

func (s *Server) handleUnderlyings(w http.ResponseWriter, r *http.Request) {
	out, err := s.History.Underlyings(r.Context(), r.PathValue("slug"), r.URL.Query().Get("underlying"))
	s.respond(w, out, err)
}

func (s *Server) handleSymbolLifecycle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out, err := s.History.SymbolLifecycle(r.Context(), r.PathValue("slug"), q.Get("symbol"), q.Get("product"))
	s.respond(w, out, err)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	out, err := s.History.Status(r.Context())
	s.respond(w, out, err)
}

func (s *Server) handleDeleteDay(w http.ResponseWriter, r *http.Request) {
	out, err := s.History.DeleteDay(r.Context(), r.PathValue("date"))
	s.respond(w, out, err)
}

// handleChangeStream streams change events as SSE. Clients resume with the
// Last-Event-ID header or the after query parameter.
func (s *Server) handleChangeStream(w http.ResponseWriter, r *http.Request) {
	if s.Changes == nil {
		s.writeError(w, http.StatusServiceUnavailable, "change feed not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	lastSeq := resumeSeq(r)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(s.pollInterval)
	defer pollTicker.Stop()

	sendChanges := func() error {
		events, err := s.Changes.EventsAfter(lastSeq)
		if err != nil {
			return err
		}
		for _, ev := range events {
			payload, err := json.Marshal(ev)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "id: %d\n", ev.Seq)
			fmt.Fprintf(w, "event: change\n")
			fmt.Fprintf(w, "data: %s\n\n", payload)
			lastSeq = ev.Seq
		}
		flusher.Flush()
		return nil
	}

	if err := sendChanges(); err != nil {
		http.Error(w, "failed to load changes", http.StatusInternalServerError)
		s.Logger.Error("change stream initial load", zap.Error(err))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			if err := sendChanges(); err != nil {
				s.Logger.Warn("change stream poll", zap.Error(err))
			}
		}
	}
}

func resumeSeq(r *http.Request) uint64 {
	for _, v := range []string{r.Header.Get("Last-Event-ID"), r.URL.Query().Get("after")} {
		if v == "" {
			continue
		}
		if seq, err := strconv.ParseUint(v, 10, 64); err == nil {
			return seq
		}
	}
	return 0
}

func (s *Server) respond(w http.ResponseWriter, body interface{}, err error) {
	if err != nil {
		s.writeError(w, statusOf(err), err.Error())
		if statusOf(err) == http.StatusInternalServerError {
			s.Logger.Error("request failed", zap.Error(err))
		}
		return
	}
	s.writeJSON(w, http.StatusOK, body)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, history.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, history.ErrBadDate), errors.Is(err, history.ErrSymbolRequired):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.Logger.Warn("write response", zap.Error(err))
	}
}
