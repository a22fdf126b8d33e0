package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/crash-risk-service/internal/domain"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PredictionService is the orchestrator surface the HTTP layer serves.
type PredictionService interface {
	sharedobs.ReadinessChecker
	GetPredictions(ctx context.Context, date string) ([]domain.Prediction, error)
	Invalidate(ctx context.Context, date string) error
}

// Server exposes the predictions API plus health, readiness, and metrics
// endpoints.
type Server struct {
	httpServer *http.Server
	svc        PredictionService
	logger     *slog.Logger
}

type predictionsResponse struct {
	Date        string              `json:"date"`
	Count       int                 `json:"count"`
	Predictions []domain.Prediction `json:"predictions"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewServer creates an HTTP server. writeTimeout bounds a whole request and
// should exceed the scorer timeout so a cold date can still be served.
func NewServer(addr string, svc PredictionService, writeTimeout time.Duration, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: writeTimeout,
			IdleTimeout:  60 * time.Second,
		},
		svc:    svc,
		logger: logger,
	}

	mux.HandleFunc("GET /api/predictions", s.handleGetPredictions)
	mux.HandleFunc("DELETE /api/predictions", s.handleInvalidate)
	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(svc))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleGetPredictions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date := q.Get("date")
	preds, err := s.svc.GetPredictions(r.Context(), date)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// The orchestrator has already validated the date, so this cannot fail.
	canonical, _ := domain.CanonicalDate(date)

	if strings.EqualFold(q.Get("format"), "csv") {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="predictions_`+canonical+`.csv"`)
		w.WriteHeader(http.StatusOK)
		if err := domain.EncodePredictionsCSV(w, preds); err != nil {
			s.logger.Warn("write csv response failed", "date", canonical, "error", err)
		}
		return
	}

	sharedobs.WriteJSON(w, http.StatusOK, predictionsResponse{
		Date:        canonical,
		Count:       len(preds),
		Predictions: preds,
	})
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Invalidate(r.Context(), r.URL.Query().Get("date")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	sharedobs.WriteJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidDate):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
