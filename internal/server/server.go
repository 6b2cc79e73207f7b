// Package server exposes the HTTP API under /api/v1.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joseph-ayodele/compliance-tracker/internal/common"
	"github.com/joseph-ayodele/compliance-tracker/internal/crm"
	"github.com/joseph-ayodele/compliance-tracker/internal/entities"
	"github.com/joseph-ayodele/compliance-tracker/internal/export"
	"github.com/joseph-ayodele/compliance-tracker/internal/pipeline"
	"github.com/joseph-ayodele/compliance-tracker/internal/repository"
	"github.com/joseph-ayodele/compliance-tracker/internal/requirement"
)

const (
	defaultMaxUpload  = 25 << 20
	maxWebhookBody    = 1 << 20
	maxJSONBody       = 1 << 20
	defaultListLimit  = 100
	maxListLimit      = 500
	headerAccountID   = "X-Account-ID"
	headerUserID      = "X-User-ID"
	xlsxContentType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	requestTimeoutAPI = 2 * time.Minute
)

// Deps are the services the handlers call.
type Deps struct {
	Store          *repository.Store
	Pipeline       *pipeline.Service
	Requirements   *requirement.Service
	Export         *export.Service
	Entities       *entities.Service
	CRM            *crm.Service
	Gatherer       prometheus.Gatherer
	MaxUploadBytes int64
	Logger         *slog.Logger
}

type Server struct {
	Deps
	logger *slog.Logger
}

func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = defaultMaxUpload
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{Deps: d, logger: d.Logger}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeoutAPI))
		r.Post("/webhooks/{provider}/{account_id}", s.handleWebhook)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAccount)

			r.Post("/documents", s.handleUpload)
			r.Get("/documents/{id}", s.handleGetDocument)
			r.Patch("/documents/{id}", s.handleCorrect)
			r.Post("/documents/{id}/process", s.handleProcess)
			r.Post("/documents/{id}/retry", s.handleRetry)

			r.Get("/requirements", s.handleListRequirements)
			r.Get("/requirements/summary", s.handleSummary)
			r.Get("/requirements/export.xlsx", s.handleExport)
			r.Post("/requirements/{id}/complete", s.handleComplete)

			r.Get("/entities", s.handleListEntities)
			r.Post("/entities", s.handleCreateEntity)
			r.Get("/entities/{id}", s.handleGetEntity)
			r.Patch("/entities/{id}", s.handleUpdateEntity)

			r.Get("/notifications", s.handleListNotifications)

			r.Get("/integrations/settings", s.handleGetSettings)
			r.Put("/integrations/settings", s.handlePutSettings)
			r.Post("/integrations/test-connection", s.handleTestConnection)
			r.Get("/integrations/sync-logs", s.handleSyncLogs)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.DB.HealthCheck(r.Context(), 2*time.Second); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := middleware.GetReqID(r.Context())
		ctx := common.WithRequestID(r.Context(), reqID)
		ctx = common.WithLogger(ctx, s.logger.With("request_id", reqID))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))
		level := slog.LevelInfo
		if ww.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(r.Context(), level, "http.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"request_id", reqID,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
}
