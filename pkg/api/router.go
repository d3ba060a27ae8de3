package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cloudspool/cloudspool/internal/logger"
	"github.com/cloudspool/cloudspool/pkg/api/handlers"
	"github.com/cloudspool/cloudspool/pkg/blob"
	"github.com/cloudspool/cloudspool/pkg/settings"
	"github.com/cloudspool/cloudspool/pkg/sources"
	"github.com/cloudspool/cloudspool/pkg/store"
)

// NewRouter creates the chi router with all middleware and routes.
//
// Routes:
//   - GET /health - Liveness probe
//   - GET /health/ready - Readiness probe (store + blob backend)
//   - GET /metrics - Prometheus metrics
//   - /api/v1/sources - Source management
//   - /api/v1/settings - Runtime settings
//   - /api/v1/queue - Upload queue inspection and retry
func NewRouter(st *store.Store, sourcesSvc *sources.Service, settingsSvc *settings.Service, uploader blob.Uploader) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	healthHandler := handlers.NewHealthHandler(st, uploader)
	sourcesHandler := handlers.NewSourcesHandler(sourcesSvc)
	settingsHandler := handlers.NewSettingsHandler(st, settingsSvc)
	queueHandler := handlers.NewQueueHandler(st)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/sources", func(r chi.Router) {
			r.Get("/", sourcesHandler.List)
			r.Post("/", sourcesHandler.Create)
			r.Get("/{name}", sourcesHandler.Get)
			r.Put("/{name}", sourcesHandler.Update)
			r.Delete("/{name}", sourcesHandler.Delete)
			r.Post("/{name}/refresh", sourcesHandler.Refresh)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", settingsHandler.List)
			r.Get("/{key}", settingsHandler.Get)
			r.Put("/{key}", settingsHandler.Put)
		})

		r.Route("/queue", func(r chi.Router) {
			r.Get("/", queueHandler.List)
			r.Get("/stats", queueHandler.Stats)
			r.Get("/{id}", queueHandler.Get)
			r.Post("/{id}/retry", queueHandler.Retry)
		})
	})

	return r
}

// requestLogger logs each request with its status and duration. Health and
// metrics hits log at debug to keep probe noise out of the logs.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logArgs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		}

		if isProbePath(r.URL.Path) {
			logger.Debug("API request completed", logArgs...)
		} else {
			logger.Info("API request completed", logArgs...)
		}
	})
}

func isProbePath(path string) bool {
	return strings.HasPrefix(path, "/health") || path == "/metrics"
}
