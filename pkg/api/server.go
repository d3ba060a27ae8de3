// Package api provides the operations HTTP server: health probes,
// Prometheus metrics, and the management API.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cloudspool/cloudspool/internal/logger"
	"github.com/cloudspool/cloudspool/pkg/blob"
	"github.com/cloudspool/cloudspool/pkg/settings"
	"github.com/cloudspool/cloudspool/pkg/sources"
	"github.com/cloudspool/cloudspool/pkg/store"
)

// Server wraps the HTTP server with graceful shutdown.
type Server struct {
	server       *http.Server
	config       Config
	shutdownOnce sync.Once
}

// NewServer creates the operations server in a stopped state. Call Start to
// begin serving.
func NewServer(config Config, st *store.Store, sourcesSvc *sources.Service, settingsSvc *settings.Service, uploader blob.Uploader) *Server {
	config.ApplyDefaults()

	router := NewRouter(st, sourcesSvc, settingsSvc, uploader)

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			Handler:      router,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
		config: config,
	}
}

// Start serves requests until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("API server listening", "port", s.config.Port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("API server shutdown signal received")
		// A fresh context: the cancelled one would abort the drain.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("API server failed: %w", err)
	}
}

// Stop shuts the server down gracefully, waiting for in-flight requests up
// to the context deadline. Safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.server.Shutdown(ctx)
		if err == nil {
			logger.Info("API server stopped")
		}
	})
	return err
}
