// Package api exposes the read surface of the photo index over HTTP: the
// JSON catalog API, media and artifact serving, scan control, the progress
// WebSocket, and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/mbianchi/photarc/internal/logger"
	"github.com/mbianchi/photarc/pkg/artifacts"
	"github.com/mbianchi/photarc/pkg/catalog"
	"github.com/mbianchi/photarc/pkg/metrics"
	"github.com/mbianchi/photarc/pkg/pipeline"
)

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

func (c *ServerConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		// Media responses can be large; give writes headroom.
		c.WriteTimeout = 120 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// Server is the photarc HTTP server.
type Server struct {
	server       *http.Server
	hub          *Hub
	config       ServerConfig
	shutdownOnce sync.Once
}

// NewServer wires the router and progress hub. Pass the hub that is already
// registered as the pipeline's notifier, or nil to create a fresh one.
func NewServer(cfg ServerConfig, deps Deps, hub *Hub) *Server {
	cfg.applyDefaults()

	if hub == nil {
		hub = NewHub(deps.Metrics)
	}
	deps.hub = hub
	router := NewRouter(deps)

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		hub:    hub,
		config: cfg,
	}
}

// Hub returns the progress hub for wiring into the pipeline.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins serving and blocks until the listener closes.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)

	logger.Info("API server listening", "addr", s.server.Addr)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains connections gracefully within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
		logger.Info("API server shutting down")
		err = s.server.Shutdown(shutdownCtx)
	})
	return err
}

// Deps bundles everything the handlers need.
type Deps struct {
	Store      *catalog.Store
	Artifacts  *artifacts.Store
	Supervisor *pipeline.Supervisor
	Metrics    *metrics.Metrics
	PhotosRoot string

	hub *Hub
}
