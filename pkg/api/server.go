// Package api exposes calculation runs over HTTP: submit a scenario, follow
// the run, read its results in any currency the market data can convert to.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rzzdr/quant-pricing-engine/internal/runner"
	"github.com/rzzdr/quant-pricing-engine/internal/websocket"
	"github.com/rzzdr/quant-pricing-engine/pkg/metrics"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/backpressure"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/logger"
)

// Config holds the configuration for the API server
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// Largest scenario document accepted
	MaxBodyBytes int64
	CORS         CORSConfig
	// Run submissions per second and burst allowed per client; zero
	// disables the limit
	SubmitRate  float64
	SubmitBurst int
}

// CORSConfig lists what cross-origin callers may do
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// Server represents the API server
type Server struct {
	config     Config
	router     *gin.Engine
	httpServer *http.Server
	handlers   *Handlers
	limiter    *backpressure.KeyedLimiter
	log        *logger.Logger
}

// NewServer creates a new API server. hub and recorder are optional.
func NewServer(config Config, runner *runner.Runner, hub *websocket.Hub, recorder *metrics.Recorder) *Server {
	// Apply defaults if needed
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 10 * time.Second
	}

	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 60 * time.Second
	}

	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 32 << 20
	}

	server := &Server{
		config:   config,
		router:   gin.New(),
		handlers: CreateHandlers(runner, hub, config.MaxBodyBytes),
		log:      logger.GetLogger("api.server"),
	}
	if config.SubmitRate > 0 {
		server.limiter = backpressure.NewKeyedLimiter(config.SubmitRate, max(config.SubmitBurst, 1))
	}

	// Setup routes
	server.setupRoutes(recorder)

	return server
}

// Handler returns the HTTP handler serving every route
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the API server. It returns nil once stopped.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.log.Infof("Starting API server on %s", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// RunMaintenance forgets idle rate-limit clients until ctx is done
func (s *Server) RunMaintenance(ctx context.Context) {
	if s.limiter == nil {
		return
	}
	s.limiter.RunSweeper(ctx, time.Minute)
}

// Stop stops the API server gracefully
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		s.log.Info("Stopping API server")
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}
