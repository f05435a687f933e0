package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rzzdr/quant-pricing-engine/pkg/metrics"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/errors"
)

// setupRoutes configures the API routes
func (s *Server) setupRoutes(recorder *metrics.Recorder) {
	// Apply common middleware
	s.router.Use(ErrorMiddleware())
	s.router.Use(LoggingMiddleware())
	if recorder != nil {
		s.router.Use(MetricsMiddleware(recorder))
	}
	s.router.Use(CORSMiddleware(s.config.CORS))

	h := s.handlers

	// Health check
	s.router.GET("/health", h.HealthCheckHandler)

	// Streaming of finished runs
	if h.hub != nil {
		s.router.GET("/ws", h.WebSocketHandler)
	}

	// API version group
	v1 := s.router.Group("/api/v1")
	v1.GET("/health", h.HealthCheckHandler)

	runs := v1.Group("/runs")
	if s.limiter != nil {
		runs.POST("", RateLimitMiddleware(s.limiter), h.SubmitRunHandler)
	} else {
		runs.POST("", h.SubmitRunHandler)
	}
	runs.GET("", h.ListRunsHandler)
	runs.GET("/:id", h.GetRunHandler)
	runs.GET("/:id/results", h.GetResultsHandler)
	runs.DELETE("/:id", h.DeleteRunHandler)

	v1.GET("/instruments/:id/history", h.GetHistoryHandler)

	// Add a catch-all route for 404s
	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Resource not found"})
	})
}

// statusFor maps an error type to the HTTP status reported for it
func statusFor(err error) int {
	switch errors.TypeOf(err) {
	case errors.ErrorTypeInvalidArgument:
		return http.StatusBadRequest
	case errors.ErrorTypeNotFound:
		return http.StatusNotFound
	case errors.ErrorTypeConfiguration, errors.ErrorTypeConsistency:
		return http.StatusUnprocessableEntity
	case errors.ErrorTypeUnsupported:
		return http.StatusNotImplemented
	case errors.ErrorTypeNetwork:
		return http.StatusBadGateway
	case errors.ErrorTypeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError sends an error response with the status of err's type
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{
		"error": err.Error(),
		"type":  errors.TypeOf(err).String(),
	})
}
