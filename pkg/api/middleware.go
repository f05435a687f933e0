package api

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rzzdr/quant-pricing-engine/pkg/metrics"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/backpressure"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/logger"
)

// LoggingMiddleware logs request information
func LoggingMiddleware() gin.HandlerFunc {
	log := logger.GetLogger("api.middleware")

	return func(c *gin.Context) {
		// Start timer
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		// Process request
		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		switch {
		case status >= http.StatusInternalServerError:
			log.Errorf("%s %s [%d] %v %s", method, path, status, latency, c.Errors.String())
		case status >= http.StatusBadRequest:
			log.Warnf("%s %s [%d] %v", method, path, status, latency)
		default:
			log.Infof("%s %s [%d] %v", method, path, status, latency)
		}
	}
}

// MetricsMiddleware captures API metrics. Paths are recorded by route
// template so run ids do not explode the label set.
func MetricsMiddleware(recorder *metrics.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// Process request
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		recorder.RecordAPIRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}

// CORSMiddleware handles Cross-Origin Resource Sharing
func CORSMiddleware(config CORSConfig) gin.HandlerFunc {
	methods := strings.Join(config.AllowedMethods, ", ")
	headers := strings.Join(config.AllowedHeaders, ", ")
	allowAll := slices.Contains(config.AllowedOrigins, "*")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(config.AllowedOrigins, origin):
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Add("Vary", "Origin")
		}
		if methods != "" {
			c.Writer.Header().Set("Access-Control-Allow-Methods", methods)
		}
		if headers != "" {
			c.Writer.Header().Set("Access-Control-Allow-Headers", headers)
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// ErrorMiddleware catches panics and returns an error response
func ErrorMiddleware() gin.HandlerFunc {
	log := logger.GetLogger("api.error")

	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Errorf("API panic recovered: %v", err)

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Internal server error",
				})
			}
		}()

		c.Next()
	}
}

// RateLimitMiddleware limits the number of requests per client
func RateLimitMiddleware(limiter *backpressure.KeyedLimiter) gin.HandlerFunc {
	log := logger.GetLogger("api.ratelimit")

	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if !limiter.Allow(clientIP) {
			log.Warnf("Rate limit exceeded for client: %s", clientIP)
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}
