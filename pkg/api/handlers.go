package api

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rzzdr/quant-pricing-engine/internal/marketdata"
	"github.com/rzzdr/quant-pricing-engine/internal/runner"
	"github.com/rzzdr/quant-pricing-engine/internal/scenario"
	"github.com/rzzdr/quant-pricing-engine/internal/websocket"
	"github.com/rzzdr/quant-pricing-engine/pkg/models"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/errors"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/logger"
)

// Handlers contains all HTTP handlers for the API
type Handlers struct {
	runner       *runner.Runner
	hub          *websocket.Hub
	maxBodyBytes int64
	started      time.Time
	log          *logger.Logger
}

// CreateHandlers creates new API handlers
func CreateHandlers(runner *runner.Runner, hub *websocket.Hub, maxBodyBytes int64) *Handlers {
	return &Handlers{
		runner:       runner,
		hub:          hub,
		maxBodyBytes: maxBodyBytes,
		started:      time.Now(),
		log:          logger.GetLogger("api.handlers"),
	}
}

// HealthCheckHandler handles health check requests
func (h *Handlers) HealthCheckHandler(c *gin.Context) {
	body := gin.H{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(h.started).Round(time.Second).String(),
		"runs":      len(h.runner.List()),
	}
	if h.hub != nil {
		body["websocket_clients"] = h.hub.Clients()
	}
	c.JSON(http.StatusOK, body)
}

// WebSocketHandler upgrades the connection and streams finished runs
func (h *Handlers) WebSocketHandler(c *gin.Context) {
	h.hub.HandleWebSocket(c.Writer, c.Request)
}

// documentFormat picks the scenario format from the format query parameter
// or, failing that, the content type. JSON is the default.
func documentFormat(c *gin.Context) (string, error) {
	if format := strings.ToLower(c.Query("format")); format != "" {
		switch format {
		case "json", "yaml", "yml":
			return format, nil
		}
		return "", errors.InvalidArgumentf("unsupported scenario format %q", format)
	}

	contentType := c.GetHeader("Content-Type")
	if contentType == "" {
		return "json", nil
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", errors.WithType(errors.Wrap(err, "invalid content type"), errors.ErrorTypeInvalidArgument)
	}
	switch mediaType {
	case "application/json", "text/json":
		return "json", nil
	case "application/yaml", "application/x-yaml", "text/yaml", "text/x-yaml":
		return "yaml", nil
	}
	return "", errors.InvalidArgumentf("unsupported content type %q", mediaType)
}

// runOptions reads the per-run overrides from the query string
func runOptions(c *gin.Context) (runner.Options, error) {
	var opts runner.Options
	if s := c.Query("currency"); s != "" {
		ccy, err := marketdata.ParseCurrency(s)
		if err != nil {
			return opts, err
		}
		opts.Currency = ccy
	}
	if s := c.Query("workers"); s != "" {
		workers, err := strconv.Atoi(s)
		if err != nil || workers < 1 {
			return opts, errors.InvalidArgumentf("workers must be a positive integer, got %q", s)
		}
		opts.Workers = workers
	}
	return opts, nil
}

// SubmitRunHandler accepts a scenario document and calculates it. With
// wait=true the finished run and its results are returned; otherwise the
// pending run is returned at once.
func (h *Handlers) SubmitRunHandler(c *gin.Context) {
	format, err := documentFormat(c)
	if err != nil {
		respondError(c, err)
		return
	}
	opts, err := runOptions(c)
	if err != nil {
		respondError(c, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("Failed to read scenario: %v", err),
		})
		return
	}

	file, err := scenario.DecodeBytes(body, format)
	if err != nil {
		respondError(c, err)
		return
	}
	sc, err := file.Build()
	if err != nil {
		respondError(c, err)
		return
	}

	if wait, _ := strconv.ParseBool(c.Query("wait")); wait {
		run, err := h.runner.Run(c.Request.Context(), sc, opts)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, run.Event())
		return
	}

	run, err := h.runner.Submit(c.Request.Context(), sc, opts)
	if err != nil {
		h.log.Errorf("Failed to submit run: %v", err)
		respondError(c, err)
		return
	}
	c.Header("Location", "/api/v1/runs/"+run.ID)
	c.JSON(http.StatusAccepted, run.Summary())
}

// ListRunsHandler returns every stored run, newest first
func (h *Handlers) ListRunsHandler(c *gin.Context) {
	runs := h.runner.List()
	out := make([]models.Run, 0, len(runs))
	for _, run := range runs {
		out = append(out, run.Summary())
	}
	c.JSON(http.StatusOK, gin.H{
		"runs":  out,
		"count": len(out),
	})
}

// GetRunHandler returns a run without its results
func (h *Handlers) GetRunHandler(c *gin.Context) {
	run, err := h.runner.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run.Summary())
}

// GetResultsHandler returns a completed run with its results, optionally
// re-expressed in the currency query parameter
func (h *Handlers) GetResultsHandler(c *gin.Context) {
	var target marketdata.Currency
	if s := c.Query("currency"); s != "" {
		ccy, err := marketdata.ParseCurrency(s)
		if err != nil {
			respondError(c, err)
			return
		}
		target = ccy
	}

	run, err := h.runner.Results(c.Param("id"), target)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run.Event())
}

// DeleteRunHandler removes a run
func (h *Handlers) DeleteRunHandler(c *gin.Context) {
	id := c.Param("id")
	if err := h.runner.Delete(id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": fmt.Sprintf("Run %s deleted", id),
	})
}

// GetHistoryHandler returns the values an instrument had in finished runs
func (h *Handlers) GetHistoryHandler(c *gin.Context) {
	id := marketdata.ParseStaticID(c.Param("id"))
	if id.IsNone() {
		respondError(c, errors.InvalidArgumentf("instrument id is required"))
		return
	}
	points := h.runner.History(id)
	c.JSON(http.StatusOK, gin.H{
		"instrument_id": id.String(),
		"values":        points,
	})
}
