package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rzzdr/quant-pricing-engine/pkg/utils/logger"
)

// PrometheusServer is a server that exposes Prometheus metrics
type PrometheusServer struct {
	server *http.Server
	log    *logger.Logger
}

// NewPrometheusServer serves the metrics of gatherer on port under path
func NewPrometheusServer(port int, path string, gatherer prometheus.Gatherer) *PrometheusServer {
	log := logger.GetLogger("metrics.prometheus")
	addr := fmt.Sprintf(":%d", port)

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &PrometheusServer{
		server: server,
		log:    log,
	}
}

// Handler returns the metrics handler
func (p *PrometheusServer) Handler() http.Handler {
	return p.server.Handler
}

// Start starts the Prometheus metrics server. It returns nil once stopped.
func (p *PrometheusServer) Start() error {
	p.log.Infof("Starting Prometheus metrics server on %s", p.server.Addr)
	if err := p.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop stops the Prometheus metrics server
func (p *PrometheusServer) Stop(ctx context.Context) error {
	p.log.Info("Stopping Prometheus metrics server")
	return p.server.Shutdown(ctx)
}

// RunRuntimeSampler records runtime metrics every interval until ctx ends
func RunRuntimeSampler(ctx context.Context, r *Recorder, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		r.RecordRuntime()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
