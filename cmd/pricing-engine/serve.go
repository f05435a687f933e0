package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rzzdr/quant-pricing-engine/internal/adapters"
	"github.com/rzzdr/quant-pricing-engine/internal/kafka"
	"github.com/rzzdr/quant-pricing-engine/internal/runner"
	"github.com/rzzdr/quant-pricing-engine/internal/store"
	"github.com/rzzdr/quant-pricing-engine/internal/websocket"
	"github.com/rzzdr/quant-pricing-engine/pkg/api"
	"github.com/rzzdr/quant-pricing-engine/pkg/metrics"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/circuit"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/logger"
)

const runtimeSampleInterval = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, websocket stream and metrics server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.GetLogger("main.serve")
	log.Infof("Starting %s %s", cfg.App.Name, version)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	currency, err := cfg.Engine.Currency()
	if err != nil {
		return err
	}

	// Initialize metrics recorder
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(registry)

	hub := websocket.NewHub()
	outputs := adapters.Fanout{
		adapters.NewMetricsAdapter("websocket", adapters.NewHubAdapter(hub), recorder),
	}

	var publisher *kafka.ResultPublisher
	if cfg.Kafka.Enabled {
		publisher, err = kafka.NewResultPublisher(kafka.Config{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			BatchSize:    cfg.Kafka.BatchSize,
			BatchTimeout: cfg.Kafka.BatchTimeout,
			RequiredAcks: cfg.Kafka.RequiredAcks,
			Compression:  cfg.Kafka.Compression,
			WriteTimeout: cfg.Kafka.WriteTimeout,
		})
		if err != nil {
			return err
		}
		breaker := circuit.NewBreaker("kafka", circuit.DefaultConfig())
		outputs = append(outputs, adapters.NewMetricsAdapter("kafka", adapters.NewBreakerAdapter(breaker, publisher), recorder))
		log.Infof("Publishing finished runs to Kafka topic %s", cfg.Kafka.Topic)
	}

	run := runner.NewRunner(
		runner.Config{
			Calculation: cfg.Calculation.ToConfiguration(),
			Workers:     cfg.Engine.Workers,
			Currency:    currency,
			MaxInFlight: cfg.Engine.MaxInFlight,
		},
		store.NewInMemoryRunStore(cfg.Engine.MaxStoredRuns),
		store.NewInMemoryValueHistory(cfg.Engine.MaxStoredRuns),
	).WithPublisher(outputs).WithMetrics(recorder)

	server := api.NewServer(api.Config{
		Host:         cfg.API.Host,
		Port:         cfg.API.Port,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		CORS: api.CORSConfig{
			AllowedOrigins: cfg.API.CORS.AllowedOrigins,
			AllowedMethods: cfg.API.CORS.AllowedMethods,
			AllowedHeaders: cfg.API.CORS.AllowedHeaders,
		},
		SubmitRate:  cfg.API.RateLimit.RequestsPerSecond,
		SubmitBurst: cfg.API.RateLimit.Burst,
	}, run, hub, recorder)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(server.Start)
	g.Go(func() error {
		server.RunMaintenance(gctx)
		return nil
	})
	g.Go(func() error {
		metrics.RunRuntimeSampler(gctx, recorder, runtimeSampleInterval)
		return nil
	})

	var promServer *metrics.PrometheusServer
	if cfg.Metrics.Prometheus.Enabled {
		promServer = metrics.NewPrometheusServer(cfg.Metrics.Prometheus.Port, cfg.Metrics.Prometheus.Path, registry)
		g.Go(promServer.Start)
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Initiating shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
		defer cancel()

		if err := server.Stop(shutdownCtx); err != nil {
			log.Errorf("API server shutdown error: %v", err)
		}
		// runs accepted before the stop still finish and publish
		run.Wait()
		if promServer != nil {
			if err := promServer.Stop(shutdownCtx); err != nil {
				log.Errorf("Metrics server shutdown error: %v", err)
			}
		}
		if publisher != nil {
			if err := publisher.Close(); err != nil {
				log.Errorf("Kafka publisher shutdown error: %v", err)
			}
		}
		return nil
	})

	log.Info("Pricing engine started")
	if err := g.Wait(); err != nil {
		log.Errorf("Pricing engine stopped: %v", err)
		return err
	}
	log.Info("Pricing engine shut down gracefully")
	return nil
}
