package metrics

import (
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder handles metrics recording and exposure. It satisfies the
// pricing engine's run recorder.
type Recorder struct {
	// Calculation metrics
	runCounter        *prometheus.CounterVec
	runLatency        prometheus.Histogram
	groupCounter      *prometheus.CounterVec
	groupLatency      prometheus.Histogram
	groupSize         prometheus.Histogram
	instrumentCounter prometheus.Counter

	// API metrics
	apiRequestCounter   *prometheus.CounterVec
	apiLatencyHistogram *prometheus.HistogramVec

	// Output metrics
	publishCounter  *prometheus.CounterVec
	storedRunsGauge prometheus.Gauge

	// System metrics
	memoryUsageGauge    prometheus.Gauge
	goroutineCountGauge prometheus.Gauge
}

// NewRecorder creates a recorder and registers its metrics with reg
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		runCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qpe_runs_total",
				Help: "The total number of calculation runs",
			},
			[]string{"status"},
		),
		runLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "qpe_run_latency_seconds",
				Help:    "Calculation run latency in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 16), // From 1ms to ~32s
			},
		),
		groupCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qpe_engine_groups_total",
				Help: "The total number of engine groups calculated",
			},
			[]string{"status"},
		),
		groupLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "qpe_engine_group_latency_seconds",
				Help:    "Engine group latency in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
			},
		),
		groupSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "qpe_engine_group_instruments",
				Help:    "Number of instruments per engine group",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12), // From 1 to 2048
			},
		),
		instrumentCounter: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "qpe_instruments_priced_total",
				Help: "The total number of instruments priced by successful groups",
			},
		),

		apiRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qpe_api_requests_total",
				Help: "The total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		apiLatencyHistogram: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "qpe_api_latency_seconds",
				Help:    "API request latency distribution",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // From 1ms to ~16s
			},
			[]string{"method", "path"},
		),

		publishCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qpe_published_runs_total",
				Help: "The total number of finished runs handed to an output",
			},
			[]string{"sink", "status"},
		),
		storedRunsGauge: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "qpe_stored_runs",
				Help: "Number of runs held in the run store",
			},
		),

		memoryUsageGauge: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "qpe_memory_usage_bytes",
				Help: "Memory usage of the application in bytes",
			},
		),
		goroutineCountGauge: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "qpe_goroutine_count",
				Help: "Number of goroutines",
			},
		),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordGroup records one engine group of a run
func (r *Recorder) RecordGroup(_, instruments int, duration time.Duration, err error) {
	r.groupCounter.WithLabelValues(status(err)).Inc()
	r.groupLatency.Observe(duration.Seconds())
	r.groupSize.Observe(float64(instruments))
	if err == nil {
		r.instrumentCounter.Add(float64(instruments))
	}
}

// RecordRun records a whole calculation run
func (r *Recorder) RecordRun(_, _ int, duration time.Duration, err error) {
	r.runCounter.WithLabelValues(status(err)).Inc()
	r.runLatency.Observe(duration.Seconds())
}

// RecordAPIRequest records metrics for an API request
func (r *Recorder) RecordAPIRequest(method, path string, status int, latency time.Duration) {
	r.apiRequestCounter.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	r.apiLatencyHistogram.WithLabelValues(method, path).Observe(latency.Seconds())
}

// RecordPublish records a finished run handed to sink ("kafka", "websocket")
func (r *Recorder) RecordPublish(sink string, err error) {
	r.publishCounter.WithLabelValues(sink, status(err)).Inc()
}

// SetStoredRuns records the size of the run store
func (r *Recorder) SetStoredRuns(n int) {
	r.storedRunsGauge.Set(float64(n))
}

// RecordRuntime samples memory usage and the goroutine count
func (r *Recorder) RecordRuntime() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	r.memoryUsageGauge.Set(float64(m.Alloc))
	r.goroutineCountGauge.Set(float64(runtime.NumGoroutine()))
}
