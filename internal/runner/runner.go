// Package runner executes submitted scenarios against the run store and
// hands every finished run to the configured outputs.
package runner

import (
	"context"
	"sync"
	"time"

	"github.com/rzzdr/quant-pricing-engine/internal/adapters"
	"github.com/rzzdr/quant-pricing-engine/internal/marketdata"
	"github.com/rzzdr/quant-pricing-engine/internal/pricing"
	"github.com/rzzdr/quant-pricing-engine/internal/scenario"
	"github.com/rzzdr/quant-pricing-engine/internal/store"
	"github.com/rzzdr/quant-pricing-engine/pkg/models"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/backpressure"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/errors"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/logger"
)

// Config contains the defaults applied to every run
type Config struct {
	Calculation *pricing.CalculationConfiguration
	Workers     int
	Currency    marketdata.Currency
	// Runs calculated at the same time; further submissions are refused
	MaxInFlight int
	// Bounds publishing a finished run
	PublishTimeout time.Duration
}

// Options override Config for a single run. Zero values keep the default.
type Options struct {
	Workers  int
	Currency marketdata.Currency
}

// Metrics is the part of the metrics recorder a runner feeds
type Metrics interface {
	pricing.Recorder
	SetStoredRuns(n int)
}

// RunStore keeps runs and their lifecycle
type RunStore interface {
	Create(sc *scenario.Scenario) (*store.Run, error)
	Get(id string) (*store.Run, error)
	List() []*store.Run
	Start(id string) error
	Finish(id string, outcome *scenario.Outcome, err error) error
	Delete(id string) error
	Len() int
}

// ValueHistory keeps the values of finished runs per instrument
type ValueHistory interface {
	Record(runID string, evaluationDate time.Time, outcome *scenario.Outcome)
	Values(id marketdata.StaticID) []store.ValuePoint
	Forget(runID string)
}

// Runner drives runs from submission to publication
type Runner struct {
	config    Config
	runs      RunStore
	history   ValueHistory
	publisher adapters.Publisher
	metrics   Metrics
	inFlight  *backpressure.Controller
	wg        sync.WaitGroup
	log       *logger.Logger
}

// NewRunner creates a runner over the given stores
func NewRunner(config Config, runs RunStore, history ValueHistory) *Runner {
	if config.Calculation == nil {
		config.Calculation = pricing.DefaultCalculationConfiguration()
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 10 * time.Second
	}
	if config.MaxInFlight <= 0 {
		config.MaxInFlight = 4
	}

	return &Runner{
		config:   config,
		runs:     runs,
		history:  history,
		inFlight: backpressure.NewController("runs", config.MaxInFlight),
		log:      logger.GetLogger("runner"),
	}
}

// WithPublisher sets the output finished runs are handed to
func (r *Runner) WithPublisher(p adapters.Publisher) *Runner {
	r.publisher = p
	return r
}

// WithMetrics sets the recorder for engine and store metrics
func (r *Runner) WithMetrics(m Metrics) *Runner {
	r.metrics = m
	return r
}

// Submit stores a pending run and calculates it in the background. The
// calculation outlives ctx's cancellation; Wait blocks until it is done.
// Submissions beyond MaxInFlight fail with an Unavailable error.
func (r *Runner) Submit(ctx context.Context, sc *scenario.Scenario, opts Options) (*store.Run, error) {
	if err := r.inFlight.Acquire(ctx, backpressure.Reject); err != nil {
		return nil, err
	}
	run, err := r.create(sc)
	if err != nil {
		r.inFlight.Release()
		return nil, err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.inFlight.Release()
		r.execute(context.WithoutCancel(ctx), run.ID, sc, opts)
	}()
	return run, nil
}

// Run stores a run, calculates it and returns it once finished, waiting
// for a free slot first. A failed calculation is reported through the
// run, not the error.
func (r *Runner) Run(ctx context.Context, sc *scenario.Scenario, opts Options) (*store.Run, error) {
	if err := r.inFlight.Acquire(ctx, backpressure.Block); err != nil {
		return nil, err
	}
	defer r.inFlight.Release()

	run, err := r.create(sc)
	if err != nil {
		return nil, err
	}
	r.execute(ctx, run.ID, sc, opts)
	return r.runs.Get(run.ID)
}

// InFlight returns the number of runs being calculated
func (r *Runner) InFlight() int {
	return r.inFlight.InFlight()
}

// Wait blocks until every submitted run has finished
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) create(sc *scenario.Scenario) (*store.Run, error) {
	run, err := r.runs.Create(sc)
	if err != nil {
		return nil, err
	}
	r.recordStored()
	r.log.Infof("Run %s accepted: %d instruments on %s", run.ID, sc.Instruments.Len(), sc.EvaluationDate.Format(time.DateOnly))
	return run, nil
}

func (r *Runner) execute(ctx context.Context, id string, sc *scenario.Scenario, opts Options) {
	if err := r.runs.Start(id); err != nil {
		r.log.Warnf("Run %s could not start: %v", id, err)
		return
	}

	ropts := scenario.RunOptions{
		Config:   r.config.Calculation,
		Workers:  r.config.Workers,
		Currency: r.config.Currency,
		Logger:   r.log.Named(id),
	}
	if opts.Workers > 0 {
		ropts.Workers = opts.Workers
	}
	if opts.Currency != marketdata.NIL {
		ropts.Currency = opts.Currency
	}
	if r.metrics != nil {
		ropts.Recorder = r.metrics
	}

	outcome, err := sc.Calculate(ctx, ropts)
	if err != nil {
		r.log.Errorf("Run %s failed: %v", id, err)
		outcome = nil
	} else {
		r.log.Infof("Run %s completed: %d results in %s", id, len(outcome.Results), outcome.Duration)
	}
	if ferr := r.runs.Finish(id, outcome, err); ferr != nil {
		// deleted while running
		r.log.Warnf("Run %s finished but was not stored: %v", id, ferr)
		return
	}
	if outcome != nil && r.history != nil {
		r.history.Record(id, sc.EvaluationDate, outcome)
	}
	r.publish(ctx, id)
}

func (r *Runner) publish(ctx context.Context, id string) {
	if r.publisher == nil {
		return
	}
	run, err := r.runs.Get(id)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.PublishTimeout)
	defer cancel()
	if err := r.publisher.Publish(ctx, run.Event()); err != nil {
		r.log.Errorf("Failed to publish run %s: %v", id, err)
	}
}

func (r *Runner) recordStored() {
	if r.metrics != nil {
		r.metrics.SetStoredRuns(r.runs.Len())
	}
}

// Get returns a stored run
func (r *Runner) Get(id string) (*store.Run, error) {
	return r.runs.Get(id)
}

// List returns the stored runs, newest first
func (r *Runner) List() []*store.Run {
	return r.runs.List()
}

// Delete removes a run and its values from the history
func (r *Runner) Delete(id string) error {
	if err := r.runs.Delete(id); err != nil {
		return err
	}
	if r.history != nil {
		r.history.Forget(id)
	}
	r.recordStored()
	return nil
}

// History returns the recorded values of an instrument, oldest first
func (r *Runner) History(id marketdata.StaticID) []store.ValuePoint {
	if r.history == nil {
		return nil
	}
	return r.history.Values(id)
}

// Results returns the results of a completed run, re-expressed in target
// when it differs from the currency the run was calculated in.
func (r *Runner) Results(id string, target marketdata.Currency) (*store.Run, error) {
	run, err := r.runs.Get(id)
	if err != nil {
		return nil, err
	}
	if run.Status != models.RunStatusCompleted {
		return nil, errors.Consistencyf("run %s is %s", id, run.Status)
	}
	if target == marketdata.NIL || target == run.Outcome.Currency {
		return run, nil
	}

	converted, err := scenario.Convert(run.Outcome.Results, run.Scenario.MarketData, target)
	if err != nil {
		return nil, err
	}
	outcome := *run.Outcome
	outcome.Results = converted
	outcome.Currency = target
	run.Outcome = &outcome
	return run, nil
}
