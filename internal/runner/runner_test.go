package runner

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzzdr/quant-pricing-engine/internal/marketdata"
	"github.com/rzzdr/quant-pricing-engine/internal/scenario"
	"github.com/rzzdr/quant-pricing-engine/internal/store"
	"github.com/rzzdr/quant-pricing-engine/pkg/models"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/backpressure"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/errors"
)

var krwCashID = marketdata.NewStaticID("KRWCASH", "DESK")

type fakePublisher struct {
	mu     sync.Mutex
	events []models.RunEvent
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, event models.RunEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}

type fakeMetrics struct {
	mu     sync.Mutex
	runs   int
	groups int
	stored int
}

func (f *fakeMetrics) RecordGroup(_, _ int, _ time.Duration, _ error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups++
}

func (f *fakeMetrics) RecordRun(_, _ int, _ time.Duration, _ error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
}

func (f *fakeMetrics) SetStoredRuns(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = n
}

func loadPortfolio(t *testing.T) *scenario.Scenario {
	t.Helper()
	f, err := scenario.DecodeFile("../scenario/testdata/portfolio.yaml")
	require.NoError(t, err)
	sc, err := f.Build()
	require.NoError(t, err)
	return sc
}

func newRunner() *Runner {
	return NewRunner(Config{Workers: 2}, store.NewInMemoryRunStore(10), store.NewInMemoryValueHistory(10))
}

func TestRunCompletesAndPublishes(t *testing.T) {
	pub := &fakePublisher{}
	m := &fakeMetrics{}
	r := newRunner().WithPublisher(pub).WithMetrics(m)

	run, err := r.Run(context.Background(), loadPortfolio(t), Options{})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	require.NotNil(t, run.Outcome)
	assert.Len(t, run.Outcome.Results, 5)
	assert.Equal(t, marketdata.KRW, run.Outcome.Currency)

	require.Len(t, pub.events, 1)
	assert.Equal(t, run.ID, pub.events[0].Run.ID)
	assert.Len(t, pub.events[0].Results, 5)

	assert.Equal(t, 1, m.runs)
	assert.Equal(t, 2, m.groups)
	assert.Equal(t, 1, m.stored)

	points := r.History(krwCashID)
	require.Len(t, points, 1)
	assert.Equal(t, run.ID, points[0].RunID)
	assert.Equal(t, 1_000_000.0, points[0].Value)
}

func TestRunFailureIsRecordedOnTheRun(t *testing.T) {
	pub := &fakePublisher{}
	r := newRunner().WithPublisher(pub)

	run, err := r.Run(context.Background(), loadPortfolio(t), Options{Currency: marketdata.EUR})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Contains(t, run.Err.Error(), "KRWEUR")

	require.Len(t, pub.events, 1)
	assert.Equal(t, models.RunStatusFailed, pub.events[0].Run.Status)
	assert.Empty(t, r.History(krwCashID))
}

func TestPublishErrorsDoNotFailTheRun(t *testing.T) {
	r := newRunner().WithPublisher(&fakePublisher{err: stderrors.New("broker unavailable")})

	run, err := r.Run(context.Background(), loadPortfolio(t), Options{})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
}

func TestSubmitRunsInBackground(t *testing.T) {
	r := newRunner()
	ctx, cancel := context.WithCancel(context.Background())

	run, err := r.Submit(ctx, loadPortfolio(t), Options{Workers: 1})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusPending, run.Status)
	cancel()

	r.Wait()
	got, err := r.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, got.Status)
	assert.Len(t, r.List(), 1)
}

func TestResultsInAnotherCurrency(t *testing.T) {
	r := newRunner()
	run, err := r.Run(context.Background(), loadPortfolio(t), Options{})
	require.NoError(t, err)

	same, err := r.Results(run.ID, marketdata.NIL)
	require.NoError(t, err)
	assert.Equal(t, 1_000_000.0, *same.Outcome.Results[krwCashID].Value)

	usd, err := r.Results(run.ID, marketdata.USD)
	require.NoError(t, err)
	assert.Equal(t, marketdata.USD, usd.Outcome.Currency)
	assert.InDelta(t, 1_000_000.0/1300, *usd.Outcome.Results[krwCashID].Value, 1e-9)

	// the stored run keeps its own currency
	again, err := r.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, marketdata.KRW, again.Outcome.Currency)

	_, err = r.Results(run.ID, marketdata.EUR)
	assert.True(t, errors.HasType(err, errors.ErrorTypeConfiguration))
	_, err = r.Results("missing", marketdata.USD)
	assert.True(t, errors.HasType(err, errors.ErrorTypeNotFound))
}

func TestResultsOfFailedRun(t *testing.T) {
	r := newRunner()
	run, err := r.Run(context.Background(), loadPortfolio(t), Options{Currency: marketdata.EUR})
	require.NoError(t, err)

	_, err = r.Results(run.ID, marketdata.NIL)
	assert.True(t, errors.HasType(err, errors.ErrorTypeConsistency))
}

func TestDeleteForgetsHistory(t *testing.T) {
	r := newRunner()
	run, err := r.Run(context.Background(), loadPortfolio(t), Options{})
	require.NoError(t, err)

	require.NoError(t, r.Delete(run.ID))
	assert.Empty(t, r.History(krwCashID))
	assert.True(t, errors.HasType(r.Delete(run.ID), errors.ErrorTypeNotFound))
}

func TestSubmitIsRefusedWhenBusy(t *testing.T) {
	r := NewRunner(Config{Workers: 1, MaxInFlight: 1}, store.NewInMemoryRunStore(10), nil)
	require.NoError(t, r.inFlight.Acquire(context.Background(), backpressure.Block))
	assert.Equal(t, 1, r.InFlight())

	_, err := r.Submit(context.Background(), loadPortfolio(t), Options{})
	assert.True(t, errors.HasType(err, errors.ErrorTypeUnavailable))
	assert.Empty(t, r.List())

	r.inFlight.Release()
	run, err := r.Submit(context.Background(), loadPortfolio(t), Options{})
	require.NoError(t, err)
	r.Wait()
	got, err := r.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, got.Status)
	assert.Nil(t, r.History(krwCashID))
}
