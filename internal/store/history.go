package store

import (
	"slices"
	"sync"
	"time"

	"github.com/rzzdr/quant-pricing-engine/internal/marketdata"
	"github.com/rzzdr/quant-pricing-engine/internal/scenario"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/logger"
)

// ValuePoint is an instrument's position value in one finished run
type ValuePoint struct {
	RunID          string              `json:"run_id"`
	EvaluationDate time.Time           `json:"evaluation_date"`
	Value          float64             `json:"value"`
	Currency       marketdata.Currency `json:"currency"`
}

// InMemoryValueHistory keeps, per instrument, the values of the last
// finished runs ordered by evaluation date
type InMemoryValueHistory struct {
	points map[marketdata.StaticID][]ValuePoint
	depth  int
	mu     sync.RWMutex
	log    *logger.Logger
}

// NewInMemoryValueHistory keeps at most depth points per instrument
func NewInMemoryValueHistory(depth int) *InMemoryValueHistory {
	return &InMemoryValueHistory{
		points: make(map[marketdata.StaticID][]ValuePoint),
		depth:  max(depth, 1),
		log:    logger.GetLogger("store.history"),
	}
}

// Record adds every valued result of a finished run
func (h *InMemoryValueHistory) Record(runID string, evaluationDate time.Time, outcome *scenario.Outcome) {
	if outcome == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, res := range outcome.Results {
		if res.Value == nil {
			continue
		}
		series := append(h.points[id], ValuePoint{
			RunID:          runID,
			EvaluationDate: evaluationDate,
			Value:          *res.Value,
			Currency:       res.RepresentationCurrency,
		})
		slices.SortStableFunc(series, func(a, b ValuePoint) int { return a.EvaluationDate.Compare(b.EvaluationDate) })
		if len(series) > h.depth {
			series = series[len(series)-h.depth:]
		}
		h.points[id] = series
	}
	h.log.Debugf("Recorded %d values of run %s", len(outcome.Results), runID)
}

// Values returns the recorded series of an instrument, oldest first
func (h *InMemoryValueHistory) Values(id marketdata.StaticID) []ValuePoint {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.points[id])
}

// Forget drops every point of a run
func (h *InMemoryValueHistory) Forget(runID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, series := range h.points {
		series = slices.DeleteFunc(series, func(p ValuePoint) bool { return p.RunID == runID })
		if len(series) == 0 {
			delete(h.points, id)
			continue
		}
		h.points[id] = series
	}
}
