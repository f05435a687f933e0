package store

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rzzdr/quant-pricing-engine/internal/marketdata"
	"github.com/rzzdr/quant-pricing-engine/internal/scenario"
	"github.com/rzzdr/quant-pricing-engine/pkg/models"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/errors"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/logger"
)

// Run is a submitted scenario and, once finished, what it produced
type Run struct {
	ID          string
	Status      models.RunStatus
	Scenario    *scenario.Scenario
	Outcome     *scenario.Outcome
	Err         error
	SubmittedAt time.Time
	FinishedAt  time.Time
}

// Summary renders the run without its results
func (r *Run) Summary() models.Run {
	out := models.Run{
		ID:          r.ID,
		Status:      r.Status,
		SubmittedAt: r.SubmittedAt,
	}
	if s := r.Scenario; s != nil {
		out.EvaluationDate = s.EvaluationDate
		out.Instruments = s.Instruments.Len()
	}
	if o := r.Outcome; o != nil {
		out.Groups = o.Groups
		out.DurationMs = o.Duration.Milliseconds()
		if o.Currency != marketdata.NIL {
			out.RepresentationCurrency = o.Currency.String()
		}
	}
	if !r.FinishedAt.IsZero() {
		finished := r.FinishedAt
		out.FinishedAt = &finished
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return out
}

// Event renders a finished run with its results
func (r *Run) Event() models.RunEvent {
	event := models.RunEvent{Run: r.Summary()}
	if r.Outcome != nil {
		event.Results = models.NewResults(r.ID, r.Outcome.Results)
	}
	return event
}

// InMemoryRunStore keeps the most recent runs. When full, the oldest
// finished run is evicted to make room.
type InMemoryRunStore struct {
	runs     map[string]*Run
	order    []string
	capacity int
	mu       sync.RWMutex
	log      *logger.Logger
}

// NewInMemoryRunStore creates a store holding at most capacity runs
func NewInMemoryRunStore(capacity int) *InMemoryRunStore {
	return &InMemoryRunStore{
		runs:     make(map[string]*Run),
		capacity: max(capacity, 1),
		log:      logger.GetLogger("store.runs"),
	}
}

// Create registers a pending run for s under a fresh id
func (s *InMemoryRunStore) Create(sc *scenario.Scenario) (*Run, error) {
	if sc == nil {
		return nil, errors.InvalidArgumentf("cannot store a run without a scenario")
	}
	run := &Run{
		ID:          uuid.NewString(),
		Status:      models.RunStatusPending,
		Scenario:    sc,
		SubmittedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.order) >= s.capacity {
		if !s.evictLocked() {
			return nil, errors.Unavailablef("run store is full: %d runs in progress", len(s.order))
		}
	}
	s.runs[run.ID] = run
	s.order = append(s.order, run.ID)
	copied := *run
	return &copied, nil
}

func (s *InMemoryRunStore) evictLocked() bool {
	for i, id := range s.order {
		if s.runs[id].Status.Done() {
			delete(s.runs, id)
			s.order = slices.Delete(s.order, i, i+1)
			s.log.Debugf("Evicted run %s", id)
			return true
		}
	}
	return false
}

// Get returns a copy of the run
func (s *InMemoryRunStore) Get(id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.runs[id]
	if !exists {
		return nil, errors.NotFoundf("run not found: %s", id)
	}
	copied := *run
	return &copied, nil
}

// List returns copies of every run, newest first
func (s *InMemoryRunStore) List() []*Run {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]*Run, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		copied := *s.runs[s.order[i]]
		runs = append(runs, &copied)
	}
	return runs
}

// Start marks the run as running
func (s *InMemoryRunStore) Start(id string) error {
	return s.update(id, func(run *Run) {
		run.Status = models.RunStatusRunning
	})
}

// Finish records the outcome of a run, or err when it failed
func (s *InMemoryRunStore) Finish(id string, outcome *scenario.Outcome, err error) error {
	return s.update(id, func(run *Run) {
		run.FinishedAt = time.Now().UTC()
		run.Outcome = outcome
		run.Err = err
		run.Status = models.RunStatusCompleted
		if err != nil {
			run.Status = models.RunStatusFailed
		}
	})
}

func (s *InMemoryRunStore) update(id string, fn func(*Run)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, exists := s.runs[id]
	if !exists {
		return errors.NotFoundf("run not found: %s", id)
	}
	if run.Status.Done() {
		return errors.Consistencyf("run %s is already %s", id, run.Status)
	}
	fn(run)
	return nil
}

// Delete removes a run by ID
func (s *InMemoryRunStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[id]; !exists {
		return errors.NotFoundf("run not found: %s", id)
	}
	delete(s.runs, id)
	s.order = slices.DeleteFunc(s.order, func(other string) bool { return other == id })
	return nil
}

// Len returns the number of stored runs
func (s *InMemoryRunStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
