package pricing

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rzzdr/quant-pricing-engine/internal/instrument"
	"github.com/rzzdr/quant-pricing-engine/internal/marketdata"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/errors"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/logger"
)

// InstrumentCategory selects instruments for one engine group. A nil filter
// accepts everything.
type InstrumentCategory struct {
	TypeNames     []string              `mapstructure:"type_names" json:"type_names,omitempty"`
	Currencies    []marketdata.Currency `mapstructure:"currencies" json:"currencies,omitempty"`
	UnderlyingIDs []marketdata.StaticID `mapstructure:"underlying_ids" json:"underlying_ids,omitempty"`
}

// Contains requires every set filter to match. The underlying filter must
// equal the instrument's underlying ids in order, and is skipped for
// instruments without underlyings.
func (c InstrumentCategory) Contains(inst instrument.Instrument) bool {
	info := inst.Info()
	if c.TypeNames != nil && !slices.Contains(c.TypeNames, info.TypeName()) {
		return false
	}
	if c.Currencies != nil && !slices.Contains(c.Currencies, info.Currency) {
		return false
	}
	if c.UnderlyingIDs != nil {
		und := inst.UnderlyingIDs()
		if len(und) > 0 && !slices.Equal(c.UnderlyingIDs, und) {
			return false
		}
	}
	return true
}

// Recorder receives timings of a calculation run.
type Recorder interface {
	RecordGroup(groupID, instruments int, duration time.Duration, err error)
	RecordRun(groups, instruments int, duration time.Duration, err error)
}

// EngineGenerator partitions instruments into groups and prices the groups
// in parallel, one Engine each.
type EngineGenerator struct {
	config         *CalculationConfiguration
	evaluationDate time.Time
	matchParameter *MatchParameter

	instruments *instrument.Instruments
	categories  []InstrumentCategory
	groups      []*instrument.Instruments
	data        *marketdata.MarketData

	workers  int
	recorder Recorder
	log      *logger.Logger

	mu      sync.Mutex
	results map[marketdata.StaticID]*CalculationResult
}

func NewEngineGenerator() *EngineGenerator {
	return &EngineGenerator{
		config:  DefaultCalculationConfiguration(),
		data:    marketdata.NewMarketData(),
		workers: runtime.NumCPU(),
		log:     logger.GetLogger("pricing.generator"),
		results: make(map[marketdata.StaticID]*CalculationResult),
	}
}

func (g *EngineGenerator) WithConfiguration(config *CalculationConfiguration, evaluationDate time.Time, matchParameter *MatchParameter) *EngineGenerator {
	g.config = config
	g.evaluationDate = evaluationDate
	g.matchParameter = matchParameter
	return g
}

func (g *EngineGenerator) WithInstruments(instruments *instrument.Instruments) *EngineGenerator {
	g.instruments = instruments
	return g
}

func (g *EngineGenerator) WithInstrumentCategories(categories []InstrumentCategory) *EngineGenerator {
	g.categories = categories
	return g
}

// WithMarketData shares data with every engine. It must not change until
// Calculate returns.
func (g *EngineGenerator) WithMarketData(data *marketdata.MarketData) *EngineGenerator {
	g.data = data
	return g
}

func (g *EngineGenerator) WithLogger(log *logger.Logger) *EngineGenerator {
	g.log = log
	return g
}

func (g *EngineGenerator) WithRecorder(recorder Recorder) *EngineGenerator {
	g.recorder = recorder
	return g
}

// WithWorkers bounds how many groups run at once; values below one mean one.
func (g *EngineGenerator) WithWorkers(n int) *EngineGenerator {
	g.workers = max(n, 1)
	return g
}

// Groups returns the partition built by DistributeInstruments.
func (g *EngineGenerator) Groups() []*instrument.Instruments { return g.groups }

// DistributeInstruments assigns each instrument to the first category that
// contains it. Empty groups are dropped. Any instrument left over fails the
// whole distribution.
func (g *EngineGenerator) DistributeInstruments() error {
	if g.instruments == nil {
		return errors.Consistencyf("no instruments to distribute")
	}
	buckets := make([][]instrument.Instrument, len(g.categories))
	var missed []instrument.Instrument
	for _, inst := range g.instruments.All() {
		placed := false
		for i, category := range g.categories {
			if category.Contains(inst) {
				buckets[i] = append(buckets[i], inst)
				placed = true
				break
			}
		}
		if !placed {
			missed = append(missed, inst)
		}
	}

	if len(missed) > 0 {
		var b strings.Builder
		b.WriteString("The following instruments are not distributed:\n")
		for _, inst := range missed {
			info := inst.Info()
			fmt.Fprintf(&b, "%s (%s)\ntype: %s\ncurrency: %s\nunderlying_ids: %s\n",
				info.Name, info.Code(), info.TypeName(), info.Currency, marketdata.IDsString(inst.UnderlyingIDs()))
		}
		return errors.Configurationf("%s", b.String())
	}

	g.groups = g.groups[:0]
	for _, bucket := range buckets {
		if len(bucket) == 0 {
			continue
		}
		group, err := instrument.NewInstruments(bucket)
		if err != nil {
			return err
		}
		g.groups = append(g.groups, group)
	}
	g.log.Infow("Instruments distributed", "instruments", g.instruments.Len(), "groups", len(g.groups))
	return nil
}

// Calculate runs one engine per group on a bounded pool. Every group runs
// even when another fails; the first error is returned.
func (g *EngineGenerator) Calculate(ctx context.Context) error {
	if g.groups == nil {
		if err := g.DistributeInstruments(); err != nil {
			return err
		}
	}
	start := time.Now()

	var eg errgroup.Group
	eg.SetLimit(g.workers)
	for i, group := range g.groups {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return g.runGroup(i, group)
		})
	}
	err := eg.Wait()

	if g.recorder != nil {
		g.recorder.RecordRun(len(g.groups), g.instruments.Len(), time.Since(start), err)
	}
	if err != nil {
		g.log.Errorw("Calculation failed", "error", err)
		return err
	}
	g.log.Infof("Calculated %d groups in %v", len(g.groups), time.Since(start))
	return nil
}

func (g *EngineGenerator) runGroup(groupID int, group *instrument.Instruments) (err error) {
	start := time.Now()
	defer func() {
		if g.recorder != nil {
			g.recorder.RecordGroup(groupID, group.Len(), time.Since(start), err)
		}
	}()

	engine := NewEngine(groupID, g.config, g.evaluationDate, g.matchParameter).
		WithInstruments(group).
		WithMarketData(g.data).
		WithLogger(g.log.Named("engine"))
	if err := engine.InitializePricers(); err != nil {
		return errors.Wrapf(err, "group %d", groupID)
	}
	if err := engine.Calculate(); err != nil {
		return errors.Wrapf(err, "group %d", groupID)
	}

	g.mu.Lock()
	for id, res := range engine.Results() {
		g.results[id] = res
	}
	g.mu.Unlock()
	return nil
}

// Results returns the merged results of every finished group.
func (g *EngineGenerator) Results() map[marketdata.StaticID]*CalculationResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[marketdata.StaticID]*CalculationResult, len(g.results))
	for id, res := range g.results {
		out[id] = res
	}
	return out
}
