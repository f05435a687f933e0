package scenario

import (
	"context"
	"time"

	"github.com/rzzdr/quant-pricing-engine/internal/marketdata"
	"github.com/rzzdr/quant-pricing-engine/internal/pricing"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/errors"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/logger"
)

// RunOptions tune a single run. Zero values fall back to the defaults of
// the pricing package; Currency NIL keeps the scenario's own choice.
type RunOptions struct {
	Config   *pricing.CalculationConfiguration
	Workers  int
	Currency marketdata.Currency
	Recorder pricing.Recorder
	Logger   *logger.Logger
}

// Outcome is what a finished run produced. Currency is NIL when every
// result stays in its instrument's currency.
type Outcome struct {
	Results  map[marketdata.StaticID]*pricing.CalculationResult
	Currency marketdata.Currency
	Groups   int
	Duration time.Duration
}

// Calculate prices every instrument and re-expresses the results in the
// representation currency when one is set.
func (s *Scenario) Calculate(ctx context.Context, opts RunOptions) (*Outcome, error) {
	config := opts.Config
	if config == nil {
		config = pricing.DefaultCalculationConfiguration()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger("scenario")
	}

	start := time.Now()
	g := pricing.NewEngineGenerator().
		WithConfiguration(config, s.EvaluationDate, s.MatchParameter).
		WithInstruments(s.Instruments).
		WithInstrumentCategories(s.Categories).
		WithMarketData(s.MarketData).
		WithLogger(log.Named("generator"))
	if opts.Workers > 0 {
		g = g.WithWorkers(opts.Workers)
	}
	if opts.Recorder != nil {
		g = g.WithRecorder(opts.Recorder)
	}
	if err := g.Calculate(ctx); err != nil {
		return nil, err
	}

	results := g.Results()
	target := opts.Currency
	if target == marketdata.NIL {
		target = s.RepresentationCurrency
	}
	if target != marketdata.NIL {
		converted, err := Convert(results, s.MarketData, target)
		if err != nil {
			return nil, err
		}
		results = converted
	}
	return &Outcome{Results: results, Currency: target, Groups: len(g.Groups()), Duration: time.Since(start)}, nil
}

// Convert re-expresses each result in target at the spot rate found in data.
func Convert(results map[marketdata.StaticID]*pricing.CalculationResult, data *marketdata.MarketData, target marketdata.Currency) (map[marketdata.StaticID]*pricing.CalculationResult, error) {
	out := make(map[marketdata.StaticID]*pricing.CalculationResult, len(results))
	for id, res := range results {
		code := marketdata.NewFxCode(res.RepresentationCurrency, target)
		rate, ok := data.FxRate(code)
		if !ok {
			return nil, errors.Configurationf("%s: fx rate %s is not in the market data", id, code)
		}
		converted, err := res.RepresentationCurrencyConversion(target, rate)
		if err != nil {
			return nil, errors.Wrapf(err, "%s", id)
		}
		out[id] = converted
	}
	return out, nil
}
