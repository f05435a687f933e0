package pricing

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/rzzdr/quant-pricing-engine/internal/instrument"
	"github.com/rzzdr/quant-pricing-engine/internal/marketdata"
	"github.com/rzzdr/quant-pricing-engine/internal/parameters"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/errors"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/logger"
)

// Engine prices one group of instruments. It builds its own parameter
// objects from the shared raw data, so bumps and date shifts stay local.
// An Engine is not safe for concurrent use.
type Engine struct {
	groupID        int
	config         *CalculationConfiguration
	evaluationDate time.Time
	matchParameter *MatchParameter

	instruments *instrument.Instruments
	data        *marketdata.MarketData

	params  *ParameterSet
	pricers map[marketdata.StaticID]Pricer
	results map[marketdata.StaticID]*CalculationResult

	log *logger.Logger
}

func NewEngine(groupID int, config *CalculationConfiguration, evaluationDate time.Time, matchParameter *MatchParameter) *Engine {
	if config == nil {
		config = DefaultCalculationConfiguration()
	}
	return &Engine{
		groupID:        groupID,
		config:         config,
		evaluationDate: evaluationDate,
		matchParameter: matchParameter,
		results:        make(map[marketdata.StaticID]*CalculationResult),
		log:            logger.GetLogger("pricing.engine").With("group", groupID),
	}
}

func (e *Engine) WithInstruments(instruments *instrument.Instruments) *Engine {
	e.instruments = instruments
	return e
}

// WithMarketData sets the shared raw data. The engine only reads it.
func (e *Engine) WithMarketData(data *marketdata.MarketData) *Engine {
	e.data = data
	return e
}

func (e *Engine) WithLogger(log *logger.Logger) *Engine {
	e.log = log.With("group", e.groupID)
	return e
}

func (e *Engine) GroupID() int { return e.groupID }

// Parameters exposes the engine's own market state.
func (e *Engine) Parameters() *ParameterSet { return e.params }

// Results maps instrument ids to their results.
func (e *Engine) Results() map[marketdata.StaticID]*CalculationResult { return e.results }

// InitializePricers builds the group's parameters, syncs them to the
// evaluation date and creates one pricer per instrument.
func (e *Engine) InitializePricers() error {
	if e.instruments == nil || e.data == nil {
		return errors.Consistencyf("engine %d: instruments and market data must be set before pricing", e.groupID)
	}
	if err := e.buildParameters(); err != nil {
		return err
	}

	factory := NewPricerFactory(e.params, e.matchParameter)
	e.pricers = make(map[marketdata.StaticID]Pricer, e.instruments.Len())
	for _, inst := range e.instruments.All() {
		p, err := factory.CreatePricer(inst)
		if err != nil {
			return err
		}
		e.pricers[inst.Info().ID] = p
	}
	e.log.Debugw("Pricers initialized", "instruments", e.instruments.Len(), "curves", len(e.params.ZeroCurves))
	return nil
}

func (e *Engine) buildParameters() error {
	e.params = newParameterSet(parameters.NewEvaluationDate(e.evaluationDate))
	for _, inst := range e.instruments.All() {
		if err := e.buildInstrumentParameters(inst); err != nil {
			return err
		}
	}
	return e.params.EvaluationDate.NotifyObservers()
}

// buildInstrumentParameters builds whatever inst reads that an earlier
// instrument of the group did not. A missing input is reported with the
// instrument and the role it plays for it.
func (e *Engine) buildInstrumentParameters(inst instrument.Instrument) error {
	info := inst.Info()
	evalDate := e.params.EvaluationDate

	for _, id := range instrument.PricedUnderlyingIDs(inst) {
		if _, done := e.params.Equities[id]; done {
			continue
		}
		if err := e.buildEquity(inst, id); err != nil {
			return err
		}
	}

	for _, code := range instrument.FxCodesForPricing(inst) {
		if _, done := e.params.Fxs[code]; done {
			continue
		}
		rate, ok := e.data.FxRate(code)
		if !ok {
			return missingParameter(inst, "fx", code)
		}
		marketDatetime := e.evaluationDate
		if v, ok := e.data.Fx[code]; ok {
			marketDatetime = v.MarketDatetime
		}
		fx := parameters.NewMarketPrice(rate, marketDatetime, nil, code.Currency2, code.String(), marketdata.NewStaticID(code.String(), "FX"))
		e.params.Fxs[code] = fx
		evalDate.RegisterMarketPrice(fx)
	}

	requirements, err := e.curveRequirements(inst)
	if err != nil {
		return err
	}
	for _, req := range requirements {
		if _, done := e.params.ZeroCurves[req.id]; done {
			continue
		}
		data, ok := e.data.Curves[req.id]
		if !ok {
			return missingParameter(inst, req.role+" curve", req.id)
		}
		curve, err := parameters.NewZeroCurve(evalDate, data)
		if err != nil {
			return errors.Wrapf(err, "%s (%s): %s curve", info.Name, info.ID, req.role)
		}
		e.params.ZeroCurves[req.id] = curve
	}

	for _, id := range instrument.VolatilityUnderlyingIDs(inst) {
		if _, done := e.params.Volatilities[id]; done {
			continue
		}
		vol, err := e.buildVolatility(inst, id)
		if err != nil {
			return err
		}
		e.params.Volatilities[id] = vol
	}

	for _, key := range instrument.QuantoPairsOf(inst) {
		if _, done := e.params.Quantos[key]; done {
			continue
		}
		corr, ok := e.data.QuantoCorrelations[key]
		if !ok {
			return missingParameter(inst, "quanto correlation", key)
		}
		fxVol, ok := e.data.FxConstantVols[key.FxCode]
		if !ok {
			return missingParameter(inst, "fx volatility", key.FxCode)
		}
		q, err := parameters.NewQuanto(parameters.NewConstantVolatility(fxVol), corr.Value, key.FxCode, key.UnderlyingID)
		if err != nil {
			return errors.Wrapf(err, "%s (%s): quanto", info.Name, info.ID)
		}
		e.params.Quantos[key] = q
	}

	index, err := instrument.RateIndexOf(inst)
	if err == nil && index != nil {
		if daily, ok := e.data.PastDailyValues[index.ID]; ok {
			e.params.PastPrices[index.ID] = parameters.NewPastPrice(daily)
		}
	}
	return nil
}

func (e *Engine) buildEquity(inst instrument.Instrument, id marketdata.StaticID) error {
	spot, ok := e.data.Stocks[id]
	if !ok {
		return missingParameter(inst, "equity", id)
	}
	var dividend *parameters.DiscreteRatioDividend
	if data, ok := e.data.Dividends[id]; ok {
		d, err := parameters.NewDiscreteRatioDividend(data, spot.Value, e.evaluationDate)
		if err != nil {
			info := inst.Info()
			return errors.Wrapf(err, "%s (%s): dividend of %s", info.Name, info.ID, id)
		}
		dividend = d
		e.params.Dividends[id] = d
		e.params.EvaluationDate.RegisterDividend(d)
	}
	price := parameters.NewMarketPriceFromData(spot, dividend)
	e.params.Equities[id] = price
	e.params.EvaluationDate.RegisterMarketPrice(price)
	return nil
}

func (e *Engine) buildVolatility(inst instrument.Instrument, id marketdata.StaticID) (parameters.Volatility, error) {
	if data, ok := e.data.EquityVolSurfaces[id]; ok {
		surface, err := parameters.NewVolatilitySurface(data)
		if err != nil {
			info := inst.Info()
			return nil, errors.Wrapf(err, "%s (%s): volatility surface of %s", info.Name, info.ID, id)
		}
		return surface, nil
	}
	if flat, ok := e.data.EquityConstantVols[id]; ok {
		return parameters.NewConstantVolatility(flat), nil
	}
	return nil, missingParameter(inst, "volatility", id)
}

// curveRequirement is a curve an instrument reads and what it reads it for.
type curveRequirement struct {
	role string
	id   marketdata.StaticID
}

func (e *Engine) curveRequirements(inst instrument.Instrument) ([]curveRequirement, error) {
	var out []curveRequirement
	add := func(role string, ids ...marketdata.StaticID) {
		for _, id := range ids {
			if !id.IsNone() {
				out = append(out, curveRequirement{role: role, id: id})
			}
		}
	}
	mp := e.matchParameter

	discount, err := mp.DiscountCurveID(inst)
	if err != nil {
		return nil, err
	}
	add("discount", discount)
	collateral, err := mp.CollateralCurveIDs(inst)
	if err != nil {
		return nil, err
	}
	add("collateral", collateral...)
	forward, err := mp.RateIndexCurveID(inst)
	if err != nil {
		return nil, err
	}
	add("forward", forward)
	crs, err := mp.CrsCurveID(inst)
	if err != nil {
		return nil, err
	}
	add("crs", crs)
	floatingCrs, err := mp.FloatingCrsCurveID(inst)
	if err != nil {
		return nil, err
	}
	add("floating crs", floatingCrs)

	if len(inst.UnderlyingIDs()) > 0 || len(instrument.BorrowingCurveIDsOf(inst)) > 0 {
		borrowing, err := mp.BorrowingCurveIDs(inst)
		if err != nil {
			return nil, err
		}
		add("borrowing", borrowing...)
	}
	if inst.Kind() == instrument.KindKTBF {
		add("discount", KtbfDiscountCurveID)
	}
	return out, nil
}

// instrumentCurveIDs lists the distinct curves inst reads.
func (e *Engine) instrumentCurveIDs(inst instrument.Instrument) ([]marketdata.StaticID, error) {
	requirements, err := e.curveRequirements(inst)
	if err != nil {
		return nil, err
	}
	var ids []marketdata.StaticID
	for _, req := range requirements {
		ids = appendUniqueIDs(ids, req.id)
	}
	return ids, nil
}

func appendUniqueIDs(dst []marketdata.StaticID, ids ...marketdata.StaticID) []marketdata.StaticID {
	for _, id := range ids {
		if id.IsNone() {
			continue
		}
		found := false
		for _, d := range dst {
			if d == id {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, id)
		}
	}
	return dst
}

// Calculate prices every instrument and computes the configured
// sensitivities. Any failure aborts the group.
func (e *Engine) Calculate() error {
	if e.pricers == nil {
		return errors.Consistencyf("engine %d: pricers are not initialized", e.groupID)
	}
	start := time.Now()
	for _, inst := range e.instruments.All() {
		res, err := e.calculateInstrument(inst)
		if err != nil {
			info := inst.Info()
			return errors.Wrapf(err, "calculation of %s (%s)", info.Name, info.ID)
		}
		e.results[inst.Info().ID] = res
	}
	e.log.Infof("Calculated %d instruments in %v", e.instruments.Len(), time.Since(start))
	return nil
}

func (e *Engine) calculateInstrument(inst instrument.Instrument) (*CalculationResult, error) {
	pricer := e.pricers[inst.Info().ID]
	info := inst.Info()
	res := NewCalculationResult(*info, e.evaluationDate)

	npvResult, err := pricer.NPVResult(inst)
	if err != nil {
		return nil, err
	}
	res.SetNPV(npvResult)
	if err := res.SetValue(); err != nil {
		return nil, err
	}
	base := *res.Value

	if e.config.FxExposure {
		exposure, err := pricer.FxExposure(inst, npvResult.NPV)
		if err != nil {
			return nil, err
		}
		res.FxExposure = scaleMap(exposure, info.UnitNotional)
	}

	value := func() (float64, error) {
		npv, err := pricer.NPV(inst)
		return npv * info.UnitNotional, err
	}

	cfg := e.config
	if cfg.Delta || cfg.Gamma {
		if err := e.spotGreeks(inst, res, base, value); err != nil {
			return nil, err
		}
	}
	if cfg.Vega || cfg.VegaStructure || cfg.VegaMatrix {
		if err := e.volGreeks(inst, res, base, value); err != nil {
			return nil, err
		}
	}
	if cfg.Theta {
		if err := e.theta(res, base, value); err != nil {
			return nil, err
		}
	}
	if cfg.Rho || cfg.RhoStructure {
		if err := e.rateGreeks(inst, res, base, value); err != nil {
			return nil, err
		}
	}
	if cfg.DivDelta || cfg.DivStructure {
		if err := e.dividendGreeks(inst, res, base, value); err != nil {
			return nil, err
		}
	}
	return res, nil
}

type valuation func() (float64, error)

// spotGreeks are per 1% spot move; the bumped price is restored exactly.
func (e *Engine) spotGreeks(inst instrument.Instrument, res *CalculationResult, base float64, value valuation) error {
	h := e.config.DeltaBumpRatio
	for _, id := range instrument.PricedUnderlyingIDs(inst) {
		price := e.params.Equities[id]
		spot := price.Value()

		price.SetValue(spot * (1 + h))
		up, err := value()
		if err != nil {
			price.SetValue(spot)
			return err
		}
		price.SetValue(spot * (1 - h))
		down, err := value()
		price.SetValue(spot)
		if err != nil {
			return err
		}

		if e.config.Delta {
			res.SetSingleDelta(id, (up-down)/(2*h)*0.01)
		}
		if e.config.Gamma {
			res.SetSingleGamma(id, (up-2*base+down)/(h*h)*0.0001)
		}
	}
	return nil
}

// bumped applies bump, revalues and undoes it through reset.
func bumped(bump func(), reset func(), value valuation, base float64) (float64, error) {
	bump()
	v, err := value()
	reset()
	if err != nil {
		return 0, err
	}
	return v - base, nil
}

// volGreeks are per one vol point.
func (e *Engine) volGreeks(inst instrument.Instrument, res *CalculationResult, base float64, value valuation) error {
	b := e.config.VegaBump
	scale := 0.01 / b
	for _, id := range instrument.VolatilityUnderlyingIDs(inst) {
		vol := e.params.Volatilities[id]

		if e.config.Vega {
			diff, err := bumped(func() { vol.BumpTimeInterval(0, 1e9, b) }, vol.ResetBumps, value, base)
			if err != nil {
				return err
			}
			res.SetSingleVega(id, diff*scale)
		}

		if e.config.VegaStructure {
			points, err := tenorTimes(e.config.VegaTenors)
			if err != nil {
				return err
			}
			structure := make([]float64, len(points))
			for i, bucket := range buckets(points) {
				diff, err := bumped(func() { vol.BumpTimeInterval(bucket[0], bucket[1], b) }, vol.ResetBumps, value, base)
				if err != nil {
					return err
				}
				structure[i] = diff * scale
			}
			res.SetSingleVegaStructure(id, structure)
		}

		surface, ok := vol.(*parameters.VolatilitySurface)
		if e.config.VegaMatrix && ok {
			rows, cols := surface.Dims()
			m := mat.NewDense(rows, cols, nil)
			for i := 0; i < rows; i++ {
				for j := 0; j < cols; j++ {
					diff, err := bumped(func() { surface.BumpNode(i, j, b) }, surface.ResetBumps, value, base)
					if err != nil {
						return err
					}
					m.Set(i, j, diff*scale)
				}
			}
			res.SetSingleVegaMatrix(id, m)
		}
	}
	return nil
}

// theta moves the evaluation date forward and back through the observer
// graph, so dividends and curve times follow.
func (e *Engine) theta(res *CalculationResult, base float64, value valuation) error {
	evalDate := e.params.EvaluationDate
	days := e.config.ThetaDay
	if err := evalDate.SetDate(e.evaluationDate.AddDate(0, 0, days)); err != nil {
		return err
	}
	shifted, valueErr := value()
	if err := evalDate.SetDate(e.evaluationDate); err != nil {
		return err
	}
	if valueErr != nil {
		return valueErr
	}
	res.SetTheta(shifted-base, days)
	return nil
}

// rateGreeks are per basis point on every curve the instrument reads.
func (e *Engine) rateGreeks(inst instrument.Instrument, res *CalculationResult, base float64, value valuation) error {
	b := e.config.RhoBump
	scale := 0.0001 / b
	ids, err := e.instrumentCurveIDs(inst)
	if err != nil {
		return err
	}
	for _, id := range ids {
		curve := e.params.ZeroCurves[id]

		if e.config.Rho {
			diff, err := bumped(func() { curve.BumpTimeInterval(0, 1e9, b) }, curve.ResetBumps, value, base)
			if err != nil {
				return err
			}
			res.SetSingleRho(id, diff*scale)
		}

		if e.config.RhoStructure {
			points, err := tenorTimes(e.config.RhoTenors)
			if err != nil {
				return err
			}
			structure := make([]float64, len(points))
			for i, bucket := range buckets(points) {
				diff, err := bumped(func() { curve.BumpTimeInterval(bucket[0], bucket[1], b) }, curve.ResetBumps, value, base)
				if err != nil {
					return err
				}
				structure[i] = diff * scale
			}
			res.SetSingleRhoStructure(id, structure)
		}
	}
	return nil
}

// dividendGreeks are per 1% relative change of the dividend ratios.
func (e *Engine) dividendGreeks(inst instrument.Instrument, res *CalculationResult, base float64, value valuation) error {
	b := e.config.DivBumpRatio
	scale := 0.01 / b
	for _, id := range instrument.PricedUnderlyingIDs(inst) {
		dividend, ok := e.params.Dividends[id]
		if !ok {
			continue
		}

		if e.config.DivDelta {
			diff, err := bumped(func() { dividend.BumpRatios(0, 1e9, b) }, dividend.ResetBumps, value, base)
			if err != nil {
				return err
			}
			res.SetSingleDivDelta(id, diff*scale)
		}

		if e.config.DivStructure {
			points, err := tenorTimes(e.config.DivTenors)
			if err != nil {
				return err
			}
			structure := make([]float64, len(points))
			for i, bucket := range buckets(points) {
				diff, err := bumped(func() { dividend.BumpRatios(bucket[0], bucket[1], b) }, dividend.ResetBumps, value, base)
				if err != nil {
					return err
				}
				structure[i] = diff * scale
			}
			res.SetSingleDivStructure(id, structure)
		}
	}
	return nil
}
