package pricing

import (
	"github.com/rzzdr/quant-pricing-engine/internal/instrument"
	"github.com/rzzdr/quant-pricing-engine/internal/marketdata"
	"github.com/rzzdr/quant-pricing-engine/internal/parameters"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/errors"
)

// KtbfDiscountCurveID is the government curve every KTBF deliverable is priced on.
var KtbfDiscountCurveID = marketdata.NewStaticID("KRWGOV", "KAP")

// ParameterSet is the mutable market state of one engine. Nothing in it is
// shared with another engine.
type ParameterSet struct {
	EvaluationDate *parameters.EvaluationDate
	Fxs            map[marketdata.FxCode]*parameters.MarketPrice
	Equities       map[marketdata.StaticID]*parameters.MarketPrice
	Dividends      map[marketdata.StaticID]*parameters.DiscreteRatioDividend
	ZeroCurves     map[marketdata.StaticID]*parameters.ZeroCurve
	Volatilities   map[marketdata.StaticID]parameters.Volatility
	Quantos        map[marketdata.QuantoKey]*parameters.Quanto
	PastPrices     map[marketdata.StaticID]*parameters.PastPrice
}

func newParameterSet(evaluationDate *parameters.EvaluationDate) *ParameterSet {
	return &ParameterSet{
		EvaluationDate: evaluationDate,
		Fxs:            make(map[marketdata.FxCode]*parameters.MarketPrice),
		Equities:       make(map[marketdata.StaticID]*parameters.MarketPrice),
		Dividends:      make(map[marketdata.StaticID]*parameters.DiscreteRatioDividend),
		ZeroCurves:     make(map[marketdata.StaticID]*parameters.ZeroCurve),
		Volatilities:   make(map[marketdata.StaticID]parameters.Volatility),
		Quantos:        make(map[marketdata.QuantoKey]*parameters.Quanto),
		PastPrices:     make(map[marketdata.StaticID]*parameters.PastPrice),
	}
}

// PricerFactory builds the pricer matching an instrument's variant.
type PricerFactory struct {
	params         *ParameterSet
	matchParameter *MatchParameter
}

func NewPricerFactory(params *ParameterSet, matchParameter *MatchParameter) *PricerFactory {
	return &PricerFactory{params: params, matchParameter: matchParameter}
}

func missingParameter(inst instrument.Instrument, role string, key any) error {
	info := inst.Info()
	return errors.Configurationf("%s (%s): %s %v is not in the market data", info.Name, info.ID, role, key)
}

// curve returns nil for the sentinel id.
func (f *PricerFactory) curve(inst instrument.Instrument, role string, id marketdata.StaticID) (*parameters.ZeroCurve, error) {
	if id.IsNone() {
		return nil, nil
	}
	c, ok := f.params.ZeroCurves[id]
	if !ok {
		return nil, missingParameter(inst, role+" curve", id)
	}
	return c, nil
}

func (f *PricerFactory) equity(inst instrument.Instrument, id marketdata.StaticID) (*parameters.MarketPrice, error) {
	p, ok := f.params.Equities[id]
	if !ok {
		return nil, missingParameter(inst, "equity", id)
	}
	return p, nil
}

func (f *PricerFactory) CreatePricer(inst instrument.Instrument) (Pricer, error) {
	switch v := inst.(type) {
	case *instrument.Futures:
		return f.futuresPricer(v)
	case *instrument.Bond:
		return f.bondPricer(v)
	case *instrument.KTBF:
		return f.ktbfPricer(v)
	case *instrument.FxFutures:
		return f.fxFuturesPricer(v)
	case *instrument.PlainSwap:
		return f.plainSwapPricer(v)
	case *instrument.VanillaOption:
		return f.vanillaOptionPricer(v)
	case *instrument.Stock:
		equity, err := f.equity(inst, v.ID)
		if err != nil {
			return nil, err
		}
		return NewIdentityPricer(equity), nil
	case *instrument.Cash:
		return NewUnitPricer(), nil
	default:
		info := inst.Info()
		return nil, errors.Unsupportedf("no pricer for %s %s (%s)", inst.Kind(), info.Name, info.ID)
	}
}

// equityCurves resolves spot, collateral and borrowing curves of a single
// underlying instrument.
func (f *PricerFactory) equityCurves(inst instrument.Instrument, und marketdata.StaticID) (*parameters.MarketPrice, *parameters.ZeroCurve, *parameters.ZeroCurve, error) {
	equity, err := f.equity(inst, und)
	if err != nil {
		return nil, nil, nil, err
	}
	collateralID, err := f.matchParameter.CollateralCurveID(inst, und)
	if err != nil {
		return nil, nil, nil, err
	}
	collateral, err := f.curve(inst, "collateral", collateralID)
	if err != nil {
		return nil, nil, nil, err
	}
	borrowingIDs, err := f.matchParameter.BorrowingCurveIDs(inst)
	if err != nil {
		return nil, nil, nil, err
	}
	borrowing, err := f.curve(inst, "borrowing", borrowingIDs[0])
	if err != nil {
		return nil, nil, nil, err
	}
	return equity, collateral, borrowing, nil
}

// quanto is nil unless the underlying trades in another currency.
func (f *PricerFactory) quanto(inst instrument.Instrument) (*parameters.Quanto, parameters.Volatility, error) {
	pairs := instrument.QuantoPairsOf(inst)
	if len(pairs) == 0 {
		return nil, nil, nil
	}
	q, ok := f.params.Quantos[pairs[0]]
	if !ok {
		return nil, nil, missingParameter(inst, "quanto", pairs[0])
	}
	vol, ok := f.params.Volatilities[pairs[0].UnderlyingID]
	if !ok {
		return nil, nil, missingParameter(inst, "volatility", pairs[0].UnderlyingID)
	}
	return q, vol, nil
}

func (f *PricerFactory) futuresPricer(fut *instrument.Futures) (Pricer, error) {
	equity, collateral, borrowing, err := f.equityCurves(fut, fut.UnderlyingID)
	if err != nil {
		return nil, err
	}
	p := NewFuturesPricer(f.params.EvaluationDate, equity, collateral, borrowing)
	q, vol, err := f.quanto(fut)
	if err != nil {
		return nil, err
	}
	if q != nil {
		p.WithQuanto(vol, q)
	}
	return p, nil
}

func (f *PricerFactory) bondPricer(bond *instrument.Bond) (Pricer, error) {
	discountID, err := f.matchParameter.DiscountCurveID(bond)
	if err != nil {
		return nil, err
	}
	discount, err := f.curve(bond, "discount", discountID)
	if err != nil {
		return nil, err
	}
	if !bond.IsFloating() {
		return NewBondPricer(f.params.EvaluationDate, discount, nil, nil), nil
	}

	forwardID, err := f.matchParameter.RateIndexCurveID(bond)
	if err != nil {
		return nil, err
	}
	forward, err := f.curve(bond, "forward", forwardID)
	if err != nil {
		return nil, err
	}
	// nil until a coupon has fixed; the pricer reports it then
	fixings := f.params.PastPrices[bond.RateIndex.ID]
	return NewBondPricer(f.params.EvaluationDate, discount, forward, fixings), nil
}

// ktbfPricer resolves the borrowing curve through the contract's borrowing
// key since a KTBF lists no underlying ids.
func (f *PricerFactory) ktbfPricer(ktbf *instrument.KTBF) (Pricer, error) {
	discount, err := f.curve(ktbf, "discount", KtbfDiscountCurveID)
	if err != nil {
		return nil, err
	}
	if discount == nil {
		return nil, missingParameter(ktbf, "discount curve", KtbfDiscountCurveID)
	}
	borrowingIDs, err := f.matchParameter.BorrowingCurveIDs(ktbf)
	if err != nil {
		return nil, err
	}
	borrowing, err := f.curve(ktbf, "borrowing", borrowingIDs[0])
	if err != nil {
		return nil, err
	}
	return NewKtbfPricer(f.params.EvaluationDate, discount, borrowing), nil
}

func (f *PricerFactory) fxFuturesPricer(fut *instrument.FxFutures) (Pricer, error) {
	code := fut.UnderlyingFxCode()
	fx, ok := f.params.Fxs[code]
	if !ok {
		return nil, missingParameter(fut, "fx", code)
	}
	undID, err := f.matchParameter.FloatingCrsCurveID(fut)
	if err != nil {
		return nil, err
	}
	und, err := f.curve(fut, "underlying currency", undID)
	if err != nil {
		return nil, err
	}
	futID, err := f.matchParameter.CrsCurveID(fut)
	if err != nil {
		return nil, err
	}
	futCurve, err := f.curve(fut, "futures currency", futID)
	if err != nil {
		return nil, err
	}
	return NewFxFuturesPricer(fx, und, futCurve), nil
}

func (f *PricerFactory) plainSwapPricer(swap *instrument.PlainSwap) (Pricer, error) {
	forwardID, err := f.matchParameter.RateIndexCurveID(swap)
	if err != nil {
		return nil, err
	}
	forward, err := f.curve(swap, "forward", forwardID)
	if err != nil {
		return nil, err
	}

	var fixed, floating *parameters.ZeroCurve
	if swap.IsIRS() {
		discountID, err := f.matchParameter.DiscountCurveID(swap)
		if err != nil {
			return nil, err
		}
		if fixed, err = f.curve(swap, "discount", discountID); err != nil {
			return nil, err
		}
		floating = fixed
	} else {
		fixedID, err := f.matchParameter.CrsCurveID(swap)
		if err != nil {
			return nil, err
		}
		if fixed, err = f.curve(swap, "fixed leg", fixedID); err != nil {
			return nil, err
		}
		floatingID, err := f.matchParameter.FloatingCrsCurveID(swap)
		if err != nil {
			return nil, err
		}
		if floating, err = f.curve(swap, "floating leg", floatingID); err != nil {
			return nil, err
		}
	}

	var fixings *parameters.PastPrice
	if swap.RateIndex != nil {
		fixings = f.params.PastPrices[swap.RateIndex.ID]
	}

	var fx *parameters.MarketPrice
	if swap.FloatingToFixedFx != nil {
		var ok bool
		if fx, ok = f.params.Fxs[*swap.FloatingToFixedFx]; !ok {
			return nil, missingParameter(swap, "fx", *swap.FloatingToFixedFx)
		}
	}
	return NewPlainSwapPricer(f.params.EvaluationDate, fixed, floating, forward, fixings, fx), nil
}

func (f *PricerFactory) vanillaOptionPricer(option *instrument.VanillaOption) (Pricer, error) {
	if option.Method != instrument.Analytic {
		return nil, errors.Unsupportedf("%s (%s): %s pricing is not supported", option.Name, option.ID, option.Method)
	}
	equity, collateral, borrowing, err := f.equityCurves(option, option.UnderlyingID)
	if err != nil {
		return nil, err
	}
	vol, ok := f.params.Volatilities[option.UnderlyingID]
	if !ok {
		return nil, missingParameter(option, "volatility", option.UnderlyingID)
	}
	discountID, err := f.matchParameter.DiscountCurveID(option)
	if err != nil {
		return nil, err
	}
	discount, err := f.curve(option, "discount", discountID)
	if err != nil {
		return nil, err
	}
	q, _, err := f.quanto(option)
	if err != nil {
		return nil, err
	}
	return NewVanillaOptionPricer(f.params.EvaluationDate, equity, collateral, borrowing, discount, vol, q), nil
}
