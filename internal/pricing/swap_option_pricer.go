package pricing

import (
	"math"
	"time"

	"github.com/rzzdr/quant-pricing-engine/internal/instrument"
	"github.com/rzzdr/quant-pricing-engine/internal/marketdata"
	"github.com/rzzdr/quant-pricing-engine/internal/parameters"
	"github.com/rzzdr/quant-pricing-engine/internal/pricing/analytic"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/errors"
)

// PlainSwapPricer values fixed/floating swaps. An IRS discounts both legs on
// one curve. A CRS discounts each leg on its currency curve, exchanges
// notionals, and converts the floating leg into the fixed leg currency.
type PlainSwapPricer struct {
	evaluationDate    *parameters.EvaluationDate
	fixedCurve        *parameters.ZeroCurve
	floatingCurve     *parameters.ZeroCurve
	forwardCurve      *parameters.ZeroCurve
	pastFixings       *parameters.PastPrice
	floatingToFixedFx *parameters.MarketPrice
}

func NewPlainSwapPricer(
	evaluationDate *parameters.EvaluationDate,
	fixedCurve, floatingCurve, forwardCurve *parameters.ZeroCurve,
	pastFixings *parameters.PastPrice,
	floatingToFixedFx *parameters.MarketPrice,
) *PlainSwapPricer {
	return &PlainSwapPricer{
		evaluationDate:    evaluationDate,
		fixedCurve:        fixedCurve,
		floatingCurve:     floatingCurve,
		forwardCurve:      forwardCurve,
		pastFixings:       pastFixings,
		floatingToFixedFx: floatingToFixedFx,
	}
}

func (p *PlainSwapPricer) Kind() PricerKind { return KindPlainSwapPricer }

type legValues struct {
	fixed, floating float64
	cashflows       map[time.Time]float64
}

func (p *PlainSwapPricer) legs(swap *instrument.PlainSwap) (*legValues, error) {
	if !swap.HasMaturity() || swap.EffectiveDate.IsZero() {
		return nil, errors.InvalidArgumentf("swap %s (%s) needs effective date and maturity", swap.Name, swap.ID)
	}
	if swap.RateIndex == nil || p.forwardCurve == nil {
		return nil, errors.Configurationf("swap %s (%s) has no floating rate index curve", swap.Name, swap.ID)
	}
	dates, err := marketdata.Schedule(swap.EffectiveDate, swap.Maturity, swap.Frequency)
	if err != nil {
		return nil, errors.Wrapf(err, "payment schedule of %s", swap.ID)
	}

	today := p.evaluationDate.Date()
	out := &legValues{cashflows: make(map[time.Time]float64)}
	start := swap.EffectiveDate
	for _, end := range dates {
		if end.After(today) {
			tau := marketdata.YearFraction(start, end)
			rate, err := p.floatingRate(swap, start, end)
			if err != nil {
				return nil, err
			}
			fixedAmount := swap.FixedNotional * swap.FixedRate * tau
			floatingAmount := swap.FloatingNotional * (rate + swap.Spread) * tau
			out.fixed += fixedAmount * discountAt(p.fixedCurve, end)
			out.floating += floatingAmount * discountAt(p.floatingCurve, end)
			out.cashflows[end] += fixedAmount
		}
		start = end
	}

	if !swap.IsIRS() {
		if swap.EffectiveDate.After(today) {
			out.fixed -= swap.FixedNotional * discountAt(p.fixedCurve, swap.EffectiveDate)
			out.floating -= swap.FloatingNotional * discountAt(p.floatingCurve, swap.EffectiveDate)
		}
		if swap.Maturity.After(today) {
			out.fixed += swap.FixedNotional * discountAt(p.fixedCurve, swap.Maturity)
			out.floating += swap.FloatingNotional * discountAt(p.floatingCurve, swap.Maturity)
		}
	}
	return out, nil
}

func (p *PlainSwapPricer) floatingRate(swap *instrument.PlainSwap, start, end time.Time) (float64, error) {
	if start.After(p.evaluationDate.Date()) {
		return p.forwardCurve.ForwardRate(start, end)
	}
	if p.pastFixings == nil {
		return 0, missingParameter(swap, "past fixings", swap.RateIndex.ID)
	}
	fixing, err := p.pastFixings.Fixing(start)
	if err != nil {
		return 0, errors.Wrapf(err, "floating fixing of %s", swap.ID)
	}
	return fixing, nil
}

func (p *PlainSwapPricer) fxRate(swap *instrument.PlainSwap) (float64, error) {
	if swap.FixedLegCurrency == swap.FloatingLegCurrency {
		return 1.0, nil
	}
	if p.floatingToFixedFx == nil {
		return 0, errors.Configurationf("swap %s (%s) has no floating to fixed fx", swap.Name, swap.ID)
	}
	return p.floatingToFixedFx.Value(), nil
}

func sign(swap *instrument.PlainSwap) float64 {
	if swap.Direction == instrument.PayFixed {
		return -1.0
	}
	return 1.0
}

func (p *PlainSwapPricer) NPVResult(inst instrument.Instrument) (*NpvResult, error) {
	swap, ok := inst.(*instrument.PlainSwap)
	if !ok {
		return nil, wrongInstrument(p, inst)
	}
	legs, err := p.legs(swap)
	if err != nil {
		return nil, err
	}
	fx, err := p.fxRate(swap)
	if err != nil {
		return nil, err
	}
	return &NpvResult{
		NPV:       sign(swap) * (legs.fixed - legs.floating*fx),
		Cashflows: legs.cashflows,
	}, nil
}

func (p *PlainSwapPricer) NPV(inst instrument.Instrument) (float64, error) {
	res, err := p.NPVResult(inst)
	if err != nil {
		return 0, err
	}
	return res.NPV, nil
}

// FxExposure of a CRS is split by leg currency; an IRS is exposed in its
// own currency only.
func (p *PlainSwapPricer) FxExposure(inst instrument.Instrument, npv float64) (map[marketdata.Currency]float64, error) {
	swap, ok := inst.(*instrument.PlainSwap)
	if !ok {
		return nil, wrongInstrument(p, inst)
	}
	if swap.IsIRS() {
		return npvExposure(inst, npv), nil
	}
	legs, err := p.legs(swap)
	if err != nil {
		return nil, err
	}
	s := sign(swap)
	return map[marketdata.Currency]float64{
		swap.FixedLegCurrency:    s * legs.fixed,
		swap.FloatingLegCurrency: -s * legs.floating,
	}, nil
}

// VanillaOptionPricer prices European options with the Black formula on the
// dividend and borrow adjusted forward.
type VanillaOptionPricer struct {
	evaluationDate  *parameters.EvaluationDate
	equity          *parameters.MarketPrice
	collateralCurve *parameters.ZeroCurve
	borrowingCurve  *parameters.ZeroCurve
	discountCurve   *parameters.ZeroCurve
	volatility      parameters.Volatility
	quanto          *parameters.Quanto
}

// NewVanillaOptionPricer accepts a nil discountCurve for daily settled
// options and a nil quanto when the option pays in the underlying currency.
func NewVanillaOptionPricer(
	evaluationDate *parameters.EvaluationDate,
	equity *parameters.MarketPrice,
	collateralCurve, borrowingCurve, discountCurve *parameters.ZeroCurve,
	volatility parameters.Volatility,
	quanto *parameters.Quanto,
) *VanillaOptionPricer {
	return &VanillaOptionPricer{
		evaluationDate:  evaluationDate,
		equity:          equity,
		collateralCurve: collateralCurve,
		borrowingCurve:  borrowingCurve,
		discountCurve:   discountCurve,
		volatility:      volatility,
		quanto:          quanto,
	}
}

func (p *VanillaOptionPricer) Kind() PricerKind { return KindVanillaOptionPricer }

// quantoDrift is exp(-vol * fxVol * correlation * t).
func quantoDrift(vol parameters.Volatility, quanto *parameters.Quanto, t, moneyness float64) float64 {
	if vol == nil || quanto == nil {
		return 1.0
	}
	return math.Exp(-vol.Value(t, moneyness) * quanto.Adjust(t, moneyness) * t)
}

func (p *VanillaOptionPricer) NPV(inst instrument.Instrument) (float64, error) {
	option, ok := inst.(*instrument.VanillaOption)
	if !ok {
		return 0, wrongInstrument(p, inst)
	}
	if option.Method != instrument.Analytic {
		return 0, errors.Unsupportedf("%s pricing of %s is not supported", option.Method, option.ID)
	}
	maturity, err := maturityOf(inst)
	if err != nil {
		return 0, err
	}

	spot := p.equity.Value()
	t := marketdata.YearFraction(p.evaluationDate.Date(), maturity)
	forward := spot * p.equity.DividendDeductionRatio(maturity) *
		discountAt(p.borrowingCurve, maturity) / discountAt(p.collateralCurve, maturity)

	variance := 0.0
	if t > 0 {
		moneyness := option.Strike / spot
		forward *= quantoDrift(p.volatility, p.quanto, t, moneyness)
		variance = p.volatility.TotalVariance(t, moneyness)
	}
	return analytic.Black(option.OptionType == instrument.Call, forward, option.Strike, variance, discountAt(p.discountCurve, maturity))
}

func (p *VanillaOptionPricer) NPVResult(inst instrument.Instrument) (*NpvResult, error) {
	npv, err := p.NPV(inst)
	if err != nil {
		return nil, err
	}
	return NewNpvResult(npv), nil
}

func (p *VanillaOptionPricer) FxExposure(inst instrument.Instrument, npv float64) (map[marketdata.Currency]float64, error) {
	return npvExposure(inst, npv), nil
}
