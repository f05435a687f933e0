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

// BondPricer discounts the coupons and principal paid after the evaluation
// date. Amounts are per unit of face value.
type BondPricer struct {
	evaluationDate *parameters.EvaluationDate
	discountCurve  *parameters.ZeroCurve
	forwardCurve   *parameters.ZeroCurve
	pastFixings    *parameters.PastPrice
}

// NewBondPricer accepts a nil discountCurve for bonds with no mapped curve;
// their cashflows are left undiscounted. pastFixings may be nil while no
// coupon has fixed yet.
func NewBondPricer(evaluationDate *parameters.EvaluationDate, discountCurve, forwardCurve *parameters.ZeroCurve, pastFixings *parameters.PastPrice) *BondPricer {
	return &BondPricer{
		evaluationDate: evaluationDate,
		discountCurve:  discountCurve,
		forwardCurve:   forwardCurve,
		pastFixings:    pastFixings,
	}
}

func (p *BondPricer) Kind() PricerKind { return KindBondPricer }

// Cashflows returns the coupon and principal amounts paid after the
// evaluation date, keyed by payment date.
func (p *BondPricer) Cashflows(bond *instrument.Bond) (map[time.Time]float64, error) {
	if !bond.HasMaturity() || bond.IssueDate.IsZero() {
		return nil, errors.InvalidArgumentf("bond %s (%s) needs issue date and maturity", bond.Name, bond.ID)
	}
	if bond.IsFloating() && p.forwardCurve == nil {
		return nil, errors.Configurationf("floating bond %s (%s) has no forward curve", bond.Name, bond.ID)
	}
	dates, err := marketdata.Schedule(bond.IssueDate, bond.Maturity, bond.Frequency)
	if err != nil {
		return nil, errors.Wrapf(err, "coupon schedule of %s", bond.ID)
	}

	today := p.evaluationDate.Date()
	flows := make(map[time.Time]float64, len(dates))
	start := bond.IssueDate
	for _, end := range dates {
		if end.After(today) && !bond.Frequency.IsZero() {
			rate, err := p.couponRate(bond, start, end)
			if err != nil {
				return nil, err
			}
			flows[end] += rate * marketdata.YearFraction(start, end)
		}
		start = end
	}
	if bond.Maturity.After(today) {
		flows[bond.Maturity] += 1.0
	}
	return flows, nil
}

func (p *BondPricer) couponRate(bond *instrument.Bond, start, end time.Time) (float64, error) {
	if !bond.IsFloating() {
		return bond.CouponRate, nil
	}
	if start.After(p.evaluationDate.Date()) {
		fwd, err := p.forwardCurve.ForwardRate(start, end)
		if err != nil {
			return 0, err
		}
		return fwd + bond.Spread, nil
	}
	if p.pastFixings == nil {
		return 0, missingParameter(bond, "past fixings", bond.RateIndex.ID)
	}
	fixing, err := p.pastFixings.Fixing(start)
	if err != nil {
		return 0, errors.Wrapf(err, "coupon fixing of %s", bond.ID)
	}
	return fixing + bond.Spread, nil
}

func (p *BondPricer) NPVResult(inst instrument.Instrument) (*NpvResult, error) {
	bond, ok := inst.(*instrument.Bond)
	if !ok {
		return nil, wrongInstrument(p, inst)
	}
	flows, err := p.Cashflows(bond)
	if err != nil {
		return nil, err
	}
	npv := 0.0
	for date, amount := range flows {
		npv += amount * discountAt(p.discountCurve, date)
	}
	return &NpvResult{NPV: npv, Cashflows: flows}, nil
}

func (p *BondPricer) NPV(inst instrument.Instrument) (float64, error) {
	res, err := p.NPVResult(inst)
	if err != nil {
		return 0, err
	}
	return res.NPV, nil
}

func (p *BondPricer) FxExposure(inst instrument.Instrument, npv float64) (map[marketdata.Currency]float64, error) {
	return npvExposure(inst, npv), nil
}

// KtbfPricer prices Korea Treasury Bond Futures: the deliverable bonds are
// priced on the government curve, their yields averaged, the virtual bond
// priced at that yield and the result carried by the borrowing curve to
// maturity.
type KtbfPricer struct {
	evaluationDate *parameters.EvaluationDate
	discountCurve  *parameters.ZeroCurve
	borrowingCurve *parameters.ZeroCurve
}

func NewKtbfPricer(evaluationDate *parameters.EvaluationDate, discountCurve, borrowingCurve *parameters.ZeroCurve) *KtbfPricer {
	return &KtbfPricer{
		evaluationDate: evaluationDate,
		discountCurve:  discountCurve,
		borrowingCurve: borrowingCurve,
	}
}

func (p *KtbfPricer) Kind() PricerKind { return KindKtbfPricer }

func (p *KtbfPricer) NPV(inst instrument.Instrument) (float64, error) {
	ktbf, ok := inst.(*instrument.KTBF)
	if !ok {
		return 0, wrongInstrument(p, inst)
	}
	maturity, err := maturityOf(inst)
	if err != nil {
		return 0, err
	}
	if len(ktbf.UnderlyingBonds) == 0 {
		return 0, errors.InvalidArgumentf("KTBF %s has no underlying bonds", ktbf.ID)
	}
	if ktbf.VirtualBond.Years <= 0 || ktbf.VirtualBond.PaymentsPerYear <= 0 {
		return 0, errors.InvalidArgumentf("KTBF %s: virtual bond needs positive years and payments per year", ktbf.ID)
	}

	today := p.evaluationDate.Date()
	guess, err := p.discountCurve.ForwardRate(today, ktbf.UnderlyingBonds[0].Maturity)
	if err != nil {
		return 0, errors.Wrapf(err, "initial yield guess of %s", ktbf.ID)
	}

	bondPricer := NewBondPricer(p.evaluationDate, p.discountCurve, nil, nil)
	sum := 0.0
	for _, bond := range ktbf.UnderlyingBonds {
		res, err := bondPricer.NPVResult(bond)
		if err != nil {
			return 0, err
		}
		y, err := bondYield(today, res.Cashflows, res.NPV, bond.Frequency, guess)
		if err != nil {
			return 0, errors.Wrapf(err, "yield of %s", bond.ID)
		}
		sum += y
	}
	averageYield := sum / float64(len(ktbf.UnderlyingBonds))

	return virtualBondPrice(ktbf.VirtualBond, averageYield) * discountAt(p.borrowingCurve, maturity), nil
}

func (p *KtbfPricer) NPVResult(inst instrument.Instrument) (*NpvResult, error) {
	npv, err := p.NPV(inst)
	if err != nil {
		return nil, err
	}
	return NewNpvResult(npv), nil
}

func (p *KtbfPricer) FxExposure(inst instrument.Instrument, npv float64) (map[marketdata.Currency]float64, error) {
	return npvExposure(inst, npv-inst.AverageTradePrice()), nil
}

func compoundingPerYear(frequency marketdata.Period) float64 {
	months := frequency.Years*12 + frequency.Months
	if months <= 0 {
		return 1.0
	}
	return 12.0 / float64(months)
}

// bondYield solves sum(cf / (1 + y/f)^(f t)) = price for y.
func bondYield(today time.Time, flows map[time.Time]float64, price float64, frequency marketdata.Period, guess float64) (float64, error) {
	f := compoundingPerYear(frequency)
	objective := func(y float64) (float64, float64, error) {
		base := 1.0 + y/f
		if base <= 0 {
			return 0, 0, errors.Computationf("yield %f is below -%g", y, f)
		}
		value, derivative := -price, 0.0
		for date, cf := range flows {
			t := marketdata.YearFraction(today, date)
			df := math.Pow(base, -f*t)
			value += cf * df
			derivative -= t * cf * df / base
		}
		return value, derivative, nil
	}
	return analytic.NewtonRaphson(objective, guess, 1e-12, 100)
}

// virtualBondPrice is sum(c/f / (1+y/f)^i) + 1/(1+y/f)^n over n = years*f
// periods, scaled by the virtual bond's unit notional.
func virtualBondPrice(vb instrument.KtbfVirtualBond, y float64) float64 {
	f := float64(vb.PaymentsPerYear)
	n := vb.Years * vb.PaymentsPerYear
	base := 1.0 + y/f
	price := 0.0
	for i := 1; i <= n; i++ {
		price += vb.CouponRate / f / math.Pow(base, float64(i))
	}
	price += 1.0 / math.Pow(base, float64(n))
	return price * vb.UnitNotional
}
