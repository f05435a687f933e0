package pricing

import (
	"fmt"
	"time"

	"github.com/rzzdr/quant-pricing-engine/internal/instrument"
	"github.com/rzzdr/quant-pricing-engine/internal/marketdata"
	"github.com/rzzdr/quant-pricing-engine/internal/parameters"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/errors"
)

// PricerKind is the variant tag of a Pricer.
type PricerKind int

const (
	KindFuturesPricer PricerKind = iota
	KindBondPricer
	KindKtbfPricer
	KindFxFuturesPricer
	KindPlainSwapPricer
	KindVanillaOptionPricer
	KindIdentityPricer
	KindUnitPricer
)

func (k PricerKind) String() string {
	switch k {
	case KindFuturesPricer:
		return "FuturesPricer"
	case KindBondPricer:
		return "BondPricer"
	case KindKtbfPricer:
		return "KtbfPricer"
	case KindFxFuturesPricer:
		return "FxFuturesPricer"
	case KindPlainSwapPricer:
		return "PlainSwapPricer"
	case KindVanillaOptionPricer:
		return "VanillaOptionPricer"
	case KindIdentityPricer:
		return "IdentityPricer"
	case KindUnitPricer:
		return "UnitPricer"
	default:
		return "Unknown"
	}
}

// NpvResult is a per-unit price plus the expected cashflows behind it.
type NpvResult struct {
	NPV       float64
	Cashflows map[time.Time]float64
}

func NewNpvResult(npv float64) *NpvResult {
	return &NpvResult{NPV: npv}
}

// Pricer values one instrument against the parameters it was built with.
// All amounts are per unit of the instrument.
type Pricer interface {
	Kind() PricerKind
	NPV(inst instrument.Instrument) (float64, error)
	NPVResult(inst instrument.Instrument) (*NpvResult, error)
	FxExposure(inst instrument.Instrument, npv float64) (map[marketdata.Currency]float64, error)
}

func wrongInstrument(p Pricer, inst instrument.Instrument) error {
	info := inst.Info()
	return errors.Unsupportedf("%s cannot price %s %s (%s)", p.Kind(), inst.Kind(), info.Name, info.ID)
}

func maturityOf(inst instrument.Instrument) (time.Time, error) {
	info := inst.Info()
	if !info.HasMaturity() {
		return time.Time{}, errors.InvalidArgumentf("maturity of %s (%s) is not set", info.Name, info.ID)
	}
	return info.Maturity, nil
}

// discountAt treats a missing curve as no discounting.
func discountAt(curve *parameters.ZeroCurve, date time.Time) float64 {
	if curve == nil {
		return 1.0
	}
	return curve.DiscountFactorAt(date)
}

func npvExposure(inst instrument.Instrument, npv float64) map[marketdata.Currency]float64 {
	return map[marketdata.Currency]float64{inst.Info().Currency: npv}
}

// FuturesPricer prices S * q(T) * DFborrow(T) / DFcoll(T), with a quanto
// drift when the underlying trades in another currency.
type FuturesPricer struct {
	evaluationDate  *parameters.EvaluationDate
	equity          *parameters.MarketPrice
	collateralCurve *parameters.ZeroCurve
	borrowingCurve  *parameters.ZeroCurve
	volatility      parameters.Volatility
	quanto          *parameters.Quanto
}

func NewFuturesPricer(evaluationDate *parameters.EvaluationDate, equity *parameters.MarketPrice, collateralCurve, borrowingCurve *parameters.ZeroCurve) *FuturesPricer {
	return &FuturesPricer{
		evaluationDate:  evaluationDate,
		equity:          equity,
		collateralCurve: collateralCurve,
		borrowingCurve:  borrowingCurve,
	}
}

// WithQuanto adds the drift -vol * fxVol * correlation * T.
func (p *FuturesPricer) WithQuanto(volatility parameters.Volatility, quanto *parameters.Quanto) *FuturesPricer {
	p.volatility = volatility
	p.quanto = quanto
	return p
}

func (p *FuturesPricer) Kind() PricerKind { return KindFuturesPricer }

func (p *FuturesPricer) NPV(inst instrument.Instrument) (float64, error) {
	if _, ok := inst.(*instrument.Futures); !ok {
		return 0, wrongInstrument(p, inst)
	}
	maturity, err := maturityOf(inst)
	if err != nil {
		return 0, err
	}
	forward := p.equity.Value() * p.equity.DividendDeductionRatio(maturity) *
		discountAt(p.borrowingCurve, maturity) / discountAt(p.collateralCurve, maturity)

	if p.quanto != nil {
		t := marketdata.YearFraction(p.evaluationDate.Date(), maturity)
		if t > 0 {
			forward *= quantoDrift(p.volatility, p.quanto, t, 1.0)
		}
	}
	return forward, nil
}

func (p *FuturesPricer) NPVResult(inst instrument.Instrument) (*NpvResult, error) {
	npv, err := p.NPV(inst)
	if err != nil {
		return nil, err
	}
	return NewNpvResult(npv), nil
}

// FxExposure is the unrealised gain against the average trade price.
func (p *FuturesPricer) FxExposure(inst instrument.Instrument, npv float64) (map[marketdata.Currency]float64, error) {
	return npvExposure(inst, npv-inst.AverageTradePrice()), nil
}

// FxFuturesPricer prices fx * DFund(T) / DFfut(T).
type FxFuturesPricer struct {
	fx                      *parameters.MarketPrice
	underlyingCurrencyCurve *parameters.ZeroCurve
	futuresCurrencyCurve    *parameters.ZeroCurve
}

func NewFxFuturesPricer(fx *parameters.MarketPrice, underlyingCurrencyCurve, futuresCurrencyCurve *parameters.ZeroCurve) *FxFuturesPricer {
	return &FxFuturesPricer{
		fx:                      fx,
		underlyingCurrencyCurve: underlyingCurrencyCurve,
		futuresCurrencyCurve:    futuresCurrencyCurve,
	}
}

func (p *FxFuturesPricer) Kind() PricerKind { return KindFxFuturesPricer }

func (p *FxFuturesPricer) NPV(inst instrument.Instrument) (float64, error) {
	if _, ok := inst.(*instrument.FxFutures); !ok {
		return 0, wrongInstrument(p, inst)
	}
	maturity, err := maturityOf(inst)
	if err != nil {
		return 0, err
	}
	return p.fx.Value() * discountAt(p.underlyingCurrencyCurve, maturity) / discountAt(p.futuresCurrencyCurve, maturity), nil
}

func (p *FxFuturesPricer) NPVResult(inst instrument.Instrument) (*NpvResult, error) {
	npv, err := p.NPV(inst)
	if err != nil {
		return nil, err
	}
	return NewNpvResult(npv), nil
}

// FxExposure is short the discounted trade price in the futures currency and
// long the discounted unit of the underlying currency.
func (p *FxFuturesPricer) FxExposure(inst instrument.Instrument, _ float64) (map[marketdata.Currency]float64, error) {
	fut, ok := inst.(*instrument.FxFutures)
	if !ok {
		return nil, wrongInstrument(p, inst)
	}
	maturity, err := maturityOf(inst)
	if err != nil {
		return nil, err
	}
	return map[marketdata.Currency]float64{
		fut.Currency:           -discountAt(p.futuresCurrencyCurve, maturity) * fut.AverageTradePrice(),
		fut.UnderlyingCurrency: discountAt(p.underlyingCurrencyCurve, maturity),
	}, nil
}

// IdentityPricer values a stock at its own price.
type IdentityPricer struct {
	equity *parameters.MarketPrice
}

func NewIdentityPricer(equity *parameters.MarketPrice) *IdentityPricer {
	return &IdentityPricer{equity: equity}
}

func (p *IdentityPricer) Kind() PricerKind { return KindIdentityPricer }

func (p *IdentityPricer) NPV(instrument.Instrument) (float64, error) {
	return p.equity.Value(), nil
}

func (p *IdentityPricer) NPVResult(inst instrument.Instrument) (*NpvResult, error) {
	npv, _ := p.NPV(inst)
	return NewNpvResult(npv), nil
}

func (p *IdentityPricer) FxExposure(inst instrument.Instrument, npv float64) (map[marketdata.Currency]float64, error) {
	return npvExposure(inst, npv), nil
}

// UnitPricer values cash at one unit of its currency.
type UnitPricer struct{}

func NewUnitPricer() *UnitPricer { return &UnitPricer{} }

func (p *UnitPricer) Kind() PricerKind { return KindUnitPricer }

func (p *UnitPricer) NPV(instrument.Instrument) (float64, error) { return 1.0, nil }

func (p *UnitPricer) NPVResult(instrument.Instrument) (*NpvResult, error) {
	return NewNpvResult(1.0), nil
}

func (p *UnitPricer) FxExposure(inst instrument.Instrument, npv float64) (map[marketdata.Currency]float64, error) {
	return npvExposure(inst, npv), nil
}

func (r *NpvResult) String() string {
	return fmt.Sprintf("npv=%.6f cashflows=%d", r.NPV, len(r.Cashflows))
}
