package instrument

import (
	"github.com/rzzdr/quant-pricing-engine/internal/marketdata"
)

// RateIndexOf returns the floating index of a bond or swap, nil when fixed.
func RateIndexOf(inst Instrument) (*RateIndex, error) {
	switch v := inst.(type) {
	case *Bond:
		return v.RateIndex, nil
	case *PlainSwap:
		return v.RateIndex, nil
	default:
		return nil, unsupported(inst, "rate index")
	}
}

// UnderlyingCurrencyOf returns the natural currency of the underlying.
func UnderlyingCurrencyOf(inst Instrument) (marketdata.Currency, error) {
	switch v := inst.(type) {
	case *Futures:
		return v.UnderlyingCurrency, nil
	case *FxFutures:
		return v.UnderlyingCurrency, nil
	case *VanillaOption:
		return v.UnderlyingCurrency, nil
	default:
		return marketdata.NIL, unsupported(inst, "underlying currency")
	}
}

// FixedLegCurrencyOf returns the fixed leg currency of a swap.
func FixedLegCurrencyOf(inst Instrument) (marketdata.Currency, error) {
	if s, ok := inst.(*PlainSwap); ok {
		return s.FixedLegCurrency, nil
	}
	return marketdata.NIL, unsupported(inst, "fixed leg currency")
}

// FloatingLegCurrencyOf returns the floating leg currency of a swap.
func FloatingLegCurrencyOf(inst Instrument) (marketdata.Currency, error) {
	if s, ok := inst.(*PlainSwap); ok {
		return s.FloatingLegCurrency, nil
	}
	return marketdata.NIL, unsupported(inst, "floating leg currency")
}

// UnderlyingBondsOf returns the deliverable bonds of a bond futures.
func UnderlyingBondsOf(inst Instrument) ([]*Bond, error) {
	switch v := inst.(type) {
	case *KTBF:
		return v.UnderlyingBonds, nil
	case *BondFutures:
		return v.UnderlyingBonds, nil
	default:
		return nil, unsupported(inst, "underlying bonds")
	}
}

// BorrowingCurveIDsOf returns the extra borrowing keys of bond futures.
func BorrowingCurveIDsOf(inst Instrument) []marketdata.StaticID {
	switch v := inst.(type) {
	case *KTBF:
		return []marketdata.StaticID{v.BorrowingCurveID}
	case *BondFutures:
		return []marketdata.StaticID{v.BorrowingCurveID}
	default:
		return nil
	}
}

// QuantoPairsOf lists the (underlying, fx) pairs whose correlation the
// instrument needs because it pays in a currency other than the underlying's.
func QuantoPairsOf(inst Instrument) []marketdata.QuantoKey {
	var und marketdata.StaticID
	var undCcy marketdata.Currency
	switch v := inst.(type) {
	case *Futures:
		und, undCcy = v.UnderlyingID, v.UnderlyingCurrency
	case *VanillaOption:
		und, undCcy = v.UnderlyingID, v.UnderlyingCurrency
	default:
		return nil
	}
	ccy := inst.Info().Currency
	if undCcy == ccy || undCcy == marketdata.NIL {
		return nil
	}
	return []marketdata.QuantoKey{{UnderlyingID: und, FxCode: marketdata.NewFxCode(undCcy, ccy)}}
}

// FxCodesForPricing lists FX rates the pricer reads.
func FxCodesForPricing(inst Instrument) []marketdata.FxCode {
	switch v := inst.(type) {
	case *FxFutures:
		return []marketdata.FxCode{v.UnderlyingFxCode()}
	case *PlainSwap:
		if v.FloatingToFixedFx != nil {
			return []marketdata.FxCode{*v.FloatingToFixedFx}
		}
	}
	var out []marketdata.FxCode
	for _, q := range QuantoPairsOf(inst) {
		out = append(out, q.FxCode)
	}
	return out
}

// PricedUnderlyingIDs are the equity prices a pricer reads: the underlyings,
// or the stock itself.
func PricedUnderlyingIDs(inst Instrument) []marketdata.StaticID {
	if s, ok := inst.(*Stock); ok {
		return []marketdata.StaticID{s.ID}
	}
	return inst.UnderlyingIDs()
}

// VolatilityUnderlyingIDs are the underlyings whose volatility the pricer
// reads: option underlyings and quanto futures underlyings.
func VolatilityUnderlyingIDs(inst Instrument) []marketdata.StaticID {
	switch v := inst.(type) {
	case *VanillaOption:
		return []marketdata.StaticID{v.UnderlyingID}
	case *Futures:
		if len(QuantoPairsOf(inst)) > 0 {
			return []marketdata.StaticID{v.UnderlyingID}
		}
	}
	return nil
}
