package instrument

import (
	"slices"
	"time"

	"github.com/rzzdr/quant-pricing-engine/internal/marketdata"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/errors"
)

// CurveResolver maps an instrument to the curves it uses per role.
type CurveResolver interface {
	DiscountCurveID(inst Instrument) (marketdata.StaticID, error)
	CollateralCurveIDs(inst Instrument) ([]marketdata.StaticID, error)
	RateIndexCurveID(inst Instrument) (marketdata.StaticID, error)
	CrsCurveID(inst Instrument) (marketdata.StaticID, error)
	FloatingCrsCurveID(inst Instrument) (marketdata.StaticID, error)
}

// Instruments is an ordered collection with unique ids.
type Instruments struct {
	items []Instrument
}

// NewInstruments rejects duplicate ids.
func NewInstruments(items []Instrument) (*Instruments, error) {
	seen := make(map[marketdata.StaticID]struct{}, len(items))
	for _, inst := range items {
		id := inst.Info().ID
		if _, dup := seen[id]; dup {
			return nil, errors.InvalidArgumentf("duplicate instrument id %s", id)
		}
		seen[id] = struct{}{}
	}
	return &Instruments{items: items}, nil
}

func (c *Instruments) Len() int            { return len(c.items) }
func (c *Instruments) At(i int) Instrument { return c.items[i] }
func (c *Instruments) All() []Instrument   { return c.items }
func (c *Instruments) IsEmpty() bool       { return len(c.items) == 0 }

func appendUnique[T comparable](dst []T, vs ...T) []T {
	for _, v := range vs {
		if !slices.Contains(dst, v) {
			dst = append(dst, v)
		}
	}
	return dst
}

// UnderlyingIDs returns every distinct underlying in order of appearance.
func (c *Instruments) UnderlyingIDs() []marketdata.StaticID {
	var out []marketdata.StaticID
	for _, inst := range c.items {
		out = appendUnique(out, inst.UnderlyingIDs()...)
	}
	return out
}

// FxCodesForPricing returns every distinct FX pair read by the pricers.
func (c *Instruments) FxCodesForPricing() []marketdata.FxCode {
	var out []marketdata.FxCode
	for _, inst := range c.items {
		out = appendUnique(out, FxCodesForPricing(inst)...)
	}
	return out
}

// QuantoPairs returns every distinct quanto key.
func (c *Instruments) QuantoPairs() []marketdata.QuantoKey {
	var out []marketdata.QuantoKey
	for _, inst := range c.items {
		out = appendUnique(out, QuantoPairsOf(inst)...)
	}
	return out
}

// TypeNames returns every distinct type name.
func (c *Instruments) TypeNames() []string {
	var out []string
	for _, inst := range c.items {
		out = appendUnique(out, inst.Info().TypeName())
	}
	return out
}

// Currencies returns instrument currencies plus underlying and floating leg
// currencies of futures and swaps.
func (c *Instruments) Currencies() ([]marketdata.Currency, error) {
	var out []marketdata.Currency
	for _, inst := range c.items {
		out = appendUnique(out, inst.Info().Currency)
		switch inst.(type) {
		case *Futures, *FxFutures:
			ccy, err := UnderlyingCurrencyOf(inst)
			if err != nil {
				return nil, err
			}
			out = appendUnique(out, ccy)
		case *PlainSwap:
			ccy, err := FloatingLegCurrencyOf(inst)
			if err != nil {
				return nil, err
			}
			out = appendUnique(out, ccy)
		}
	}
	return out, nil
}

func (c *Instruments) filter(keep func(Instrument) bool) []Instrument {
	var out []Instrument
	for _, inst := range c.items {
		if keep(inst) {
			out = append(out, inst)
		}
	}
	return out
}

func excluded(inst Instrument, excludeTypes []string) bool {
	return slices.Contains(excludeTypes, inst.Info().TypeName())
}

// WithUnderlying returns instruments on und, skipping the excluded types.
func (c *Instruments) WithUnderlying(und marketdata.StaticID, excludeTypes ...string) []Instrument {
	return c.filter(func(inst Instrument) bool {
		return slices.Contains(inst.UnderlyingIDs(), und) && !excluded(inst, excludeTypes)
	})
}

// WithCurrency returns instruments denominated in ccy.
func (c *Instruments) WithCurrency(ccy marketdata.Currency) []Instrument {
	return c.filter(func(inst Instrument) bool { return inst.Info().Currency == ccy })
}

// WithTypes returns instruments whose type name is listed.
func (c *Instruments) WithTypes(typeNames ...string) []Instrument {
	return c.filter(func(inst Instrument) bool { return slices.Contains(typeNames, inst.Info().TypeName()) })
}

// UsingCurve returns instruments that discount, collateralize, project or
// convert on curveID. Borrowing curves are not considered.
func (c *Instruments) UsingCurve(curveID marketdata.StaticID, resolver CurveResolver, excludeTypes ...string) ([]Instrument, error) {
	var out []Instrument
	for _, inst := range c.items {
		if excluded(inst, excludeTypes) {
			continue
		}
		ids, err := curveIDs(inst, resolver)
		if err != nil {
			return nil, err
		}
		if slices.Contains(ids, curveID) {
			out = append(out, inst)
		}
	}
	return out, nil
}

// CurveIDs returns every distinct non-sentinel curve the collection uses.
func (c *Instruments) CurveIDs(resolver CurveResolver) ([]marketdata.StaticID, error) {
	var out []marketdata.StaticID
	for _, inst := range c.items {
		ids, err := CurveIDsOf(inst, resolver)
		if err != nil {
			return nil, err
		}
		out = appendUnique(out, ids...)
	}
	return out, nil
}

// CurveIDsOf returns the distinct non-sentinel curves inst discounts,
// collateralizes, projects or converts on.
func CurveIDsOf(inst Instrument, resolver CurveResolver) ([]marketdata.StaticID, error) {
	ids, err := curveIDs(inst, resolver)
	if err != nil {
		return nil, err
	}
	var out []marketdata.StaticID
	for _, id := range ids {
		if !id.IsNone() {
			out = appendUnique(out, id)
		}
	}
	return out, nil
}

func curveIDs(inst Instrument, resolver CurveResolver) ([]marketdata.StaticID, error) {
	discount, err := resolver.DiscountCurveID(inst)
	if err != nil {
		return nil, err
	}
	collateral, err := resolver.CollateralCurveIDs(inst)
	if err != nil {
		return nil, err
	}
	forward, err := resolver.RateIndexCurveID(inst)
	if err != nil {
		return nil, err
	}
	crs, err := resolver.CrsCurveID(inst)
	if err != nil {
		return nil, err
	}
	floatingCrs, err := resolver.FloatingCrsCurveID(inst)
	if err != nil {
		return nil, err
	}
	ids := append([]marketdata.StaticID{discount}, collateral...)
	return append(ids, forward, crs, floatingCrs), nil
}

// MaturityUpTo returns instruments maturing on or before date. Instruments
// without maturity are left out.
func (c *Instruments) MaturityUpTo(date time.Time, excludeTypes ...string) []Instrument {
	return c.filter(func(inst Instrument) bool {
		info := inst.Info()
		return info.HasMaturity() && !info.Maturity.After(date) && !excluded(inst, excludeTypes)
	})
}

// MaturityOver returns instruments maturing after date.
func (c *Instruments) MaturityOver(date time.Time, excludeTypes ...string) []Instrument {
	return c.filter(func(inst Instrument) bool {
		info := inst.Info()
		return info.HasMaturity() && info.Maturity.After(date) && !excluded(inst, excludeTypes)
	})
}

// ShortestMaturity returns the earliest maturity, false if none is set.
func (c *Instruments) ShortestMaturity() (time.Time, bool) {
	var best time.Time
	for _, inst := range c.items {
		m := inst.Info().Maturity
		if !m.IsZero() && (best.IsZero() || m.Before(best)) {
			best = m
		}
	}
	return best, !best.IsZero()
}

// LongestMaturity returns the latest maturity, false if none is set.
func (c *Instruments) LongestMaturity() (time.Time, bool) {
	var best time.Time
	for _, inst := range c.items {
		m := inst.Info().Maturity
		if m.After(best) {
			best = m
		}
	}
	return best, !best.IsZero()
}

// IDs returns instrument ids in order.
func (c *Instruments) IDs() []marketdata.StaticID {
	out := make([]marketdata.StaticID, len(c.items))
	for i, inst := range c.items {
		out[i] = inst.Info().ID
	}
	return out
}
