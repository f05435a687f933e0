package pricing

import (
	"maps"

	"github.com/rzzdr/quant-pricing-engine/internal/instrument"
	"github.com/rzzdr/quant-pricing-engine/internal/marketdata"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/errors"
)

// BondCurveKey selects a bond discount curve.
type BondCurveKey struct {
	Issuer       marketdata.StaticID
	IssuerType   instrument.IssuerType
	CreditRating instrument.CreditRating
	Currency     marketdata.Currency
}

// MatchParameter resolves which curve an instrument uses in each role. It is
// read-only after construction and safe to share between engines.
type MatchParameter struct {
	collateral       map[marketdata.StaticID]marketdata.StaticID
	borrowing        map[marketdata.StaticID]marketdata.StaticID
	bondDiscount     map[BondCurveKey]marketdata.StaticID
	rateIndexForward map[marketdata.StaticID]marketdata.StaticID
	crs              map[marketdata.Currency]marketdata.StaticID
	funding          map[marketdata.Currency]marketdata.StaticID
}

// MatchTables are the lookup tables a MatchParameter is built from.
type MatchTables struct {
	Collateral       map[marketdata.StaticID]marketdata.StaticID
	Borrowing        map[marketdata.StaticID]marketdata.StaticID
	BondDiscount     map[BondCurveKey]marketdata.StaticID
	RateIndexForward map[marketdata.StaticID]marketdata.StaticID
	Crs              map[marketdata.Currency]marketdata.StaticID
	Funding          map[marketdata.Currency]marketdata.StaticID
}

// NewMatchParameter copies the tables; nil tables are treated as empty.
func NewMatchParameter(t MatchTables) *MatchParameter {
	return &MatchParameter{
		collateral:       cloneOrEmpty(t.Collateral),
		borrowing:        cloneOrEmpty(t.Borrowing),
		bondDiscount:     cloneOrEmpty(t.BondDiscount),
		rateIndexForward: cloneOrEmpty(t.RateIndexForward),
		crs:              cloneOrEmpty(t.Crs),
		funding:          cloneOrEmpty(t.Funding),
	}
}

func cloneOrEmpty[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return make(map[K]V)
	}
	return maps.Clone(m)
}

func missingCurve(inst instrument.Instrument, role string, key any) error {
	info := inst.Info()
	return errors.Configurationf("%s (%s): no %s curve mapped for %v", info.Name, info.ID, role, key)
}

// DiscountCurveID returns the sentinel for instruments that are not discounted
// on a curve of their own. An unmapped bond gets the sentinel too.
func (m *MatchParameter) DiscountCurveID(inst instrument.Instrument) (marketdata.StaticID, error) {
	switch v := inst.(type) {
	case *instrument.Bond:
		key := BondCurveKey{Issuer: v.IssuerID, IssuerType: v.IssuerType, CreditRating: v.CreditRating, Currency: v.Currency}
		return m.bondDiscount[key], nil
	case *instrument.PlainSwap:
		if v.RateIndex == nil {
			return marketdata.NoneID, nil
		}
		id, ok := m.rateIndexForward[v.RateIndex.ID]
		if !ok {
			return marketdata.NoneID, missingCurve(inst, "discount", v.RateIndex.ID)
		}
		return id, nil
	case *instrument.VanillaOption:
		if v.SettlementType == instrument.Settled {
			return marketdata.NoneID, nil
		}
		id, ok := m.funding[v.Currency]
		if !ok {
			return marketdata.NoneID, missingCurve(inst, "funding", v.Currency)
		}
		return id, nil
	default:
		return marketdata.NoneID, nil
	}
}

// CollateralCurveIDs returns one curve per underlying, in underlying order.
func (m *MatchParameter) CollateralCurveIDs(inst instrument.Instrument) ([]marketdata.StaticID, error) {
	und := inst.UnderlyingIDs()
	out := make([]marketdata.StaticID, 0, len(und))
	for _, id := range und {
		curve, err := m.CollateralCurveID(inst, id)
		if err != nil {
			return nil, err
		}
		out = append(out, curve)
	}
	return out, nil
}

func (m *MatchParameter) CollateralCurveID(inst instrument.Instrument, underlyingID marketdata.StaticID) (marketdata.StaticID, error) {
	id, ok := m.collateral[underlyingID]
	if !ok {
		return marketdata.NoneID, missingCurve(inst, "collateral", underlyingID)
	}
	return id, nil
}

// BorrowingCurveIDs returns one curve per underlying followed by one per
// bond futures borrowing key.
func (m *MatchParameter) BorrowingCurveIDs(inst instrument.Instrument) ([]marketdata.StaticID, error) {
	keys := append(inst.UnderlyingIDs(), instrument.BorrowingCurveIDsOf(inst)...)
	out := make([]marketdata.StaticID, 0, len(keys))
	for _, key := range keys {
		id, ok := m.borrowing[key]
		if !ok {
			return nil, missingCurve(inst, "borrowing", key)
		}
		out = append(out, id)
	}
	return out, nil
}

func (m *MatchParameter) RateIndexCurveID(inst instrument.Instrument) (marketdata.StaticID, error) {
	var index *instrument.RateIndex
	switch v := inst.(type) {
	case *instrument.Bond:
		index = v.RateIndex
	case *instrument.PlainSwap:
		index = v.RateIndex
	}
	if index == nil {
		return marketdata.NoneID, nil
	}
	id, ok := m.rateIndexForward[index.ID]
	if !ok {
		return marketdata.NoneID, missingCurve(inst, "forward", index.ID)
	}
	return id, nil
}

// CrsCurveID is the fixed leg curve of a CRS or the futures currency curve of
// an FX futures.
func (m *MatchParameter) CrsCurveID(inst instrument.Instrument) (marketdata.StaticID, error) {
	switch v := inst.(type) {
	case *instrument.PlainSwap:
		if v.IsIRS() {
			return marketdata.NoneID, nil
		}
		return m.crsCurve(inst, v.FixedLegCurrency)
	case *instrument.FxFutures:
		return m.crsCurve(inst, v.Currency)
	default:
		return marketdata.NoneID, nil
	}
}

// FloatingCrsCurveID is the floating leg curve of a CRS or the underlying
// currency curve of an FX futures.
func (m *MatchParameter) FloatingCrsCurveID(inst instrument.Instrument) (marketdata.StaticID, error) {
	switch v := inst.(type) {
	case *instrument.PlainSwap:
		if v.IsIRS() {
			return marketdata.NoneID, nil
		}
		return m.crsCurve(inst, v.FloatingLegCurrency)
	case *instrument.FxFutures:
		return m.crsCurve(inst, v.UnderlyingCurrency)
	default:
		return marketdata.NoneID, nil
	}
}

func (m *MatchParameter) crsCurve(inst instrument.Instrument, ccy marketdata.Currency) (marketdata.StaticID, error) {
	id, ok := m.crs[ccy]
	if !ok {
		return marketdata.NoneID, missingCurve(inst, "crs", ccy)
	}
	return id, nil
}

// CollateralTable exposes the underlying to collateral curve table.
func (m *MatchParameter) CollateralTable() map[marketdata.StaticID]marketdata.StaticID {
	return maps.Clone(m.collateral)
}

// BorrowingTable exposes the underlying to borrowing curve table.
func (m *MatchParameter) BorrowingTable() map[marketdata.StaticID]marketdata.StaticID {
	return maps.Clone(m.borrowing)
}

var _ instrument.CurveResolver = (*MatchParameter)(nil)
