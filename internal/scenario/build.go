package scenario

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/rzzdr/quant-pricing-engine/internal/instrument"
	"github.com/rzzdr/quant-pricing-engine/internal/marketdata"
	"github.com/rzzdr/quant-pricing-engine/internal/pricing"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/errors"
)

// Scenario is a decoded document ready to run.
type Scenario struct {
	EvaluationDate         time.Time
	RepresentationCurrency marketdata.Currency
	MarketData             *marketdata.MarketData
	MatchParameter         *pricing.MatchParameter
	Categories             []pricing.InstrumentCategory
	Instruments            *instrument.Instruments
}

// Build validates the document and assembles its market data, curve tables
// and instruments. Market data without a timestamp is stamped with the
// evaluation date. Without categories every instrument goes to one group.
func (f *File) Build() (*Scenario, error) {
	if f.EvaluationDate.IsZero() {
		return nil, errors.InvalidArgumentf("scenario has no evaluation_date")
	}
	s := &Scenario{
		EvaluationDate: f.EvaluationDate,
		Categories:     f.Categories,
		MatchParameter: f.MatchParameter.build(),
	}
	if len(s.Categories) == 0 {
		s.Categories = []pricing.InstrumentCategory{{}}
	}
	if f.RepresentationCurrency != "" {
		ccy, err := marketdata.ParseCurrency(f.RepresentationCurrency)
		if err != nil {
			return nil, err
		}
		s.RepresentationCurrency = ccy
	}

	data, err := f.MarketData.build(f.EvaluationDate)
	if err != nil {
		return nil, errors.Wrap(err, "market data")
	}
	s.MarketData = data

	items := make([]instrument.Instrument, 0, len(f.Instruments))
	for i := range f.Instruments {
		inst, err := f.Instruments[i].Build()
		if err != nil {
			return nil, errors.Wrapf(err, "instrument %d", i)
		}
		items = append(items, inst)
	}
	if s.Instruments, err = instrument.NewInstruments(items); err != nil {
		return nil, err
	}
	return s, nil
}

func stamp(t, fallback time.Time) time.Time {
	if t.IsZero() {
		return fallback
	}
	return t
}

func (m *MarketDataFile) build(evaluationDate time.Time) (*marketdata.MarketData, error) {
	data := marketdata.NewMarketData()

	for _, s := range m.Stocks {
		data.Stocks[s.ID] = s.value(evaluationDate)
	}
	for _, s := range m.EquityConstantVols {
		data.EquityConstantVols[s.ID] = s.value(evaluationDate)
	}
	for _, s := range m.Fx {
		data.Fx[s.Code] = s.value(evaluationDate)
	}
	for _, s := range m.FxConstantVols {
		data.FxConstantVols[s.Code] = s.value(evaluationDate)
	}
	for _, s := range m.QuantoCorrelations {
		key := marketdata.QuantoKey{UnderlyingID: s.UnderlyingID, FxCode: s.FxCode}
		data.QuantoCorrelations[key] = &marketdata.ValueData{
			Value:          s.Value,
			MarketDatetime: evaluationDate,
			Name:           s.UnderlyingID.Code + "/" + s.FxCode.String(),
			ID:             s.UnderlyingID,
		}
	}

	for _, s := range m.Curves {
		v, err := s.vector(evaluationDate)
		if err != nil {
			return nil, err
		}
		data.Curves[s.ID] = v
	}
	for _, s := range m.Dividends {
		v, err := s.vector(evaluationDate)
		if err != nil {
			return nil, err
		}
		data.Dividends[s.ID] = v
	}
	for _, s := range m.EquityVolSurfaces {
		surface, err := s.surface(evaluationDate)
		if err != nil {
			return nil, err
		}
		data.EquityVolSurfaces[s.ID] = surface
	}
	for _, s := range m.PastDailyValues {
		values := make(map[time.Time]float64, len(s.Fixings))
		for _, f := range s.Fixings {
			values[marketdata.DateKey(f.Date)] = f.Value
		}
		data.PastDailyValues[s.ID] = &marketdata.DailyValueData{Values: values, Name: s.Name, ID: s.ID}
	}
	return data, nil
}

func (s ValueSpec) value(evaluationDate time.Time) *marketdata.ValueData {
	return &marketdata.ValueData{
		Value:          s.Value,
		MarketDatetime: stamp(s.MarketDatetime, evaluationDate),
		Currency:       s.Currency,
		Name:           s.Name,
		ID:             s.ID,
	}
}

func (s FxValueSpec) value(evaluationDate time.Time) *marketdata.ValueData {
	return &marketdata.ValueData{
		Value:          s.Value,
		MarketDatetime: stamp(s.MarketDatetime, evaluationDate),
		Currency:       s.Code.Currency2,
		Name:           s.Code.String(),
	}
}

func (s VectorSpec) vector(evaluationDate time.Time) (*marketdata.VectorData, error) {
	var dates []time.Time
	if len(s.Dates) > 0 {
		dates = s.Dates
	}
	var times []float64
	if len(s.Times) > 0 {
		times = s.Times
	}
	return marketdata.NewVectorData(s.Values, dates, times, stamp(s.MarketDatetime, evaluationDate), s.Currency, s.Name, s.ID)
}

func (s SurfaceSpec) surface(evaluationDate time.Time) (*marketdata.SurfaceData, error) {
	if len(s.Values) != len(s.Tenors) {
		return nil, errors.InvalidArgumentf("surface %s has %d rows for %d tenors", s.ID, len(s.Values), len(s.Tenors))
	}
	if len(s.Tenors) == 0 || len(s.Moneyness) == 0 {
		return nil, errors.InvalidArgumentf("surface %s has no nodes", s.ID)
	}
	flat := make([]float64, 0, len(s.Tenors)*len(s.Moneyness))
	for i, row := range s.Values {
		if len(row) != len(s.Moneyness) {
			return nil, errors.InvalidArgumentf("surface %s row %d has %d vols for %d moneyness points", s.ID, i, len(row), len(s.Moneyness))
		}
		flat = append(flat, row...)
	}
	grid := mat.NewDense(len(s.Tenors), len(s.Moneyness), flat)
	return marketdata.NewSurfaceData(grid, s.Tenors, s.Moneyness, stamp(s.MarketDatetime, evaluationDate), s.Name, s.ID)
}

func idTable(links []CurveLink) map[marketdata.StaticID]marketdata.StaticID {
	out := make(map[marketdata.StaticID]marketdata.StaticID, len(links))
	for _, l := range links {
		out[l.Key] = l.Curve
	}
	return out
}

func currencyTable(links []CurrencyLink) map[marketdata.Currency]marketdata.StaticID {
	out := make(map[marketdata.Currency]marketdata.StaticID, len(links))
	for _, l := range links {
		out[l.Currency] = l.Curve
	}
	return out
}

func (m *MatchFile) build() *pricing.MatchParameter {
	bonds := make(map[pricing.BondCurveKey]marketdata.StaticID, len(m.BondDiscount))
	for _, l := range m.BondDiscount {
		rating := instrument.CreditRating(l.CreditRating)
		if rating == "" {
			rating = instrument.RatingNone
		}
		key := pricing.BondCurveKey{
			Issuer:       l.Issuer,
			IssuerType:   instrument.IssuerType(l.IssuerType),
			CreditRating: rating,
			Currency:     l.Currency,
		}
		bonds[key] = l.Curve
	}
	return pricing.NewMatchParameter(pricing.MatchTables{
		Collateral:       idTable(m.Collateral),
		Borrowing:        idTable(m.Borrowing),
		BondDiscount:     bonds,
		RateIndexForward: idTable(m.RateIndexForward),
		Crs:              currencyTable(m.Crs),
		Funding:          currencyTable(m.Funding),
	})
}
