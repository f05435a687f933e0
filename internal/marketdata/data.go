package marketdata

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/rzzdr/quant-pricing-engine/pkg/utils/errors"
)

// ValueData is a single observed number: a spot, an FX rate, a flat vol or a correlation.
type ValueData struct {
	Value          float64
	MarketDatetime time.Time
	Currency       Currency
	Name           string
	ID             StaticID
}

// VectorData is a term structure. Nodes are given either as dates or as year
// fractions from MarketDatetime; when both are present dates win.
type VectorData struct {
	Values         []float64
	Dates          []time.Time
	Times          []float64
	MarketDatetime time.Time
	Currency       Currency
	Name           string
	ID             StaticID
}

// NewVectorData validates the node layout.
func NewVectorData(values []float64, dates []time.Time, times []float64, marketDatetime time.Time, ccy Currency, name string, id StaticID) (*VectorData, error) {
	if len(values) == 0 {
		return nil, errors.InvalidArgumentf("vector data %s has no values", id)
	}
	if dates == nil && times == nil {
		return nil, errors.InvalidArgumentf("vector data %s needs dates or times", id)
	}
	if dates != nil && len(dates) != len(values) {
		return nil, errors.InvalidArgumentf("vector data %s: %d dates for %d values", id, len(dates), len(values))
	}
	if dates == nil && len(times) != len(values) {
		return nil, errors.InvalidArgumentf("vector data %s: %d times for %d values", id, len(times), len(values))
	}
	return &VectorData{
		Values:         values,
		Dates:          dates,
		Times:          times,
		MarketDatetime: marketDatetime,
		Currency:       ccy,
		Name:           name,
		ID:             id,
	}, nil
}

// TimesFrom returns node year fractions measured from base.
func (v *VectorData) TimesFrom(base time.Time) []float64 {
	out := make([]float64, len(v.Values))
	if v.Dates != nil {
		for i, d := range v.Dates {
			out[i] = YearFraction(base, d)
		}
		return out
	}
	shift := YearFraction(base, v.MarketDatetime)
	for i, t := range v.Times {
		out[i] = t + shift
	}
	return out
}

// SurfaceData holds implied vols with tenors on rows and spot moneyness on columns.
type SurfaceData struct {
	Value          *mat.Dense
	Tenors         []float64
	Moneyness      []float64
	MarketDatetime time.Time
	Name           string
	ID             StaticID
}

// NewSurfaceData checks that the grid matches its axes.
func NewSurfaceData(value *mat.Dense, tenors, moneyness []float64, marketDatetime time.Time, name string, id StaticID) (*SurfaceData, error) {
	r, c := value.Dims()
	if r != len(tenors) || c != len(moneyness) {
		return nil, errors.InvalidArgumentf("surface %s is %dx%d but axes are %dx%d", id, r, c, len(tenors), len(moneyness))
	}
	if !sort.Float64sAreSorted(tenors) || !sort.Float64sAreSorted(moneyness) {
		return nil, errors.InvalidArgumentf("surface %s axes must be ascending", id)
	}
	return &SurfaceData{Value: value, Tenors: tenors, Moneyness: moneyness, MarketDatetime: marketDatetime, Name: name, ID: id}, nil
}

// DailyValueData is a history of daily observations, e.g. rate fixings.
type DailyValueData struct {
	Values map[time.Time]float64
	Name   string
	ID     StaticID
}

// DateKey truncates t to its calendar date in UTC for history lookups.
func DateKey(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Get returns the observation on t's calendar date.
func (d *DailyValueData) Get(t time.Time) (float64, bool) {
	v, ok := d.Values[DateKey(t)]
	return v, ok
}

// QuantoKey identifies a quanto correlation between an underlying and an FX pair.
type QuantoKey struct {
	UnderlyingID StaticID
	FxCode       FxCode
}

// MarketData bundles every raw input a calculation run reads. It is shared by
// all engines of a run and must not be modified while a run is in progress.
type MarketData struct {
	Fx                 map[FxCode]*ValueData
	Stocks             map[StaticID]*ValueData
	Curves             map[StaticID]*VectorData
	Dividends          map[StaticID]*VectorData
	EquityConstantVols map[StaticID]*ValueData
	EquityVolSurfaces  map[StaticID]*SurfaceData
	FxConstantVols     map[FxCode]*ValueData
	QuantoCorrelations map[QuantoKey]*ValueData
	PastDailyValues    map[StaticID]*DailyValueData
}

// NewMarketData returns a bundle with every map allocated.
func NewMarketData() *MarketData {
	return &MarketData{
		Fx:                 make(map[FxCode]*ValueData),
		Stocks:             make(map[StaticID]*ValueData),
		Curves:             make(map[StaticID]*VectorData),
		Dividends:          make(map[StaticID]*VectorData),
		EquityConstantVols: make(map[StaticID]*ValueData),
		EquityVolSurfaces:  make(map[StaticID]*SurfaceData),
		FxConstantVols:     make(map[FxCode]*ValueData),
		QuantoCorrelations: make(map[QuantoKey]*ValueData),
		PastDailyValues:    make(map[StaticID]*DailyValueData),
	}
}

// FxRate returns the rate for code, inverting the reciprocal quote if only that
// is present. Same-currency pairs are 1.
func (m *MarketData) FxRate(code FxCode) (float64, bool) {
	if code.Currency1 == code.Currency2 {
		return 1.0, true
	}
	if v, ok := m.Fx[code]; ok {
		return v.Value, true
	}
	if v, ok := m.Fx[code.Reciprocal()]; ok && v.Value != 0 {
		return 1.0 / v.Value, true
	}
	return 0, false
}
