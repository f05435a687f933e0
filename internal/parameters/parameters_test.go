package parameters

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/rzzdr/quant-pricing-engine/internal/marketdata"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/errors"
)

var kospi2 = marketdata.NewStaticID("KOSPI2", "DataProvider")

func newSpotWithDividends(t *testing.T, start time.Time) (*EvaluationDate, *MarketPrice) {
	t.Helper()
	divData, err := marketdata.NewVectorData(
		[]float64{1.0, 1.0, 1.0},
		[]time.Time{start.AddDate(0, 0, 1), start.AddDate(0, 0, 2), start.AddDate(0, 0, 3)},
		nil, start, marketdata.KRW, "KOSPI2 dividend", kospi2,
	)
	require.NoError(t, err)
	dividend, err := NewDiscreteRatioDividend(divData, 100.0, start)
	require.NoError(t, err)

	eval := NewEvaluationDate(start)
	spot := NewMarketPrice(100.0, start, dividend, marketdata.KRW, "KOSPI2", kospi2)
	eval.RegisterMarketPrice(spot)
	eval.RegisterDividend(dividend)
	return eval, spot
}

func TestMarketPriceDividendRoundTrip(t *testing.T) {
	start := time.Date(2024, 1, 2, 16, 30, 0, 0, time.UTC)
	eval, spot := newSpotWithDividends(t, start)

	require.NoError(t, eval.AddPeriod("1D"))
	assert.InDelta(t, 99.0, spot.Value(), 1e-12)

	require.NoError(t, eval.AddPeriod("1D"))
	assert.InDelta(t, 99.0*0.99, spot.Value(), 1e-12)

	require.NoError(t, eval.SubPeriod("3D"))
	assert.InDelta(t, 100.0, spot.Value(), 1e-12)
	assert.Equal(t, start.AddDate(0, 0, -1), spot.MarketDatetime())

	require.NoError(t, eval.SetDate(start))
	assert.InDelta(t, 100.0, spot.Value(), 1e-12)
}

func TestMarketPriceJumpOverSeveralExDates(t *testing.T) {
	start := time.Date(2024, 1, 2, 16, 30, 0, 0, time.UTC)
	eval, spot := newSpotWithDividends(t, start)

	require.NoError(t, eval.AddPeriod("1W"))
	assert.InDelta(t, 100.0*math.Pow(0.99, 3), spot.Value(), 1e-12)
	assert.InDelta(t, 1.0, spot.DividendDeductionRatio(start.AddDate(0, 1, 0)), 1e-15)

	require.NoError(t, eval.SetDate(start))
	assert.InDelta(t, 100.0, spot.Value(), 1e-12)
	assert.InDelta(t, 0.99*0.99, spot.DividendDeductionRatio(start.AddDate(0, 0, 2)), 1e-15)
}

type recordingObserver struct {
	name string
	log  *[]string
	err  error
}

func (r *recordingObserver) Name() string { return r.name }

func (r *recordingObserver) UpdateEvaluationDate(*EvaluationDate) error {
	*r.log = append(*r.log, r.name)
	return r.err
}

func TestNotifyOrderPricesBeforeDividends(t *testing.T) {
	var calls []string
	eval := NewEvaluationDate(time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC))
	eval.Register(DividendObserver, &recordingObserver{name: "div-a", log: &calls})
	eval.Register(MarketPriceObserver, &recordingObserver{name: "price-a", log: &calls})
	eval.Register(DividendObserver, &recordingObserver{name: "div-b", log: &calls})
	h := eval.Register(MarketPriceObserver, &recordingObserver{name: "price-b", log: &calls})

	require.NoError(t, eval.AddPeriod("1D"))
	assert.Equal(t, []string{"price-a", "price-b", "div-a", "div-b"}, calls)

	o, ok := eval.Observer(h)
	require.True(t, ok)
	assert.Equal(t, "price-b", o.Name())
	_, ok = eval.Observer(ObserverHandle{Kind: DividendObserver, Index: 5})
	assert.False(t, ok)
}

func TestNotifyFailsFast(t *testing.T) {
	var calls []string
	eval := NewEvaluationDate(time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC))
	eval.Register(MarketPriceObserver, &recordingObserver{name: "ok", log: &calls})
	eval.Register(MarketPriceObserver, &recordingObserver{name: "broken", log: &calls, err: errors.New("not loaded")})
	eval.Register(DividendObserver, &recordingObserver{name: "never", log: &calls})

	err := eval.AddPeriod("1D")
	require.Error(t, err)
	assert.True(t, errors.HasType(err, errors.ErrorTypeConsistency))
	assert.Contains(t, err.Error(), "broken")
	assert.Equal(t, []string{"ok", "broken"}, calls)
}

func TestCloneDropsObservers(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	eval, spot := newSpotWithDividends(t, start)

	clone := eval.Clone()
	prices, dividends := clone.ObserverCount()
	assert.Zero(t, prices)
	assert.Zero(t, dividends)

	require.NoError(t, clone.AddPeriod("1M"))
	assert.Equal(t, 100.0, spot.Value())
	assert.Equal(t, start, eval.Date())
}

func TestEmptyDividendFailsUpdate(t *testing.T) {
	d := &DiscreteRatioDividend{id: kospi2}
	err := d.UpdateEvaluationDate(NewEvaluationDate(time.Now()))
	assert.True(t, errors.HasType(err, errors.ErrorTypeConsistency))
}

func TestDividendRejectsRatioAboveOne(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	data, err := marketdata.NewVectorData([]float64{120}, []time.Time{start.AddDate(0, 1, 0)}, nil, start, marketdata.KRW, "x", kospi2)
	require.NoError(t, err)
	_, err = NewDiscreteRatioDividend(data, 100, start)
	assert.Error(t, err)
}

func TestDividendRejectsMismatchedSchedule(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	data := &marketdata.VectorData{
		Values:         []float64{1.0, 1.0},
		Dates:          []time.Time{start.AddDate(0, 1, 0)},
		MarketDatetime: start,
		ID:             kospi2,
	}
	_, err := NewDiscreteRatioDividend(data, 100, start)
	require.Error(t, err)
	assert.True(t, errors.HasType(err, errors.ErrorTypeInvalidArgument))
	assert.Contains(t, err.Error(), "1 ex-dates for 2 amounts")
}

func TestMarketPriceKeepsValueOnBadRatio(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	_, spot := newSpotWithDividends(t, start)
	div := spot.Dividend()
	later := NewEvaluationDate(start.AddDate(0, 0, 7))

	// the second ex-date now removes the whole spot
	div.BumpRatios(1.5/366.0, 2.5/366.0, 99)
	err := spot.UpdateEvaluationDate(later)
	require.Error(t, err)
	assert.True(t, errors.HasType(err, errors.ErrorTypeConsistency))
	assert.Equal(t, 100.0, spot.Value())
	assert.Equal(t, start, spot.MarketDatetime())

	div.ResetBumps()
	require.NoError(t, spot.UpdateEvaluationDate(later))
	moved := spot.Value()
	assert.InDelta(t, 100.0*math.Pow(0.99, 3), moved, 1e-12)

	div.BumpRatios(1.5/366.0, 2.5/366.0, 99)
	err = spot.UpdateEvaluationDate(NewEvaluationDate(start))
	require.Error(t, err)
	assert.Equal(t, moved, spot.Value())
	assert.Equal(t, later.Date(), spot.MarketDatetime())
}

func TestDividendBumps(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	_, spot := newSpotWithDividends(t, start)
	div := spot.Dividend()

	div.BumpRatios(0, 2.5/366.0, 0.1)
	ratios := div.RatiosBetween(start, start.AddDate(0, 0, 3))
	require.Len(t, ratios, 3)
	assert.InDelta(t, 0.011, ratios[0], 1e-15)
	assert.InDelta(t, 0.011, ratios[1], 1e-15)
	assert.InDelta(t, 0.01, ratios[2], 1e-15)

	div.ResetBumps()
	assert.InDelta(t, 0.01, div.RatiosBetween(start, start.AddDate(0, 0, 1))[0], 1e-15)
}

func TestMarketPriceBumps(t *testing.T) {
	p := NewMarketPrice(350, time.Time{}, nil, marketdata.KRW, "KOSPI2", kospi2)
	p.Add(10)
	p.Mul(2)
	p.Sub(20)
	p.Div(2)
	assert.Equal(t, 350.0, p.Value())
	assert.Equal(t, 1.0, p.DividendDeductionRatio(time.Now()))
}

func TestZeroCurve(t *testing.T) {
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	eval := NewEvaluationDate(base)
	data, err := marketdata.NewVectorData([]float64{0.03, 0.04}, nil, []float64{1.0, 3.0}, base, marketdata.KRW, "KRWGOV", marketdata.NewStaticID("KRWGOV", "KAP"))
	require.NoError(t, err)
	curve, err := NewZeroCurve(eval, data)
	require.NoError(t, err)

	assert.InDelta(t, 0.03, curve.ZeroRate(0.5), 1e-15)
	assert.InDelta(t, 0.035, curve.ZeroRate(2.0), 1e-15)
	assert.InDelta(t, 0.04, curve.ZeroRate(10.0), 1e-15)
	assert.InDelta(t, math.Exp(-0.035*2.0), curve.DiscountFactor(2.0), 1e-15)
	// off the grid the factor is linear between its neighbours
	assert.InDelta(t, (math.Exp(-0.03*0.25)+math.Exp(-0.03*0.5))/2, curve.DiscountFactor(0.375), 1e-15)
	assert.InDelta(t, 1-0.5*(1-math.Exp(-0.03*0.25)), curve.DiscountFactor(0.125), 1e-15)
	assert.InDelta(t, math.Exp(-0.04*40), curve.DiscountFactor(40), 1e-15)
	assert.Equal(t, 1.0, curve.DiscountFactorAt(base.AddDate(0, 0, -5)))

	curve.BumpTimeInterval(0, 1.5, 0.0001)
	assert.InDelta(t, 0.0301, curve.ZeroRate(0.5), 1e-15)
	assert.InDelta(t, 0.035, curve.ZeroRate(2.0), 1e-15)
	curve.ResetBumps()
	assert.InDelta(t, 0.03, curve.ZeroRate(0.5), 1e-15)

	// node times follow the evaluation date
	next := base.AddDate(0, 0, 365)
	require.NoError(t, eval.SetDate(next))
	assert.InDelta(t, 0.035, curve.ZeroRate(2.0-marketdata.YearFraction(base, next)), 1e-12)

	fwd, err := curve.ForwardRate(base.AddDate(1, 0, 0), base.AddDate(2, 0, 0))
	require.NoError(t, err)
	assert.Greater(t, fwd, 0.03)
	_, err = curve.ForwardRate(base, base)
	assert.Error(t, err)
}

func TestVolatilitySurface(t *testing.T) {
	grid := mat.NewDense(2, 2, []float64{
		0.20, 0.30,
		0.10, 0.20,
	})
	data, err := marketdata.NewSurfaceData(grid, []float64{1.0, 2.0}, []float64{0.9, 1.1}, time.Time{}, "KOSPI2 surface", kospi2)
	require.NoError(t, err)
	s, err := NewVolatilitySurface(data)
	require.NoError(t, err)

	assert.InDelta(t, 0.25, s.Value(1.0, 1.0), 1e-15)
	assert.InDelta(t, 0.20, s.Value(1.5, 1.0), 1e-15)
	assert.InDelta(t, 0.20, s.Value(0.1, 0.5), 1e-15)
	assert.InDelta(t, 0.20, s.Value(5.0, 2.0), 1e-15)

	s.BumpNode(0, 0, 0.01)
	assert.InDelta(t, 0.21, s.Value(0.5, 0.9), 1e-15)
	s.ResetBumps()
	assert.InDelta(t, 0.20, s.Value(0.5, 0.9), 1e-15)

	// surface data is not mutated by bumps
	assert.Equal(t, 0.20, grid.At(0, 0))
}

func TestConstantVolatilityAndQuanto(t *testing.T) {
	v := NewConstantVolatility(&marketdata.ValueData{Value: 0.2, ID: kospi2})
	assert.InDelta(t, 0.04, v.TotalVariance(1.0, 1.0), 1e-15)
	v.BumpTimeInterval(0, 1, 0.01)
	assert.InDelta(t, 0.21, v.Value(0.5, 0), 1e-15)
	assert.InDelta(t, 0.20, v.Value(1.5, 0), 1e-15)
	v.ResetBumps()

	fxVol := NewConstantVolatility(&marketdata.ValueData{Value: 0.1})
	q, err := NewQuanto(fxVol, -0.5, marketdata.NewFxCode(marketdata.USD, marketdata.KRW), kospi2)
	require.NoError(t, err)
	assert.InDelta(t, -0.05, q.Adjust(1.0, 1.0), 1e-15)

	_, err = NewQuanto(fxVol, 1.5, marketdata.FxCode{}, kospi2)
	assert.Error(t, err)
}

func TestPastPrice(t *testing.T) {
	day := time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)
	p := NewPastPrice(&marketdata.DailyValueData{Values: map[time.Time]float64{day: 0.0361}, ID: marketdata.NewStaticID("CD91", "KAP")})

	v, err := p.Fixing(day.Add(15 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0.0361, v)

	_, err = p.Fixing(day.AddDate(0, 0, 1))
	assert.True(t, errors.HasType(err, errors.ErrorTypeNotFound))

	var missing *PastPrice
	_, err = missing.Fixing(day)
	assert.Error(t, err)
}
