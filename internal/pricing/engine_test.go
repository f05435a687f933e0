package pricing

import (
	"maps"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/rzzdr/quant-pricing-engine/internal/instrument"
	"github.com/rzzdr/quant-pricing-engine/internal/marketdata"
	"github.com/rzzdr/quant-pricing-engine/internal/pricing/analytic"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/errors"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/logger"
)

const (
	// KOSPI2 futures on 2024-06-14: 347 * DF(0.005) / DF(0.03358) at 164/366
	// years, both factors on the discount grid
	kospiForward = 351.4703799251795
	// the same one day later
	kospiForwardNextDay = 351.44285964444884
	kospiExpiry         = 164.0 / 366.0
)

func allGreeks() *CalculationConfiguration {
	cfg := DefaultCalculationConfiguration()
	cfg.Delta = true
	cfg.Gamma = true
	cfg.Vega = true
	cfg.VegaStructure = true
	cfg.Theta = true
	cfg.DivDelta = true
	cfg.DivStructure = true
	cfg.Rho = true
	cfg.RhoStructure = true
	return cfg
}

func newTestEngine(t *testing.T, cfg *CalculationConfiguration, items ...instrument.Instrument) *Engine {
	t.Helper()
	insts := testInstruments(t, items...)
	engine := NewEngine(0, cfg, evalDate, testMatchParameter()).
		WithInstruments(insts).
		WithMarketData(testMarketData(t)).
		WithLogger(logger.NewNop())
	require.NoError(t, engine.InitializePricers())
	return engine
}

func TestEngineRequiresInputs(t *testing.T) {
	engine := NewEngine(0, nil, evalDate, testMatchParameter())
	err := engine.InitializePricers()
	assert.True(t, errors.HasType(err, errors.ErrorTypeConsistency))

	err = engine.Calculate()
	assert.True(t, errors.HasType(err, errors.ErrorTypeConsistency))
}

func TestEngineBuildsOnlyWhatTheGroupReads(t *testing.T) {
	engine := newTestEngine(t, nil, kospiFutures())
	params := engine.Parameters()

	assert.Len(t, params.Equities, 1)
	assert.Contains(t, params.Dividends, kospi2)
	assert.ElementsMatch(t, []marketdata.StaticID{krwIRS, kospi2Repo}, slices.Collect(maps.Keys(params.ZeroCurves)))
	assert.Empty(t, params.Fxs)
	assert.Empty(t, params.Volatilities)

	marketPrices, dividends := params.EvaluationDate.ObserverCount()
	assert.Equal(t, 1, marketPrices)
	assert.Equal(t, 1, dividends)
}

func TestEngineFuturesGreeks(t *testing.T) {
	engine := newTestEngine(t, allGreeks(), kospiFutures())
	require.NoError(t, engine.Calculate())

	res := engine.Results()[kospiFuturesID]
	require.NotNil(t, res)
	v := kospiForward * 250000

	assert.InDelta(t, kospiForward, res.NpvResult.NPV, 1e-9)
	require.NotNil(t, res.Value)
	assert.InEpsilon(t, v, *res.Value, 1e-12)
	assert.InDelta(t, (kospiForward-350)*250000, res.FxExposure[marketdata.KRW], 1e-4)

	assert.InEpsilon(t, v*0.01, res.Delta[kospi2], 1e-9)
	assert.InDelta(t, 0, res.Gamma[kospi2], 1e-3)

	require.NotNil(t, res.Theta)
	assert.Equal(t, 1, res.ThetaDay)
	assert.InEpsilon(t, (kospiForwardNextDay-kospiForward)*250000, *res.Theta, 1e-6)

	// DF(0.03358)/DF(0.03368) - 1 and DF(0.0051)/DF(0.005) - 1 at the expiry
	assert.InEpsilon(t, v*4.477507804367953e-05, res.Rho[krwIRS], 1e-6)
	assert.InEpsilon(t, v*-4.4802544558741886e-05, res.Rho[kospi2Repo], 1e-6)

	// only the 3M-6M bucket holds the expiry
	structure := res.RhoStructure[krwIRS]
	require.Len(t, structure, 8)
	assert.InEpsilon(t, res.Rho[krwIRS], structure[1], 1e-9)
	for i, x := range structure {
		if i != 1 {
			assert.InDelta(t, 0, x, 1e-6)
		}
	}

	assert.InEpsilon(t, -0.03*kospiForward/347*250000, res.DivDelta[kospi2], 1e-6)
	// the ex-date falls in the first bucket
	assert.InEpsilon(t, res.DivDelta[kospi2], res.DivStructure[kospi2][0], 1e-9)

	assert.Nil(t, res.Vega)
}

func TestEngineRestoresStateAfterGreeks(t *testing.T) {
	engine := newTestEngine(t, allGreeks(), kospiFutures(), kospiCall())
	require.NoError(t, engine.Calculate())

	params := engine.Parameters()
	assert.Equal(t, 350.0, params.Equities[kospi2].Value())
	assert.True(t, params.EvaluationDate.Date().Equal(evalDate))
	assert.InDelta(t, 0.03358, params.ZeroCurves[krwIRS].ZeroRate(0.5), 1e-15)
	assert.InDelta(t, 0.2, params.Volatilities[kospi2].Value(0.5, 1), 1e-15)

	for _, inst := range engine.instruments.All() {
		id := inst.Info().ID
		npv, err := engine.pricers[id].NPV(inst)
		require.NoError(t, err)
		assert.Equal(t, engine.Results()[id].NpvResult.NPV, npv, id.String())
	}
}

func TestEngineOptionVega(t *testing.T) {
	engine := newTestEngine(t, allGreeks(), kospiCall())
	require.NoError(t, engine.Calculate())
	res := engine.Results()[kospiCallID]
	require.NotNil(t, res)

	df := engine.Parameters().ZeroCurves[krwIRS].DiscountFactor(kospiExpiry)
	want, err := analytic.Black(true, kospiForward, 350, 0.04*kospiExpiry, df)
	require.NoError(t, err)
	assert.InDelta(t, want, res.NpvResult.NPV, 1e-9)

	vega := analytic.BlackVega(kospiForward, 350, 0.2, kospiExpiry, df) * 0.01 * 250000
	assert.InEpsilon(t, vega, res.Vega[kospi2], 0.02)
	// 1M, 3M, 6M, ... : the expiry sits in the 3M-6M bucket
	assert.InEpsilon(t, res.Vega[kospi2], res.VegaStructure[kospi2][2], 1e-9)

	assert.Greater(t, res.Delta[kospi2], 0.0)
	assert.Greater(t, res.Gamma[kospi2], 0.0)
	assert.Less(t, *res.Theta, 0.0)
}

func TestEngineVegaMatrixOnSurface(t *testing.T) {
	data := testMarketData(t)
	delete(data.EquityConstantVols, kospi2)
	surface, err := marketdata.NewSurfaceData(mat.NewDense(2, 2, []float64{0.2, 0.2, 0.2, 0.2}), []float64{0.25, 1.0}, []float64{0.9, 1.1}, evalDate, "KOSPI2 vol", kospi2)
	require.NoError(t, err)
	data.EquityVolSurfaces[kospi2] = surface

	cfg := DefaultCalculationConfiguration()
	cfg.Vega = true
	cfg.VegaMatrix = true
	engine := NewEngine(0, cfg, evalDate, testMatchParameter()).
		WithInstruments(testInstruments(t, kospiCall())).
		WithMarketData(data).
		WithLogger(logger.NewNop())
	require.NoError(t, engine.InitializePricers())
	require.NoError(t, engine.Calculate())

	res := engine.Results()[kospiCallID]
	m := res.VegaMatrix[kospi2]
	require.NotNil(t, m)
	r, c := m.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 2, c)

	sum := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			sum += m.At(i, j)
		}
	}
	// bilinear weights add up to one, so the node vegas add up to the parallel vega
	assert.InEpsilon(t, res.Vega[kospi2], sum, 1e-2)
}

func TestEngineMissingMarketDataNamesRole(t *testing.T) {
	cases := []struct {
		name   string
		inst   instrument.Instrument
		remove func(*marketdata.MarketData)
		want   string
	}{
		{
			name:   "borrowing curve",
			inst:   kospiFutures(),
			remove: func(d *marketdata.MarketData) { delete(d.Curves, kospi2Repo) },
			want:   "borrowing curve KOSPI2REPO(KAP)",
		},
		{
			name:   "equity",
			inst:   kospiFutures(),
			remove: func(d *marketdata.MarketData) { delete(d.Stocks, kospi2) },
			want:   "equity KOSPI2(KRX)",
		},
		{
			name:   "volatility",
			inst:   kospiCall(),
			remove: func(d *marketdata.MarketData) { delete(d.EquityConstantVols, kospi2) },
			want:   "volatility KOSPI2(KRX)",
		},
		{
			name:   "fx",
			inst:   usdFutures(),
			remove: func(d *marketdata.MarketData) { delete(d.Fx, usdkrw) },
			want:   "fx USDKRW",
		},
		{
			name:   "underlying currency curve",
			inst:   usdFutures(),
			remove: func(d *marketdata.MarketData) { delete(d.Curves, usdOIS) },
			want:   "floating crs curve USDOIS(BBG)",
		},
		{
			name:   "quanto correlation",
			inst:   spxFutures(),
			remove: func(d *marketdata.MarketData) { clear(d.QuantoCorrelations) },
			want:   "quanto correlation {SPX(CBOE) USDKRW}",
		},
		{
			name:   "fx volatility",
			inst:   spxFutures(),
			remove: func(d *marketdata.MarketData) { delete(d.FxConstantVols, usdkrw) },
			want:   "fx volatility USDKRW",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data := testMarketData(t)
			tc.remove(data)
			engine := NewEngine(0, nil, evalDate, testMatchParameter()).
				WithInstruments(testInstruments(t, tc.inst)).
				WithMarketData(data).
				WithLogger(logger.NewNop())

			err := engine.InitializePricers()
			require.Error(t, err)
			assert.True(t, errors.HasType(err, errors.ErrorTypeConfiguration))
			info := tc.inst.Info()
			assert.Contains(t, err.Error(), info.Name+" ("+info.ID.String()+"): "+tc.want)
		})
	}
}

// Seoul close on 2024-03-13 with KSD collateral, a 0.5% borrowing fee and
// 3.0 dividends on 2024-06-01 and 2025-01-01.
func TestEngineKospiFuturesAtSeoulClose(t *testing.T) {
	seoul := time.FixedZone("KST", 9*60*60)
	at := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, seoul) }
	eval := time.Date(2024, 3, 13, 16, 30, 0, 0, seoul)
	ksd := marketdata.NewStaticID("KSD", "DataProvider")
	fee := marketdata.NewStaticID("KOSPI2", "DataProvider")

	curve := func(id marketdata.StaticID, rate float64) *marketdata.VectorData {
		v, err := marketdata.NewVectorData([]float64{rate, rate}, []time.Time{at(2025, 3, 13), at(2026, 3, 13)}, nil, eval, marketdata.KRW, id.Code, id)
		require.NoError(t, err)
		return v
	}
	dividends, err := marketdata.NewVectorData([]float64{3.0, 3.0}, []time.Time{at(2024, 6, 1), at(2025, 1, 1)}, nil, eval, marketdata.KRW, "KOSPI2", kospi2)
	require.NoError(t, err)

	data := marketdata.NewMarketData()
	data.Stocks[kospi2] = &marketdata.ValueData{Value: 350, MarketDatetime: eval, Currency: marketdata.KRW, Name: "KOSPI2", ID: kospi2}
	data.Dividends[kospi2] = dividends
	data.Curves[ksd] = curve(ksd, 0.03358-0.0005)
	data.Curves[fee] = curve(fee, 0.005)

	futures := func(code string, maturity time.Time) *instrument.Futures {
		f := kospiFutures()
		f.ID = marketdata.NewStaticID(code, "KRX")
		f.Name = code
		f.Maturity = maturity
		return f
	}
	near, far := futures("KA1016000", at(2024, 6, 14)), futures("KA1016100", at(2025, 6, 14))

	mp := NewMatchParameter(MatchTables{
		Collateral: map[marketdata.StaticID]marketdata.StaticID{kospi2: ksd},
		Borrowing:  map[marketdata.StaticID]marketdata.StaticID{kospi2: fee},
	})
	engine := NewEngine(0, nil, eval, mp).
		WithInstruments(testInstruments(t, near, far)).
		WithMarketData(data).
		WithLogger(logger.NewNop())
	require.NoError(t, engine.InitializePricers())
	require.NoError(t, engine.Calculate())

	// quoted to six decimals; the near contract crosses one ex-date, the far
	// one both
	assert.InDelta(t, 349.466208, engine.Results()[near.ID].NpvResult.NPV, 3e-5)
	assert.InDelta(t, 356.310592, engine.Results()[far.ID].NpvResult.NPV, 3e-5)
}

func TestEngineQuantoFutures(t *testing.T) {
	engine := newTestEngine(t, nil, spxFutures())
	require.NoError(t, engine.Calculate())
	assert.InDelta(t, 5065.35555627263, engine.Results()[spxFuturesID].NpvResult.NPV, 1e-9)
	assert.InDelta(t, 0.3, engine.Parameters().Quantos[marketdata.QuantoKey{UnderlyingID: spx, FxCode: usdkrw}].Correlation(), 0)

	// a missing correlation is not read as zero
	data := testMarketData(t)
	clear(data.QuantoCorrelations)
	err := NewEngine(0, nil, evalDate, testMatchParameter()).
		WithInstruments(testInstruments(t, spxFutures())).
		WithMarketData(data).
		WithLogger(logger.NewNop()).
		InitializePricers()
	require.Error(t, err)
	assert.True(t, errors.HasType(err, errors.ErrorTypeConfiguration))
}

func TestEngineForwardStartingSwapsNeedNoFixings(t *testing.T) {
	engine := newTestEngine(t, nil, krwSwap(), usdSwap())
	require.NoError(t, engine.Calculate())
	assert.InDelta(t, 0.001131617093803175, engine.Results()[krwSwapID].NpvResult.NPV, 1e-12)
	assert.InDelta(t, 7.918488450448995, engine.Results()[usdSwapID].NpvResult.NPV, 1e-9)

	seasoned := krwSwap()
	seasoned.EffectiveDate = time.Date(2023, 10, 2, 0, 0, 0, 0, time.UTC)
	engine = newTestEngine(t, nil, seasoned)
	err := engine.Calculate()
	require.Error(t, err)
	assert.True(t, errors.HasType(err, errors.ErrorTypeConfiguration))
	assert.Contains(t, err.Error(), "past fixings CD91(KAP)")
}
