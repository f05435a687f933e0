package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rzzdr/quant-pricing-engine/internal/instrument"
	"github.com/rzzdr/quant-pricing-engine/internal/marketdata"
)

var (
	evalDate = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	kospi2     = marketdata.NewStaticID("KOSPI2", "KRX")
	samsung    = marketdata.NewStaticID("005930", "KRX")
	krwIRS     = marketdata.NewStaticID("KRWIRS", "KAP")
	kospi2Repo = marketdata.NewStaticID("KOSPI2REPO", "KAP")
	krwCRS     = marketdata.NewStaticID("KRWCRS", "KAP")
	usdOIS     = marketdata.NewStaticID("USDOIS", "BBG")
	usdkrw     = marketdata.NewFxCode(marketdata.USD, marketdata.KRW)
	spx        = marketdata.NewStaticID("SPX", "CBOE")
	spxRepo    = marketdata.NewStaticID("SPXREPO", "BBG")
	cd91       = marketdata.NewStaticID("CD91", "KAP")
	sofr       = marketdata.NewStaticID("SOFR", "BBG")

	kospiFuturesID = marketdata.NewStaticID("KA1016000", "KRX")
	usdFuturesID   = marketdata.NewStaticID("KU1016000", "KRX")
	kospiCallID    = marketdata.NewStaticID("KC1016350", "KRX")
	krwCashID      = marketdata.NewStaticID("KRWCASH", "DESK")
	spxFuturesID   = marketdata.NewStaticID("SPXKRW2406", "KRX")
	krwSwapID      = marketdata.NewStaticID("KRWIRS1Y", "DESK")
	usdSwapID      = marketdata.NewStaticID("USDKRWCRS1Y", "DESK")
)

func flatCurve(t *testing.T, id marketdata.StaticID, ccy marketdata.Currency, rate float64) *marketdata.VectorData {
	t.Helper()
	v, err := marketdata.NewVectorData([]float64{rate}, nil, []float64{1.0}, evalDate, ccy, id.Code, id)
	require.NoError(t, err)
	return v
}

func valueData(v float64, ccy marketdata.Currency, id marketdata.StaticID) *marketdata.ValueData {
	return &marketdata.ValueData{Value: v, MarketDatetime: evalDate, Currency: ccy, Name: id.Code, ID: id}
}

// testMarketData is a KOSPI2 at 350 with one 3.0 dividend on 2024-03-15,
// flat KRW curves and USDKRW at 1300. SPX trades at 5000 USD with a 0.3
// correlation to USDKRW.
func testMarketData(t *testing.T) *marketdata.MarketData {
	t.Helper()
	data := marketdata.NewMarketData()
	data.Stocks[kospi2] = valueData(350, marketdata.KRW, kospi2)
	data.Stocks[samsung] = valueData(70000, marketdata.KRW, samsung)
	data.Dividends[kospi2] = &marketdata.VectorData{
		Values:         []float64{3.0},
		Dates:          []time.Time{time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		MarketDatetime: evalDate,
		Currency:       marketdata.KRW,
		Name:           "KOSPI2 dividend",
		ID:             kospi2,
	}
	data.Curves[krwIRS] = flatCurve(t, krwIRS, marketdata.KRW, 0.03358)
	data.Curves[kospi2Repo] = flatCurve(t, kospi2Repo, marketdata.KRW, 0.005)
	data.Curves[krwCRS] = flatCurve(t, krwCRS, marketdata.KRW, 0.04)
	data.Curves[usdOIS] = flatCurve(t, usdOIS, marketdata.USD, 0.04)
	data.Fx[usdkrw] = &marketdata.ValueData{Value: 1300, MarketDatetime: evalDate, Currency: marketdata.KRW, Name: "USDKRW"}
	data.EquityConstantVols[kospi2] = valueData(0.2, marketdata.KRW, kospi2)

	data.Stocks[spx] = valueData(5000, marketdata.USD, spx)
	data.Curves[spxRepo] = flatCurve(t, spxRepo, marketdata.USD, 0.005)
	data.EquityConstantVols[spx] = valueData(0.2, marketdata.USD, spx)
	data.FxConstantVols[usdkrw] = &marketdata.ValueData{Value: 0.1, MarketDatetime: evalDate, Currency: marketdata.KRW, Name: "USDKRW vol"}
	data.QuantoCorrelations[marketdata.QuantoKey{UnderlyingID: spx, FxCode: usdkrw}] = valueData(0.3, marketdata.KRW, spx)
	return data
}

func testMatchParameter() *MatchParameter {
	return NewMatchParameter(MatchTables{
		Collateral:       map[marketdata.StaticID]marketdata.StaticID{kospi2: krwIRS, spx: usdOIS},
		Borrowing:        map[marketdata.StaticID]marketdata.StaticID{kospi2: kospi2Repo, spx: spxRepo},
		RateIndexForward: map[marketdata.StaticID]marketdata.StaticID{cd91: krwIRS, sofr: usdOIS},
		Crs: map[marketdata.Currency]marketdata.StaticID{
			marketdata.KRW: krwCRS,
			marketdata.USD: usdOIS,
		},
		Funding: map[marketdata.Currency]marketdata.StaticID{marketdata.KRW: krwIRS},
	})
}

func kospiFutures() *instrument.Futures {
	return &instrument.Futures{
		InstInfo: instrument.InstInfo{
			ID:           kospiFuturesID,
			Name:         "KOSPI200 F 202406",
			Type:         instrument.TypeFutures,
			Currency:     marketdata.KRW,
			UnitNotional: 250000,
			IssueDate:    time.Date(2023, 6, 9, 0, 0, 0, 0, time.UTC),
			Maturity:     time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC),
		},
		TradePrice:         350,
		UnderlyingID:       kospi2,
		UnderlyingCurrency: marketdata.KRW,
	}
}

func usdFutures() *instrument.FxFutures {
	return &instrument.FxFutures{
		InstInfo: instrument.InstInfo{
			ID:           usdFuturesID,
			Name:         "USD F 202412",
			Type:         instrument.TypeFxFutures,
			Currency:     marketdata.KRW,
			UnitNotional: 10000,
			Maturity:     time.Date(2024, 12, 15, 0, 0, 0, 0, time.UTC),
		},
		TradePrice:         1300,
		UnderlyingCurrency: marketdata.USD,
	}
}

func kospiCall() *instrument.VanillaOption {
	return &instrument.VanillaOption{
		InstInfo: instrument.InstInfo{
			ID:           kospiCallID,
			Name:         "KOSPI200 C 202406 350.0",
			Type:         instrument.TypeVanillaCall,
			Currency:     marketdata.KRW,
			UnitNotional: 250000,
			Maturity:     time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC),
		},
		Strike:             350,
		OptionType:         instrument.Call,
		UnderlyingID:       kospi2,
		UnderlyingCurrency: marketdata.KRW,
	}
}

// spxFutures is a KRW contract on a USD index, so it carries a quanto drift.
func spxFutures() *instrument.Futures {
	return &instrument.Futures{
		InstInfo: instrument.InstInfo{
			ID:           spxFuturesID,
			Name:         "SPX KRW F 202406",
			Type:         instrument.TypeFutures,
			Currency:     marketdata.KRW,
			UnitNotional: 1000,
			Maturity:     time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC),
		},
		TradePrice:         5000,
		UnderlyingID:       spx,
		UnderlyingCurrency: marketdata.USD,
	}
}

// krwSwap receives 3.5% fixed against CD91 on one KRW notional, starting
// 2024-04-02 with semiannual payments to 2025-04-02.
func krwSwap() *instrument.PlainSwap {
	return &instrument.PlainSwap{
		InstInfo: instrument.InstInfo{
			ID:           krwSwapID,
			Name:         "KRW IRS 1Y fwd 3M",
			Type:         instrument.TypeIRS,
			Currency:     marketdata.KRW,
			UnitNotional: 10_000_000,
			Maturity:     time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC),
		},
		EffectiveDate:       time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC),
		Direction:           instrument.ReceiveFixed,
		FixedRate:           0.035,
		FixedLegCurrency:    marketdata.KRW,
		FloatingLegCurrency: marketdata.KRW,
		FixedNotional:       1,
		FloatingNotional:    1,
		Frequency:           marketdata.MustParsePeriod("6M"),
		RateIndex:           &instrument.RateIndex{ID: cd91, Name: "CD91", Tenor: marketdata.MustParsePeriod("3M"), Currency: marketdata.KRW},
	}
}

// usdSwap pays 3.5% on 1300 KRW against SOFR + 10bp on one USD, exchanging
// notionals on the same dates as krwSwap.
func usdSwap() *instrument.PlainSwap {
	return &instrument.PlainSwap{
		InstInfo: instrument.InstInfo{
			ID:           usdSwapID,
			Name:         "USDKRW CRS 1Y fwd 3M",
			Type:         instrument.TypeCRS,
			Currency:     marketdata.KRW,
			UnitNotional: 1_000_000,
			Maturity:     time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC),
		},
		EffectiveDate:       time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC),
		Direction:           instrument.PayFixed,
		FixedRate:           0.035,
		FixedLegCurrency:    marketdata.KRW,
		FloatingLegCurrency: marketdata.USD,
		FixedNotional:       1300,
		FloatingNotional:    1,
		Frequency:           marketdata.MustParsePeriod("6M"),
		RateIndex:           &instrument.RateIndex{ID: sofr, Name: "SOFR", Tenor: marketdata.MustParsePeriod("3M"), Currency: marketdata.USD},
		Spread:              0.001,
		FloatingToFixedFx:   &usdkrw,
	}
}

func samsungStock() *instrument.Stock {
	return &instrument.Stock{
		InstInfo: instrument.InstInfo{
			ID:           samsung,
			Name:         "Samsung Electronics",
			Type:         instrument.TypeStock,
			Currency:     marketdata.KRW,
			UnitNotional: 10,
		},
		TradePrice: 68000,
	}
}

func krwCash() *instrument.Cash {
	return &instrument.Cash{InstInfo: instrument.InstInfo{
		ID:           krwCashID,
		Name:         "KRW cash",
		Type:         instrument.TypeCash,
		Currency:     marketdata.KRW,
		UnitNotional: 1_000_000,
	}}
}

func testInstruments(t *testing.T, items ...instrument.Instrument) *instrument.Instruments {
	t.Helper()
	insts, err := instrument.NewInstruments(items)
	require.NoError(t, err)
	return insts
}
