// Package scenario decodes pricing scenarios (market data, instruments,
// curve mappings and engine categories) from YAML or JSON and runs them.
package scenario

import (
	"bytes"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/rzzdr/quant-pricing-engine/internal/marketdata"
	"github.com/rzzdr/quant-pricing-engine/internal/pricing"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/errors"
)

// File is the document layout. Ids are written "CODE(PROVIDER)", currencies
// as three letter codes and dates as RFC 3339 or YYYY-MM-DD. Lookup tables
// are lists since document keys are case-folded on decode.
type File struct {
	EvaluationDate         time.Time                    `mapstructure:"evaluation_date"`
	RepresentationCurrency string                       `mapstructure:"representation_currency"`
	MarketData             MarketDataFile               `mapstructure:"market_data"`
	MatchParameter         MatchFile                    `mapstructure:"match_parameter"`
	Categories             []pricing.InstrumentCategory `mapstructure:"categories"`
	Instruments            []InstrumentSpec             `mapstructure:"instruments"`
}

type ValueSpec struct {
	ID             marketdata.StaticID `mapstructure:"id"`
	Name           string              `mapstructure:"name"`
	Value          float64             `mapstructure:"value"`
	Currency       marketdata.Currency `mapstructure:"currency"`
	MarketDatetime time.Time           `mapstructure:"market_datetime"`
}

type FxValueSpec struct {
	Code           marketdata.FxCode `mapstructure:"code"`
	Value          float64           `mapstructure:"value"`
	MarketDatetime time.Time         `mapstructure:"market_datetime"`
}

// VectorSpec is a curve or a dividend schedule.
type VectorSpec struct {
	ID             marketdata.StaticID `mapstructure:"id"`
	Name           string              `mapstructure:"name"`
	Currency       marketdata.Currency `mapstructure:"currency"`
	MarketDatetime time.Time           `mapstructure:"market_datetime"`
	Dates          []time.Time         `mapstructure:"dates"`
	Times          []float64           `mapstructure:"times"`
	Values         []float64           `mapstructure:"values"`
}

// SurfaceSpec lists vols row by row, one row per tenor.
type SurfaceSpec struct {
	ID             marketdata.StaticID `mapstructure:"id"`
	Name           string              `mapstructure:"name"`
	MarketDatetime time.Time           `mapstructure:"market_datetime"`
	Tenors         []float64           `mapstructure:"tenors"`
	Moneyness      []float64           `mapstructure:"moneyness"`
	Values         [][]float64         `mapstructure:"values"`
}

type QuantoSpec struct {
	UnderlyingID marketdata.StaticID `mapstructure:"underlying_id"`
	FxCode       marketdata.FxCode   `mapstructure:"fx_code"`
	Value        float64             `mapstructure:"value"`
}

type FixingSpec struct {
	Date  time.Time `mapstructure:"date"`
	Value float64   `mapstructure:"value"`
}

type DailySpec struct {
	ID      marketdata.StaticID `mapstructure:"id"`
	Name    string              `mapstructure:"name"`
	Fixings []FixingSpec        `mapstructure:"fixings"`
}

type MarketDataFile struct {
	Stocks             []ValueSpec   `mapstructure:"stocks"`
	Fx                 []FxValueSpec `mapstructure:"fx"`
	Curves             []VectorSpec  `mapstructure:"curves"`
	Dividends          []VectorSpec  `mapstructure:"dividends"`
	EquityConstantVols []ValueSpec   `mapstructure:"equity_constant_vols"`
	EquityVolSurfaces  []SurfaceSpec `mapstructure:"equity_vol_surfaces"`
	FxConstantVols     []FxValueSpec `mapstructure:"fx_constant_vols"`
	QuantoCorrelations []QuantoSpec  `mapstructure:"quanto_correlations"`
	PastDailyValues    []DailySpec   `mapstructure:"past_daily_values"`
}

// CurveLink maps an underlying or rate index to a curve.
type CurveLink struct {
	Key   marketdata.StaticID `mapstructure:"key"`
	Curve marketdata.StaticID `mapstructure:"curve"`
}

type CurrencyLink struct {
	Currency marketdata.Currency `mapstructure:"currency"`
	Curve    marketdata.StaticID `mapstructure:"curve"`
}

type BondCurveLink struct {
	Issuer       marketdata.StaticID `mapstructure:"issuer"`
	IssuerType   string              `mapstructure:"issuer_type"`
	CreditRating string              `mapstructure:"credit_rating"`
	Currency     marketdata.Currency `mapstructure:"currency"`
	Curve        marketdata.StaticID `mapstructure:"curve"`
}

type MatchFile struct {
	Collateral       []CurveLink     `mapstructure:"collateral"`
	Borrowing        []CurveLink     `mapstructure:"borrowing"`
	BondDiscount     []BondCurveLink `mapstructure:"bond_discount"`
	RateIndexForward []CurveLink     `mapstructure:"rate_index_forward"`
	Crs              []CurrencyLink  `mapstructure:"crs"`
	Funding          []CurrencyLink  `mapstructure:"funding"`
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", time.DateTime, time.DateOnly}

// dateHook accepts full timestamps and bare dates; bare dates are UTC midnight.
func dateHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(time.Time{}) {
		return data, nil
	}
	switch v := data.(type) {
	case time.Time:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, nil
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return nil, errors.InvalidArgumentf("cannot parse date %q", v)
	default:
		return data, nil
	}
}

// Decode reads a document in the given format ("yaml" or "json").
func Decode(r io.Reader, format string) (*File, error) {
	v := viper.New()
	v.SetConfigType(format)
	if err := v.ReadConfig(r); err != nil {
		return nil, errors.WithType(errors.Wrapf(err, "failed to read %s scenario", format), errors.ErrorTypeInvalidArgument)
	}
	return unmarshal(v)
}

// DecodeFile reads a document, picking the format from the extension.
func DecodeFile(path string) (*File, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.WithType(errors.Wrapf(err, "failed to read scenario %s", path), errors.ErrorTypeInvalidArgument)
	}
	return unmarshal(v)
}

// DecodeBytes is Decode over an in-memory document.
func DecodeBytes(b []byte, format string) (*File, error) {
	return Decode(bytes.NewReader(b), format)
}

func unmarshal(v *viper.Viper) (*File, error) {
	var f File
	hook := mapstructure.ComposeDecodeHookFunc(
		dateHook,
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&f, viper.DecodeHook(hook)); err != nil {
		return nil, errors.WithType(errors.Wrap(err, "failed to decode scenario"), errors.ErrorTypeInvalidArgument)
	}
	return &f, nil
}
