package scenario

import (
	"strings"
	"time"

	"github.com/rzzdr/quant-pricing-engine/internal/instrument"
	"github.com/rzzdr/quant-pricing-engine/internal/marketdata"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/errors"
)

type RateIndexSpec struct {
	ID       marketdata.StaticID `mapstructure:"id"`
	Name     string              `mapstructure:"name"`
	Tenor    string              `mapstructure:"tenor"`
	Currency marketdata.Currency `mapstructure:"currency"`
}

type VirtualBondSpec struct {
	Years           int     `mapstructure:"years"`
	CouponRate      float64 `mapstructure:"coupon_rate"`
	PaymentsPerYear int     `mapstructure:"payments_per_year"`
	UnitNotional    float64 `mapstructure:"unit_notional"`
}

// InstrumentSpec carries the fields of every instrument kind; Kind picks
// which of them are read.
type InstrumentSpec struct {
	Kind            string              `mapstructure:"kind"`
	ID              marketdata.StaticID `mapstructure:"id"`
	Name            string              `mapstructure:"name"`
	Type            string              `mapstructure:"type"`
	Currency        marketdata.Currency `mapstructure:"currency"`
	UnitNotional    float64             `mapstructure:"unit_notional"`
	IssueDate       time.Time           `mapstructure:"issue_date"`
	Maturity        time.Time           `mapstructure:"maturity"`
	AccountingLevel int                 `mapstructure:"accounting_level"`
	TradePrice      float64             `mapstructure:"trade_price"`

	UnderlyingID       marketdata.StaticID `mapstructure:"underlying_id"`
	UnderlyingCurrency marketdata.Currency `mapstructure:"underlying_currency"`

	Strike  float64 `mapstructure:"strike"`
	Settled bool    `mapstructure:"settled"`
	Method  string  `mapstructure:"method"`

	IssuerID     marketdata.StaticID `mapstructure:"issuer_id"`
	IssuerType   string              `mapstructure:"issuer_type"`
	CreditRating string              `mapstructure:"credit_rating"`
	CouponRate   float64             `mapstructure:"coupon_rate"`
	Frequency    string              `mapstructure:"frequency"`
	RateIndex    *RateIndexSpec      `mapstructure:"rate_index"`
	Spread       float64             `mapstructure:"spread"`

	SettlementDate   time.Time           `mapstructure:"settlement_date"`
	VirtualBond      VirtualBondSpec     `mapstructure:"virtual_bond"`
	UnderlyingBonds  []InstrumentSpec    `mapstructure:"underlying_bonds"`
	BorrowingCurveID marketdata.StaticID `mapstructure:"borrowing_curve_id"`

	EffectiveDate       time.Time           `mapstructure:"effective_date"`
	Direction           string              `mapstructure:"direction"`
	FixedRate           float64             `mapstructure:"fixed_rate"`
	FixedLegCurrency    marketdata.Currency `mapstructure:"fixed_leg_currency"`
	FloatingLegCurrency marketdata.Currency `mapstructure:"floating_leg_currency"`
	FixedNotional       float64             `mapstructure:"fixed_notional"`
	FloatingNotional    float64             `mapstructure:"floating_notional"`
	FloatingToFixedFx   string              `mapstructure:"floating_to_fixed_fx"`
}

var defaultTypes = map[instrument.Kind]instrument.InstType{
	instrument.KindFutures:     instrument.TypeFutures,
	instrument.KindBond:        instrument.TypeBond,
	instrument.KindBondFutures: instrument.TypeBondFutures,
	instrument.KindKTBF:        instrument.TypeKTBF,
	instrument.KindPlainSwap:   instrument.TypeIRS,
	instrument.KindFxFutures:   instrument.TypeFxFutures,
	instrument.KindStock:       instrument.TypeStock,
	instrument.KindCash:        instrument.TypeCash,
}

func parseKind(s string) (instrument.Kind, error) {
	for k := instrument.KindFutures; k <= instrument.KindCash; k++ {
		if strings.EqualFold(k.String(), s) {
			return k, nil
		}
	}
	return 0, errors.InvalidArgumentf("unknown instrument kind %q", s)
}

func parseMethod(s string) (instrument.PricingMethod, error) {
	for _, m := range []instrument.PricingMethod{instrument.Analytic, instrument.MonteCarlo, instrument.FiniteDifference} {
		if s == "" || strings.EqualFold(m.String(), s) {
			return m, nil
		}
	}
	return 0, errors.InvalidArgumentf("unknown pricing method %q", s)
}

func parseDirection(s string) (instrument.FixedLegDirection, error) {
	switch strings.ToLower(s) {
	case "", "receive_fixed", "receive":
		return instrument.ReceiveFixed, nil
	case "pay_fixed", "pay":
		return instrument.PayFixed, nil
	}
	return 0, errors.InvalidArgumentf("unknown fixed leg direction %q", s)
}

func parsePeriod(s string) (marketdata.Period, error) {
	if s == "" {
		return marketdata.Period{}, nil
	}
	return marketdata.ParsePeriod(s)
}

func (s *InstrumentSpec) info(kind instrument.Kind) instrument.InstInfo {
	typ := instrument.InstType(s.Type)
	if typ == "" {
		typ = defaultTypes[kind]
	}
	notional := s.UnitNotional
	if notional == 0 {
		notional = 1
	}
	return instrument.InstInfo{
		ID:              s.ID,
		Name:            s.Name,
		Type:            typ,
		Currency:        s.Currency,
		UnitNotional:    notional,
		IssueDate:       s.IssueDate,
		Maturity:        s.Maturity,
		AccountingLevel: instrument.AccountingLevel(s.AccountingLevel),
	}
}

func (s *InstrumentSpec) rateIndex() (*instrument.RateIndex, error) {
	if s.RateIndex == nil {
		return nil, nil
	}
	tenor, err := parsePeriod(s.RateIndex.Tenor)
	if err != nil {
		return nil, err
	}
	ccy := s.RateIndex.Currency
	if ccy == marketdata.NIL {
		ccy = s.Currency
	}
	return &instrument.RateIndex{ID: s.RateIndex.ID, Name: s.RateIndex.Name, Tenor: tenor, Currency: ccy}, nil
}

func (s *InstrumentSpec) bond() (*instrument.Bond, error) {
	frequency, err := parsePeriod(s.Frequency)
	if err != nil {
		return nil, err
	}
	index, err := s.rateIndex()
	if err != nil {
		return nil, err
	}
	rating := instrument.CreditRating(s.CreditRating)
	if rating == "" {
		rating = instrument.RatingNone
	}
	return &instrument.Bond{
		InstInfo:     s.info(instrument.KindBond),
		IssuerID:     s.IssuerID,
		IssuerType:   instrument.IssuerType(s.IssuerType),
		CreditRating: rating,
		CouponRate:   s.CouponRate,
		Frequency:    frequency,
		RateIndex:    index,
		Spread:       s.Spread,
	}, nil
}

func (s *InstrumentSpec) underlyingBonds() ([]*instrument.Bond, error) {
	out := make([]*instrument.Bond, 0, len(s.UnderlyingBonds))
	for i := range s.UnderlyingBonds {
		b, err := s.UnderlyingBonds[i].bond()
		if err != nil {
			return nil, errors.Wrapf(err, "underlying bond %d", i)
		}
		out = append(out, b)
	}
	return out, nil
}

// Build turns the spec into its instrument variant.
func (s *InstrumentSpec) Build() (instrument.Instrument, error) {
	if s.ID.IsNone() {
		return nil, errors.InvalidArgumentf("instrument %q has no id", s.Name)
	}
	kind, err := parseKind(s.Kind)
	if err != nil {
		return nil, err
	}

	switch kind {
	case instrument.KindFutures:
		return &instrument.Futures{
			InstInfo:           s.info(kind),
			TradePrice:         s.TradePrice,
			UnderlyingID:       s.UnderlyingID,
			UnderlyingCurrency: s.UnderlyingCurrency,
		}, nil
	case instrument.KindBond:
		return s.bond()
	case instrument.KindBondFutures:
		bonds, err := s.underlyingBonds()
		if err != nil {
			return nil, err
		}
		return &instrument.BondFutures{
			InstInfo:         s.info(kind),
			TradePrice:       s.TradePrice,
			UnderlyingBonds:  bonds,
			BorrowingCurveID: s.BorrowingCurveID,
		}, nil
	case instrument.KindKTBF:
		bonds, err := s.underlyingBonds()
		if err != nil {
			return nil, err
		}
		return &instrument.KTBF{
			InstInfo:       s.info(kind),
			TradePrice:     s.TradePrice,
			SettlementDate: s.SettlementDate,
			VirtualBond: instrument.KtbfVirtualBond{
				Years:           s.VirtualBond.Years,
				CouponRate:      s.VirtualBond.CouponRate,
				PaymentsPerYear: s.VirtualBond.PaymentsPerYear,
				UnitNotional:    s.VirtualBond.UnitNotional,
			},
			UnderlyingBonds:  bonds,
			BorrowingCurveID: s.BorrowingCurveID,
		}, nil
	case instrument.KindPlainSwap:
		return s.plainSwap()
	case instrument.KindFxFutures:
		return &instrument.FxFutures{
			InstInfo:           s.info(kind),
			TradePrice:         s.TradePrice,
			UnderlyingCurrency: s.UnderlyingCurrency,
		}, nil
	case instrument.KindVanillaOption:
		return s.vanillaOption()
	case instrument.KindStock:
		return &instrument.Stock{InstInfo: s.info(kind), TradePrice: s.TradePrice}, nil
	default:
		return &instrument.Cash{InstInfo: s.info(kind)}, nil
	}
}

func (s *InstrumentSpec) plainSwap() (*instrument.PlainSwap, error) {
	frequency, err := parsePeriod(s.Frequency)
	if err != nil {
		return nil, err
	}
	index, err := s.rateIndex()
	if err != nil {
		return nil, err
	}
	direction, err := parseDirection(s.Direction)
	if err != nil {
		return nil, err
	}
	swap := &instrument.PlainSwap{
		InstInfo:            s.info(instrument.KindPlainSwap),
		EffectiveDate:       s.EffectiveDate,
		Direction:           direction,
		FixedRate:           s.FixedRate,
		FixedLegCurrency:    s.FixedLegCurrency,
		FloatingLegCurrency: s.FloatingLegCurrency,
		FixedNotional:       s.FixedNotional,
		FloatingNotional:    s.FloatingNotional,
		Frequency:           frequency,
		RateIndex:           index,
		Spread:              s.Spread,
	}
	if swap.FixedLegCurrency == marketdata.NIL {
		swap.FixedLegCurrency = s.Currency
	}
	if swap.FloatingLegCurrency == marketdata.NIL {
		swap.FloatingLegCurrency = swap.FixedLegCurrency
	}
	if swap.FixedNotional == 0 {
		swap.FixedNotional = 1
	}
	if swap.FloatingNotional == 0 {
		swap.FloatingNotional = swap.FixedNotional
	}
	if s.FloatingToFixedFx != "" {
		code, err := marketdata.ParseFxCode(s.FloatingToFixedFx)
		if err != nil {
			return nil, err
		}
		swap.FloatingToFixedFx = &code
	}
	if s.Type == "" && swap.FixedLegCurrency != swap.FloatingLegCurrency {
		swap.Type = instrument.TypeCRS
	}
	return swap, nil
}

func (s *InstrumentSpec) vanillaOption() (*instrument.VanillaOption, error) {
	method, err := parseMethod(s.Method)
	if err != nil {
		return nil, err
	}
	info := s.info(instrument.KindVanillaOption)
	optionType := instrument.Call
	switch info.Type {
	case instrument.TypeVanillaPut:
		optionType = instrument.Put
	case instrument.TypeVanillaCall:
	default:
		return nil, errors.InvalidArgumentf("option %s: type must be %s or %s, got %q", s.ID, instrument.TypeVanillaCall, instrument.TypeVanillaPut, info.Type)
	}
	settlement := instrument.NotSettled
	if s.Settled {
		settlement = instrument.Settled
	}
	return &instrument.VanillaOption{
		InstInfo:           info,
		TradePrice:         s.TradePrice,
		Strike:             s.Strike,
		OptionType:         optionType,
		UnderlyingID:       s.UnderlyingID,
		UnderlyingCurrency: s.UnderlyingCurrency,
		SettlementType:     settlement,
		Method:             method,
	}, nil
}
