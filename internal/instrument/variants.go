package instrument

import (
	"time"

	"github.com/rzzdr/quant-pricing-engine/internal/marketdata"
)

type IssuerType string

const (
	IssuerGovernment IssuerType = "Government"
	IssuerPublic     IssuerType = "Public"
	IssuerBank       IssuerType = "Bank"
	IssuerCard       IssuerType = "Card"
	IssuerCorporate  IssuerType = "Corporate"
)

type CreditRating string

const (
	RatingNone CreditRating = "None"
	RatingAAA  CreditRating = "AAA"
	RatingAA   CreditRating = "AA"
	RatingA    CreditRating = "A"
	RatingBBB  CreditRating = "BBB"
)

type OptionType int

const (
	Call OptionType = iota
	Put
)

func (o OptionType) String() string {
	if o == Put {
		return "Put"
	}
	return "Call"
}

// SettlementType tells whether an option is marked to market daily.
type SettlementType int

const (
	NotSettled SettlementType = iota
	Settled
)

type PricingMethod int

const (
	Analytic PricingMethod = iota
	MonteCarlo
	FiniteDifference
)

func (m PricingMethod) String() string {
	switch m {
	case MonteCarlo:
		return "MonteCarlo"
	case FiniteDifference:
		return "FiniteDifference"
	default:
		return "Analytic"
	}
}

// RateIndex is a floating rate reference such as CD91 or SOFR.
type RateIndex struct {
	ID       marketdata.StaticID
	Name     string
	Tenor    marketdata.Period
	Currency marketdata.Currency
}

// Futures is an equity index or single stock futures contract.
type Futures struct {
	InstInfo
	TradePrice         float64
	UnderlyingID       marketdata.StaticID
	UnderlyingCurrency marketdata.Currency
}

func (f *Futures) Kind() Kind                           { return KindFutures }
func (f *Futures) UnderlyingIDs() []marketdata.StaticID { return []marketdata.StaticID{f.UnderlyingID} }
func (f *Futures) AverageTradePrice() float64           { return f.TradePrice }

// Bond pays fixed or floating coupons on a regular schedule plus principal at maturity.
type Bond struct {
	InstInfo
	IssuerID     marketdata.StaticID
	IssuerType   IssuerType
	CreditRating CreditRating
	CouponRate   float64
	Frequency    marketdata.Period
	// RateIndex set means floating coupons of index + Spread.
	RateIndex   *RateIndex
	Spread      float64
	PricingDate time.Time
}

func (b *Bond) Kind() Kind { return KindBond }

// IsFloating reports whether coupons follow a rate index.
func (b *Bond) IsFloating() bool { return b.RateIndex != nil }

// BondFutures is a futures contract on a basket of deliverable bonds.
type BondFutures struct {
	InstInfo
	TradePrice       float64
	UnderlyingBonds  []*Bond
	BorrowingCurveID marketdata.StaticID
}

func (b *BondFutures) Kind() Kind                 { return KindBondFutures }
func (b *BondFutures) AverageTradePrice() float64 { return b.TradePrice }

// KtbfVirtualBond is the notional bond a Korea Treasury Bond Futures settles against.
type KtbfVirtualBond struct {
	Years           int
	CouponRate      float64
	PaymentsPerYear int
	UnitNotional    float64
}

// KTBF is a Korea Treasury Bond Futures contract.
type KTBF struct {
	InstInfo
	TradePrice       float64
	SettlementDate   time.Time
	VirtualBond      KtbfVirtualBond
	UnderlyingBonds  []*Bond
	BorrowingCurveID marketdata.StaticID
}

func (k *KTBF) Kind() Kind                 { return KindKTBF }
func (k *KTBF) AverageTradePrice() float64 { return k.TradePrice }

// FixedLegDirection is the side of the fixed leg from the holder's view.
type FixedLegDirection int

const (
	ReceiveFixed FixedLegDirection = iota
	PayFixed
)

// PlainSwap is a fixed/floating swap. Type IRS keeps both legs in one
// currency; type CRS exchanges notionals across currencies.
type PlainSwap struct {
	InstInfo
	EffectiveDate       time.Time
	Direction           FixedLegDirection
	FixedRate           float64
	FixedLegCurrency    marketdata.Currency
	FloatingLegCurrency marketdata.Currency
	FixedNotional       float64
	FloatingNotional    float64
	Frequency           marketdata.Period
	RateIndex           *RateIndex
	Spread              float64
	// FloatingToFixedFx converts floating leg amounts into the fixed leg currency.
	FloatingToFixedFx *marketdata.FxCode
}

func (s *PlainSwap) Kind() Kind { return KindPlainSwap }

// IsIRS reports whether both legs share one currency.
func (s *PlainSwap) IsIRS() bool {
	return s.Type == TypeIRS || s.FixedLegCurrency == s.FloatingLegCurrency
}

// FxFutures is a futures on an exchange rate, priced in the instrument currency.
type FxFutures struct {
	InstInfo
	TradePrice         float64
	UnderlyingCurrency marketdata.Currency
}

func (f *FxFutures) Kind() Kind                 { return KindFxFutures }
func (f *FxFutures) AverageTradePrice() float64 { return f.TradePrice }

// UnderlyingFxCode is the pair quoted as instrument currency per underlying currency.
func (f *FxFutures) UnderlyingFxCode() marketdata.FxCode {
	return marketdata.NewFxCode(f.UnderlyingCurrency, f.Currency)
}

// VanillaOption is a European option on an equity underlying.
type VanillaOption struct {
	InstInfo
	TradePrice         float64
	Strike             float64
	OptionType         OptionType
	UnderlyingID       marketdata.StaticID
	UnderlyingCurrency marketdata.Currency
	SettlementType     SettlementType
	Method             PricingMethod
}

func (o *VanillaOption) Kind() Kind                           { return KindVanillaOption }
func (o *VanillaOption) UnderlyingIDs() []marketdata.StaticID { return []marketdata.StaticID{o.UnderlyingID} }
func (o *VanillaOption) AverageTradePrice() float64           { return o.TradePrice }

// Stock is a listed share; its own id keys its price.
type Stock struct {
	InstInfo
	TradePrice float64
}

func (s *Stock) Kind() Kind                 { return KindStock }
func (s *Stock) AverageTradePrice() float64 { return s.TradePrice }

// Cash is one unit of its currency.
type Cash struct {
	InstInfo
}

func (c *Cash) Kind() Kind { return KindCash }
