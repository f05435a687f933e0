package parameters

import (
	"fmt"
	"time"

	"github.com/rzzdr/quant-pricing-engine/internal/marketdata"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/errors"
)

// MarketPrice is a spot-like value kept ex-dividend-consistent with the
// evaluation date.
type MarketPrice struct {
	value          float64
	marketDatetime time.Time
	dividend       *DiscreteRatioDividend
	currency       marketdata.Currency
	name           string
	id             marketdata.StaticID
}

func NewMarketPrice(value float64, marketDatetime time.Time, dividend *DiscreteRatioDividend, currency marketdata.Currency, name string, id marketdata.StaticID) *MarketPrice {
	return &MarketPrice{
		value:          value,
		marketDatetime: marketDatetime,
		dividend:       dividend,
		currency:       currency,
		name:           name,
		id:             id,
	}
}

// NewMarketPriceFromData builds a price from a raw observation.
func NewMarketPriceFromData(data *marketdata.ValueData, dividend *DiscreteRatioDividend) *MarketPrice {
	return NewMarketPrice(data.Value, data.MarketDatetime, dividend, data.Currency, data.Name, data.ID)
}

func (p *MarketPrice) Value() float64                   { return p.value }
func (p *MarketPrice) MarketDatetime() time.Time        { return p.marketDatetime }
func (p *MarketPrice) Dividend() *DiscreteRatioDividend { return p.dividend }
func (p *MarketPrice) Currency() marketdata.Currency    { return p.currency }
func (p *MarketPrice) Name() string                     { return p.name }
func (p *MarketPrice) ID() marketdata.StaticID          { return p.id }
func (p *MarketPrice) SetValue(v float64)               { p.value = v }

// Add, Sub, Mul and Div bump the value in place.
func (p *MarketPrice) Add(x float64) { p.value += x }
func (p *MarketPrice) Sub(x float64) { p.value -= x }
func (p *MarketPrice) Mul(x float64) { p.value *= x }
func (p *MarketPrice) Div(x float64) { p.value /= x }

// UpdateEvaluationDate deducts dividends going forward and restores them going
// backward so that a round trip returns the original value. The value is left
// untouched when any crossed ratio is outside [0, 1).
func (p *MarketPrice) UpdateEvaluationDate(e *EvaluationDate) error {
	next := e.Date()
	if p.dividend != nil && !next.Equal(p.marketDatetime) {
		backward := next.Before(p.marketDatetime)
		from, to := p.marketDatetime, next
		if backward {
			from, to = next, p.marketDatetime
		}
		ratios := p.dividend.RatiosBetween(from, to)
		for _, r := range ratios {
			if r < 0 || r >= 1.0 {
				return errors.Consistencyf("%s: dividend ratio %g cannot be applied", p.id, r)
			}
		}
		for _, r := range ratios {
			if backward {
				p.value /= 1.0 - r
			} else {
				p.value *= 1.0 - r
			}
		}
	}
	p.marketDatetime = next
	return nil
}

// DividendDeductionRatio is the product of (1 - ratio) over ex-dates in
// (marketDatetime, until].
func (p *MarketPrice) DividendDeductionRatio(until time.Time) float64 {
	if p.dividend == nil {
		return 1.0
	}
	q := 1.0
	for _, r := range p.dividend.RatiosBetween(p.marketDatetime, until) {
		q *= 1.0 - r
	}
	return q
}

func (p *MarketPrice) String() string {
	return fmt.Sprintf("%s %s %.6f @ %s", p.name, p.currency, p.value, p.marketDatetime.Format(time.RFC3339))
}
