package parameters

import (
	"time"

	"github.com/rzzdr/quant-pricing-engine/internal/marketdata"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/errors"
)

// PastPrice serves historical fixings of a rate index or an underlying.
type PastPrice struct {
	data *marketdata.DailyValueData
}

func NewPastPrice(data *marketdata.DailyValueData) *PastPrice {
	return &PastPrice{data: data}
}

// Fixing returns the observation on date's calendar day.
func (p *PastPrice) Fixing(date time.Time) (float64, error) {
	if p == nil || p.data == nil {
		return 0, errors.NotFoundf("no fixing history for %s", date.Format(time.DateOnly))
	}
	v, ok := p.data.Get(date)
	if !ok {
		return 0, errors.NotFoundf("%s has no fixing on %s", p.data.ID, date.Format(time.DateOnly))
	}
	return v, nil
}

func (p *PastPrice) ID() marketdata.StaticID {
	return p.data.ID
}
