package parameters

import (
	"time"

	"github.com/rzzdr/quant-pricing-engine/internal/marketdata"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/errors"
)

// DiscreteRatioDividend is a schedule of ex-dates and the fraction of the spot
// each one removes.
type DiscreteRatioDividend struct {
	exDates        []time.Time
	ratios         []float64
	bumps          []float64
	times          []float64
	evaluationDate time.Time
	referenceSpot  float64
	currency       marketdata.Currency
	name           string
	id             marketdata.StaticID
}

// NewDiscreteRatioDividend converts dated dividend amounts into ratios of spot.
func NewDiscreteRatioDividend(data *marketdata.VectorData, spot float64, evaluationDate time.Time) (*DiscreteRatioDividend, error) {
	if data == nil {
		return nil, errors.InvalidArgumentf("dividend data is nil")
	}
	if data.Dates == nil {
		return nil, errors.InvalidArgumentf("dividend %s needs ex-dates", data.ID)
	}
	if len(data.Dates) != len(data.Values) {
		return nil, errors.InvalidArgumentf("dividend %s: %d ex-dates for %d amounts", data.ID, len(data.Dates), len(data.Values))
	}
	if spot <= 0 {
		return nil, errors.InvalidArgumentf("dividend %s: reference spot %g must be positive", data.ID, spot)
	}
	d := &DiscreteRatioDividend{
		exDates:        make([]time.Time, len(data.Dates)),
		ratios:         make([]float64, len(data.Values)),
		bumps:          make([]float64, len(data.Values)),
		evaluationDate: evaluationDate,
		referenceSpot:  spot,
		currency:       data.Currency,
		name:           data.Name,
		id:             data.ID,
	}
	for i, amount := range data.Values {
		ratio := amount / spot
		if ratio < 0 || ratio >= 1 {
			return nil, errors.InvalidArgumentf("dividend %s on %s: ratio %g out of [0, 1)", data.ID, data.Dates[i].Format(time.DateOnly), ratio)
		}
		d.exDates[i] = data.Dates[i]
		d.ratios[i] = ratio
	}
	d.refreshTimes()
	return d, nil
}

func (d *DiscreteRatioDividend) Name() string {
	return d.name
}

func (d *DiscreteRatioDividend) ID() marketdata.StaticID {
	return d.id
}

func (d *DiscreteRatioDividend) Currency() marketdata.Currency {
	return d.currency
}

// ReferenceSpot is the spot the amounts were divided by.
func (d *DiscreteRatioDividend) ReferenceSpot() float64 {
	return d.referenceSpot
}

// UpdateEvaluationDate re-syncs the year fractions of each ex-date.
func (d *DiscreteRatioDividend) UpdateEvaluationDate(e *EvaluationDate) error {
	if len(d.exDates) == 0 {
		return errors.Consistencyf("dividend %s has no schedule loaded", d.id)
	}
	d.evaluationDate = e.Date()
	d.refreshTimes()
	return nil
}

func (d *DiscreteRatioDividend) refreshTimes() {
	d.times = make([]float64, len(d.exDates))
	for i, dt := range d.exDates {
		d.times[i] = marketdata.YearFraction(d.evaluationDate, dt)
	}
}

// Times returns ex-date year fractions from the last synced evaluation date.
func (d *DiscreteRatioDividend) Times() []float64 {
	return d.times
}

// ExDates returns the schedule's ex-dates.
func (d *DiscreteRatioDividend) ExDates() []time.Time {
	return d.exDates
}

func (d *DiscreteRatioDividend) ratio(i int) float64 {
	return d.ratios[i] * (1.0 + d.bumps[i])
}

// RatiosBetween returns the bumped ratios with ex-date in (from, to].
func (d *DiscreteRatioDividend) RatiosBetween(from, to time.Time) []float64 {
	var out []float64
	for i, dt := range d.exDates {
		if dt.After(from) && !dt.After(to) {
			out = append(out, d.ratio(i))
		}
	}
	return out
}

// BumpRatios scales ratios whose ex-date lies in the time interval [t1, t2)
// from the evaluation date by (1 + bump).
func (d *DiscreteRatioDividend) BumpRatios(t1, t2, bump float64) {
	for i, t := range d.times {
		if t >= t1 && t < t2 {
			d.bumps[i] += bump
		}
	}
}

// ResetBumps clears every ratio bump.
func (d *DiscreteRatioDividend) ResetBumps() {
	for i := range d.bumps {
		d.bumps[i] = 0
	}
}
