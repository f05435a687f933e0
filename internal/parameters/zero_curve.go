package parameters

import (
	"math"
	"sort"
	"time"

	"github.com/rzzdr/quant-pricing-engine/internal/marketdata"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/errors"
)

type intervalBump struct {
	from, to float64
	amount   float64
}

func sumBumps(bumps []intervalBump, t float64) float64 {
	total := 0.0
	for _, b := range bumps {
		if t >= b.from && t < b.to {
			total += b.amount
		}
	}
	return total
}

// ZeroCurve is a continuously compounded zero-rate curve, linearly
// interpolated in time and flat outside its nodes. Node times follow the
// evaluation date it was built with and are ACT/ACT ISDA year fractions.
type ZeroCurve struct {
	evaluationDate *EvaluationDate
	data           *marketdata.VectorData
	rates          []float64
	times          []float64
	syncedAt       time.Time
	bumps          []intervalBump
}

func NewZeroCurve(evaluationDate *EvaluationDate, data *marketdata.VectorData) (*ZeroCurve, error) {
	if data == nil || len(data.Values) == 0 {
		return nil, errors.InvalidArgumentf("zero curve needs at least one node")
	}
	c := &ZeroCurve{
		evaluationDate: evaluationDate,
		data:           data,
		rates:          append([]float64(nil), data.Values...),
	}
	c.sync()
	if !sort.Float64sAreSorted(c.times) {
		return nil, errors.InvalidArgumentf("zero curve %s: node times must be ascending", data.ID)
	}
	return c, nil
}

func (c *ZeroCurve) ID() marketdata.StaticID       { return c.data.ID }
func (c *ZeroCurve) Name() string                  { return c.data.Name }
func (c *ZeroCurve) Currency() marketdata.Currency { return c.data.Currency }

func (c *ZeroCurve) sync() {
	now := c.evaluationDate.Date()
	if c.times != nil && now.Equal(c.syncedAt) {
		return
	}
	c.times = c.data.TimesFrom(now)
	c.syncedAt = now
}

// ZeroRate returns the bumped zero rate at year fraction t.
func (c *ZeroCurve) ZeroRate(t float64) float64 {
	c.sync()
	return interpolate(c.times, c.rates, t) + sumBumps(c.bumps, t)
}

// discountGrid holds the year fractions where a discount factor is exact.
// Between two of them it is linear in time; past the last it is exact again.
var discountGrid = []float64{0, 0.25, 0.5, 0.75, 1, 1.5, 2, 2.5, 3, 4, 5, 7, 10, 15, 20, 30}

// DiscountFactor returns the discount factor at t for the bumped zero rate
// r(t): exp(-r(t) s) at the grid times s around t, interpolated linearly.
// It is 1 for t <= 0.
func (c *ZeroCurve) DiscountFactor(t float64) float64 {
	if t <= 0 {
		return 1.0
	}
	return gridDiscount(c.ZeroRate(t), t)
}

func gridDiscount(r, t float64) float64 {
	n := len(discountGrid)
	if t >= discountGrid[n-1] {
		return math.Exp(-r * t)
	}
	i := sort.SearchFloat64s(discountGrid, t)
	if discountGrid[i] == t {
		return math.Exp(-r * t)
	}
	lo, hi := discountGrid[i-1], discountGrid[i]
	w := (t - lo) / (hi - lo)
	return (1-w)*math.Exp(-r*lo) + w*math.Exp(-r*hi)
}

// DiscountFactorAt is DiscountFactor at the year fraction of date.
func (c *ZeroCurve) DiscountFactorAt(date time.Time) float64 {
	return c.DiscountFactor(marketdata.YearFraction(c.evaluationDate.Date(), date))
}

// ForwardRate is the simply compounded rate between two dates.
func (c *ZeroCurve) ForwardRate(start, end time.Time) (float64, error) {
	tau := marketdata.YearFraction(start, end)
	if tau <= 0 {
		return 0, errors.InvalidArgumentf("curve %s: forward period %s to %s is empty", c.data.ID, start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	return (c.DiscountFactorAt(start)/c.DiscountFactorAt(end) - 1.0) / tau, nil
}

// NodeTimes returns node year fractions from the current evaluation date.
func (c *ZeroCurve) NodeTimes() []float64 {
	c.sync()
	return c.times
}

// BumpTimeInterval shifts zero rates on [t1, t2) by bump.
func (c *ZeroCurve) BumpTimeInterval(t1, t2, bump float64) {
	c.bumps = append(c.bumps, intervalBump{from: t1, to: t2, amount: bump})
}

// ResetBumps drops every bump.
func (c *ZeroCurve) ResetBumps() {
	c.bumps = nil
}

// interpolate is linear on the nodes and flat outside.
func interpolate(xs, ys []float64, x float64) float64 {
	n := len(xs)
	if n == 1 || x <= xs[0] {
		return ys[0]
	}
	if x >= xs[n-1] {
		return ys[n-1]
	}
	i := sort.SearchFloat64s(xs, x)
	if xs[i] == x {
		return ys[i]
	}
	w := (x - xs[i-1]) / (xs[i] - xs[i-1])
	return ys[i-1] + w*(ys[i]-ys[i-1])
}
