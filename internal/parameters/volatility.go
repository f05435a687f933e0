package parameters

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/rzzdr/quant-pricing-engine/internal/marketdata"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/errors"
)

// Volatility is a Black volatility as a function of time and spot moneyness.
type Volatility interface {
	ID() marketdata.StaticID
	Value(t, moneyness float64) float64
	TotalVariance(t, moneyness float64) float64
	BumpTimeInterval(t1, t2, bump float64)
	ResetBumps()
}

// ConstantVolatility ignores time and moneyness.
type ConstantVolatility struct {
	value float64
	name  string
	id    marketdata.StaticID
	bumps []intervalBump
}

func NewConstantVolatility(data *marketdata.ValueData) *ConstantVolatility {
	return &ConstantVolatility{value: data.Value, name: data.Name, id: data.ID}
}

func (v *ConstantVolatility) ID() marketdata.StaticID { return v.id }
func (v *ConstantVolatility) Name() string            { return v.name }

func (v *ConstantVolatility) Value(t, _ float64) float64 {
	return v.value + sumBumps(v.bumps, t)
}

func (v *ConstantVolatility) TotalVariance(t, x float64) float64 {
	s := v.Value(t, x)
	return s * s * t
}

func (v *ConstantVolatility) BumpTimeInterval(t1, t2, bump float64) {
	v.bumps = append(v.bumps, intervalBump{from: t1, to: t2, amount: bump})
}

func (v *ConstantVolatility) ResetBumps() { v.bumps = nil }

// VolatilitySurface interpolates bilinearly on a tenor x moneyness grid.
type VolatilitySurface struct {
	grid      *mat.Dense
	bumpGrid  *mat.Dense
	tenors    []float64
	moneyness []float64
	name      string
	id        marketdata.StaticID
	bumps     []intervalBump
}

func NewVolatilitySurface(data *marketdata.SurfaceData) (*VolatilitySurface, error) {
	if data == nil || data.Value == nil {
		return nil, errors.InvalidArgumentf("volatility surface data is empty")
	}
	r, c := data.Value.Dims()
	if r == 0 || c == 0 {
		return nil, errors.InvalidArgumentf("volatility surface %s has no nodes", data.ID)
	}
	return &VolatilitySurface{
		grid:      mat.DenseCopyOf(data.Value),
		bumpGrid:  mat.NewDense(r, c, nil),
		tenors:    data.Tenors,
		moneyness: data.Moneyness,
		name:      data.Name,
		id:        data.ID,
	}, nil
}

func (s *VolatilitySurface) ID() marketdata.StaticID { return s.id }
func (s *VolatilitySurface) Name() string            { return s.name }

// Dims returns the number of tenor rows and moneyness columns.
func (s *VolatilitySurface) Dims() (int, int) { return s.grid.Dims() }

// Tenors and Moneyness return the grid axes.
func (s *VolatilitySurface) Tenors() []float64    { return s.tenors }
func (s *VolatilitySurface) Moneyness() []float64 { return s.moneyness }

func (s *VolatilitySurface) at(i, j int) float64 {
	return s.grid.At(i, j) + s.bumpGrid.At(i, j)
}

func (s *VolatilitySurface) Value(t, x float64) float64 {
	i0, i1, wt := bracket(s.tenors, t)
	j0, j1, wx := bracket(s.moneyness, x)
	lower := (1-wx)*s.at(i0, j0) + wx*s.at(i0, j1)
	upper := (1-wx)*s.at(i1, j0) + wx*s.at(i1, j1)
	return (1-wt)*lower + wt*upper + sumBumps(s.bumps, t)
}

func (s *VolatilitySurface) TotalVariance(t, x float64) float64 {
	v := s.Value(t, x)
	return v * v * t
}

func (s *VolatilitySurface) BumpTimeInterval(t1, t2, bump float64) {
	s.bumps = append(s.bumps, intervalBump{from: t1, to: t2, amount: bump})
}

// BumpNode shifts a single grid node.
func (s *VolatilitySurface) BumpNode(i, j int, bump float64) {
	s.bumpGrid.Set(i, j, s.bumpGrid.At(i, j)+bump)
}

func (s *VolatilitySurface) ResetBumps() {
	s.bumps = nil
	s.bumpGrid.Zero()
}

// bracket returns the neighbouring node indices of x and the weight of the
// upper one, clamped flat outside the axis.
func bracket(axis []float64, x float64) (int, int, float64) {
	n := len(axis)
	if n == 1 || x <= axis[0] {
		return 0, 0, 0
	}
	if x >= axis[n-1] {
		return n - 1, n - 1, 0
	}
	i := sort.SearchFloat64s(axis, x)
	if axis[i] == x {
		return i, i, 0
	}
	return i - 1, i, (x - axis[i-1]) / (axis[i] - axis[i-1])
}

// Quanto carries the drift correction for an underlying paid in a foreign
// currency: fx vol times the underlying/fx correlation.
type Quanto struct {
	fxVolatility Volatility
	correlation  float64
	fxCode       marketdata.FxCode
	underlyingID marketdata.StaticID
}

func NewQuanto(fxVolatility Volatility, correlation float64, fxCode marketdata.FxCode, underlyingID marketdata.StaticID) (*Quanto, error) {
	if math.Abs(correlation) > 1 {
		return nil, errors.InvalidArgumentf("quanto %s/%s: correlation %g out of [-1, 1]", underlyingID, fxCode, correlation)
	}
	return &Quanto{fxVolatility: fxVolatility, correlation: correlation, fxCode: fxCode, underlyingID: underlyingID}, nil
}

func (q *Quanto) Adjust(t, forwardMoneyness float64) float64 {
	return q.fxVolatility.Value(t, forwardMoneyness) * q.correlation
}

func (q *Quanto) FxCode() marketdata.FxCode         { return q.fxCode }
func (q *Quanto) UnderlyingID() marketdata.StaticID { return q.underlyingID }
func (q *Quanto) Correlation() float64              { return q.correlation }
