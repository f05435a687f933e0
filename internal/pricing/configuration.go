package pricing

import (
	"github.com/rzzdr/quant-pricing-engine/internal/marketdata"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/errors"
)

// CalculationConfiguration selects which figures an engine computes and
// the bump sizes it uses for them.
type CalculationConfiguration struct {
	NPV           bool
	FxExposure    bool
	Delta         bool
	Gamma         bool
	Vega          bool
	VegaStructure bool
	VegaMatrix    bool
	Theta         bool
	DivDelta      bool
	DivStructure  bool
	Rho           bool
	RhoStructure  bool

	RhoTenors  []string
	VegaTenors []string
	DivTenors  []string

	ThetaDay int

	// DeltaBumpRatio is a relative spot bump.
	DeltaBumpRatio float64
	// VegaBump is an absolute vol bump.
	VegaBump float64
	// RhoBump is an absolute zero-rate bump.
	RhoBump float64
	// DivBumpRatio is a relative dividend ratio bump.
	DivBumpRatio float64
}

// DefaultCalculationConfiguration computes npv and fx exposure only.
func DefaultCalculationConfiguration() *CalculationConfiguration {
	return &CalculationConfiguration{
		NPV:            true,
		FxExposure:     true,
		RhoTenors:      []string{"3M", "6M", "1Y", "2Y", "3Y", "5Y", "10Y", "20Y"},
		VegaTenors:     []string{"1M", "3M", "6M", "1Y", "2Y", "3Y"},
		DivTenors:      []string{"3M", "6M", "1Y", "2Y", "3Y"},
		ThetaDay:       1,
		DeltaBumpRatio: 0.01,
		VegaBump:       0.01,
		RhoBump:        0.0001,
		DivBumpRatio:   0.01,
	}
}

// Validate checks bump sizes and that every tenor parses.
func (c *CalculationConfiguration) Validate() error {
	if c.DeltaBumpRatio <= 0 || c.VegaBump <= 0 || c.RhoBump <= 0 || c.DivBumpRatio <= 0 {
		return errors.Configurationf("bump sizes must be positive")
	}
	if c.Theta && c.ThetaDay <= 0 {
		return errors.Configurationf("theta day must be positive, got %d", c.ThetaDay)
	}
	for _, tenors := range [][]string{c.RhoTenors, c.VegaTenors, c.DivTenors} {
		if _, err := tenorTimes(tenors); err != nil {
			return err
		}
	}
	return nil
}

// tenorTimes converts tenor strings into approximate year fractions for
// bucket boundaries.
func tenorTimes(tenors []string) ([]float64, error) {
	out := make([]float64, len(tenors))
	for i, s := range tenors {
		p, err := marketdata.ParsePeriod(s)
		if err != nil {
			return nil, errors.Wrapf(err, "tenor %q", s)
		}
		out[i] = float64(p.Years) + float64(p.Months)/12.0 + float64(p.Days)/365.0
		if i > 0 && out[i] <= out[i-1] {
			return nil, errors.Configurationf("tenors must be increasing: %v", tenors)
		}
	}
	return out, nil
}

// buckets turns tenor points into [from, to) intervals: the first starts at
// zero and the last runs to infinity.
func buckets(points []float64) [][2]float64 {
	out := make([][2]float64, len(points))
	prev := 0.0
	for i, p := range points {
		to := p
		if i == len(points)-1 {
			to = 1e9
		}
		out[i] = [2]float64{prev, to}
		prev = p
	}
	return out
}
