package pricing

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/rzzdr/quant-pricing-engine/internal/instrument"
	"github.com/rzzdr/quant-pricing-engine/internal/marketdata"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/errors"
)

// CalculationResult holds everything an engine computed for one instrument.
// NPV is per unit; every other monetary figure is per position (npv times
// unit notional) and in RepresentationCurrency. Unset maps are nil.
type CalculationResult struct {
	Instrument     instrument.InstInfo
	EvaluationDate time.Time

	NpvResult  *NpvResult
	Value      *float64
	FxExposure map[marketdata.Currency]float64

	Delta         map[marketdata.StaticID]float64
	Gamma         map[marketdata.StaticID]float64
	Vega          map[marketdata.StaticID]float64
	VegaStructure map[marketdata.StaticID][]float64
	VegaMatrix    map[marketdata.StaticID]*mat.Dense
	Theta         *float64
	ThetaDay      int
	DivDelta      map[marketdata.StaticID]float64
	DivStructure  map[marketdata.StaticID][]float64
	Rho           map[marketdata.StaticID]float64
	RhoStructure  map[marketdata.StaticID][]float64

	Cashflows              map[time.Time]float64
	RepresentationCurrency marketdata.Currency
}

func NewCalculationResult(info instrument.InstInfo, evaluationDate time.Time) *CalculationResult {
	return &CalculationResult{
		Instrument:             info,
		EvaluationDate:         evaluationDate,
		RepresentationCurrency: info.Currency,
	}
}

// SetNPV records the per-unit price and its cashflows.
func (r *CalculationResult) SetNPV(res *NpvResult) {
	r.NpvResult = res
	if res != nil && res.Cashflows != nil {
		r.Cashflows = res.Cashflows
	}
}

// SetValue derives the position value from the npv.
func (r *CalculationResult) SetValue() error {
	if r.NpvResult == nil {
		return errors.Consistencyf("%s: npv result is not set", r.Instrument.ID)
	}
	v := r.NpvResult.NPV * r.Instrument.UnitNotional
	r.Value = &v
	return nil
}

func setSingle[V any](m *map[marketdata.StaticID]V, id marketdata.StaticID, v V) {
	if *m == nil {
		*m = make(map[marketdata.StaticID]V)
	}
	(*m)[id] = v
}

func (r *CalculationResult) SetSingleDelta(id marketdata.StaticID, v float64) {
	setSingle(&r.Delta, id, v)
}

func (r *CalculationResult) SetSingleGamma(id marketdata.StaticID, v float64) {
	setSingle(&r.Gamma, id, v)
}

func (r *CalculationResult) SetSingleVega(id marketdata.StaticID, v float64) {
	setSingle(&r.Vega, id, v)
}

func (r *CalculationResult) SetSingleVegaStructure(id marketdata.StaticID, v []float64) {
	setSingle(&r.VegaStructure, id, v)
}

func (r *CalculationResult) SetSingleVegaMatrix(id marketdata.StaticID, v *mat.Dense) {
	setSingle(&r.VegaMatrix, id, v)
}

func (r *CalculationResult) SetSingleDivDelta(id marketdata.StaticID, v float64) {
	setSingle(&r.DivDelta, id, v)
}

func (r *CalculationResult) SetSingleDivStructure(id marketdata.StaticID, v []float64) {
	setSingle(&r.DivStructure, id, v)
}

func (r *CalculationResult) SetSingleRho(id marketdata.StaticID, v float64) {
	setSingle(&r.Rho, id, v)
}

func (r *CalculationResult) SetSingleRhoStructure(id marketdata.StaticID, v []float64) {
	setSingle(&r.RhoStructure, id, v)
}

func (r *CalculationResult) SetTheta(theta float64, thetaDay int) {
	r.Theta = &theta
	r.ThetaDay = thetaDay
}

func scaleMap[K comparable](m map[K]float64, k float64) map[K]float64 {
	if m == nil {
		return nil
	}
	out := make(map[K]float64, len(m))
	for key, v := range m {
		out[key] = v * k
	}
	return out
}

func scaleVectors(m map[marketdata.StaticID][]float64, k float64) map[marketdata.StaticID][]float64 {
	if m == nil {
		return nil
	}
	out := make(map[marketdata.StaticID][]float64, len(m))
	for key, vs := range m {
		scaled := make([]float64, len(vs))
		for i, v := range vs {
			scaled[i] = v * k
		}
		out[key] = scaled
	}
	return out
}

func scaleMatrices(m map[marketdata.StaticID]*mat.Dense, k float64) map[marketdata.StaticID]*mat.Dense {
	if m == nil {
		return nil
	}
	out := make(map[marketdata.StaticID]*mat.Dense, len(m))
	for key, d := range m {
		var scaled mat.Dense
		scaled.Scale(k, d)
		out[key] = &scaled
	}
	return out
}

func scalePtr(p *float64, k float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p * k
	return &v
}

// Clone returns a deep copy.
func (r *CalculationResult) Clone() *CalculationResult {
	out := r.scaled(1.0)
	out.RepresentationCurrency = r.RepresentationCurrency
	return out
}

func (r *CalculationResult) scaled(k float64) *CalculationResult {
	out := &CalculationResult{
		Instrument:     r.Instrument,
		EvaluationDate: r.EvaluationDate,
		NpvResult:      r.NpvResult,
		Value:          scalePtr(r.Value, k),
		FxExposure:     scaleMap(r.FxExposure, k),
		Delta:          scaleMap(r.Delta, k),
		Gamma:          scaleMap(r.Gamma, k),
		Vega:           scaleMap(r.Vega, k),
		VegaStructure:  scaleVectors(r.VegaStructure, k),
		VegaMatrix:     scaleMatrices(r.VegaMatrix, k),
		Theta:          scalePtr(r.Theta, k),
		ThetaDay:       r.ThetaDay,
		DivDelta:       scaleMap(r.DivDelta, k),
		DivStructure:   scaleVectors(r.DivStructure, k),
		Rho:            scaleMap(r.Rho, k),
		RhoStructure:   scaleVectors(r.RhoStructure, k),
		Cashflows:      maps.Clone(r.Cashflows),
	}
	return out
}

// RepresentationCurrencyConversion re-expresses every monetary figure in ccy
// using fxRate (units of ccy per unit of the current currency). The per-unit
// npv and the cashflows are left as they are.
func (r *CalculationResult) RepresentationCurrencyConversion(ccy marketdata.Currency, fxRate float64) (*CalculationResult, error) {
	if ccy == r.RepresentationCurrency {
		return r.Clone(), nil
	}
	if fxRate <= 0 {
		return nil, errors.InvalidArgumentf("fx rate %s%s must be positive, got %f", r.RepresentationCurrency, ccy, fxRate)
	}
	out := r.scaled(fxRate)
	out.RepresentationCurrency = ccy
	return out, nil
}

func sortedIDs[V any](m map[marketdata.StaticID]V) []marketdata.StaticID {
	ids := slices.Collect(maps.Keys(m))
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

func writeScalars(b *strings.Builder, title string, m map[marketdata.StaticID]float64) {
	if m == nil {
		return
	}
	fmt.Fprintf(b, " * %s:\n", title)
	for _, id := range sortedIDs(m) {
		fmt.Fprintf(b, "        %s: %s\n", id, instrument.FormatAmount(m[id]))
	}
}

func writeVectors(b *strings.Builder, title string, m map[marketdata.StaticID][]float64) {
	if m == nil {
		return
	}
	fmt.Fprintf(b, " * %s:\n", title)
	for _, id := range sortedIDs(m) {
		sum := 0.0
		parts := make([]string, len(m[id]))
		for i, v := range m[id] {
			sum += v
			parts[i] = instrument.FormatAmount(v)
		}
		fmt.Fprintf(b, "        %s (sum = %s): %s\n", id, instrument.FormatAmount(sum), strings.Join(parts, " | "))
	}
}

func (r *CalculationResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, " * instrument %s (%s)\n", r.Instrument.Name, r.Instrument.ID)
	fmt.Fprintf(&b, " * evaluation_date: %s\n", r.EvaluationDate.Format(time.DateOnly))
	if r.NpvResult != nil {
		fmt.Fprintf(&b, " * npv: %.6f\n", r.NpvResult.NPV)
	}
	if r.Value != nil {
		fmt.Fprintf(&b, " * value: %s\n", instrument.FormatAmount(*r.Value))
	}
	if r.FxExposure != nil {
		b.WriteString(" * fx_exposure:\n")
		ccys := slices.Collect(maps.Keys(r.FxExposure))
		slices.Sort(ccys)
		for _, c := range ccys {
			fmt.Fprintf(&b, "        %s: %s\n", c, instrument.FormatAmount(r.FxExposure[c]))
		}
	}
	writeScalars(&b, "delta", r.Delta)
	writeScalars(&b, "gamma", r.Gamma)
	if r.Theta != nil {
		fmt.Fprintf(&b, " * theta (%dD): %s\n", r.ThetaDay, instrument.FormatAmount(*r.Theta))
	}
	writeScalars(&b, "vega", r.Vega)
	writeVectors(&b, "vega_structure", r.VegaStructure)
	writeScalars(&b, "rho", r.Rho)
	writeVectors(&b, "rho_structure", r.RhoStructure)
	writeScalars(&b, "div_delta", r.DivDelta)
	writeVectors(&b, "div_structure", r.DivStructure)
	if r.VegaMatrix != nil {
		b.WriteString(" * vega_matrix:\n")
		for _, id := range sortedIDs(r.VegaMatrix) {
			m := r.VegaMatrix[id]
			fmt.Fprintf(&b, "        %s (sum = %s):\n", id, instrument.FormatAmount(mat.Sum(m)))
			fmt.Fprintf(&b, "%v\n", mat.Formatted(m, mat.Prefix("        "), mat.Squeeze()))
		}
	}
	fmt.Fprintf(&b, " * representation_currency: %s\n", r.RepresentationCurrency)
	return b.String()
}
