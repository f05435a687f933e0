package models

import (
	"math"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rzzdr/quant-pricing-engine/internal/marketdata"
	"github.com/rzzdr/quant-pricing-engine/internal/pricing"
)

// The lifecycle state of a calculation run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Done reports whether the run will not change any more
func (s RunStatus) Done() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Run describes a calculation run without its results
type Run struct {
	ID                     string     `json:"id"`
	Status                 RunStatus  `json:"status"`
	EvaluationDate         time.Time  `json:"evaluation_date"`
	RepresentationCurrency string     `json:"representation_currency,omitempty"`
	Instruments            int        `json:"instruments"`
	Groups                 int        `json:"groups,omitempty"`
	SubmittedAt            time.Time  `json:"submitted_at"`
	FinishedAt             *time.Time `json:"finished_at,omitempty"`
	DurationMs             int64      `json:"duration_ms,omitempty"`
	Error                  string     `json:"error,omitempty"`
}

// A dated amount paid by an instrument
type Cashflow struct {
	Date   time.Time       `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

// Result is the wire form of one instrument's calculation result. Keys of
// the sensitivity maps are market object ids ("CODE(PROVIDER)").
type Result struct {
	RunID                  string    `json:"run_id,omitempty"`
	InstrumentID           string    `json:"instrument_id"`
	Name                   string    `json:"name"`
	Type                   string    `json:"type"`
	Currency               string    `json:"currency"`
	RepresentationCurrency string    `json:"representation_currency"`
	EvaluationDate         time.Time `json:"evaluation_date"`

	NPV        *decimal.Decimal           `json:"npv,omitempty"`
	Value      *decimal.Decimal           `json:"value,omitempty"`
	FxExposure map[string]decimal.Decimal `json:"fx_exposure,omitempty"`

	Delta         map[string]decimal.Decimal     `json:"delta,omitempty"`
	Gamma         map[string]decimal.Decimal     `json:"gamma,omitempty"`
	Vega          map[string]decimal.Decimal     `json:"vega,omitempty"`
	VegaStructure map[string][]decimal.Decimal   `json:"vega_structure,omitempty"`
	VegaMatrix    map[string][][]decimal.Decimal `json:"vega_matrix,omitempty"`
	Theta         *decimal.Decimal               `json:"theta,omitempty"`
	ThetaDay      int                            `json:"theta_day,omitempty"`
	DivDelta      map[string]decimal.Decimal     `json:"div_delta,omitempty"`
	DivStructure  map[string][]decimal.Decimal   `json:"div_structure,omitempty"`
	Rho           map[string]decimal.Decimal     `json:"rho,omitempty"`
	RhoStructure  map[string][]decimal.Decimal   `json:"rho_structure,omitempty"`

	Cashflows []Cashflow `json:"cashflows,omitempty"`
}

// Non-finite numbers have no decimal form and are reported as zero
func toDecimal(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

func toDecimalPtr(p *float64) *decimal.Decimal {
	if p == nil {
		return nil
	}
	d := toDecimal(*p)
	return &d
}

func toDecimals(vs []float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(vs))
	for i, v := range vs {
		out[i] = toDecimal(v)
	}
	return out
}

func scalarsByID(m map[marketdata.StaticID]float64) map[string]decimal.Decimal {
	if m == nil {
		return nil
	}
	out := make(map[string]decimal.Decimal, len(m))
	for id, v := range m {
		out[id.String()] = toDecimal(v)
	}
	return out
}

func vectorsByID(m map[marketdata.StaticID][]float64) map[string][]decimal.Decimal {
	if m == nil {
		return nil
	}
	out := make(map[string][]decimal.Decimal, len(m))
	for id, vs := range m {
		out[id.String()] = toDecimals(vs)
	}
	return out
}

// NewResult converts an engine result into its wire form
func NewResult(runID string, r *pricing.CalculationResult) Result {
	res := Result{
		RunID:                  runID,
		InstrumentID:           r.Instrument.ID.String(),
		Name:                   r.Instrument.Name,
		Type:                   r.Instrument.TypeName(),
		Currency:               r.Instrument.Currency.String(),
		RepresentationCurrency: r.RepresentationCurrency.String(),
		EvaluationDate:         r.EvaluationDate,
		Value:                  toDecimalPtr(r.Value),
		Delta:                  scalarsByID(r.Delta),
		Gamma:                  scalarsByID(r.Gamma),
		Vega:                   scalarsByID(r.Vega),
		VegaStructure:          vectorsByID(r.VegaStructure),
		Theta:                  toDecimalPtr(r.Theta),
		ThetaDay:               r.ThetaDay,
		DivDelta:               scalarsByID(r.DivDelta),
		DivStructure:           vectorsByID(r.DivStructure),
		Rho:                    scalarsByID(r.Rho),
		RhoStructure:           vectorsByID(r.RhoStructure),
	}
	if r.NpvResult != nil {
		npv := toDecimal(r.NpvResult.NPV)
		res.NPV = &npv
	}
	if r.FxExposure != nil {
		res.FxExposure = make(map[string]decimal.Decimal, len(r.FxExposure))
		for ccy, v := range r.FxExposure {
			res.FxExposure[ccy.String()] = toDecimal(v)
		}
	}
	if r.VegaMatrix != nil {
		res.VegaMatrix = make(map[string][][]decimal.Decimal, len(r.VegaMatrix))
		for id, m := range r.VegaMatrix {
			rows, _ := m.Dims()
			grid := make([][]decimal.Decimal, rows)
			for i := range rows {
				grid[i] = toDecimals(m.RawRowView(i))
			}
			res.VegaMatrix[id.String()] = grid
		}
	}
	for date, amount := range r.Cashflows {
		res.Cashflows = append(res.Cashflows, Cashflow{Date: date, Amount: toDecimal(amount)})
	}
	slices.SortFunc(res.Cashflows, func(a, b Cashflow) int { return a.Date.Compare(b.Date) })
	return res
}

// NewResults converts a run's results, ordered by instrument id
func NewResults(runID string, results map[marketdata.StaticID]*pricing.CalculationResult) []Result {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		out = append(out, NewResult(runID, r))
	}
	slices.SortFunc(out, func(a, b Result) int { return strings.Compare(a.InstrumentID, b.InstrumentID) })
	return out
}

// A finished run as streamed to subscribers and published to Kafka
type RunEvent struct {
	Run     Run      `json:"run"`
	Results []Result `json:"results,omitempty"`
}
