package parameters

import (
	"time"

	"github.com/rzzdr/quant-pricing-engine/internal/marketdata"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/errors"
)

// DateObserver is market state that must follow the evaluation date.
type DateObserver interface {
	Name() string
	UpdateEvaluationDate(e *EvaluationDate) error
}

// ObserverKind selects the registry an observer lives in. Market prices are
// always notified before dividends.
type ObserverKind int

const (
	MarketPriceObserver ObserverKind = iota
	DividendObserver
)

func (k ObserverKind) String() string {
	if k == DividendObserver {
		return "dividend"
	}
	return "market_price"
}

// ObserverHandle addresses a registered observer.
type ObserverHandle struct {
	Kind  ObserverKind
	Index int
}

// EvaluationDate is the single "as of" timestamp of an engine together with
// the registry of everything that depends on it. It is not safe for
// concurrent use.
type EvaluationDate struct {
	date         time.Time
	marketPrices []DateObserver
	dividends    []DateObserver
}

func NewEvaluationDate(date time.Time) *EvaluationDate {
	return &EvaluationDate{date: date}
}

// Date returns the current timestamp.
func (e *EvaluationDate) Date() time.Time {
	return e.date
}

// Register adds o to the registry of its kind and returns its handle.
func (e *EvaluationDate) Register(kind ObserverKind, o DateObserver) ObserverHandle {
	if kind == DividendObserver {
		e.dividends = append(e.dividends, o)
		return ObserverHandle{Kind: kind, Index: len(e.dividends) - 1}
	}
	e.marketPrices = append(e.marketPrices, o)
	return ObserverHandle{Kind: MarketPriceObserver, Index: len(e.marketPrices) - 1}
}

// RegisterMarketPrice is Register(MarketPriceObserver, p).
func (e *EvaluationDate) RegisterMarketPrice(p *MarketPrice) ObserverHandle {
	return e.Register(MarketPriceObserver, p)
}

// RegisterDividend is Register(DividendObserver, d).
func (e *EvaluationDate) RegisterDividend(d *DiscreteRatioDividend) ObserverHandle {
	return e.Register(DividendObserver, d)
}

// Observer resolves a handle.
func (e *EvaluationDate) Observer(h ObserverHandle) (DateObserver, bool) {
	list := e.marketPrices
	if h.Kind == DividendObserver {
		list = e.dividends
	}
	if h.Index < 0 || h.Index >= len(list) {
		return nil, false
	}
	return list[h.Index], true
}

// ObserverCount returns the number of registered observers of each kind.
func (e *EvaluationDate) ObserverCount() (marketPrices, dividends int) {
	return len(e.marketPrices), len(e.dividends)
}

// SetDate moves the evaluation date and synchronously notifies every observer.
// On error the registry may be partially updated and should be discarded.
func (e *EvaluationDate) SetDate(date time.Time) error {
	e.date = date
	return e.NotifyObservers()
}

// NotifyObservers updates market prices, then dividends, each in registration
// order, stopping at the first failure.
func (e *EvaluationDate) NotifyObservers() error {
	for i, o := range e.marketPrices {
		if err := o.UpdateEvaluationDate(e); err != nil {
			return errors.WithType(errors.Wrapf(err, "market price observer %d (%s) at %s", i, o.Name(), e.date.Format(time.RFC3339)), errors.ErrorTypeConsistency)
		}
	}
	for i, o := range e.dividends {
		if err := o.UpdateEvaluationDate(e); err != nil {
			return errors.WithType(errors.Wrapf(err, "dividend observer %d (%s) at %s", i, o.Name(), e.date.Format(time.RFC3339)), errors.ErrorTypeConsistency)
		}
	}
	return nil
}

// AddPeriod moves the date forward by a period string such as "1D" or "3M".
func (e *EvaluationDate) AddPeriod(period string) error {
	p, err := marketdata.ParsePeriod(period)
	if err != nil {
		return err
	}
	return e.SetDate(p.AddTo(e.date))
}

// SubPeriod moves the date backward by a period string.
func (e *EvaluationDate) SubPeriod(period string) error {
	p, err := marketdata.ParsePeriod(period)
	if err != nil {
		return err
	}
	return e.SetDate(p.Negate().AddTo(e.date))
}

// Clone copies the timestamp only. The copy starts with empty registries.
func (e *EvaluationDate) Clone() *EvaluationDate {
	return &EvaluationDate{date: e.date}
}
