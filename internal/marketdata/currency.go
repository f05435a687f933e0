package marketdata

import (
	"strings"

	"github.com/rzzdr/quant-pricing-engine/pkg/utils/errors"
)

// Currency is an ISO-like currency code.
type Currency int

const (
	NIL Currency = iota
	KRW
	USD
	EUR
	JPY
	CNY
	CNH
	GBP
	AUD
	CAD
	CHF
	NZD
)

var currencyNames = [...]string{"NIL", "KRW", "USD", "EUR", "JPY", "CNY", "CNH", "GBP", "AUD", "CAD", "CHF", "NZD"}

func (c Currency) String() string {
	if c < 0 || int(c) >= len(currencyNames) {
		return "NIL"
	}
	return currencyNames[c]
}

// ParseCurrency accepts a three letter code, case-insensitively.
func ParseCurrency(s string) (Currency, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for i, name := range currencyNames {
		if name == upper {
			return Currency(i), nil
		}
	}
	return NIL, errors.InvalidArgumentf("unknown currency %q", s)
}

func (c Currency) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Currency) UnmarshalText(b []byte) error {
	parsed, err := ParseCurrency(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// FxCode is a currency pair quoted as units of Currency2 per one Currency1.
type FxCode struct {
	Currency1 Currency
	Currency2 Currency
}

func NewFxCode(c1, c2 Currency) FxCode {
	return FxCode{Currency1: c1, Currency2: c2}
}

// ParseFxCode parses a six letter pair such as "USDKRW".
func ParseFxCode(s string) (FxCode, error) {
	s = strings.TrimSpace(s)
	if len(s) != 6 {
		return FxCode{}, errors.InvalidArgumentf("fx code %q must have six letters", s)
	}
	c1, err := ParseCurrency(s[:3])
	if err != nil {
		return FxCode{}, errors.Wrapf(err, "fx code %q", s)
	}
	c2, err := ParseCurrency(s[3:])
	if err != nil {
		return FxCode{}, errors.Wrapf(err, "fx code %q", s)
	}
	return FxCode{Currency1: c1, Currency2: c2}, nil
}

func (f FxCode) String() string {
	return f.Currency1.String() + f.Currency2.String()
}

// Reciprocal swaps the quoting order.
func (f FxCode) Reciprocal() FxCode {
	return FxCode{Currency1: f.Currency2, Currency2: f.Currency1}
}

func (f FxCode) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *FxCode) UnmarshalText(b []byte) error {
	parsed, err := ParseFxCode(string(b))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
