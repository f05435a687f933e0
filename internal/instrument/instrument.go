// Package instrument defines the closed set of priceable instruments.
package instrument

import (
	"fmt"
	"strings"
	"time"

	"github.com/rzzdr/quant-pricing-engine/internal/marketdata"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/errors"
)

// Kind is the variant tag of an Instrument.
type Kind int

const (
	KindFutures Kind = iota
	KindBond
	KindBondFutures
	KindKTBF
	KindPlainSwap
	KindFxFutures
	KindVanillaOption
	KindStock
	KindCash
)

var kindNames = [...]string{"Futures", "Bond", "BondFutures", "KTBF", "PlainSwap", "FxFutures", "VanillaOption", "Stock", "Cash"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "Unknown"
	}
	return kindNames[k]
}

// InstType is the product type name categories filter on.
type InstType string

const (
	TypeFutures     InstType = "Futures"
	TypeVanillaCall InstType = "VanillaCall"
	TypeVanillaPut  InstType = "VanillaPut"
	TypeIRS         InstType = "IRS"
	TypeCRS         InstType = "CRS"
	TypeFxFutures   InstType = "FxFutures"
	TypeBond        InstType = "Bond"
	TypeBondFutures InstType = "BondFutures"
	TypeKTBF        InstType = "KTBF"
	TypeStock       InstType = "Stock"
	TypeCash        InstType = "Cash"
)

// AccountingLevel is the fair value hierarchy level.
type AccountingLevel int

const (
	L1 AccountingLevel = iota + 1
	L2
	L3
)

// InstInfo holds what every instrument carries. Zero dates mean "not set".
type InstInfo struct {
	ID              marketdata.StaticID
	Name            string
	Type            InstType
	Currency        marketdata.Currency
	UnitNotional    float64
	IssueDate       time.Time
	Maturity        time.Time
	AccountingLevel AccountingLevel
}

// Instrument is the capability set shared by every variant. Variant-specific
// data is reached through a type switch on the concrete type.
type Instrument interface {
	Kind() Kind
	Info() *InstInfo
	UnderlyingIDs() []marketdata.StaticID
	AverageTradePrice() float64
}

// Info lets variants satisfy Instrument through embedding.
func (i *InstInfo) Info() *InstInfo { return i }

// TypeName is the category-facing type name.
func (i *InstInfo) TypeName() string { return string(i.Type) }

// Code is the identifier code without the provider.
func (i *InstInfo) Code() string { return i.ID.Code }

// HasMaturity reports whether a maturity date is set.
func (i *InstInfo) HasMaturity() bool { return !i.Maturity.IsZero() }

// UnderlyingIDs is empty unless a variant says otherwise.
func (i *InstInfo) UnderlyingIDs() []marketdata.StaticID { return nil }

// AverageTradePrice is zero unless a variant says otherwise.
func (i *InstInfo) AverageTradePrice() float64 { return 0 }

func (i *InstInfo) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "    id: %s\n", i.ID)
	fmt.Fprintf(&b, "    name: %s\n", i.Name)
	fmt.Fprintf(&b, "    type: %s\n", i.Type)
	fmt.Fprintf(&b, "    currency: %s\n", i.Currency)
	fmt.Fprintf(&b, "    unit_notional: %s\n", FormatAmount(i.UnitNotional))
	b.WriteString("    issue_date: " + dateOrNone(i.IssueDate) + "\n")
	b.WriteString("    maturity: " + dateOrNone(i.Maturity) + "\n")
	return b.String()
}

func dateOrNone(t time.Time) string {
	if t.IsZero() {
		return "None"
	}
	return t.Format(time.DateOnly)
}

// FormatAmount renders v with two decimals and thousands separators.
func FormatAmount(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	intPart, frac := s[:len(s)-3], s[len(s)-3:]
	var out []byte
	for i := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, intPart[i])
	}
	if neg {
		return "-" + string(out) + frac
	}
	return string(out) + frac
}

func unsupported(inst Instrument, what string) error {
	info := inst.Info()
	return errors.Unsupportedf("%s is not available for %s %s (%s)", what, inst.Kind(), info.Name, info.ID)
}
