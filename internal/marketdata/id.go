package marketdata

import (
	"fmt"
	"strings"
)

// StaticID identifies an instrument, underlying or market object across a run.
// The zero value is NoneID, meaning "no object needed for this role".
type StaticID struct {
	Code     string `json:"code" mapstructure:"code"`
	Provider string `json:"provider" mapstructure:"provider"`
}

// NoneID is the sentinel for a curve role that does not apply.
var NoneID = StaticID{}

// NewStaticID builds an id from its code and data provider.
func NewStaticID(code, provider string) StaticID {
	return StaticID{Code: code, Provider: provider}
}

// ParseStaticID parses "CODE" or "CODE(PROVIDER)".
func ParseStaticID(s string) StaticID {
	s = strings.TrimSpace(s)
	if open := strings.LastIndex(s, "("); open > 0 && strings.HasSuffix(s, ")") {
		return StaticID{Code: s[:open], Provider: s[open+1 : len(s)-1]}
	}
	return StaticID{Code: s}
}

// IsNone reports whether id is the sentinel.
func (id StaticID) IsNone() bool {
	return id == NoneID
}

func (id StaticID) String() string {
	if id.IsNone() {
		return "<none>"
	}
	if id.Provider == "" {
		return id.Code
	}
	return fmt.Sprintf("%s(%s)", id.Code, id.Provider)
}

// MarshalText renders the id in the form accepted by ParseStaticID.
func (id StaticID) MarshalText() ([]byte, error) {
	if id.IsNone() {
		return []byte{}, nil
	}
	return []byte(id.String()), nil
}

// UnmarshalText parses the form produced by MarshalText.
func (id *StaticID) UnmarshalText(b []byte) error {
	*id = ParseStaticID(string(b))
	return nil
}

// IDsString joins ids for diagnostics.
func IDsString(ids []StaticID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
