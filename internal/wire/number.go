// Package wire provides decimal-preserving JSON decoding helpers for exchange
// wire messages. Price and size fields must never round-trip through binary
// floating point, so every numeric token on the hot path is carried as a
// string or shopspring/decimal.Decimal, never float64.
package wire

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Number decodes either a JSON string or a JSON numeric literal into its
// original textual form, preserving trailing zeros (e.g. "1.50000000").
// Venues disagree on whether price/size fields are quoted; this type accepts
// both without losing precision.
type Number string

// UnmarshalJSON implements json.Unmarshaler, accepting quoted and bare
// numeric tokens.
func (n *Number) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*n = ""
		return nil
	}
	if trimmed[0] == '"' {
		if len(trimmed) < 2 || trimmed[len(trimmed)-1] != '"' {
			return fmt.Errorf("wire: malformed quoted number %q", string(data))
		}
		*n = Number(trimmed[1 : len(trimmed)-1])
		return nil
	}
	// bare numeric literal: validate it parses, but keep the original bytes
	// so trailing zeros survive.
	if _, err := strconv.ParseFloat(string(trimmed), 64); err != nil {
		return fmt.Errorf("wire: invalid numeric token %q: %w", string(data), err)
	}
	*n = Number(trimmed)
	return nil
}

// MarshalJSON re-emits the token as a JSON string, the conservative choice
// that never loses precision for non-integral exchange payloads.
func (n Number) MarshalJSON() ([]byte, error) {
	if n == "" {
		return []byte(`""`), nil
	}
	return []byte(`"` + string(n) + `"`), nil
}

// String returns the raw token.
func (n Number) String() string { return string(n) }

// Decimal parses the token into a decimal.Decimal. Empty tokens decode to
// decimal.Zero with ok=false so callers can distinguish "absent" from "0".
func (n Number) Decimal() (decimal.Decimal, bool) {
	if n == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(string(n))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
