package domain

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Numeric is a monetary or quantity field as sent by the backend.
//
// The backend is not strict about its numeric columns: values arrive as JSON
// numbers, as numeric strings ("12.50"), as null, or occasionally as garbage.
// Decoding never fails. Anything that is not a finite decimal decodes to zero
// with Valid=false so the normalization stage can count it.
type Numeric struct {
	Value decimal.Decimal
	Valid bool
}

// NewNumeric builds a valid Numeric from a float.
func NewNumeric(v float64) Numeric {
	return Numeric{Value: decimal.NewFromFloat(v), Valid: true}
}

// NumericFromString parses s the same way the JSON decoder does.
func NumericFromString(s string) Numeric {
	s = strings.TrimSpace(s)
	if s == "" {
		return Numeric{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Numeric{}
	}
	return Numeric{Value: d, Valid: true}
}

// UnmarshalJSON implements json.Unmarshaler. It never returns an error.
func (n *Numeric) UnmarshalJSON(b []byte) error {
	*n = Numeric{}

	raw := strings.TrimSpace(string(b))
	if raw == "" || raw == "null" {
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		*n = NumericFromString(s)
		return nil
	}
	if raw[0] == '{' || raw[0] == '[' || raw == "true" || raw == "false" {
		return nil
	}
	*n = NumericFromString(raw)
	return nil
}

// MarshalJSON implements json.Marshaler. Invalid values encode as null.
func (n Numeric) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return []byte(n.Value.String()), nil
}

// OrZero returns the value, or zero when the field was malformed.
func (n Numeric) OrZero() decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	return n.Value
}

// RecordID is a backend primary or foreign key. It decodes from a JSON
// number or a numeric string; anything else decodes to zero.
type RecordID int64

// UnmarshalJSON implements json.Unmarshaler. It never returns an error.
func (id *RecordID) UnmarshalJSON(b []byte) error {
	*id = 0

	raw := strings.TrimSpace(string(b))
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		raw = strings.TrimSpace(s)
	}
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*id = RecordID(v)
	}
	return nil
}
