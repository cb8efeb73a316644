package market

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"
)

// Amount is a decimal quantity as the indexer reports it. The wire form is
// sometimes a JSON string and sometimes a number; both decode, and it always
// encodes as a string. The empty Amount means "not reported".
type Amount string

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*a = Amount(n.String())
	return nil
}

// Decimal parses the amount, treating empty or malformed values as zero.
func (a Amount) Decimal() decimal.Decimal {
	if a == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(string(a))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Amount) Float64() float64 {
	f, _ := a.Decimal().Float64()
	return f
}

// AmountFromDecimal renders d without exponent notation.
func AmountFromDecimal(d decimal.Decimal) Amount {
	return Amount(d.String())
}

// Uint is an unsigned integer that decodes from a JSON number, a numeric
// string or null.
type Uint uint64

func (u *Uint) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*u = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*u = 0
			return nil
		}
		b = []byte(s)
	}
	n, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(string(b), 64)
		if ferr != nil || f < 0 {
			return err
		}
		n = uint64(f)
	}
	*u = Uint(n)
	return nil
}
