package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// The per-user tree stores amounts as plain JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// DateLayout is the wire format of calendar dates (Bill.DueDate).
const DateLayout = "2006-01-02"

// MonthLayout is the wire format of budget periods.
const MonthLayout = "2006-01"

// Date is a calendar date without time of day, serialised as YYYY-MM-DD.
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar date in t's location and re-anchors it at UTC midnight.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" || s == `""` {
		d.Time = time.Time{}
		return nil
	}
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return &ErrValidation{Field: "date", Message: "expected a YYYY-MM-DD string"}
	}
	s = s[1 : len(s)-1]
	// Some clients send full ISO timestamps for dates; keep only the date part.
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return &ErrValidation{Field: "date", Message: "expected a YYYY-MM-DD string"}
	}
	*d = parsed
	return nil
}

// IsPositive reports whether an amount is strictly greater than zero.
func IsPositive(d decimal.Decimal) bool {
	return d.GreaterThan(decimal.Zero)
}
