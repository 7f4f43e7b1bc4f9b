package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Income  TxKind = "income"
	Expense TxKind = "expense"
)

type (
	// TxKind distinguishes money coming in from money going out.
	TxKind string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Transaction is a single ledger record. The ID is its immutable
	// identity; LastModified is the sole arbiter of recency when the same
	// record exists on both sides of a merge.
	Transaction struct {
		ID            string    `json:"id"`
		Amount        Money     `json:"amount"`
		Date          Date      `json:"date"`
		Category      string    `json:"category"`
		Note          string    `json:"note"`
		PaymentMethod string    `json:"paymentMethod"`
		Kind          TxKind    `json:"type"`
		LastModified  time.Time `json:"lastModified"`
	}
)

var (
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidKind     = errors.New("invalid transaction kind")
	ErrEmptyID         = errors.New("empty transaction id")
	ErrEmptyCategory   = errors.New("empty category")
	ErrInvalidMonthKey = errors.New("invalid month key")
)

func (k TxKind) Validate() error {
	switch k {
	case Income, Expense:
		return nil
	default:
		return ErrInvalidKind
	}
}

// NewDate creates a Date from year, month, day in UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// MonthKey returns the "YYYY-MM" budgeting period this date falls in.
func (d Date) MonthKey() string {
	return d.Format("2006-01")
}

// MarshalJSON encodes the date as "YYYY-MM-DD".
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + d.Format("2006-01-02") + `"`), nil
}

// UnmarshalJSON decodes "YYYY-MM-DD" dates. An empty string is the zero date.
func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return ErrInvalidDate
	}
	d.Time = t
	return nil
}

// ValidMonthKey reports whether s is a well-formed "YYYY-MM" month key.
func ValidMonthKey(s string) bool {
	_, err := time.Parse("2006-01", s)
	return err == nil
}

func (m Money) Validate() error {
	if m.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// MarshalJSON encodes money as an integer number of minor currency units.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(formatInt(m.Cents)), nil
}

// UnmarshalJSON decodes an integer number of minor currency units.
func (m *Money) UnmarshalJSON(data []byte) error {
	v, err := parseInt(string(data))
	if err != nil {
		return ErrInvalidAmount
	}
	m.Cents = v
	return nil
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return ErrEmptyID
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if err := t.Kind.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if len(t.Note) > 500 {
		return errors.New("note too long (max 500 characters)")
	}
	return nil
}
