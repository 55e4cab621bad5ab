package repository

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/farmacia/farmacia-backend/pkg/errors"
)

const dateLayout = "2006-01-02"

// Date is a calendar day without time of day, serialized as YYYY-MM-DD
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar day in t's location
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses YYYY-MM-DD
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, errors.InvalidField("fechaVenc", "must be a date in format YYYY-MM-DD")
	}
	return Date{Time: t}, nil
}

// MustDate is ParseDate for literals in tests and fixtures
func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DaysSince returns the number of calendar days from other to d
func (d Date) DaysSince(other Date) int {
	return int(d.Time.Sub(other.Time).Hours() / 24)
}

// AddDays returns d shifted by n days
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) Equal(other Date) bool {
	return d.Time.Equal(other.Time)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.InvalidField("fechaVenc", "must be a date in format YYYY-MM-DD")
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Scan implements sql.Scanner for DATE columns
func (d *Date) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		*d = NewDate(v)
		return nil
	case string:
		parsed, err := time.Parse(dateLayout, v[:min(len(v), len(dateLayout))])
		if err != nil {
			return err
		}
		*d = Date{Time: parsed}
		return nil
	case []byte:
		return d.Scan(string(v))
	}
	return fmt.Errorf("cannot scan %T into Date", src)
}

// Value implements driver.Valuer
func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}

// SameDate compares two optional dates
func SameDate(a, b *Date) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
