package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// DateLayout is the wire format of every calendar date handled by the service.
const DateLayout = "2006-01-02"

const day = 24 * time.Hour

// CivilDate is a calendar day without time-of-day. It is held as midnight UTC,
// so differences between two dates are always a whole number of days.
type CivilDate struct {
	t time.Time
}

// NewDate builds a CivilDate from its calendar components.
func NewDate(year int, month time.Month, dayOfMonth int) CivilDate {
	return CivilDate{t: time.Date(year, month, dayOfMonth, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day of t as observed in t's own location.
func DateOf(t time.Time) CivilDate {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate parses a YYYY-MM-DD string. Timestamps whose date is followed
// by 'T' or a space are cut to their date prefix.
func ParseDate(value string) (CivilDate, error) {
	if value == "" {
		return CivilDate{}, fmt.Errorf("empty date")
	}
	if len(value) > len(DateLayout) {
		if sep := value[len(DateLayout)]; sep != 'T' && sep != ' ' {
			return CivilDate{}, fmt.Errorf("parse date %q: trailing characters", value)
		}
		value = value[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return CivilDate{}, fmt.Errorf("parse date %q: %w", value, err)
	}
	return CivilDate{t: t}, nil
}

// MustParseDate is ParseDate for literals known to be valid.
func MustParseDate(value string) CivilDate {
	d, err := ParseDate(value)
	if err != nil {
		panic(err)
	}
	return d
}

// IsZero reports whether the date is unset.
func (d CivilDate) IsZero() bool { return d.t.IsZero() }

// Time returns midnight UTC of the date.
func (d CivilDate) Time() time.Time { return d.t }

func (d CivilDate) Before(o CivilDate) bool { return d.t.Before(o.t) }

func (d CivilDate) After(o CivilDate) bool { return d.t.After(o.t) }

func (d CivilDate) Equal(o CivilDate) bool { return d.t.Equal(o.t) }

// AddDays moves the date by n days (negative n moves backwards).
func (d CivilDate) AddDays(n int) CivilDate {
	return CivilDate{t: d.t.AddDate(0, 0, n)}
}

// DaysSince returns the signed number of whole days from o to d.
func (d CivilDate) DaysSince(o CivilDate) int {
	return int(d.t.Sub(o.t) / day)
}

func (d CivilDate) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(DateLayout)
}

// MarshalJSON encodes the date as "YYYY-MM-DD".
func (d CivilDate) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts "YYYY-MM-DD", full RFC 3339 timestamps, "" and null.
func (d *CivilDate) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*d = CivilDate{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode date: %w", err)
	}
	if raw == "" {
		*d = CivilDate{}
		return nil
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalBSONValue stores the date as a string so mirrored documents stay
// readable and sort lexically.
func (d CivilDate) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(d.String())
}

// UnmarshalBSONValue is the inverse of MarshalBSONValue.
func (d *CivilDate) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	raw, ok := bson.RawValue{Type: t, Value: data}.StringValueOK()
	if !ok {
		return fmt.Errorf("decode date: unexpected bson type %s", t)
	}
	if raw == "" {
		*d = CivilDate{}
		return nil
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
