package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// storedLayout is how timestamps are written: UTC, second precision.
const storedLayout = "2006-01-02 15:04:05"

// Timestamp reads the time formats found in the database, including rows
// written by the first version of the site (ISO 8601 without zone).
type Timestamp struct {
	time.Time
}

func Now() Timestamp {
	return Timestamp{time.Now().UTC().Truncate(time.Second)}
}

var timestampLayouts = []string{
	storedLayout,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05-07:00",
	time.RFC3339Nano,
	time.RFC3339,
}

func (t *Timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("timestamp: unsupported type %T", src)
	}
}

func (t *Timestamp) parse(s string) error {
	var last error
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			t.Time = parsed.UTC()
			return nil
		}
		last = err
	}
	return fmt.Errorf("timestamp %q: %w", s, last)
}

func (t Timestamp) Value() (driver.Value, error) {
	return t.UTC().Format(storedLayout), nil
}
