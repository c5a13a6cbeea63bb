package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// The backend is loose about scalar types: ids and codes arrive as numbers or
// strings, status as 0/1, "0"/"1" or booleans. Everything is normalized here so
// the rest of the module only sees one shape.

// ID identifies a backend record.
type ID int64

// UnmarshalJSON accepts a JSON number or a numeric string.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		*id = 0
		return nil
	}
	s := strings.Trim(string(data), `"`)
	if s == "" {
		*id = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		if f, ferr := strconv.ParseFloat(s, 64); ferr == nil && f == float64(int64(f)) {
			*id = ID(int64(f))
			return nil
		}
		return fmt.Errorf("invalid id %s", data)
	}
	*id = ID(n)
	return nil
}

func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseID parses a path or CLI argument into an ID.
func ParseID(s string) (ID, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return ID(n), nil
}

// Code is an opaque comparable code, such as an area type. Numeric codes are
// normalized to their base-10 string form.
type Code string

// UnmarshalJSON accepts a JSON string or number.
func (c *Code) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case string(data) == "null":
		*c = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Code(strings.TrimSpace(s))
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("invalid code %s", data)
		}
		if i, err := n.Int64(); err == nil {
			*c = Code(strconv.FormatInt(i, 10))
		} else {
			*c = Code(n.String())
		}
	}
	return nil
}

// Status is the completion state of a progress record.
type Status int

const (
	StatusPending   Status = 0
	StatusCompleted Status = 1
)

// UnmarshalJSON accepts 0/1, "0"/"1" and booleans; anything else is rejected.
func (s *Status) UnmarshalJSON(data []byte) error {
	switch strings.Trim(string(bytes.TrimSpace(data)), `"`) {
	case "0", "false", "null", "":
		*s = StatusPending
	case "1", "true":
		*s = StatusCompleted
	default:
		return fmt.Errorf("invalid status %s", data)
	}
	return nil
}

// Completed reports whether the status is 1.
func (s Status) Completed() bool {
	return s == StatusCompleted
}

// StatusOf maps a selection flag to a Status.
func StatusOf(done bool) Status {
	if done {
		return StatusCompleted
	}
	return StatusPending
}

// Day is a calendar date in YYYY-MM-DD form. Days sort lexicographically.
type Day string

const dayLayout = "2006-01-02"

// DayOf returns the calendar day of t in t's location.
func DayOf(t time.Time) Day {
	return Day(t.Format(dayLayout))
}

// UnmarshalJSON accepts a date or an RFC3339 timestamp, keeping only the day.
func (d *Day) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		if string(bytes.TrimSpace(data)) == "null" {
			*d = ""
			return nil
		}
		return fmt.Errorf("invalid date %s", data)
	}
	parsed, err := ParseDay(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDay normalizes s into a Day.
func ParseDay(s string) (Day, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return DayOf(t.UTC()), nil
	}
	if len(s) >= len(dayLayout) {
		if t, err := time.Parse(dayLayout, s[:len(dayLayout)]); err == nil {
			return DayOf(t), nil
		}
	}
	return "", fmt.Errorf("invalid date %q", s)
}

var timestampLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05", dayLayout}

// ParseTimestamp accepts RFC3339, SQL datetime or a bare date. Empty input
// yields the zero time.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// fields decodes a JSON object so struct decoders can look up the aliases the
// backend uses for the same attribute.
type fields map[string]json.RawMessage

func decodeFields(data []byte) (fields, error) {
	var f fields
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return f, nil
}

// get decodes the first present alias into dst. Missing keys leave dst alone.
func (f fields) get(dst any, names ...string) error {
	for _, name := range names {
		raw, ok := f[name]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
		return nil
	}
	return nil
}

// text decodes a string-ish attribute; numbers are kept in their literal form.
func (f fields) text(names ...string) (string, error) {
	var c Code
	for _, name := range names {
		raw, ok := f[name]
		if !ok {
			continue
		}
		if err := c.UnmarshalJSON(raw); err != nil {
			return "", fmt.Errorf("field %s: %w", name, err)
		}
		return string(c), nil
	}
	return "", nil
}
