package models

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	errTimeMissing     = errors.New("missing")
	errTimeUnparseable = errors.New("unparseable")
)

// Layouts without zone information are read in the configured records
// time zone.
var localLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006-01-02",
}

var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
}

// SourceTime holds a timestamp as received from a record source. Decoding
// never fails so that one bad record cannot reject a whole response; the
// record constructor decides what to do with an invalid value.
type SourceTime struct {
	Raw   string
	Time  time.Time
	Valid bool
	// Wall marks values without zone information that still need a location.
	Wall bool
}

// NewSourceTime wraps an already typed timestamp (SQL sources).
func NewSourceTime(t time.Time) *SourceTime {
	if t.IsZero() {
		return nil
	}
	return &SourceTime{Raw: t.Format(time.RFC3339), Time: t, Valid: true}
}

// NewWallSourceTime wraps a zone-less SQL datetime; its clock reading is
// interpreted in the records time zone.
func NewWallSourceTime(t time.Time) *SourceTime {
	if t.IsZero() {
		return nil
	}
	return &SourceTime{Raw: t.Format("2006-01-02 15:04:05"), Time: t, Valid: true, Wall: true}
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *SourceTime) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		*s = SourceTime{Raw: string(data)}
		return nil
	}
	*s = ParseSourceTime(raw)
	return nil
}

// MarshalJSON writes the original text back.
func (s SourceTime) MarshalJSON() ([]byte, error) {
	if s.Valid && !s.Wall {
		return json.Marshal(s.Time.Format(time.RFC3339))
	}
	return json.Marshal(s.Raw)
}

// ParseSourceTime accepts the formats emitted by the leave backend: SQL
// datetimes, ISO 8601 and the HTTP-date form produced by Flask's JSON encoder.
func ParseSourceTime(raw string) SourceTime {
	trimmed := strings.TrimSpace(raw)
	out := SourceTime{Raw: raw}
	if trimmed == "" {
		return out
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			out.Time, out.Valid = t, true
			return out
		}
	}
	// Flask renders naive datetimes as "... GMT" although they hold local wall
	// clock values, so the zone is dropped and re-applied later.
	if t, err := time.Parse(time.RFC1123, trimmed); err == nil {
		out.Time, out.Valid, out.Wall = t, true, true
		return out
	}
	for _, layout := range localLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			out.Time, out.Valid, out.Wall = t, true, true
			return out
		}
	}
	return out
}

func (s *SourceTime) resolve(loc *time.Location) (time.Time, error) {
	if s == nil || strings.TrimSpace(s.Raw) == "" && !s.Valid {
		return time.Time{}, errTimeMissing
	}
	if !s.Valid {
		return time.Time{}, errTimeUnparseable
	}
	if s.Wall {
		t := s.Time
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc), nil
	}
	return s.Time.In(loc), nil
}
