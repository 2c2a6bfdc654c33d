// Package domain defines the persistence models and core value types for the
// habit completion ledger. This file implements DateKey, the canonical
// YYYY-MM-DD identifier of a logical calendar day, and Calendar, the single
// timezone policy shared by every component.
//
// All day-bucketing in the system goes through these two types. Components
// must never re-derive a date string from a timestamp themselves: mismatched
// formatting or timezone rules across components silently break joins between
// events, completion records, and awards.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// dateKeyLayout is the only accepted wire/storage format for a DateKey.
const dateKeyLayout = "2006-01-02"

// ErrInvalidDateKey is returned when a string does not parse as a canonical
// YYYY-MM-DD calendar date.
var ErrInvalidDateKey = errors.New("invalid date key, want YYYY-MM-DD")

// DateKey identifies one logical calendar day as a fixed YYYY-MM-DD string.
// It is a value type: comparable, ordered lexicographically (which coincides
// with chronological order for this layout), and safe to use as a map or
// database key.
type DateKey string

// NewDateKey validates s and returns it as a DateKey.
func NewDateKey(s string) (DateKey, error) {
	t, err := time.Parse(dateKeyLayout, s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDateKey, s)
	}
	// Reject inputs that parse but are not in canonical form (e.g. "2025-1-2").
	if t.Format(dateKeyLayout) != s {
		return "", fmt.Errorf("%w: %q", ErrInvalidDateKey, s)
	}
	return DateKey(s), nil
}

// DateKeyOf buckets an instant into the calendar day it belongs to in loc.
func DateKeyOf(t time.Time, loc *time.Location) DateKey {
	return DateKey(t.In(loc).Format(dateKeyLayout))
}

// String implements fmt.Stringer.
func (d DateKey) String() string { return string(d) }

// Time returns midnight of the key's day in loc.
func (d DateKey) Time(loc *time.Location) time.Time {
	t, _ := time.ParseInLocation(dateKeyLayout, string(d), loc)
	return t
}

// AddDays returns the key n days after (or before, for negative n) d.
// Day arithmetic is done at noon to stay clear of DST transitions.
func (d DateKey) AddDays(n int) DateKey {
	t, _ := time.Parse(dateKeyLayout, string(d))
	t = t.Add(12*time.Hour).AddDate(0, 0, n)
	return DateKey(t.Format(dateKeyLayout))
}

// Next returns the following day.
func (d DateKey) Next() DateKey { return d.AddDays(1) }

// Prev returns the preceding day.
func (d DateKey) Prev() DateKey { return d.AddDays(-1) }

// Weekday returns the day of week of the key.
func (d DateKey) Weekday() time.Weekday {
	t, _ := time.Parse(dateKeyLayout, string(d))
	return t.Weekday()
}

// YearMonth returns the "YYYY-MM" partition key used by the remote sync store
// for incremental pull/push.
func (d DateKey) YearMonth() string {
	if len(d) < 7 {
		return string(d)
	}
	return string(d)[:7]
}

// Before reports whether d is an earlier day than other.
func (d DateKey) Before(other DateKey) bool { return d < other }

// Calendar is the canonical day-bucketing policy. Exactly one Calendar is
// constructed at startup (from config) and injected into every service; the
// timezone decides where the day boundary falls for the whole system.
type Calendar struct {
	loc *time.Location
}

// NewCalendar builds a Calendar for the named IANA timezone. An empty name
// selects UTC.
func NewCalendar(tzName string) (Calendar, error) {
	if tzName == "" {
		return Calendar{loc: time.UTC}, nil
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return Calendar{}, fmt.Errorf("load timezone %q: %w", tzName, err)
	}
	return Calendar{loc: loc}, nil
}

// UTCCalendar returns the UTC policy, used as a safe default in tests.
func UTCCalendar() Calendar { return Calendar{loc: time.UTC} }

// Location exposes the underlying timezone for callers that need to render
// times (never for re-deriving date keys by hand).
func (c Calendar) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// DayOf buckets an instant into its calendar day under this policy.
func (c Calendar) DayOf(t time.Time) DateKey { return DateKeyOf(t, c.Location()) }

// Today returns the current day under this policy.
func (c Calendar) Today() DateKey { return c.DayOf(time.Now()) }
