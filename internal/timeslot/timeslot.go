// Package timeslot converts operator input into the booking platform's
// timestamp format and does the arithmetic the acquisition loop needs.
//
// The platform stores every timestamp in UTC with a fixed ".000" millisecond
// suffix, e.g. "2024-07-20T09:00:00.000Z".
package timeslot

import (
	"fmt"
	"strings"
	"time"
)

const (
	// Layout is the platform's canonical timestamp layout.
	Layout = "2006-01-02T15:04:05.000Z"
	// DateLayout is the operator-facing date layout.
	DateLayout = "2006-01-02"
)

// Format renders t in the platform layout after converting it to UTC.
func Format(t time.Time) string {
	return t.UTC().Format(Layout)
}

// Parse reads a platform timestamp.
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(Layout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("timeslot: parse %q: %w", s, err)
	}
	return t, nil
}

// FromDateHour builds the slot timestamp for the given date (YYYY-MM-DD) and
// start hour. When inUTC is false the pair is read as wall-clock time in loc
// (nil means time.Local) and converted, so day rollover is handled. Zones
// with a non-whole-hour offset are truncated to the hour because platform
// slots always start on the hour.
func FromDateHour(date string, hour int, inUTC bool, loc *time.Location) (string, error) {
	if hour < 0 || hour > 23 {
		return "", fmt.Errorf("timeslot: hour %d out of range 0-23", hour)
	}
	day, err := time.Parse(DateLayout, strings.TrimSpace(date))
	if err != nil {
		return "", fmt.Errorf("timeslot: parse date %q: %w", date, err)
	}

	zone := time.UTC
	if !inUTC {
		zone = loc
		if zone == nil {
			zone = time.Local
		}
	}
	t := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, zone)
	return Format(t.UTC().Truncate(time.Hour)), nil
}

// DayRange returns the first and last hourly timestamps of the given UTC date.
// The acquisition loop polls this whole range on every tick.
func DayRange(date string) (start, end string, err error) {
	if start, err = FromDateHour(date, 0, true, nil); err != nil {
		return "", "", err
	}
	if end, err = FromDateHour(date, 23, true, nil); err != nil {
		return "", "", err
	}
	return start, end, nil
}

// SecondsBetween returns end minus start in whole seconds.
func SecondsBetween(start, end string) (int64, error) {
	s, err := Parse(start)
	if err != nil {
		return 0, err
	}
	e, err := Parse(end)
	if err != nil {
		return 0, err
	}
	return int64(e.Sub(s) / time.Second), nil
}

// SecondsUntil returns the whole seconds from now until the timestamp ts.
// Negative values mean ts is in the past.
func SecondsUntil(now time.Time, ts string) (int64, error) {
	t, err := Parse(ts)
	if err != nil {
		return 0, err
	}
	return int64(t.Sub(now.UTC()) / time.Second), nil
}

// UTCOffset returns the offset of loc from UTC at instant now, positive east
// of Greenwich (CEST yields +2h). A nil loc means time.Local.
func UTCOffset(now time.Time, loc *time.Location) time.Duration {
	if loc == nil {
		loc = time.Local
	}
	_, offset := now.In(loc).Zone()
	return time.Duration(offset) * time.Second
}
