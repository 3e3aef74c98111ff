package util

import (
	"time"
)

// AlignToTimeframe truncates t down to the start of its bar.
func AlignToTimeframe(t time.Time, tf time.Duration) time.Time {
	if tf <= 0 {
		return t
	}
	return t.Truncate(tf)
}

// FromUnix converts broker timestamps that may be seconds or milliseconds.
func FromUnix(ts int64) time.Time {
	if ts <= 0 {
		return time.Time{}
	}
	// anything past year 2286 in seconds is treated as millis
	if ts > 9_999_999_999 {
		return time.UnixMilli(ts).UTC()
	}
	return time.Unix(ts, 0).UTC()
}

// FormatInZone renders t in loc, falling back to UTC for a nil location.
func FormatInZone(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02 15:04:05 MST")
}

// AbsDuration returns |d|.
func AbsDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
