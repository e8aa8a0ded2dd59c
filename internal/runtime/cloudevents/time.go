package cloudevents

import "time"

// FormatTime renders t in UTC as RFC3339 with millisecond precision.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// FromMillis converts epoch milliseconds to a UTC time. Zero maps to the zero
// time.
func FromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
