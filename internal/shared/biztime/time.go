// Package biztime centralises clock access. Everything stored or compared is
// UTC; store APIs speak epoch milliseconds.
package biztime

import "time"

// NowUTC returns the current time in UTC.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// FromUnixMilli converts epoch milliseconds to a UTC time. Zero stays the
// zero time so an absent field is distinguishable from the epoch.
func FromUnixMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// FromUnixMilliPtr is FromUnixMilli for optional instants.
func FromUnixMilliPtr(ms int64) *time.Time {
	if ms == 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}

// ToUTCPtr returns a UTC copy of t, or nil.
func ToUTCPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
