package domain

import "time"

// IsWeekend reports whether t falls on Saturday or Sunday in its own location.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// DateKey identifies a calendar day as yyyy-mm-dd in t's location.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

const day = 24 * time.Hour

// PeriodExceeds reports whether more than maxDays days elapsed from a to b.
// Elapsed time is compared, not calendar dates: 90 days and one minute is
// over a 90 day cap.
func PeriodExceeds(a, b time.Time, maxDays int) bool {
	return b.Sub(a) > time.Duration(maxDays)*day
}

// PeriodDays is the time elapsed from a to b in days, rounded up.
func PeriodDays(a, b time.Time) int {
	d := b.Sub(a)
	n := int(d / day)
	if d%day > 0 {
		n++
	}
	return n
}
