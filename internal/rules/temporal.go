package rules

import "time"

// DefaultVisaValidityYears is how long an issued visa remains usable.
const DefaultVisaValidityYears = 2

// CutoffYearsBefore returns the calendar date years before ref, truncated to
// midnight UTC. When ref falls on Feb 29 and the target year is not a leap
// year, the date normalizes forward to Mar 1 of the target year.
func CutoffYearsBefore(ref time.Time, years int) time.Time {
	y, m, d := ref.Date()
	target := y - years
	if m == time.February && d == 29 && !isLeapYear(target) {
		return time.Date(target, time.March, 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(target, m, d, 0, 0, 0, 0, time.UTC)
}

// WithinValidityWindow reports whether visaDate is strictly after the cutoff
// years before today. A visa dated exactly years ago is expired.
func WithinValidityWindow(visaDate, today time.Time, years int) bool {
	return visaDate.After(CutoffYearsBefore(today, years))
}

func isLeapYear(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}
