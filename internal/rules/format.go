package rules

import (
	"regexp"
	"time"
)

// DateLayout is the wire format for every date field on an entry record.
const DateLayout = "2006-01-02"

var (
	// Five groups of five word characters, hyphen separated.
	passportPattern = regexp.MustCompile(`^\w{5}-\w{5}-\w{5}-\w{5}-\w{5}$`)

	// Two groups of five word characters, hyphen separated.
	visaCodePattern = regexp.MustCompile(`^\w{5}-\w{5}$`)
)

// ValidPassport reports whether s is a well-formed passport number.
func ValidPassport(s string) bool {
	return passportPattern.MatchString(s)
}

// ValidDate reports whether s parses strictly as YYYY-MM-DD, including
// month/day range checks (Feb 30 is invalid, Feb 29 only in leap years).
func ValidDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// ValidVisaCode reports whether s is a well-formed visa code.
func ValidVisaCode(s string) bool {
	return visaCodePattern.MatchString(s)
}

// ParseDate parses a wire-format date. Callers validate with ValidDate first.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}
