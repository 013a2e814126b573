package domain

import (
	"bytes"
	"time"
)

// EntryRecord is one traveller's application for a single border crossing.
// It is immutable during evaluation; rules read it and nothing writes it.
// JSON field names match the upstream dataset format.
type EntryRecord struct {
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	BirthDate   string    `json:"birth_date"`
	Passport    string    `json:"passport"`
	Home        Location  `json:"home"`
	From        Location  `json:"from"`
	Via         *Location `json:"via,omitempty"`
	EntryReason string    `json:"entry_reason"`
	Visa        *VisaInfo `json:"visa,omitempty"`
}

// Location is a city/region/country triple. Country is a 3-letter code.
type Location struct {
	City    string `json:"city"`
	Region  string `json:"region"`
	Country string `json:"country"`
}

// VisaInfo holds the visa details attached to an entry record.
type VisaInfo struct {
	Date string `json:"date"`
	Code string `json:"code"`
}

// EntryCase wraps an EntryRecord with the identifiers the service attaches
// when the record is received at a checkpoint.
type EntryCase struct {
	ID           string      `json:"id"`
	CheckpointID string      `json:"checkpointId"`
	Record       EntryRecord `json:"record"`
	ReceivedAt   time.Time   `json:"receivedAt"`
}

// WatchlistEntry is one identity requiring manual secondary screening.
// Matching is by case-insensitive name pair or exact passport number.
type WatchlistEntry struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Passport  string `json:"passport"`
}

// CountryPolicy is the per-country reference data: whether transit and
// visitor visas are required, and whether a medical advisory is active
// (non-empty MedicalAdvisory means active).
type CountryPolicy struct {
	Code                string `json:"code,omitempty"`
	TransitVisaRequired Flag   `json:"transit_visa_required"`
	VisitorVisaRequired Flag   `json:"visitor_visa_required"`
	MedicalAdvisory     string `json:"medical_advisory"`
}

// PolicyTable maps 3-letter country codes to their policies.
// A lookup by an absent code is a reference-data fault, not "no requirement";
// see UnknownCountryError.
type PolicyTable map[string]CountryPolicy

// Flag is a boolean that accepts the upstream dataset encoding, where
// requirement flags arrive as the strings "1" and "0".
type Flag bool

// UnmarshalJSON accepts true/false, "1"/"0", and "" (false).
func (f *Flag) UnmarshalJSON(data []byte) error {
	switch string(bytes.Trim(data, `"`)) {
	case "1", "true":
		*f = true
	default:
		*f = false
	}
	return nil
}

// MarshalJSON writes the upstream "1"/"0" encoding.
func (f Flag) MarshalJSON() ([]byte, error) {
	if f {
		return []byte(`"1"`), nil
	}
	return []byte(`"0"`), nil
}

// Bool returns the flag as a plain bool.
func (f Flag) Bool() bool { return bool(f) }

// HomeCountryCode is the code of the home nation. Its own citizens never
// require a visa and returning citizens are admitted outright.
const HomeCountryCode = "KAN"
