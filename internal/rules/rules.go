// Package rules implements the screening rules evaluated against each entry
// record, and the engine that runs them over loaded reference data.
package rules

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kanadia-gov/kestrel/internal/domain"
	"github.com/kanadia-gov/kestrel/internal/refdata"
)

// The rules are independent: each consumes only the record and reference
// data, never another rule's output. Their order affects nothing but the
// order of results handed to the resolver, which is itself order-free.

// CheckCompleteness verifies that every required field is present and
// non-empty: the identity scalars, entry reason, and the home and from
// locations. The via and visa sub-records are optional, but when present
// their own fields must be non-empty too.
func CheckCompleteness(rec *domain.EntryRecord) (domain.Outcome, string) {
	required := map[string]string{
		"first_name":   rec.FirstName,
		"last_name":    rec.LastName,
		"birth_date":   rec.BirthDate,
		"passport":     rec.Passport,
		"entry_reason": rec.EntryReason,
		"home.city":    rec.Home.City,
		"home.region":  rec.Home.Region,
		"home.country": rec.Home.Country,
		"from.city":    rec.From.City,
		"from.region":  rec.From.Region,
		"from.country": rec.From.Country,
	}

	for field, value := range required {
		if value == "" {
			return domain.OutcomeReject, fmt.Sprintf("required field %s is empty", field)
		}
	}

	if rec.Via != nil {
		if rec.Via.City == "" || rec.Via.Region == "" || rec.Via.Country == "" {
			return domain.OutcomeReject, "via location is incomplete"
		}
	}
	if rec.Visa != nil {
		if rec.Visa.Date == "" || rec.Visa.Code == "" {
			return domain.OutcomeReject, "visa information is incomplete"
		}
	}

	return domain.OutcomeAccept, ""
}

// CheckValidity verifies the syntactic formats: passport number, birth date,
// and, when a visa is presented, its date and code. A missing field fails its
// format check rather than being skipped, so this rule does not depend on the
// completeness rule having run first.
func CheckValidity(rec *domain.EntryRecord) (domain.Outcome, string) {
	if !ValidPassport(rec.Passport) {
		return domain.OutcomeReject, "passport number format is invalid"
	}
	if !ValidDate(rec.BirthDate) {
		return domain.OutcomeReject, "birth date format is invalid"
	}
	if rec.Visa != nil {
		if !ValidDate(rec.Visa.Date) {
			return domain.OutcomeReject, "visa date format is invalid"
		}
		if !ValidVisaCode(rec.Visa.Code) {
			return domain.OutcomeReject, "visa code format is invalid"
		}
	}
	return domain.OutcomeAccept, ""
}

// CheckWatchlist sends matched travellers to secondary screening.
func CheckWatchlist(rec *domain.EntryRecord, watchlist []domain.WatchlistEntry) (domain.Outcome, string) {
	if refdata.OnWatchlist(rec.FirstName, rec.LastName, rec.Passport, watchlist) {
		return domain.OutcomeSecondary, "traveller matches a watchlist entry"
	}
	return domain.OutcomeAccept, ""
}

// CheckQuarantine quarantines travellers coming from, or routed via, a
// country under an active medical advisory. A record whose origin country is
// missing cannot be assessed and is rejected outright. Lookup failures on
// codes absent from the policy table propagate; they are data faults, not
// per-traveller outcomes.
func CheckQuarantine(rec *domain.EntryRecord, policies domain.PolicyTable) (domain.Outcome, string, error) {
	if rec.From.Country == "" {
		return domain.OutcomeReject, "origin country missing, cannot assess advisories", nil
	}

	advisory, err := refdata.HasMedicalAdvisory(rec.From.Country, policies)
	if err != nil {
		return domain.OutcomeNone, "", err
	}

	if rec.Via != nil {
		viaAdvisory, err := refdata.HasMedicalAdvisory(rec.Via.Country, policies)
		if err != nil {
			return domain.OutcomeNone, "", err
		}
		advisory = advisory || viaAdvisory
	}

	if advisory {
		return domain.OutcomeQuarantine, "route includes a country under medical advisory", nil
	}
	return domain.OutcomeAccept, "", nil
}

// CheckVisa verifies visa requirements against the policy table: when the
// home country requires a visa for the entry reason, the record must carry a
// well-formed, unexpired visa. Records too incomplete to assess are rejected.
func CheckVisa(rec *domain.EntryRecord, policies domain.PolicyTable, today time.Time) (domain.Outcome, string, error) {
	if rec.Home.Country == "" {
		return domain.OutcomeReject, "home country missing, cannot assess visa requirement", nil
	}
	if rec.Visa != nil && (rec.Visa.Date == "" || rec.Visa.Code == "") {
		return domain.OutcomeReject, "visa information is incomplete", nil
	}

	required, err := refdata.VisaRequired(rec.Home.Country, rec.EntryReason, policies)
	if err != nil {
		return domain.OutcomeNone, "", err
	}
	if !required {
		return domain.OutcomeAccept, "", nil
	}

	if rec.Visa == nil {
		return domain.OutcomeReject, "visa required but not presented", nil
	}
	if !ValidDate(rec.Visa.Date) || !ValidVisaCode(rec.Visa.Code) {
		return domain.OutcomeReject, "visa format is invalid", nil
	}

	issued, err := ParseDate(rec.Visa.Date)
	if err != nil {
		return domain.OutcomeReject, "visa date is unparseable", nil
	}
	if !WithinValidityWindow(issued, today, DefaultVisaValidityYears) {
		return domain.OutcomeReject, "visa is expired", nil
	}

	return domain.OutcomeAccept, "", nil
}

// CheckReturningCitizen accepts citizens of the home nation returning home.
// It contributes nothing for anyone else; it is never the source of a reject.
func CheckReturningCitizen(rec *domain.EntryRecord) (domain.Outcome, string) {
	if strings.EqualFold(rec.EntryReason, "returning") &&
		strings.EqualFold(rec.Home.Country, domain.HomeCountryCode) {
		return domain.OutcomeAccept, "returning citizen"
	}
	return domain.OutcomeNone, ""
}

// Engine runs the built-in rules over reloadable reference data.
type Engine struct {
	mu        sync.RWMutex
	watchlist []domain.WatchlistEntry
	policies  domain.PolicyTable
	clock     func() time.Time
}

// NewEngine creates a rule engine. clock supplies "today" for visa expiry and
// defaults to time.Now; tests inject a fixed clock.
func NewEngine(clock func() time.Time) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		policies: make(domain.PolicyTable),
		clock:    clock,
	}
}

// LoadWatchlist replaces the engine's watchlist (hot reload).
func (e *Engine) LoadWatchlist(entries []domain.WatchlistEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.watchlist = entries
}

// LoadPolicies replaces the engine's country policy table (hot reload).
func (e *Engine) LoadPolicies(table domain.PolicyTable) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if table == nil {
		table = make(domain.PolicyTable)
	}
	e.policies = table
}

// WatchlistSize returns the number of loaded watchlist entries.
func (e *Engine) WatchlistSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.watchlist)
}

// PolicyCount returns the number of loaded country policies.
func (e *Engine) PolicyCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.policies)
}

// EvaluateAll runs every built-in rule against the record and returns one
// result per rule. An UnknownCountryError from a lookup aborts the evaluation;
// it must reach the caller rather than be folded into a label.
func (e *Engine) EvaluateAll(ctx context.Context, rec *domain.EntryRecord) ([]domain.RuleResult, error) {
	e.mu.RLock()
	watchlist := e.watchlist
	policies := e.policies
	e.mu.RUnlock()

	today := e.clock().UTC()
	results := make([]domain.RuleResult, 0, 6)

	run := func(rule string, fn func() (domain.Outcome, string, error)) error {
		start := time.Now()
		outcome, reason, err := fn()
		if err != nil {
			return fmt.Errorf("rule %s: %w", rule, err)
		}
		results = append(results, domain.RuleResult{
			Rule:      rule,
			Outcome:   outcome,
			Reason:    reason,
			ProcessMs: time.Since(start).Milliseconds(),
		})
		return nil
	}

	steps := []struct {
		rule string
		fn   func() (domain.Outcome, string, error)
	}{
		{domain.RuleCompleteness, func() (domain.Outcome, string, error) {
			o, r := CheckCompleteness(rec)
			return o, r, nil
		}},
		{domain.RuleValidity, func() (domain.Outcome, string, error) {
			o, r := CheckValidity(rec)
			return o, r, nil
		}},
		{domain.RuleWatchlist, func() (domain.Outcome, string, error) {
			o, r := CheckWatchlist(rec, watchlist)
			return o, r, nil
		}},
		{domain.RuleQuarantine, func() (domain.Outcome, string, error) {
			return CheckQuarantine(rec, policies)
		}},
		{domain.RuleVisa, func() (domain.Outcome, string, error) {
			return CheckVisa(rec, policies, today)
		}},
		{domain.RuleReturningCitizen, func() (domain.Outcome, string, error) {
			o, r := CheckReturningCitizen(rec)
			return o, r, nil
		}},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := run(step.rule, step.fn); err != nil {
			return nil, err
		}
	}

	return results, nil
}
