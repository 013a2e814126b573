package domain

import (
	"time"
)

// Outcome is one of the closed set of screening results. The four public
// labels are the only valid final decisions; OutcomeNone is the internal
// sentinel contributed by rules that have nothing to say about a record.
type Outcome string

const (
	OutcomeAccept     Outcome = "Accept"
	OutcomeReject     Outcome = "Reject"
	OutcomeSecondary  Outcome = "Secondary"
	OutcomeQuarantine Outcome = "Quarantine"
	OutcomeNone       Outcome = "NoDecision"
)

// Final reports whether the outcome is a valid final decision label.
func (o Outcome) Final() bool {
	switch o {
	case OutcomeAccept, OutcomeReject, OutcomeSecondary, OutcomeQuarantine:
		return true
	}
	return false
}

// Rule identifiers for the built-in screening rules.
const (
	RuleCompleteness     = "completeness"
	RuleValidity         = "validity"
	RuleWatchlist        = "watchlist"
	RuleQuarantine       = "quarantine"
	RuleVisa             = "visa"
	RuleReturningCitizen = "returning-citizen"
)

// RuleResult is the output of a single rule for a single record.
type RuleResult struct {
	Rule      string  `json:"rule"`
	Outcome   Outcome `json:"outcome"`
	Reason    string  `json:"reason,omitempty"`
	ProcessMs int64   `json:"processMs"`
}

// Decision is the resolved screening result for one entry case.
type Decision struct {
	ID           string    `json:"id"`
	CheckpointID string    `json:"checkpointId"`
	EntryID      string    `json:"entryId"`
	Outcome      Outcome   `json:"outcome"`
	Timestamp    time.Time `json:"timestamp"`

	RuleResults []RuleResult `json:"ruleResults"`

	Metadata DecisionMetadata `json:"metadata"`
}

// DecisionMetadata carries processing information for audit and tracing.
type DecisionMetadata struct {
	TraceID             string `json:"traceId"`
	RulesEvaluated      int    `json:"rulesEvaluated"`
	DirectivesEvaluated int    `json:"directivesEvaluated"`
	ResolveMs           int64  `json:"resolveMs"`
	TotalMs             int64  `json:"totalMs"`
	EngineVersion       string `json:"engineVersion"`
}

// Reasons collects the reasons of every rule that contributed a non-Accept,
// non-NoDecision outcome, for operator-facing responses.
func (d *Decision) Reasons() []string {
	var reasons []string
	for _, r := range d.RuleResults {
		if r.Outcome == OutcomeAccept || r.Outcome == OutcomeNone {
			continue
		}
		if r.Reason != "" {
			reasons = append(reasons, r.Reason)
		}
	}
	return reasons
}

// Directive is an operator-configured screening directive. Its CEL expression
// is evaluated against the entry record; when it holds, the configured outcome
// joins the built-in rule outcomes at resolution.
type Directive struct {
	ID           string  `json:"id"`
	CheckpointID string  `json:"checkpointId"`
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	Version      string  `json:"version"`
	Expression   string  `json:"expression"`
	Outcome      Outcome `json:"outcome"`
	Enabled      bool    `json:"enabled"`
}
