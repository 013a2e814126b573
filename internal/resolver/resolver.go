// Package resolver folds rule outcomes into the single final decision per
// fixed priority: Quarantine > Reject > Secondary > Accept.
package resolver

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kanadia-gov/kestrel/internal/domain"
)

// EngineVersion identifies the decision engine in stored metadata.
const EngineVersion = "kestrel-1.0"

// Resolve returns the highest-priority outcome present. NoDecision entries
// never influence the result and never trigger a fallback: if nothing
// decisive remains, Resolve returns ErrNoDecision so the gap stays visible.
// The fold is order-independent; permuting outcomes cannot change the label.
func Resolve(outcomes []domain.Outcome) (domain.Outcome, error) {
	var quarantine, reject, secondary, accept bool

	for _, o := range outcomes {
		switch o {
		case domain.OutcomeQuarantine:
			quarantine = true
		case domain.OutcomeReject:
			reject = true
		case domain.OutcomeSecondary:
			secondary = true
		case domain.OutcomeAccept:
			accept = true
		}
	}

	switch {
	case quarantine:
		return domain.OutcomeQuarantine, nil
	case reject:
		return domain.OutcomeReject, nil
	case secondary:
		return domain.OutcomeSecondary, nil
	case accept:
		return domain.OutcomeAccept, nil
	}

	return domain.OutcomeNone, domain.ErrNoDecision
}

// Processor turns one record's rule and directive results into a Decision
// ready for persistence and publication.
type Processor struct{}

// NewProcessor creates a decision processor.
func NewProcessor() *Processor {
	return &Processor{}
}

// DecisionInput contains all data needed to finalize one decision.
type DecisionInput struct {
	CheckpointID     string
	EntryID          string
	TraceID          string
	RuleResults      []domain.RuleResult
	DirectiveResults []domain.RuleResult
	StartTime        time.Time
}

// Process resolves the combined results into a final decision.
func (p *Processor) Process(ctx context.Context, input *DecisionInput) (*domain.Decision, error) {
	start := time.Now()

	combined := make([]domain.RuleResult, 0, len(input.RuleResults)+len(input.DirectiveResults))
	combined = append(combined, input.RuleResults...)
	combined = append(combined, input.DirectiveResults...)

	outcomes := make([]domain.Outcome, len(combined))
	for i, r := range combined {
		outcomes[i] = r.Outcome
	}

	final, err := Resolve(outcomes)
	if err != nil {
		return nil, err
	}

	resolveMs := time.Since(start).Milliseconds()
	totalMs := time.Since(input.StartTime).Milliseconds()

	return &domain.Decision{
		ID:           uuid.New().String(),
		CheckpointID: input.CheckpointID,
		EntryID:      input.EntryID,
		Outcome:      final,
		Timestamp:    time.Now().UTC(),
		RuleResults:  combined,
		Metadata: domain.DecisionMetadata{
			TraceID:             input.TraceID,
			RulesEvaluated:      len(input.RuleResults),
			DirectivesEvaluated: len(input.DirectiveResults),
			ResolveMs:           resolveMs,
			TotalMs:             totalMs,
			EngineVersion:       EngineVersion,
		},
	}, nil
}
