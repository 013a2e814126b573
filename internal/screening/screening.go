// Package screening provides the record-decision core: the pure batch driver
// over the three input collections, and the composed service used by the API
// and the async worker.
package screening

import (
	"context"
	"fmt"
	"time"

	"github.com/kanadia-gov/kestrel/internal/domain"
	"github.com/kanadia-gov/kestrel/internal/resolver"
	"github.com/kanadia-gov/kestrel/internal/rules"
)

// Decide evaluates each entry record against the watchlist and policy table
// and returns one final label per record, in input order. It is a pure
// function of its arguments: inputs are never mutated, each record is
// evaluated independently and exactly once, and repeated calls with the same
// data yield the same labels. today supplies the reference date for visa
// expiry. An UnknownCountryError or an all-NoDecision rule set aborts the
// batch with the record index attached.
func Decide(entries []domain.EntryRecord, watchlist []domain.WatchlistEntry, policies domain.PolicyTable, today time.Time) ([]domain.Outcome, error) {
	outcomes := make([]domain.Outcome, 0, len(entries))

	for i := range entries {
		rec := &entries[i]

		ruleOutcomes := make([]domain.Outcome, 0, 6)

		appendOutcome := func(o domain.Outcome) {
			ruleOutcomes = append(ruleOutcomes, o)
		}

		o, _ := rules.CheckCompleteness(rec)
		appendOutcome(o)

		o, _ = rules.CheckValidity(rec)
		appendOutcome(o)

		o, _ = rules.CheckWatchlist(rec, watchlist)
		appendOutcome(o)

		o, _, err := rules.CheckQuarantine(rec, policies)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		appendOutcome(o)

		o, _, err = rules.CheckVisa(rec, policies, today)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		appendOutcome(o)

		o, _ = rules.CheckReturningCitizen(rec)
		appendOutcome(o)

		final, err := resolver.Resolve(ruleOutcomes)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}

		outcomes = append(outcomes, final)
	}

	return outcomes, nil
}

// Service composes the rule engine, directive engine, and processor into the
// screening pipeline used by the HTTP handlers and the async worker.
type Service struct {
	engine     *rules.Engine
	directives *rules.DirectiveEngine
	processor  *resolver.Processor
}

// NewService creates a screening service. directives may be nil when no
// directive engine is configured.
func NewService(engine *rules.Engine, directives *rules.DirectiveEngine, processor *resolver.Processor) *Service {
	return &Service{
		engine:     engine,
		directives: directives,
		processor:  processor,
	}
}

// ScreenInput identifies one record to screen.
type ScreenInput struct {
	CheckpointID string
	EntryID      string
	TraceID      string
	Record       *domain.EntryRecord
	StartTime    time.Time
}

// Screen evaluates one record through rules, directives, and resolution.
func (s *Service) Screen(ctx context.Context, input *ScreenInput) (*domain.Decision, error) {
	ruleResults, err := s.engine.EvaluateAll(ctx, input.Record)
	if err != nil {
		return nil, err
	}

	var directiveResults []domain.RuleResult
	if s.directives != nil && s.directives.Count() > 0 {
		directiveResults = s.directives.EvaluateAll(ctx, input.Record)
	}

	start := input.StartTime
	if start.IsZero() {
		start = time.Now()
	}

	return s.processor.Process(ctx, &resolver.DecisionInput{
		CheckpointID:     input.CheckpointID,
		EntryID:          input.EntryID,
		TraceID:          input.TraceID,
		RuleResults:      ruleResults,
		DirectiveResults: directiveResults,
		StartTime:        start,
	})
}
