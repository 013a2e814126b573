package domain

import (
	"errors"
	"fmt"
)

// ErrNoDecision is returned by the resolver when every rule contributed
// NoDecision. The resolver never fabricates a default label; callers must
// treat this as a fault in the rule set, not as an outcome.
var ErrNoDecision = errors.New("no rule produced a decision")

// ErrSourceUnavailable is reported by dataset loaders when one of the three
// input collections cannot be obtained. The core never sees a partial load.
var ErrSourceUnavailable = errors.New("input source unavailable")

// UnknownCountryError signals a country code absent from the policy table.
// This is a reference-data integrity fault: it propagates out of batch
// evaluation instead of being coerced to an Accept or Reject.
type UnknownCountryError struct {
	Code string
}

func (e *UnknownCountryError) Error() string {
	return fmt.Sprintf("country %q not present in policy table", e.Code)
}
