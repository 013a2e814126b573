// Package refdata provides lookups against the screening reference datasets:
// the watchlist and the per-country policy table.
package refdata

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kanadia-gov/kestrel/internal/domain"
)

// OnWatchlist reports whether the given traveller matches a watchlist entry.
// A match is a case-insensitive first+last name pair, or an exact passport
// number. The watchlist is read-only; it is never mutated here.
func OnWatchlist(firstName, lastName, passport string, watchlist []domain.WatchlistEntry) bool {
	for _, entry := range watchlist {
		nameMatch := strings.EqualFold(firstName, entry.FirstName) &&
			strings.EqualFold(lastName, entry.LastName)
		if nameMatch || passport == entry.Passport {
			return true
		}
	}
	return false
}

// HasMedicalAdvisory reports whether the country has an active medical
// advisory (non-empty advisory text). A code absent from the table is a
// reference-data gap, not "no advisory": it returns UnknownCountryError.
func HasMedicalAdvisory(code string, policies domain.PolicyTable) (bool, error) {
	policy, ok := policies[code]
	if !ok {
		return false, &domain.UnknownCountryError{Code: code}
	}
	return policy.MedicalAdvisory != "", nil
}

// VisaRequired reports whether a traveller from the given home country needs
// a visa for the given entry reason. Citizens of the home nation never do.
// The transit flag applies when the reason is "transit" (case-insensitive);
// the visitor flag applies otherwise. Unknown codes return UnknownCountryError.
func VisaRequired(code, entryReason string, policies domain.PolicyTable) (bool, error) {
	if code == domain.HomeCountryCode {
		return false, nil
	}

	policy, ok := policies[code]
	if !ok {
		return false, &domain.UnknownCountryError{Code: code}
	}

	if strings.EqualFold(entryReason, "transit") {
		return policy.TransitVisaRequired.Bool(), nil
	}
	return policy.VisitorVisaRequired.Bool(), nil
}

// Service loads reference data for a checkpoint from the repository, with the
// policy table cached between reloads.
type Service struct {
	repo  domain.Repository
	cache domain.Cache

	// PolicyTTL bounds how long a cached policy snapshot is served.
	PolicyTTL time.Duration
}

// NewService creates a reference-data loader backed by repo and cache.
// cache may be nil, in which case every load hits the repository.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:      repo,
		cache:     cache,
		PolicyTTL: 5 * time.Minute,
	}
}

// PolicyTable returns the country policy table for a checkpoint,
// cache-first with repository fallback.
func (s *Service) PolicyTable(ctx context.Context, checkpointID string) (domain.PolicyTable, error) {
	if checkpointID == "" {
		return nil, fmt.Errorf("checkpointID is required")
	}

	if s.cache != nil {
		table, err := s.cache.GetPolicyTable(ctx, checkpointID)
		if err == nil && table != nil {
			return table, nil
		}
	}

	table, err := s.repo.ListCountryPolicies(ctx, checkpointID)
	if err != nil {
		return nil, fmt.Errorf("failed to load country policies: %w", err)
	}

	if s.cache != nil {
		_ = s.cache.SetPolicyTable(ctx, checkpointID, table, s.PolicyTTL)
	}

	return table, nil
}

// Watchlist returns the watchlist for a checkpoint from the repository.
func (s *Service) Watchlist(ctx context.Context, checkpointID string) ([]domain.WatchlistEntry, error) {
	if checkpointID == "" {
		return nil, fmt.Errorf("checkpointID is required")
	}

	entries, err := s.repo.ListWatchlist(ctx, checkpointID)
	if err != nil {
		return nil, fmt.Errorf("failed to load watchlist: %w", err)
	}
	return entries, nil
}

// Invalidate drops the cached policy snapshot for a checkpoint so the next
// load sees fresh repository state. Used after policy upserts.
func (s *Service) Invalidate(ctx context.Context, checkpointID string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, checkpointID, "refdata:policies")
}

// Snapshot serializes the policy table, for publishing reload events.
func Snapshot(table domain.PolicyTable) ([]byte, error) {
	return json.Marshal(table)
}
