package refdata

import (
	"context"
	"testing"

	"github.com/kanadia-gov/kestrel/internal/cache"
	"github.com/kanadia-gov/kestrel/internal/domain"
)

// fakeRepo stubs the repository methods the reference-data service touches.
type fakeRepo struct {
	domain.Repository

	policies    domain.PolicyTable
	watchlist   []domain.WatchlistEntry
	policyLoads int
}

func (f *fakeRepo) ListCountryPolicies(ctx context.Context, checkpointID string) (domain.PolicyTable, error) {
	f.policyLoads++
	return f.policies, nil
}

func (f *fakeRepo) ListWatchlist(ctx context.Context, checkpointID string) ([]domain.WatchlistEntry, error) {
	return f.watchlist, nil
}

func TestServicePolicyTable(t *testing.T) {
	ctx := context.Background()
	repo := &fakeRepo{
		policies: domain.PolicyTable{
			"ALB": {MedicalAdvisory: ""},
			"ZIK": {MedicalAdvisory: "measles outbreak"},
		},
	}
	svc := NewService(repo, cache.NewLRUCache(100))

	t.Run("LoadsFromRepository", func(t *testing.T) {
		table, err := svc.PolicyTable(ctx, "cp-001")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(table) != 2 {
			t.Errorf("expected 2 policies, got %d", len(table))
		}
		if repo.policyLoads != 1 {
			t.Errorf("expected 1 repository load, got %d", repo.policyLoads)
		}
	})

	t.Run("SecondLoadHitsCache", func(t *testing.T) {
		if _, err := svc.PolicyTable(ctx, "cp-001"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if repo.policyLoads != 1 {
			t.Errorf("expected cached load, repository hit %d times", repo.policyLoads)
		}
	})

	t.Run("CheckpointIsolation", func(t *testing.T) {
		if _, err := svc.PolicyTable(ctx, "cp-002"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if repo.policyLoads != 2 {
			t.Errorf("expected a fresh load for another checkpoint, got %d loads", repo.policyLoads)
		}
	})

	t.Run("InvalidateForcesReload", func(t *testing.T) {
		if err := svc.Invalidate(ctx, "cp-001"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := svc.PolicyTable(ctx, "cp-001"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if repo.policyLoads != 3 {
			t.Errorf("expected reload after invalidation, got %d loads", repo.policyLoads)
		}
	})

	t.Run("EmptyCheckpointRejected", func(t *testing.T) {
		if _, err := svc.PolicyTable(ctx, ""); err == nil {
			t.Error("expected error for empty checkpoint ID")
		}
	})
}

func TestServiceWatchlist(t *testing.T) {
	ctx := context.Background()
	repo := &fakeRepo{
		watchlist: []domain.WatchlistEntry{
			{FirstName: "Boris", LastName: "Kempt", Passport: "AAAAA-BBBBB-CCCCC-DDDDD-EEEEE"},
		},
	}
	svc := NewService(repo, nil)

	entries, err := svc.Watchlist(ctx, "cp-001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 watchlist entry, got %d", len(entries))
	}

	if _, err := svc.Watchlist(ctx, ""); err == nil {
		t.Error("expected error for empty checkpoint ID")
	}
}
