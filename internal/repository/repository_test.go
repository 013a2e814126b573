package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kanadia-gov/kestrel/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "kestrel-test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func TestEntryRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	entry := &domain.EntryCase{
		ID:           "entry-001",
		CheckpointID: "cp-001",
		Record: domain.EntryRecord{
			FirstName:   "Anya",
			LastName:    "Strand",
			BirthDate:   "1986-03-12",
			Passport:    "WXYZ1-ABCD2-EFGH3-IJKL4-MNOP5",
			Home:        domain.Location{City: "Thornhead", Region: "Westmark", Country: "ALB"},
			From:        domain.Location{City: "Rivergate", Region: "Eastfold", Country: "ALB"},
			EntryReason: "visit",
			Visa:        &domain.VisaInfo{Date: "2024-01-01", Code: "AB123-CD456"},
		},
		ReceivedAt: time.Now().UTC(),
	}

	if err := repo.SaveEntry(ctx, "cp-001", entry); err != nil {
		t.Fatalf("failed to save entry: %v", err)
	}

	got, err := repo.GetEntry(ctx, "cp-001", "entry-001")
	if err != nil {
		t.Fatalf("failed to get entry: %v", err)
	}
	if got.Record.Passport != entry.Record.Passport {
		t.Errorf("expected passport %q, got %q", entry.Record.Passport, got.Record.Passport)
	}
	if got.Record.Visa == nil || got.Record.Visa.Code != "AB123-CD456" {
		t.Errorf("visa did not survive round trip: %+v", got.Record.Visa)
	}

	t.Run("CheckpointIsolation", func(t *testing.T) {
		if _, err := repo.GetEntry(ctx, "cp-other", "entry-001"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound across checkpoints, got %v", err)
		}
	})

	t.Run("MissingEntry", func(t *testing.T) {
		if _, err := repo.GetEntry(ctx, "cp-001", "nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("EmptyCheckpointRejected", func(t *testing.T) {
		if err := repo.SaveEntry(ctx, "", entry); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestDecisionRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	decision := &domain.Decision{
		ID:           "dec-001",
		CheckpointID: "cp-001",
		EntryID:      "entry-001",
		Outcome:      domain.OutcomeSecondary,
		Timestamp:    time.Now().UTC(),
		RuleResults: []domain.RuleResult{
			{Rule: domain.RuleWatchlist, Outcome: domain.OutcomeSecondary, Reason: "traveller matches a watchlist entry"},
			{Rule: domain.RuleCompleteness, Outcome: domain.OutcomeAccept},
		},
		Metadata: domain.DecisionMetadata{
			TraceID:        "trace-001",
			RulesEvaluated: 6,
			EngineVersion:  "kestrel-1.0",
		},
	}

	if err := repo.SaveDecision(ctx, "cp-001", decision); err != nil {
		t.Fatalf("failed to save decision: %v", err)
	}

	t.Run("GetByID", func(t *testing.T) {
		got, err := repo.GetDecision(ctx, "cp-001", "dec-001")
		if err != nil {
			t.Fatalf("failed to get decision: %v", err)
		}
		if got.Outcome != domain.OutcomeSecondary {
			t.Errorf("expected Secondary, got %s", got.Outcome)
		}
		if len(got.RuleResults) != 2 {
			t.Errorf("expected 2 rule results, got %d", len(got.RuleResults))
		}
		if got.Metadata.TraceID != "trace-001" {
			t.Errorf("expected trace ID to survive, got %q", got.Metadata.TraceID)
		}
	})

	t.Run("GetByEntry", func(t *testing.T) {
		got, err := repo.GetDecisionByEntry(ctx, "cp-001", "entry-001")
		if err != nil {
			t.Fatalf("failed to get decision by entry: %v", err)
		}
		if got.ID != "dec-001" {
			t.Errorf("expected dec-001, got %s", got.ID)
		}
	})

	t.Run("LatestWins", func(t *testing.T) {
		later := *decision
		later.ID = "dec-002"
		later.Outcome = domain.OutcomeAccept
		later.Timestamp = decision.Timestamp.Add(time.Minute)

		if err := repo.SaveDecision(ctx, "cp-001", &later); err != nil {
			t.Fatalf("failed to save second decision: %v", err)
		}

		got, err := repo.GetDecisionByEntry(ctx, "cp-001", "entry-001")
		if err != nil {
			t.Fatalf("failed to get decision by entry: %v", err)
		}
		if got.ID != "dec-002" {
			t.Errorf("expected latest decision dec-002, got %s", got.ID)
		}
	})
}

func TestWatchlistCRUD(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	entry := &domain.WatchlistEntry{
		FirstName: "Boris",
		LastName:  "Kempt",
		Passport:  "AAAAA-BBBBB-CCCCC-DDDDD-EEEEE",
	}

	if err := repo.UpsertWatchlistEntry(ctx, "cp-001", entry); err != nil {
		t.Fatalf("failed to upsert watchlist entry: %v", err)
	}

	t.Run("List", func(t *testing.T) {
		entries, err := repo.ListWatchlist(ctx, "cp-001")
		if err != nil {
			t.Fatalf("failed to list watchlist: %v", err)
		}
		if len(entries) != 1 || entries[0].LastName != "Kempt" {
			t.Errorf("unexpected watchlist: %+v", entries)
		}
	})

	t.Run("UpsertReplacesByPassport", func(t *testing.T) {
		updated := *entry
		updated.FirstName = "Boriz"
		if err := repo.UpsertWatchlistEntry(ctx, "cp-001", &updated); err != nil {
			t.Fatalf("failed to upsert: %v", err)
		}

		entries, err := repo.ListWatchlist(ctx, "cp-001")
		if err != nil {
			t.Fatalf("failed to list watchlist: %v", err)
		}
		if len(entries) != 1 {
			t.Fatalf("expected 1 entry after upsert, got %d", len(entries))
		}
		if entries[0].FirstName != "Boriz" {
			t.Errorf("expected updated first name, got %q", entries[0].FirstName)
		}
	})

	t.Run("MissingPassportRejected", func(t *testing.T) {
		err := repo.UpsertWatchlistEntry(ctx, "cp-001", &domain.WatchlistEntry{FirstName: "No", LastName: "Passport"})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := repo.DeleteWatchlistEntry(ctx, "cp-001", entry.Passport); err != nil {
			t.Fatalf("failed to delete: %v", err)
		}
		if err := repo.DeleteWatchlistEntry(ctx, "cp-001", entry.Passport); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}
	})
}

func TestCountryPolicyCRUD(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	policies := []domain.CountryPolicy{
		{Code: "GOR", TransitVisaRequired: true, VisitorVisaRequired: true},
		{Code: "ZIK", MedicalAdvisory: "measles outbreak"},
		{Code: "ALB"},
	}
	for i := range policies {
		if err := repo.UpsertCountryPolicy(ctx, "cp-001", &policies[i]); err != nil {
			t.Fatalf("failed to upsert policy %s: %v", policies[i].Code, err)
		}
	}

	t.Run("Get", func(t *testing.T) {
		p, err := repo.GetCountryPolicy(ctx, "cp-001", "GOR")
		if err != nil {
			t.Fatalf("failed to get policy: %v", err)
		}
		if !p.TransitVisaRequired.Bool() || !p.VisitorVisaRequired.Bool() {
			t.Errorf("flags did not survive round trip: %+v", p)
		}
	})

	t.Run("ListAsTable", func(t *testing.T) {
		table, err := repo.ListCountryPolicies(ctx, "cp-001")
		if err != nil {
			t.Fatalf("failed to list policies: %v", err)
		}
		if len(table) != 3 {
			t.Fatalf("expected 3 policies, got %d", len(table))
		}
		if table["ZIK"].MedicalAdvisory != "measles outbreak" {
			t.Errorf("advisory did not survive: %+v", table["ZIK"])
		}
		if _, ok := table["XXX"]; ok {
			t.Error("unexpected policy in table")
		}
	})

	t.Run("UpsertUpdates", func(t *testing.T) {
		updated := domain.CountryPolicy{Code: "ALB", MedicalAdvisory: "cholera alert"}
		if err := repo.UpsertCountryPolicy(ctx, "cp-001", &updated); err != nil {
			t.Fatalf("failed to update policy: %v", err)
		}

		p, err := repo.GetCountryPolicy(ctx, "cp-001", "ALB")
		if err != nil {
			t.Fatalf("failed to get policy: %v", err)
		}
		if p.MedicalAdvisory != "cholera alert" {
			t.Errorf("expected updated advisory, got %q", p.MedicalAdvisory)
		}
	})

	t.Run("MissingCodeRejected", func(t *testing.T) {
		err := repo.UpsertCountryPolicy(ctx, "cp-001", &domain.CountryPolicy{})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestDirectiveCRUD(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	directive := &domain.Directive{
		ID:         "d-via-zik",
		Name:       "Quarantine via ZIK",
		Version:    "1.0.0",
		Expression: `has_via && via_country == "ZIK"`,
		Outcome:    domain.OutcomeQuarantine,
		Enabled:    true,
	}

	if err := repo.SaveDirective(ctx, "cp-001", directive); err != nil {
		t.Fatalf("failed to save directive: %v", err)
	}

	t.Run("Get", func(t *testing.T) {
		got, err := repo.GetDirective(ctx, "cp-001", "d-via-zik")
		if err != nil {
			t.Fatalf("failed to get directive: %v", err)
		}
		if got.Outcome != domain.OutcomeQuarantine {
			t.Errorf("expected Quarantine outcome, got %s", got.Outcome)
		}
		if !got.Enabled {
			t.Error("expected directive to be enabled")
		}
	})

	t.Run("List", func(t *testing.T) {
		directives, err := repo.ListDirectives(ctx, "cp-001")
		if err != nil {
			t.Fatalf("failed to list directives: %v", err)
		}
		if len(directives) != 1 {
			t.Errorf("expected 1 directive, got %d", len(directives))
		}
	})

	t.Run("SoftDelete", func(t *testing.T) {
		if err := repo.DeleteDirective(ctx, "cp-001", "d-via-zik"); err != nil {
			t.Fatalf("failed to delete directive: %v", err)
		}

		if _, err := repo.GetDirective(ctx, "cp-001", "d-via-zik"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound after soft delete, got %v", err)
		}

		directives, err := repo.ListDirectives(ctx, "cp-001")
		if err != nil {
			t.Fatalf("failed to list directives: %v", err)
		}
		if len(directives) != 0 {
			t.Errorf("expected no active directives, got %d", len(directives))
		}
	})

	t.Run("DeleteMissing", func(t *testing.T) {
		if err := repo.DeleteDirective(ctx, "cp-001", "nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestPing(t *testing.T) {
	repo := newTestRepo(t)
	if err := repo.Ping(context.Background()); err != nil {
		t.Errorf("unexpected ping error: %v", err)
	}
}
