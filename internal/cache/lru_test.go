package cache

import (
	"context"
	"testing"
	"time"

	"github.com/kanadia-gov/kestrel/internal/domain"
)

func TestLRUCacheGetSet(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()

	t.Run("RoundTrip", func(t *testing.T) {
		if err := cache.Set(ctx, "cp-001", "key1", []byte("value1"), time.Minute); err != nil {
			t.Fatalf("failed to set: %v", err)
		}

		val, err := cache.Get(ctx, "cp-001", "key1")
		if err != nil {
			t.Fatalf("failed to get: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("expected value1, got %s", val)
		}
	})

	t.Run("MissReturnsNil", func(t *testing.T) {
		val, err := cache.Get(ctx, "cp-001", "absent")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil on miss, got %s", val)
		}
	})

	t.Run("CheckpointIsolation", func(t *testing.T) {
		val, err := cache.Get(ctx, "cp-other", "key1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if val != nil {
			t.Error("value leaked across checkpoints")
		}
	})

	t.Run("EmptyCheckpointRejected", func(t *testing.T) {
		if _, err := cache.Get(ctx, "", "key1"); err == nil {
			t.Error("expected error for empty checkpoint ID")
		}
		if err := cache.Set(ctx, "", "key1", []byte("x"), time.Minute); err == nil {
			t.Error("expected error for empty checkpoint ID")
		}
	})

	t.Run("Expiry", func(t *testing.T) {
		if err := cache.Set(ctx, "cp-001", "transient", []byte("x"), -time.Second); err != nil {
			t.Fatalf("failed to set: %v", err)
		}
		val, err := cache.Get(ctx, "cp-001", "transient")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if val != nil {
			t.Error("expected expired entry to miss")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := cache.Set(ctx, "cp-001", "doomed", []byte("x"), time.Minute); err != nil {
			t.Fatalf("failed to set: %v", err)
		}
		if err := cache.Delete(ctx, "cp-001", "doomed"); err != nil {
			t.Fatalf("failed to delete: %v", err)
		}
		val, _ := cache.Get(ctx, "cp-001", "doomed")
		if val != nil {
			t.Error("expected deleted entry to miss")
		}
	})
}

func TestLRUCacheEviction(t *testing.T) {
	cache := NewLRUCache(3)
	ctx := context.Background()

	keys := []string{"a", "b", "c"}
	for _, k := range keys {
		if err := cache.Set(ctx, "cp-001", k, []byte(k), time.Minute); err != nil {
			t.Fatalf("failed to set %s: %v", k, err)
		}
	}

	// Touch "a" so "b" becomes the oldest.
	if _, err := cache.Get(ctx, "cp-001", "a"); err != nil {
		t.Fatalf("failed to get: %v", err)
	}

	if err := cache.Set(ctx, "cp-001", "d", []byte("d"), time.Minute); err != nil {
		t.Fatalf("failed to set d: %v", err)
	}

	if val, _ := cache.Get(ctx, "cp-001", "b"); val != nil {
		t.Error("expected least recently used entry to be evicted")
	}
	if val, _ := cache.Get(ctx, "cp-001", "a"); val == nil {
		t.Error("expected recently used entry to survive")
	}

	size, capacity := cache.Stats()
	if size != 3 || capacity != 3 {
		t.Errorf("expected size 3 of capacity 3, got %d of %d", size, capacity)
	}
}

func TestLRUCachePolicyTable(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()

	table := domain.PolicyTable{
		"GOR": {Code: "GOR", TransitVisaRequired: true, VisitorVisaRequired: true},
		"ZIK": {Code: "ZIK", MedicalAdvisory: "measles outbreak"},
	}

	if err := cache.SetPolicyTable(ctx, "cp-001", table, time.Minute); err != nil {
		t.Fatalf("failed to set policy table: %v", err)
	}

	got, err := cache.GetPolicyTable(ctx, "cp-001")
	if err != nil {
		t.Fatalf("failed to get policy table: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 policies, got %d", len(got))
	}
	if !got["GOR"].TransitVisaRequired.Bool() {
		t.Error("transit flag did not survive the cache round trip")
	}
	if got["ZIK"].MedicalAdvisory != "measles outbreak" {
		t.Error("advisory did not survive the cache round trip")
	}

	t.Run("MissReturnsNil", func(t *testing.T) {
		got, err := cache.GetPolicyTable(ctx, "cp-other")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != nil {
			t.Error("expected nil table on miss")
		}
	})
}

func TestLRUCacheCounters(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()

	t.Run("Increments", func(t *testing.T) {
		for want := int64(1); want <= 3; want++ {
			got, err := cache.IncrementCounter(ctx, "cp-001", "screened", time.Minute)
			if err != nil {
				t.Fatalf("failed to increment: %v", err)
			}
			if got != want {
				t.Errorf("expected %d, got %d", want, got)
			}
		}
	})

	t.Run("CheckpointIsolation", func(t *testing.T) {
		got, err := cache.IncrementCounter(ctx, "cp-other", "screened", time.Minute)
		if err != nil {
			t.Fatalf("failed to increment: %v", err)
		}
		if got != 1 {
			t.Errorf("expected fresh counter for another checkpoint, got %d", got)
		}
	})

	t.Run("WindowReset", func(t *testing.T) {
		if _, err := cache.IncrementCounter(ctx, "cp-001", "window", -time.Second); err != nil {
			t.Fatalf("failed to increment: %v", err)
		}
		got, err := cache.IncrementCounter(ctx, "cp-001", "window", time.Minute)
		if err != nil {
			t.Fatalf("failed to increment: %v", err)
		}
		if got != 1 {
			t.Errorf("expected counter to reset after window, got %d", got)
		}
	})
}
