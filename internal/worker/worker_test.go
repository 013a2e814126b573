package worker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/kanadia-gov/kestrel/internal/bus"
	"github.com/kanadia-gov/kestrel/internal/domain"
	"github.com/kanadia-gov/kestrel/internal/resolver"
	"github.com/kanadia-gov/kestrel/internal/rules"
	"github.com/kanadia-gov/kestrel/internal/screening"
)

var testToday = time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)

func newTestScreening(t *testing.T) *screening.Service {
	t.Helper()

	engine := rules.NewEngine(func() time.Time { return testToday })
	engine.LoadPolicies(domain.PolicyTable{
		"KAN": {Code: "KAN"},
		"ALB": {Code: "ALB"},
		"ZIK": {Code: "ZIK", MedicalAdvisory: "measles outbreak"},
	})
	engine.LoadWatchlist(nil)

	directives, err := rules.NewDirectiveEngine(4)
	if err != nil {
		t.Fatalf("failed to create directive engine: %v", err)
	}

	return screening.NewService(engine, directives, resolver.NewProcessor())
}

func visitor() domain.EntryRecord {
	return domain.EntryRecord{
		FirstName:   "Anya",
		LastName:    "Strand",
		BirthDate:   "1986-03-12",
		Passport:    "WXYZ1-ABCD2-EFGH3-IJKL4-MNOP5",
		Home:        domain.Location{City: "Thornhead", Region: "Westmark", Country: "ALB"},
		From:        domain.Location{City: "Rivergate", Region: "Eastfold", Country: "ALB"},
		EntryReason: "visit",
	}
}

// decisionCollector subscribes to a topic and gathers published decisions.
type decisionCollector struct {
	mu        sync.Mutex
	decisions []*domain.Decision
}

func (c *decisionCollector) handle(ctx context.Context, msg *domain.Message) error {
	var decision domain.Decision
	if err := json.Unmarshal(msg.Payload, &decision); err != nil {
		return err
	}
	c.mu.Lock()
	c.decisions = append(c.decisions, &decision)
	c.mu.Unlock()
	return nil
}

func (c *decisionCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.decisions)
}

func (c *decisionCollector) first() *domain.Decision {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.decisions) == 0 {
		return nil
	}
	return c.decisions[0]
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestWorkerProcessesEntry(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()
	ctx := context.Background()

	decisions := &decisionCollector{}
	if _, err := eventBus.Subscribe(ctx, "cp-001", domain.TopicDecision, decisions.handle); err != nil {
		t.Fatalf("failed to subscribe: %v", err)
	}

	w := NewWorker(eventBus, nil, newTestScreening(t))
	if err := w.Start(Config{CheckpointIDs: []string{"cp-001"}, WorkerCount: 1}); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}
	defer w.Stop()

	payload, _ := json.Marshal(EntryMessage{
		EntryID:      "entry-001",
		CheckpointID: "cp-001",
		TraceID:      "trace-001",
		Record:       visitor(),
	})
	if err := eventBus.Publish(ctx, "cp-001", domain.TopicEntryReceived, payload); err != nil {
		t.Fatalf("failed to publish: %v", err)
	}

	waitFor(t, func() bool { return decisions.count() == 1 }, "decision was not published")

	decision := decisions.first()
	if decision.Outcome != domain.OutcomeAccept {
		t.Errorf("expected Accept, got %s", decision.Outcome)
	}
	if decision.EntryID != "entry-001" {
		t.Errorf("expected entry-001, got %s", decision.EntryID)
	}
	if decision.Metadata.TraceID != "trace-001" {
		t.Errorf("expected trace-001, got %s", decision.Metadata.TraceID)
	}
}

func TestWorkerQuarantineAlert(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()
	ctx := context.Background()

	decisions := &decisionCollector{}
	alerts := &decisionCollector{}
	eventBus.Subscribe(ctx, "cp-001", domain.TopicDecision, decisions.handle)
	eventBus.Subscribe(ctx, "cp-001", domain.TopicQuarantineAlert, alerts.handle)

	w := NewWorker(eventBus, nil, newTestScreening(t))
	if err := w.Start(Config{CheckpointIDs: []string{"cp-001"}}); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}
	defer w.Stop()

	rec := visitor()
	rec.Via = &domain.Location{City: "Port Hale", Region: "Coast", Country: "ZIK"}
	payload, _ := json.Marshal(EntryMessage{
		EntryID:      "entry-002",
		CheckpointID: "cp-001",
		Record:       rec,
	})
	if err := eventBus.Publish(ctx, "cp-001", domain.TopicEntryReceived, payload); err != nil {
		t.Fatalf("failed to publish: %v", err)
	}

	waitFor(t, func() bool { return alerts.count() == 1 }, "quarantine alert was not published")

	alert := alerts.first()
	if alert.Outcome != domain.OutcomeQuarantine {
		t.Errorf("expected Quarantine, got %s", alert.Outcome)
	}
	if decisions.count() != 1 {
		t.Errorf("expected decision event alongside the alert, got %d", decisions.count())
	}
}

func TestWorkerStop(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()
	ctx := context.Background()

	decisions := &decisionCollector{}
	eventBus.Subscribe(ctx, "cp-001", domain.TopicDecision, decisions.handle)

	w := NewWorker(eventBus, nil, newTestScreening(t))
	if err := w.Start(Config{CheckpointIDs: []string{"cp-001"}}); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}

	stats := w.GetStats()
	if stats.SubscriptionCount != 1 {
		t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("failed to stop worker: %v", err)
	}
	if w.GetStats().SubscriptionCount != 0 {
		t.Error("expected no subscriptions after stop")
	}

	payload, _ := json.Marshal(EntryMessage{
		EntryID:      "entry-003",
		CheckpointID: "cp-001",
		Record:       visitor(),
	})
	eventBus.Publish(ctx, "cp-001", domain.TopicEntryReceived, payload)

	time.Sleep(50 * time.Millisecond)
	if decisions.count() != 0 {
		t.Errorf("expected no decisions after stop, got %d", decisions.count())
	}
}

func TestWorkerGlobalSubscription(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	w := NewWorker(eventBus, nil, newTestScreening(t))
	if err := w.Start(Config{}); err != nil {
		t.Fatalf("failed to start global worker: %v", err)
	}
	defer w.Stop()

	stats := w.GetStats()
	if stats.SubscriptionCount != 1 {
		t.Errorf("expected 1 global subscription, got %d", stats.SubscriptionCount)
	}
	if stats.Topics[0] != domain.TopicEntryReceived {
		t.Errorf("expected topic %q, got %q", domain.TopicEntryReceived, stats.Topics[0])
	}
}
