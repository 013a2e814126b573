// Package worker provides async entry processing for cluster deployments.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/kanadia-gov/kestrel/internal/domain"
	"github.com/kanadia-gov/kestrel/internal/screening"
)

// Worker screens entry records asynchronously from the EventBus.
type Worker struct {
	bus       domain.EventBus
	repo      domain.Repository
	screening *screening.Service

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// CheckpointIDs is the list of checkpoints to process
	// (empty = global subscription for testing/dev)
	CheckpointIDs []string

	// WorkerCount is the number of concurrent workers per checkpoint
	WorkerCount int
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, svc *screening.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		repo:      repo,
		screening: svc,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins processing messages for the given checkpoints.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.CheckpointIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, checkpointID := range cfg.CheckpointIDs {
		if err := w.startCheckpointWorker(checkpointID); err != nil {
			slog.Error("failed to start worker for checkpoint",
				"checkpoint_id", checkpointID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"checkpoint_count", len(cfg.CheckpointIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all checkpoints (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicEntryReceived, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startCheckpointWorker starts workers for a specific checkpoint.
func (w *Worker) startCheckpointWorker(checkpointID string) error {
	sub, err := w.bus.Subscribe(w.ctx, checkpointID, domain.TopicEntryReceived, func(ctx context.Context, msg *domain.Message) error {
		return w.processEntry(ctx, checkpointID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("checkpoint worker started",
		"checkpoint_id", checkpointID,
		"topic", domain.TopicEntryReceived,
	)

	return nil
}

// handleMessage handles messages from the global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processEntry(ctx, msg.CheckpointID, msg)
}

// EntryMessage is the message payload for async entry screening.
type EntryMessage struct {
	EntryID      string             `json:"entryId"`
	CheckpointID string             `json:"checkpointId"`
	TraceID      string             `json:"traceId"`
	Record       domain.EntryRecord `json:"record"`
}

// processEntry screens one entry record through the pipeline.
func (w *Worker) processEntry(ctx context.Context, checkpointID string, msg *domain.Message) error {
	start := time.Now()

	var entryMsg EntryMessage
	if err := json.Unmarshal(msg.Payload, &entryMsg); err != nil {
		slog.Error("failed to parse entry message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message checkpoint if provided
	if entryMsg.CheckpointID != "" {
		checkpointID = entryMsg.CheckpointID
	}

	traceID := entryMsg.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	slog.Debug("processing entry",
		"entry_id", entryMsg.EntryID,
		"checkpoint_id", checkpointID,
		"trace_id", traceID,
	)

	decision, err := w.screening.Screen(ctx, &screening.ScreenInput{
		CheckpointID: checkpointID,
		EntryID:      entryMsg.EntryID,
		TraceID:      traceID,
		Record:       &entryMsg.Record,
		StartTime:    start,
	})
	if err != nil {
		slog.Error("screening failed",
			"entry_id", entryMsg.EntryID,
			"error", err,
		)
		return err
	}

	if w.repo != nil {
		if err := w.repo.SaveDecision(ctx, checkpointID, decision); err != nil {
			slog.Error("failed to save decision",
				"entry_id", entryMsg.EntryID,
				"error", err,
			)
		}
	}

	resultPayload, _ := json.Marshal(decision)
	if err := w.bus.Publish(ctx, checkpointID, domain.TopicDecision, resultPayload); err != nil {
		slog.Error("failed to publish decision",
			"entry_id", entryMsg.EntryID,
			"error", err,
		)
	}

	if decision.Outcome == domain.OutcomeQuarantine {
		if err := w.bus.Publish(ctx, checkpointID, domain.TopicQuarantineAlert, resultPayload); err != nil {
			slog.Error("failed to publish quarantine alert",
				"entry_id", entryMsg.EntryID,
				"error", err,
			)
		}
	}

	slog.Info("entry processed",
		"entry_id", entryMsg.EntryID,
		"checkpoint_id", checkpointID,
		"outcome", decision.Outcome,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
