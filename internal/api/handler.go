package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kanadia-gov/kestrel/internal/domain"
	"github.com/kanadia-gov/kestrel/internal/refdata"
	"github.com/kanadia-gov/kestrel/internal/rules"
	"github.com/kanadia-gov/kestrel/internal/screening"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo       domain.Repository
	cache      domain.Cache
	bus        domain.EventBus
	engine     *rules.Engine
	directives *rules.DirectiveEngine
	screening  *screening.Service
	refdata    *refdata.Service
	version    string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, directives *rules.DirectiveEngine, svc *screening.Service, refData *refdata.Service, version string) *Handler {
	return &Handler{
		repo:       repo,
		cache:      cache,
		bus:        bus,
		engine:     engine,
		directives: directives,
		screening:  svc,
		refdata:    refData,
		version:    version,
	}
}

// ScreenResponse is the response for POST /screen.
type ScreenResponse struct {
	DecisionID string         `json:"decisionId"`
	EntryID    string         `json:"entryId"`
	Outcome    domain.Outcome `json:"outcome"`
	Reasons    []string       `json:"reasons,omitempty"`
	Metadata   struct {
		TraceID  string `json:"traceId"`
		IngestMs int64  `json:"ingestMs"`
		TotalMs  int64  `json:"totalMs"`
		Version  string `json:"version"`
	} `json:"metadata"`
}

// Screen handles POST /screen requests. The body is a raw entry record in the
// upstream dataset format. Field-level problems are not rejected here; the
// completeness and validity rules decide what a gap means.
func (h *Handler) Screen(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	checkpointID := GetCheckpointID(ctx)
	traceID := GetTraceID(ctx)

	var rec domain.EntryRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	entryID := uuid.New().String()
	ingestMs := time.Since(start).Milliseconds()

	entry := &domain.EntryCase{
		ID:           entryID,
		CheckpointID: checkpointID,
		Record:       rec,
		ReceivedAt:   time.Now().UTC(),
	}

	if h.repo != nil {
		if err := h.repo.SaveEntry(ctx, checkpointID, entry); err != nil {
			slog.Error("failed to save entry", "error", err)
			// Continue; screening takes priority over persistence.
		}
	}

	decision, err := h.screening.Screen(ctx, &screening.ScreenInput{
		CheckpointID: checkpointID,
		EntryID:      entryID,
		TraceID:      traceID,
		Record:       &rec,
		StartTime:    start,
	})
	if err != nil {
		var unknownCountry *domain.UnknownCountryError
		switch {
		case errors.As(err, &unknownCountry):
			slog.Error("reference data gap during screening",
				"entry_id", entryID,
				"country", unknownCountry.Code,
			)
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"error": err.Error(),
			})
		case errors.Is(err, domain.ErrNoDecision):
			slog.Error("no rule produced a decision", "entry_id", entryID)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "screening produced no decision",
			})
		default:
			slog.Error("screening failed", "entry_id", entryID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "screening failed",
			})
		}
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveDecision(ctx, checkpointID, decision); err != nil {
			slog.Error("failed to save decision", "error", err)
		}
	}

	h.publishDecision(ctx, checkpointID, decision)

	if h.cache != nil {
		n, err := h.cache.IncrementCounter(ctx, checkpointID, "screened:hourly", time.Hour)
		if err != nil {
			slog.Warn("failed to increment screening counter", "error", err)
		} else {
			slog.Info("entry screened",
				"checkpoint_id", checkpointID,
				"entry_id", entryID,
				"outcome", decision.Outcome,
				"hourly_count", n,
			)
		}
	}

	totalMs := time.Since(start).Milliseconds()

	resp := ScreenResponse{
		DecisionID: decision.ID,
		EntryID:    entryID,
		Outcome:    decision.Outcome,
		Reasons:    decision.Reasons(),
	}
	resp.Metadata.TraceID = traceID
	resp.Metadata.IngestMs = ingestMs
	resp.Metadata.TotalMs = totalMs
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// publishDecision emits the decision event, plus a quarantine alert when the
// outcome requires one.
func (h *Handler) publishDecision(ctx context.Context, checkpointID string, decision *domain.Decision) {
	if h.bus == nil {
		return
	}

	payload, err := json.Marshal(decision)
	if err != nil {
		slog.Error("failed to marshal decision event", "error", err)
		return
	}

	if err := h.bus.Publish(ctx, checkpointID, domain.TopicDecision, payload); err != nil {
		slog.Error("failed to publish decision event", "error", err)
	}

	if decision.Outcome == domain.OutcomeQuarantine {
		if err := h.bus.Publish(ctx, checkpointID, domain.TopicQuarantineAlert, payload); err != nil {
			slog.Error("failed to publish quarantine alert", "error", err)
		}
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// GetDecision retrieves a decision by ID.
func (h *Handler) GetDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checkpointID := GetCheckpointID(ctx)
	decisionID := chi.URLParam(r, "id")

	if decisionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "decision id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	decision, err := h.repo.GetDecision(ctx, checkpointID, decisionID)
	if err != nil {
		slog.Error("failed to get decision", "id", decisionID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "decision not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, decision)
}

// GetEntry retrieves an entry case by ID.
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checkpointID := GetCheckpointID(ctx)
	entryID := chi.URLParam(r, "id")

	if entryID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "entry id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	entry, err := h.repo.GetEntry(ctx, checkpointID, entryID)
	if err != nil {
		slog.Error("failed to get entry", "id", entryID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "entry not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

// GetEntryDecision retrieves the decision for an entry case.
func (h *Handler) GetEntryDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checkpointID := GetCheckpointID(ctx)
	entryID := chi.URLParam(r, "id")

	if entryID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "entry id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	decision, err := h.repo.GetDecisionByEntry(ctx, checkpointID, entryID)
	if err != nil {
		slog.Error("failed to get decision for entry", "entry_id", entryID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "decision not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, decision)
}

// ============================================================================
// REFERENCE DATA HANDLERS
// ============================================================================

// ListWatchlist returns the persisted watchlist for the checkpoint.
func (h *Handler) ListWatchlist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checkpointID := GetCheckpointID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	entries, err := h.repo.ListWatchlist(ctx, checkpointID)
	if err != nil {
		slog.Error("failed to list watchlist", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list watchlist",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// UpsertWatchlistEntry adds or replaces a watchlist entry.
func (h *Handler) UpsertWatchlistEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checkpointID := GetCheckpointID(ctx)

	var entry domain.WatchlistEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if entry.Passport == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "passport is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.repo.UpsertWatchlistEntry(ctx, checkpointID, &entry); err != nil {
		slog.Error("failed to upsert watchlist entry", "passport", entry.Passport, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save watchlist entry",
		})
		return
	}

	slog.Info("watchlist entry saved", "checkpoint_id", checkpointID, "passport", entry.Passport)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entry":   entry,
		"message": "Watchlist entry saved. Call POST /refdata/reload to apply changes.",
	})
}

// DeleteWatchlistEntry removes a watchlist entry by passport number.
func (h *Handler) DeleteWatchlistEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checkpointID := GetCheckpointID(ctx)
	passport := chi.URLParam(r, "passport")

	if passport == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "passport is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.repo.DeleteWatchlistEntry(ctx, checkpointID, passport); err != nil {
		slog.Error("failed to delete watchlist entry", "passport", passport, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "watchlist entry not found",
		})
		return
	}

	slog.Info("watchlist entry deleted", "checkpoint_id", checkpointID, "passport", passport)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Watchlist entry deleted. Call POST /refdata/reload to apply changes.",
	})
}

// ListPolicies returns the persisted country policy table for the checkpoint.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checkpointID := GetCheckpointID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	table, err := h.repo.ListCountryPolicies(ctx, checkpointID)
	if err != nil {
		slog.Error("failed to list country policies", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list country policies",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"policies": table,
		"count":    len(table),
	})
}

// GetPolicy retrieves a country policy by code.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checkpointID := GetCheckpointID(ctx)
	code := chi.URLParam(r, "code")

	if code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "country code is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	policy, err := h.repo.GetCountryPolicy(ctx, checkpointID, code)
	if err != nil {
		slog.Error("failed to get country policy", "code", code, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "country policy not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, policy)
}

// UpsertPolicy adds or replaces a country policy and drops the cached policy
// snapshot so the next load sees the new table.
func (h *Handler) UpsertPolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checkpointID := GetCheckpointID(ctx)
	code := chi.URLParam(r, "code")

	if code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "country code is required",
		})
		return
	}

	var policy domain.CountryPolicy
	if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	policy.Code = code

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.repo.UpsertCountryPolicy(ctx, checkpointID, &policy); err != nil {
		slog.Error("failed to upsert country policy", "code", code, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save country policy",
		})
		return
	}

	if h.refdata != nil {
		if err := h.refdata.Invalidate(ctx, checkpointID); err != nil {
			slog.Warn("failed to invalidate policy cache", "error", err)
		}
	}

	slog.Info("country policy saved", "checkpoint_id", checkpointID, "code", code)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"policy":  policy,
		"message": "Country policy saved. Call POST /refdata/reload to apply changes.",
	})
}

// ReloadRefData reloads the watchlist and policy table from the repository
// into the rule engine. This enables hot-reloading without server restart.
func (h *Handler) ReloadRefData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checkpointID := GetCheckpointID(ctx)

	if h.refdata == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "reference data service not available",
		})
		return
	}

	if err := h.refdata.Invalidate(ctx, checkpointID); err != nil {
		slog.Warn("failed to invalidate policy cache", "error", err)
	}

	watchlist, err := h.refdata.Watchlist(ctx, checkpointID)
	if err != nil {
		slog.Error("failed to load watchlist", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load watchlist",
		})
		return
	}

	policies, err := h.refdata.PolicyTable(ctx, checkpointID)
	if err != nil {
		slog.Error("failed to load country policies", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load country policies",
		})
		return
	}

	h.engine.LoadWatchlist(watchlist)
	h.engine.LoadPolicies(policies)

	if h.bus != nil {
		if snapshot, err := refdata.Snapshot(policies); err == nil {
			if err := h.bus.Publish(ctx, checkpointID, domain.TopicRefDataReloaded, snapshot); err != nil {
				slog.Warn("failed to publish refdata reload event", "error", err)
			}
		}
	}

	slog.Info("reference data reloaded",
		"checkpoint_id", checkpointID,
		"watchlist_entries", len(watchlist),
		"country_policies", len(policies),
	)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":           "reference data reloaded successfully",
		"watchlist_entries": len(watchlist),
		"country_policies":  len(policies),
	})
}

// ============================================================================
// DIRECTIVE HANDLERS
// ============================================================================

// CreateDirectiveRequest is the request body for creating a directive.
type CreateDirectiveRequest struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Expression  string         `json:"expression"`
	Outcome     domain.Outcome `json:"outcome"`
	Enabled     bool           `json:"enabled"`
}

// ListDirectives returns all loaded directives.
func (h *Handler) ListDirectives(w http.ResponseWriter, r *http.Request) {
	if h.directives == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "directive engine not available",
		})
		return
	}

	directives := h.directives.Loaded()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"directives": directives,
		"count":      len(directives),
		"source":     "database",
	})
}

// GetDirective retrieves a directive by ID from the loaded engine set.
func (h *Handler) GetDirective(w http.ResponseWriter, r *http.Request) {
	directiveID := chi.URLParam(r, "id")

	if directiveID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "directive id is required",
		})
		return
	}

	if h.directives == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "directive engine not available",
		})
		return
	}

	for _, d := range h.directives.Loaded() {
		if d.ID == directiveID {
			writeJSON(w, http.StatusOK, d)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "directive not found",
	})
}

// CreateDirective validates, compiles, and saves a new screening directive.
// After saving, call POST /directives/reload to hot-reload into the engine.
func (h *Handler) CreateDirective(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checkpointID := GetCheckpointID(ctx)

	var req CreateDirectiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	directive := &domain.Directive{
		ID:           req.ID,
		CheckpointID: checkpointID,
		Name:         req.Name,
		Description:  req.Description,
		Version:      "1.0.0",
		Expression:   req.Expression,
		Outcome:      req.Outcome,
		Enabled:      req.Enabled,
	}

	// Validate CEL expression and outcome before persisting
	if h.directives != nil {
		if err := h.directives.Validate(directive); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid directive: " + err.Error(),
			})
			return
		}
	}

	if h.repo != nil {
		if err := h.repo.SaveDirective(ctx, checkpointID, directive); err != nil {
			slog.Error("failed to save directive", "id", directive.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save directive",
			})
			return
		}
	}

	slog.Info("directive created", "id", directive.ID, "name", directive.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"directive": directive,
		"message":   "Directive created. Call POST /directives/reload to apply changes.",
	})
}

// DeleteDirective deletes a directive and auto-reloads the engine.
func (h *Handler) DeleteDirective(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checkpointID := GetCheckpointID(ctx)
	directiveID := chi.URLParam(r, "id")

	if directiveID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "directive id is required",
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.DeleteDirective(ctx, checkpointID, directiveID); err != nil {
			slog.Error("failed to delete directive", "id", directiveID, "error", err)
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "directive not found",
			})
			return
		}

		// Auto-reload directive engine after delete
		if h.directives != nil {
			dbDirectives, err := h.repo.ListDirectives(ctx, checkpointID)
			if err != nil {
				slog.Error("failed to reload directives after delete", "error", err)
			} else if err := h.directives.Reload(dbDirectives); err != nil {
				slog.Error("failed to reload directives into engine", "error", err)
			} else {
				slog.Info("directives auto-reloaded after delete", "count", len(dbDirectives))
			}
		}
	}

	slog.Info("directive deleted", "id", directiveID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Directive deleted and engine reloaded.",
	})
}

// ReloadDirectives reloads all directives from the database into the engine.
func (h *Handler) ReloadDirectives(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checkpointID := GetCheckpointID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if h.directives == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "directive engine not available",
		})
		return
	}

	dbDirectives, err := h.repo.ListDirectives(ctx, checkpointID)
	if err != nil {
		slog.Error("failed to list directives from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load directives from database",
		})
		return
	}

	if err := h.directives.Reload(dbDirectives); err != nil {
		slog.Error("failed to reload directives into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload directives: " + err.Error(),
		})
		return
	}

	slog.Info("directives reloaded from database", "count", len(dbDirectives))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "directives reloaded successfully",
		"count":   len(dbDirectives),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
