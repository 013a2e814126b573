// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kanadia-gov/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveEntry stores an entry case with checkpoint isolation.
func (r *SQLRepository) SaveEntry(ctx context.Context, checkpointID string, entry *domain.EntryCase) error {
	if checkpointID == "" {
		return fmt.Errorf("%w: checkpointID is required", ErrInvalidInput)
	}

	record, err := json.Marshal(entry.Record)
	if err != nil {
		return fmt.Errorf("failed to encode entry record: %w", err)
	}

	query := `
		INSERT INTO entries (id, checkpoint_id, record, received_at)
		VALUES (?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		entry.ID, checkpointID, string(record), entry.ReceivedAt,
	)
	return err
}

// GetEntry retrieves an entry case by ID with checkpoint isolation.
func (r *SQLRepository) GetEntry(ctx context.Context, checkpointID string, entryID string) (*domain.EntryCase, error) {
	if checkpointID == "" {
		return nil, fmt.Errorf("%w: checkpointID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, checkpoint_id, record, received_at
		FROM entries
		WHERE checkpoint_id = ? AND id = ?
	`

	var entry domain.EntryCase
	var record string

	err := r.db.QueryRowContext(ctx, r.rebind(query), checkpointID, entryID).Scan(
		&entry.ID, &entry.CheckpointID, &record, &entry.ReceivedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(record), &entry.Record); err != nil {
		return nil, fmt.Errorf("failed to decode entry record: %w", err)
	}

	return &entry, nil
}

// SaveDecision stores a decision with checkpoint isolation.
func (r *SQLRepository) SaveDecision(ctx context.Context, checkpointID string, decision *domain.Decision) error {
	if checkpointID == "" {
		return fmt.Errorf("%w: checkpointID is required", ErrInvalidInput)
	}

	ruleResults, _ := json.Marshal(decision.RuleResults)
	metadata, _ := json.Marshal(decision.Metadata)

	query := `
		INSERT INTO decisions (
			id, checkpoint_id, entry_id, outcome, timestamp, rule_results, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		decision.ID, checkpointID, decision.EntryID,
		string(decision.Outcome), decision.Timestamp,
		string(ruleResults), string(metadata),
	)
	return err
}

// GetDecision retrieves a decision by ID with checkpoint isolation.
func (r *SQLRepository) GetDecision(ctx context.Context, checkpointID string, decisionID string) (*domain.Decision, error) {
	query := `
		SELECT id, checkpoint_id, entry_id, outcome, timestamp, rule_results, metadata
		FROM decisions
		WHERE checkpoint_id = ? AND id = ?
	`
	return r.queryDecision(ctx, checkpointID, query, decisionID)
}

// GetDecisionByEntry retrieves the latest decision for an entry case.
func (r *SQLRepository) GetDecisionByEntry(ctx context.Context, checkpointID string, entryID string) (*domain.Decision, error) {
	query := `
		SELECT id, checkpoint_id, entry_id, outcome, timestamp, rule_results, metadata
		FROM decisions
		WHERE checkpoint_id = ? AND entry_id = ?
		ORDER BY timestamp DESC
		LIMIT 1
	`
	return r.queryDecision(ctx, checkpointID, query, entryID)
}

func (r *SQLRepository) queryDecision(ctx context.Context, checkpointID, query, arg string) (*domain.Decision, error) {
	if checkpointID == "" {
		return nil, fmt.Errorf("%w: checkpointID is required", ErrInvalidInput)
	}

	var decision domain.Decision
	var outcome, ruleResults, metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), checkpointID, arg).Scan(
		&decision.ID, &decision.CheckpointID, &decision.EntryID,
		&outcome, &decision.Timestamp, &ruleResults, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	decision.Outcome = domain.Outcome(outcome)
	json.Unmarshal([]byte(ruleResults), &decision.RuleResults)
	json.Unmarshal([]byte(metadata), &decision.Metadata)

	return &decision, nil
}

// UpsertWatchlistEntry stores or updates a watchlist entry, keyed by passport.
func (r *SQLRepository) UpsertWatchlistEntry(ctx context.Context, checkpointID string, entry *domain.WatchlistEntry) error {
	if checkpointID == "" {
		return fmt.Errorf("%w: checkpointID is required", ErrInvalidInput)
	}
	if entry.Passport == "" {
		return fmt.Errorf("%w: passport is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO watchlist_entries (checkpoint_id, first_name, last_name, passport, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(checkpoint_id, passport) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		checkpointID, entry.FirstName, entry.LastName, entry.Passport, time.Now().UTC(),
	)
	return err
}

// ListWatchlist retrieves all watchlist entries for a checkpoint.
func (r *SQLRepository) ListWatchlist(ctx context.Context, checkpointID string) ([]domain.WatchlistEntry, error) {
	if checkpointID == "" {
		return nil, fmt.Errorf("%w: checkpointID is required", ErrInvalidInput)
	}

	query := `
		SELECT first_name, last_name, passport
		FROM watchlist_entries
		WHERE checkpoint_id = ?
		ORDER BY last_name, first_name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), checkpointID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.WatchlistEntry
	for rows.Next() {
		var e domain.WatchlistEntry
		if err := rows.Scan(&e.FirstName, &e.LastName, &e.Passport); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// DeleteWatchlistEntry removes a watchlist entry by passport number.
func (r *SQLRepository) DeleteWatchlistEntry(ctx context.Context, checkpointID string, passport string) error {
	if checkpointID == "" {
		return fmt.Errorf("%w: checkpointID is required", ErrInvalidInput)
	}

	query := `DELETE FROM watchlist_entries WHERE checkpoint_id = ? AND passport = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), checkpointID, passport)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// UpsertCountryPolicy stores or updates a country policy, keyed by code.
func (r *SQLRepository) UpsertCountryPolicy(ctx context.Context, checkpointID string, policy *domain.CountryPolicy) error {
	if checkpointID == "" {
		return fmt.Errorf("%w: checkpointID is required", ErrInvalidInput)
	}
	if policy.Code == "" {
		return fmt.Errorf("%w: country code is required", ErrInvalidInput)
	}

	transit := 0
	if policy.TransitVisaRequired {
		transit = 1
	}
	visitor := 0
	if policy.VisitorVisaRequired {
		visitor = 1
	}

	query := `
		INSERT INTO country_policies (
			checkpoint_id, code, transit_visa_required, visitor_visa_required, medical_advisory, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(checkpoint_id, code) DO UPDATE SET
			transit_visa_required = excluded.transit_visa_required,
			visitor_visa_required = excluded.visitor_visa_required,
			medical_advisory = excluded.medical_advisory,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		checkpointID, policy.Code, transit, visitor, policy.MedicalAdvisory, time.Now().UTC(),
	)
	return err
}

// GetCountryPolicy retrieves one country policy with checkpoint isolation.
func (r *SQLRepository) GetCountryPolicy(ctx context.Context, checkpointID string, code string) (*domain.CountryPolicy, error) {
	if checkpointID == "" {
		return nil, fmt.Errorf("%w: checkpointID is required", ErrInvalidInput)
	}

	query := `
		SELECT code, transit_visa_required, visitor_visa_required, medical_advisory
		FROM country_policies
		WHERE checkpoint_id = ? AND code = ?
	`

	var p domain.CountryPolicy
	var transit, visitor int

	err := r.db.QueryRowContext(ctx, r.rebind(query), checkpointID, code).Scan(
		&p.Code, &transit, &visitor, &p.MedicalAdvisory,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p.TransitVisaRequired = domain.Flag(transit == 1)
	p.VisitorVisaRequired = domain.Flag(visitor == 1)

	return &p, nil
}

// ListCountryPolicies retrieves the full policy table for a checkpoint.
func (r *SQLRepository) ListCountryPolicies(ctx context.Context, checkpointID string) (domain.PolicyTable, error) {
	if checkpointID == "" {
		return nil, fmt.Errorf("%w: checkpointID is required", ErrInvalidInput)
	}

	query := `
		SELECT code, transit_visa_required, visitor_visa_required, medical_advisory
		FROM country_policies
		WHERE checkpoint_id = ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), checkpointID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	table := make(domain.PolicyTable)
	for rows.Next() {
		var p domain.CountryPolicy
		var transit, visitor int

		if err := rows.Scan(&p.Code, &transit, &visitor, &p.MedicalAdvisory); err != nil {
			return nil, err
		}

		p.TransitVisaRequired = domain.Flag(transit == 1)
		p.VisitorVisaRequired = domain.Flag(visitor == 1)
		table[p.Code] = p
	}

	return table, rows.Err()
}

// SaveDirective stores a screening directive with checkpoint isolation.
func (r *SQLRepository) SaveDirective(ctx context.Context, checkpointID string, directive *domain.Directive) error {
	if checkpointID == "" {
		return fmt.Errorf("%w: checkpointID is required", ErrInvalidInput)
	}

	enabled := 0
	if directive.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO directives (
			id, checkpoint_id, name, description, version, expression, outcome, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, checkpoint_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			outcome = excluded.outcome,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		directive.ID, checkpointID, directive.Name, directive.Description,
		directive.Version, directive.Expression, string(directive.Outcome), enabled,
		now, now,
	)
	return err
}

// GetDirective retrieves a directive with checkpoint isolation.
func (r *SQLRepository) GetDirective(ctx context.Context, checkpointID string, directiveID string) (*domain.Directive, error) {
	if checkpointID == "" {
		return nil, fmt.Errorf("%w: checkpointID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, checkpoint_id, name, description, version, expression, outcome, enabled
		FROM directives
		WHERE checkpoint_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var d domain.Directive
	var outcome string
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), checkpointID, directiveID).Scan(
		&d.ID, &d.CheckpointID, &d.Name, &d.Description,
		&d.Version, &d.Expression, &outcome, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	d.Outcome = domain.Outcome(outcome)
	d.Enabled = enabled == 1

	return &d, nil
}

// ListDirectives retrieves all active directives for a checkpoint.
func (r *SQLRepository) ListDirectives(ctx context.Context, checkpointID string) ([]*domain.Directive, error) {
	if checkpointID == "" {
		return nil, fmt.Errorf("%w: checkpointID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, checkpoint_id, name, description, version, expression, outcome, enabled
		FROM directives
		WHERE checkpoint_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), checkpointID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var directives []*domain.Directive
	for rows.Next() {
		var d domain.Directive
		var outcome string
		var enabled int

		if err := rows.Scan(
			&d.ID, &d.CheckpointID, &d.Name, &d.Description,
			&d.Version, &d.Expression, &outcome, &enabled,
		); err != nil {
			return nil, err
		}

		d.Outcome = domain.Outcome(outcome)
		d.Enabled = enabled == 1
		directives = append(directives, &d)
	}

	return directives, rows.Err()
}

// DeleteDirective soft-deletes a directive by setting enabled = 0.
func (r *SQLRepository) DeleteDirective(ctx context.Context, checkpointID string, directiveID string) error {
	if checkpointID == "" {
		return fmt.Errorf("%w: checkpointID is required", ErrInvalidInput)
	}

	query := `
		UPDATE directives
		SET enabled = 0, updated_at = ?
		WHERE checkpoint_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), checkpointID, directiveID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
