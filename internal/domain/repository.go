// Package domain defines the core records, interfaces, and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require checkpointID for strict checkpoint isolation.
type Repository interface {
	// Entry case operations
	SaveEntry(ctx context.Context, checkpointID string, entry *EntryCase) error
	GetEntry(ctx context.Context, checkpointID string, entryID string) (*EntryCase, error)

	// Decision operations
	SaveDecision(ctx context.Context, checkpointID string, decision *Decision) error
	GetDecision(ctx context.Context, checkpointID string, decisionID string) (*Decision, error)
	GetDecisionByEntry(ctx context.Context, checkpointID string, entryID string) (*Decision, error)

	// Watchlist reference data
	UpsertWatchlistEntry(ctx context.Context, checkpointID string, entry *WatchlistEntry) error
	ListWatchlist(ctx context.Context, checkpointID string) ([]WatchlistEntry, error)
	DeleteWatchlistEntry(ctx context.Context, checkpointID string, passport string) error

	// Country policy reference data
	UpsertCountryPolicy(ctx context.Context, checkpointID string, policy *CountryPolicy) error
	GetCountryPolicy(ctx context.Context, checkpointID string, code string) (*CountryPolicy, error)
	ListCountryPolicies(ctx context.Context, checkpointID string) (PolicyTable, error)

	// Screening directives
	SaveDirective(ctx context.Context, checkpointID string, directive *Directive) error
	GetDirective(ctx context.Context, checkpointID string, directiveID string) (*Directive, error)
	ListDirectives(ctx context.Context, checkpointID string) ([]*Directive, error)
	DeleteDirective(ctx context.Context, checkpointID string, directiveID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
