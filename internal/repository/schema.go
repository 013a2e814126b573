package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaEntries = `
CREATE TABLE IF NOT EXISTS entries (
    id TEXT PRIMARY KEY,
    checkpoint_id TEXT NOT NULL,
    record TEXT NOT NULL,
    received_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entries_checkpoint ON entries(checkpoint_id);
`

const schemaDecisions = `
CREATE TABLE IF NOT EXISTS decisions (
    id TEXT PRIMARY KEY,
    checkpoint_id TEXT NOT NULL,
    entry_id TEXT NOT NULL,
    outcome TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    rule_results TEXT NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_checkpoint ON decisions(checkpoint_id);
CREATE INDEX IF NOT EXISTS idx_decisions_entry ON decisions(checkpoint_id, entry_id);
`

const schemaWatchlist = `
CREATE TABLE IF NOT EXISTS watchlist_entries (
    checkpoint_id TEXT NOT NULL,
    first_name TEXT NOT NULL,
    last_name TEXT NOT NULL,
    passport TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (checkpoint_id, passport)
);

CREATE INDEX IF NOT EXISTS idx_watchlist_checkpoint ON watchlist_entries(checkpoint_id);
`

const schemaCountryPolicies = `
CREATE TABLE IF NOT EXISTS country_policies (
    checkpoint_id TEXT NOT NULL,
    code TEXT NOT NULL,
    transit_visa_required INTEGER NOT NULL DEFAULT 0,
    visitor_visa_required INTEGER NOT NULL DEFAULT 0,
    medical_advisory TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (checkpoint_id, code)
);
`

const schemaDirectives = `
CREATE TABLE IF NOT EXISTS directives (
    id TEXT NOT NULL,
    checkpoint_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    outcome TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, checkpoint_id, version)
);

CREATE INDEX IF NOT EXISTS idx_directives_checkpoint ON directives(checkpoint_id);
CREATE INDEX IF NOT EXISTS idx_directives_enabled ON directives(checkpoint_id, enabled);
`

// AllSchemas returns every schema statement in creation order.
func AllSchemas() []string {
	return []string{
		schemaEntries,
		schemaDecisions,
		schemaWatchlist,
		schemaCountryPolicies,
		schemaDirectives,
	}
}
