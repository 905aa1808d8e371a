// ABOUTME: Database schema definitions and migrations
// ABOUTME: Handles SQLite table creation and initialization
package db

import (
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	email TEXT,
	display_name TEXT,
	role TEXT,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);

CREATE TABLE IF NOT EXISTS deal_imports (
	id TEXT PRIMARY KEY,
	external_deal_id TEXT NOT NULL UNIQUE,
	deal_name TEXT,
	crm_owner_id TEXT,
	seller_id TEXT,
	owner_email TEXT,
	owner_user_id TEXT,
	fulfilled_date DATETIME NOT NULL,
	amount REAL,
	seller_provision REAL,
	currency_code TEXT,
	deal_stage TEXT,
	last_modified DATETIME,
	payload_hash TEXT,
	first_seen DATETIME NOT NULL,
	last_seen DATETIME NOT NULL,
	FOREIGN KEY (owner_user_id) REFERENCES users(id)
);

CREATE INDEX IF NOT EXISTS idx_deal_imports_fulfilled_date ON deal_imports(fulfilled_date);
CREATE INDEX IF NOT EXISTS idx_deal_imports_crm_owner_id ON deal_imports(crm_owner_id);

CREATE TABLE IF NOT EXISTS owner_mappings (
	id TEXT PRIMARY KEY,
	crm_owner_id TEXT NOT NULL UNIQUE,
	email TEXT,
	first_name TEXT,
	last_name TEXT,
	primary_team_name TEXT,
	team_names TEXT,
	is_archived INTEGER NOT NULL DEFAULT 0,
	user_id TEXT,
	username TEXT,
	last_seen DATETIME NOT NULL,
	last_owner_sync DATETIME,
	FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_owner_mappings_user_id
	ON owner_mappings(user_id) WHERE user_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_owner_mappings_email ON owner_mappings(email);

CREATE TABLE IF NOT EXISTS sync_state (
	integration_name TEXT PRIMARY KEY,
	last_successful_sync DATETIME,
	last_cursor TEXT,
	last_attempt DATETIME,
	last_error TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS sync_runs (
	id TEXT PRIMARY KEY,
	started DATETIME NOT NULL,
	finished DATETIME,
	status TEXT NOT NULL CHECK(status IN ('Started', 'Succeeded', 'Failed')),
	deals_fetched INTEGER NOT NULL DEFAULT 0,
	deals_imported INTEGER NOT NULL DEFAULT 0,
	deals_updated INTEGER NOT NULL DEFAULT 0,
	deals_skipped INTEGER NOT NULL DEFAULT 0,
	error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_status_started ON sync_runs(status, started DESC);

CREATE TABLE IF NOT EXISTS contests (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	start_date DATETIME NOT NULL,
	end_date DATETIME NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS contest_entries (
	id TEXT PRIMARY KEY,
	contest_id TEXT NOT NULL,
	owner_key TEXT NOT NULL,
	user_id TEXT,
	display_label TEXT NOT NULL,
	deals_count INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL,
	UNIQUE(contest_id, owner_key),
	FOREIGN KEY (contest_id) REFERENCES contests(id),
	FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE INDEX IF NOT EXISTS idx_contest_entries_contest_id ON contest_entries(contest_id);
`

func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
