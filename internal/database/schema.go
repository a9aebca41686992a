package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Schema defines the tables the collector writes to. Statements are
// idempotent so Migrate can run on every startup.
const Schema = `
CREATE TABLE IF NOT EXISTS cases (
	id                 BIGSERIAL PRIMARY KEY,
	source             TEXT NOT NULL,
	case_number        TEXT NOT NULL,
	title              TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL DEFAULT '',
	sender             TEXT NOT NULL DEFAULT '',
	location           TEXT NOT NULL DEFAULT '',
	municipality       TEXT NOT NULL DEFAULT '',
	url                TEXT NOT NULL DEFAULT '',
	registered_at      TIMESTAMPTZ,
	decided_at         TIMESTAMPTZ,
	diarium            TEXT NOT NULL DEFAULT '',
	documents          JSONB,
	details_fetched_at TIMESTAMPTZ,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (source, case_number)
);

CREATE INDEX IF NOT EXISTS idx_cases_source ON cases (source);
CREATE INDEX IF NOT EXISTS idx_cases_registered_at ON cases (registered_at);
CREATE INDEX IF NOT EXISTS idx_cases_missing_details ON cases (source) WHERE details_fetched_at IS NULL;

CREATE TABLE IF NOT EXISTS region_status (
	source            TEXT PRIMARY KEY,
	last_fetch_at     TIMESTAMPTZ,
	last_page_fetched INTEGER NOT NULL DEFAULT 0,
	total_pages       INTEGER,
	error_count       INTEGER NOT NULL DEFAULT 0,
	last_error        TEXT,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Migrate applies the schema.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
