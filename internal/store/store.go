// Package store provides SQLite-backed persistence for the course-study
// domain model (spec §3): courses, mirrored LMS items and materials, LMS
// connections, generated flashcards, ingest jobs, and calendar tokens.
//
// Every entity keeps the partition/sort-key pair its models.*Key function
// derives (spec §3's key layout) as the table's composite primary key, so
// the relational schema stays a direct reflection of the key-value model
// the rest of the system reasons about.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite connection backing every domain table.
type Store struct {
	db *sql.DB
}

// dbQuerier is satisfied by *sql.DB and *sql.Tx, letting read helpers run
// inside or outside an explicit transaction.
type dbQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS courses (
	pk TEXT NOT NULL,
	sk TEXT NOT NULL,
	id TEXT NOT NULL,
	name TEXT NOT NULL,
	term TEXT NOT NULL DEFAULT '',
	color TEXT NOT NULL,
	PRIMARY KEY (pk, sk)
);

CREATE TABLE IF NOT EXISTS canvas_items (
	pk TEXT NOT NULL,
	sk TEXT NOT NULL,
	id TEXT NOT NULL,
	course_id TEXT NOT NULL,
	title TEXT NOT NULL,
	item_type TEXT NOT NULL,
	due_at TEXT NOT NULL,
	points_possible REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (pk, sk)
);
CREATE INDEX IF NOT EXISTS idx_canvas_items_due ON canvas_items(pk, due_at);

CREATE TABLE IF NOT EXISTS canvas_materials (
	pk TEXT NOT NULL,
	sk TEXT NOT NULL,
	canvas_file_id TEXT NOT NULL,
	course_id TEXT NOT NULL,
	display_name TEXT NOT NULL,
	content_type TEXT NOT NULL DEFAULT '',
	size_bytes INTEGER NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL,
	download_url TEXT NOT NULL DEFAULT '',
	s3_key TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (pk, sk)
);

CREATE TABLE IF NOT EXISTS canvas_connections (
	pk TEXT NOT NULL,
	sk TEXT NOT NULL,
	user_id TEXT NOT NULL,
	canvas_base_url TEXT NOT NULL,
	access_token TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (pk, sk)
);

CREATE TABLE IF NOT EXISTS cards (
	pk TEXT NOT NULL,
	sk TEXT NOT NULL,
	id TEXT NOT NULL,
	course_id TEXT NOT NULL,
	topic_id TEXT NOT NULL DEFAULT '',
	prompt TEXT NOT NULL,
	answer TEXT NOT NULL,
	citations_json TEXT NOT NULL DEFAULT '[]',
	fsrs_state_json TEXT,
	review_count INTEGER NOT NULL DEFAULT 0,
	due_at TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (pk, sk)
);
CREATE INDEX IF NOT EXISTS idx_cards_due ON cards(pk, due_at);

CREATE TABLE IF NOT EXISTS ingest_jobs (
	job_id TEXT PRIMARY KEY,
	source_doc_id TEXT NOT NULL,
	course_id TEXT NOT NULL,
	source_key TEXT NOT NULL,
	status TEXT NOT NULL,
	text_length INTEGER NOT NULL DEFAULT 0,
	used_textract INTEGER NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	kb_ingestion_job_id TEXT NOT NULL DEFAULT '',
	kb_ingestion_error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_ingest_jobs_course ON ingest_jobs(course_id);

CREATE TABLE IF NOT EXISTS calendar_tokens (
	token TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	revoked INTEGER NOT NULL DEFAULT 0,
	revoked_at TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_calendar_tokens_user ON calendar_tokens(user_id);
`

// Open creates or opens a SQLite database at dbPath and ensures the schema
// exists. WAL mode keeps concurrent readers unblocked by in-flight writes.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dbPath, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
