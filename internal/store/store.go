// Package store persists profiles, jobs, episodes, and topic history in
// SQLite.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure Go driver
)

const schemaVersion = 1

// Store wraps the database handle.
type Store struct {
	db *sql.DB
}

// Open initializes the connection pool with the mandatory PRAGMAs in the
// DSN so they apply to every pooled connection, then runs migrations.
func Open(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		dbPath, (5 * time.Second).Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open failed: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping failed: %w", err)
	}

	s := &Store{db: db}
	if err := s.Migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migration failed: %w", err)
	}
	return s, nil
}

// Migrate applies the schema when the on-disk version is behind.
func (s *Store) Migrate() error {
	var current int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	tone TEXT NOT NULL DEFAULT '',
	audience TEXT NOT NULL DEFAULT '',
	target_duration_min INTEGER NOT NULL DEFAULT 15,
	topic_count INTEGER NOT NULL DEFAULT 3,
	schedule_json TEXT NOT NULL DEFAULT '{}',
	last_scheduled_run TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS hosts (
	profile_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	name TEXT NOT NULL,
	persona TEXT NOT NULL DEFAULT '',
	voice_id TEXT NOT NULL DEFAULT '',
	style TEXT NOT NULL DEFAULT '',
	expertise_json TEXT NOT NULL DEFAULT '[]',
	PRIMARY KEY (profile_id, position)
);

CREATE TABLE IF NOT EXISTS content_sources (
	id TEXT NOT NULL,
	profile_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
	kind TEXT NOT NULL,
	name TEXT NOT NULL,
	config_json TEXT NOT NULL DEFAULT '{}',
	priority INTEGER NOT NULL DEFAULT 5,
	credibility REAL NOT NULL DEFAULT 0.5,
	active BOOLEAN NOT NULL DEFAULT 1,
	PRIMARY KEY (profile_id, id)
);

CREATE TABLE IF NOT EXISTS topic_avoidance (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	profile_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
	keyword TEXT NOT NULL,
	kind TEXT NOT NULL,
	until TEXT,
	min_days_between INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_avoidance_profile ON topic_avoidance(profile_id);

CREATE TABLE IF NOT EXISTS generation_jobs (
	id TEXT PRIMARY KEY,
	profile_id TEXT NOT NULL,
	state TEXT NOT NULL,
	stage TEXT NOT NULL DEFAULT '',
	progress INTEGER NOT NULL DEFAULT 0,
	stages_completed_json TEXT NOT NULL DEFAULT '[]',
	stages_pending_json TEXT NOT NULL DEFAULT '[]',
	options_json TEXT NOT NULL DEFAULT '{}',
	activity_json TEXT NOT NULL DEFAULT '[]',
	error TEXT NOT NULL DEFAULT '',
	episode_id TEXT,
	created_at TEXT NOT NULL,
	started_at TEXT,
	completed_at TEXT,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_profile ON generation_jobs(profile_id, created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_state ON generation_jobs(state);

CREATE TABLE IF NOT EXISTS episodes (
	id TEXT PRIMARY KEY,
	profile_id TEXT NOT NULL,
	title TEXT NOT NULL,
	date TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'draft',
	script_path TEXT NOT NULL DEFAULT '',
	audio_path TEXT NOT NULL DEFAULT '',
	duration_seconds REAL NOT NULL DEFAULT 0,
	play_count INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_episodes_profile ON episodes(profile_id, date);

CREATE TABLE IF NOT EXISTS segments (
	episode_id TEXT NOT NULL REFERENCES episodes(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	topic_id TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL,
	content_type TEXT NOT NULL DEFAULT 'topic',
	audio_path TEXT NOT NULL DEFAULT '',
	start_time_seconds REAL NOT NULL DEFAULT 0,
	duration_seconds REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (episode_id, position)
);

CREATE TABLE IF NOT EXISTS topic_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	profile_id TEXT NOT NULL,
	episode_id TEXT NOT NULL,
	topic_name TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	covered_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_profile ON topic_history(profile_id, covered_at);

CREATE TABLE IF NOT EXISTS newsletters (
	episode_id TEXT PRIMARY KEY,
	profile_id TEXT NOT NULL,
	path TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS app_settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`
