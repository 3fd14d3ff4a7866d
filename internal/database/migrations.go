package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS analyses (
    id TEXT PRIMARY KEY,
    company_name TEXT NOT NULL,
    company_key TEXT NOT NULL,
    model_provider TEXT NOT NULL,
    articles_json TEXT NOT NULL,
    sources_json TEXT,
    comparative_json TEXT NOT NULL,
    final_report TEXT NOT NULL,
    translation TEXT NOT NULL,
    translation_language TEXT,
    audio_file TEXT,
    warnings_json TEXT,
    positive INTEGER DEFAULT 0,
    negative INTEGER DEFAULT 0,
    neutral INTEGER DEFAULT 0,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS analysis_articles (
    analysis_id TEXT NOT NULL REFERENCES analyses(id) ON DELETE CASCADE,
    slot INTEGER NOT NULL,
    title TEXT NOT NULL,
    url TEXT,
    sentiment TEXT NOT NULL,
    topics TEXT,
    PRIMARY KEY (analysis_id, slot)
);

CREATE INDEX IF NOT EXISTS idx_analyses_company ON analyses(company_key);
CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses(created_at);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
