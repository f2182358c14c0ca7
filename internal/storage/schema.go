package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// InitSchema creates all necessary tables and indexes.
func InitSchema(ctx context.Context, db *sql.DB) error {
	steps := []struct {
		name  string
		query string
	}{
		{"application_configurations", applicationConfigurationsTable},
		{"stories", storiesTable},
		{"users", usersTable},
		{"dialogs", dialogsTable},
		{"actions", actionsTable},
		{"parse_logs", parseLogsTable},
		{"nlp_applications", nlpApplicationsTable},
		{"nlp_intents", nlpIntentsTable},
		{"nlp_sentences", nlpSentencesTable},
		{"labels", labelsTable},
	}
	for _, step := range steps {
		if _, err := db.ExecContext(ctx, step.query); err != nil {
			return fmt.Errorf("failed to create %s table: %w", step.name, err)
		}
	}
	return nil
}

const applicationConfigurationsTable = `
CREATE TABLE IF NOT EXISTS application_configurations (
	id TEXT PRIMARY KEY,
	application_id TEXT NOT NULL,
	bot_id TEXT NOT NULL,
	namespace TEXT NOT NULL,
	nlp_model TEXT NOT NULL,
	connector_id TEXT NOT NULL DEFAULT '',
	connector_type TEXT NOT NULL,
	owner_connector_type TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL,
	base_url TEXT NOT NULL DEFAULT '',
	path TEXT NOT NULL DEFAULT '',
	parameters TEXT NOT NULL DEFAULT '{}',
	manually_modified INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE(bot_id, application_id)
);
CREATE INDEX IF NOT EXISTS idx_app_configs_namespace ON application_configurations(namespace);
`

const storiesTable = `
CREATE TABLE IF NOT EXISTS stories (
	id TEXT PRIMARY KEY,
	namespace TEXT NOT NULL,
	bot_id TEXT NOT NULL,
	story_id TEXT NOT NULL,
	name TEXT NOT NULL,
	intent TEXT NOT NULL,
	answer_type TEXT CHECK(answer_type IN ('plain', 'script')) NOT NULL,
	answer TEXT NOT NULL,
	script_main TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE(namespace, bot_id, story_id)
);
CREATE INDEX IF NOT EXISTS idx_stories_intent ON stories(namespace, bot_id, intent);
`

const usersTable = `
CREATE TABLE IF NOT EXISTS users (
	namespace TEXT NOT NULL,
	bot_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	locale TEXT NOT NULL DEFAULT '',
	first_seen INTEGER NOT NULL,
	last_seen INTEGER NOT NULL,
	PRIMARY KEY (namespace, bot_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_users_last_seen ON users(last_seen);
`

const dialogsTable = `
CREATE TABLE IF NOT EXISTS dialogs (
	id TEXT PRIMARY KEY,
	namespace TEXT NOT NULL,
	bot_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	connector_id TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE(namespace, bot_id, user_id)
);
`

const actionsTable = `
CREATE TABLE IF NOT EXISTS actions (
	id TEXT PRIMARY KEY,
	dialog_id TEXT NOT NULL REFERENCES dialogs(id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	kind TEXT CHECK(kind IN ('user', 'bot')) NOT NULL,
	story_id TEXT NOT NULL DEFAULT '',
	intent TEXT NOT NULL DEFAULT '',
	text TEXT NOT NULL,
	last_answer INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	UNIQUE(dialog_id, seq)
);
`

const parseLogsTable = `
CREATE TABLE IF NOT EXISTS parse_logs (
	id TEXT PRIMARY KEY,
	namespace TEXT NOT NULL,
	application TEXT NOT NULL,
	dialog_id TEXT NOT NULL DEFAULT '',
	text TEXT NOT NULL,
	intent TEXT NOT NULL,
	score REAL NOT NULL,
	source TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_parse_logs_app ON parse_logs(namespace, application, created_at);
`

const nlpApplicationsTable = `
CREATE TABLE IF NOT EXISTS nlp_applications (
	namespace TEXT NOT NULL,
	name TEXT NOT NULL,
	locales TEXT NOT NULL DEFAULT '[]',
	created_at INTEGER NOT NULL,
	PRIMARY KEY (namespace, name)
);
`

const nlpIntentsTable = `
CREATE TABLE IF NOT EXISTS nlp_intents (
	namespace TEXT NOT NULL,
	application TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (namespace, application, name)
);
`

const nlpSentencesTable = `
CREATE TABLE IF NOT EXISTS nlp_sentences (
	id TEXT PRIMARY KEY,
	namespace TEXT NOT NULL,
	application TEXT NOT NULL,
	text TEXT NOT NULL,
	normalized_text TEXT NOT NULL,
	intent TEXT NOT NULL,
	locale TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	UNIQUE(namespace, application, normalized_text, locale)
);
`

const labelsTable = `
CREATE TABLE IF NOT EXISTS labels (
	namespace TEXT NOT NULL,
	category TEXT NOT NULL,
	default_label TEXT NOT NULL,
	locale TEXT NOT NULL,
	translation TEXT NOT NULL,
	PRIMARY KEY (namespace, category, default_label, locale)
);
`
