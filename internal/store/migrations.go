package store

import "strings"

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
// {{timestamp}} is replaced by the driver's timestamp column type.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS users (
	id                TEXT PRIMARY KEY,
	remote_account_id TEXT UNIQUE,
	email             TEXT NOT NULL,
	display_name      TEXT NOT NULL DEFAULT '',
	active            INTEGER NOT NULL DEFAULT 1,
	source            TEXT NOT NULL DEFAULT 'remote',
	is_stub           INTEGER NOT NULL DEFAULT 0,
	created_at        {{timestamp}} NOT NULL,
	updated_at        {{timestamp}} NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(lower(email));

CREATE TABLE IF NOT EXISTS projects (
	id                     TEXT PRIMARY KEY,
	remote_key             TEXT NOT NULL UNIQUE,
	name                   TEXT NOT NULL,
	description            TEXT NOT NULL DEFAULT '',
	lead_name              TEXT NOT NULL DEFAULT '',
	health_level           TEXT NOT NULL DEFAULT 'unknown',
	health_reason          TEXT NOT NULL DEFAULT '',
	health_score           DOUBLE PRECISION NOT NULL DEFAULT 0,
	health_confidence      TEXT NOT NULL DEFAULT 'low',
	health_evaluated_at    {{timestamp}},
	total_tasks            INTEGER NOT NULL DEFAULT 0,
	completed_tasks        INTEGER NOT NULL DEFAULT 0,
	total_story_points     DOUBLE PRECISION NOT NULL DEFAULT 0,
	completed_story_points DOUBLE PRECISION NOT NULL DEFAULT 0,
	active_blockers        INTEGER NOT NULL DEFAULT 0,
	recent_updates         INTEGER NOT NULL DEFAULT 0,
	plan_overall_status    TEXT NOT NULL DEFAULT '',
	plan_executive_summary TEXT NOT NULL DEFAULT '',
	plan_owner             TEXT NOT NULL DEFAULT '',
	plan_start_date        {{timestamp}},
	plan_target_date       {{timestamp}},
	archived               INTEGER NOT NULL DEFAULT 0 CHECK(archived IN (0, 1)),
	last_synced_at         {{timestamp}},
	created_at             {{timestamp}} NOT NULL,
	updated_at             {{timestamp}} NOT NULL
);

CREATE TABLE IF NOT EXISTS milestones (
	id         TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	title      TEXT NOT NULL,
	due_date   {{timestamp}},
	done       INTEGER NOT NULL DEFAULT 0 CHECK(done IN (0, 1)),
	created_at {{timestamp}} NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_milestones_project_id ON milestones(project_id);

CREATE TABLE IF NOT EXISTS risks (
	id         TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	title      TEXT NOT NULL,
	severity   TEXT NOT NULL DEFAULT 'medium' CHECK(severity IN ('low', 'medium', 'high')),
	mitigation TEXT NOT NULL DEFAULT '',
	is_open    INTEGER NOT NULL DEFAULT 1 CHECK(is_open IN (0, 1)),
	created_at {{timestamp}} NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_risks_project_id ON risks(project_id);

CREATE TABLE IF NOT EXISTS boards (
	id         TEXT PRIMARY KEY,
	remote_id  BIGINT NOT NULL UNIQUE,
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	type       TEXT NOT NULL,
	updated_at {{timestamp}} NOT NULL
);

CREATE TABLE IF NOT EXISTS sprints (
	id            TEXT PRIMARY KEY,
	remote_id     BIGINT NOT NULL UNIQUE,
	board_id      TEXT NOT NULL REFERENCES boards(id) ON DELETE CASCADE,
	name          TEXT NOT NULL,
	state         TEXT NOT NULL,
	start_date    {{timestamp}},
	end_date      {{timestamp}},
	complete_date {{timestamp}},
	goal          TEXT NOT NULL DEFAULT '',
	updated_at    {{timestamp}} NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sprints_board_id ON sprints(board_id);

CREATE TABLE IF NOT EXISTS tasks (
	id                        TEXT PRIMARY KEY,
	remote_key                TEXT NOT NULL UNIQUE,
	project_id                TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	sprint_id                 TEXT REFERENCES sprints(id) ON DELETE SET NULL,
	title                     TEXT NOT NULL,
	description               TEXT NOT NULL DEFAULT '',
	status                    TEXT NOT NULL,
	issue_type                TEXT NOT NULL DEFAULT '',
	parent_key                TEXT NOT NULL DEFAULT '',
	story_points              DOUBLE PRECISION,
	original_estimate_seconds BIGINT,
	assignee_id               TEXT REFERENCES users(id) ON DELETE SET NULL,
	due_date                  {{timestamp}},
	priority                  INTEGER NOT NULL DEFAULT 3 CHECK(priority BETWEEN 1 AND 5),
	remote_created_at         {{timestamp}} NOT NULL,
	remote_updated_at         {{timestamp}} NOT NULL,
	status_changed_at         {{timestamp}} NOT NULL,
	last_synced_at            {{timestamp}} NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_project_id ON tasks(project_id);
CREATE INDEX IF NOT EXISTS idx_tasks_assignee_id ON tasks(assignee_id);
CREATE INDEX IF NOT EXISTS idx_tasks_sprint_id ON tasks(sprint_id);

CREATE TABLE IF NOT EXISTS sync_runs (
	id            TEXT PRIMARY KEY,
	started_at    {{timestamp}} NOT NULL,
	finished_at   {{timestamp}},
	type          TEXT NOT NULL CHECK(type IN ('full', 'incremental')),
	status        TEXT NOT NULL CHECK(status IN ('running', 'completed', 'failed', 'partial')),
	trigger_kind  TEXT NOT NULL,
	project_key   TEXT NOT NULL DEFAULT '',
	processed     INTEGER NOT NULL DEFAULT 0,
	created_count INTEGER NOT NULL DEFAULT 0,
	updated_count INTEGER NOT NULL DEFAULT 0,
	deleted_count INTEGER NOT NULL DEFAULT 0,
	failed_count  INTEGER NOT NULL DEFAULT 0,
	duration_ms   BIGINT NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	data_cutoff   {{timestamp}}
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_sync_runs_started_at ON sync_runs(started_at);
CREATE INDEX IF NOT EXISTS idx_sync_runs_status ON sync_runs(status, started_at);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}

// timestampType returns the timestamp column type for a driver. SQLite
// needs DATETIME so the driver hands back time.Time values.
func timestampType(driver string) string {
	if driver == DriverPostgres {
		return "TIMESTAMPTZ"
	}
	return "DATETIME"
}

// migrationSQL renders a migration for a driver.
func migrationSQL(m migration, driver string) string {
	return strings.ReplaceAll(m.sql, "{{timestamp}}", timestampType(driver))
}
