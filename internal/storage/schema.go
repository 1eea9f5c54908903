package storage

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS tasks (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	title           TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	project         TEXT NOT NULL DEFAULT '',
	agent_id        TEXT NOT NULL DEFAULT '',
	priority        INTEGER NOT NULL DEFAULT 5,
	status          TEXT NOT NULL,
	parent_id       INTEGER,
	review_count    INTEGER NOT NULL DEFAULT 0,
	reviewer_id     TEXT NOT NULL DEFAULT '',
	review_feedback TEXT NOT NULL DEFAULT '',
	speced          BOOLEAN NOT NULL DEFAULT 0,
	acked           BOOLEAN NOT NULL DEFAULT 0,
	notes           TEXT NOT NULL DEFAULT '',
	session_key     TEXT NOT NULL DEFAULT '',
	timeout_seconds INTEGER NOT NULL DEFAULT 600,
	last_heartbeat  DATETIME,
	heartbeat_msg   TEXT NOT NULL DEFAULT '',
	progress        TEXT NOT NULL DEFAULT '{}',
	tags            TEXT NOT NULL DEFAULT '[]',
	created_at      DATETIME NOT NULL,
	started_at      DATETIME,
	completed_at    DATETIME
);

CREATE TABLE IF NOT EXISTS task_checklist (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id      INTEGER NOT NULL,
	step_order   INTEGER NOT NULL,
	title        TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'pending',
	completed_at DATETIME,
	completed_by TEXT NOT NULL DEFAULT '',
	notes        TEXT NOT NULL DEFAULT '',
	metadata     TEXT NOT NULL DEFAULT '{}',
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS cron_jobs (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	name            TEXT NOT NULL,
	kind            TEXT NOT NULL,
	schedule        TEXT NOT NULL,
	timezone        TEXT NOT NULL DEFAULT 'UTC',
	session_target  TEXT NOT NULL DEFAULT 'isolated',
	payload_type    TEXT NOT NULL DEFAULT '',
	payload_message TEXT NOT NULL DEFAULT '',
	payload_model   TEXT NOT NULL DEFAULT '',
	enabled         BOOLEAN NOT NULL DEFAULT 1,
	last_run_at     DATETIME,
	next_run_at     DATETIME,
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS cron_runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id      INTEGER NOT NULL,
	status      TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	log         TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS zombie_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_key TEXT NOT NULL,
	agent_id    TEXT NOT NULL DEFAULT '',
	task_id     INTEGER,
	status      TEXT NOT NULL,
	heuristic   TEXT NOT NULL DEFAULT '',
	details     TEXT NOT NULL DEFAULT '{}',
	detected_at DATETIME NOT NULL,
	resolved_at DATETIME
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS tasks (
	id              BIGSERIAL PRIMARY KEY,
	title           TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	project         TEXT NOT NULL DEFAULT '',
	agent_id        TEXT NOT NULL DEFAULT '',
	priority        INTEGER NOT NULL DEFAULT 5,
	status          TEXT NOT NULL,
	parent_id       BIGINT,
	review_count    INTEGER NOT NULL DEFAULT 0,
	reviewer_id     TEXT NOT NULL DEFAULT '',
	review_feedback TEXT NOT NULL DEFAULT '',
	speced          BOOLEAN NOT NULL DEFAULT FALSE,
	acked           BOOLEAN NOT NULL DEFAULT FALSE,
	notes           TEXT NOT NULL DEFAULT '',
	session_key     TEXT NOT NULL DEFAULT '',
	timeout_seconds INTEGER NOT NULL DEFAULT 600,
	last_heartbeat  TIMESTAMPTZ,
	heartbeat_msg   TEXT NOT NULL DEFAULT '',
	progress        TEXT NOT NULL DEFAULT '{}',
	tags            TEXT NOT NULL DEFAULT '[]',
	created_at      TIMESTAMPTZ NOT NULL,
	started_at      TIMESTAMPTZ,
	completed_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS task_checklist (
	id           BIGSERIAL PRIMARY KEY,
	task_id      BIGINT NOT NULL,
	step_order   INTEGER NOT NULL,
	title        TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'pending',
	completed_at TIMESTAMPTZ,
	completed_by TEXT NOT NULL DEFAULT '',
	notes        TEXT NOT NULL DEFAULT '',
	metadata     TEXT NOT NULL DEFAULT '{}',
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS cron_jobs (
	id              BIGSERIAL PRIMARY KEY,
	name            TEXT NOT NULL,
	kind            TEXT NOT NULL,
	schedule        TEXT NOT NULL,
	timezone        TEXT NOT NULL DEFAULT 'UTC',
	session_target  TEXT NOT NULL DEFAULT 'isolated',
	payload_type    TEXT NOT NULL DEFAULT '',
	payload_message TEXT NOT NULL DEFAULT '',
	payload_model   TEXT NOT NULL DEFAULT '',
	enabled         BOOLEAN NOT NULL DEFAULT TRUE,
	last_run_at     TIMESTAMPTZ,
	next_run_at     TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS cron_runs (
	id          BIGSERIAL PRIMARY KEY,
	job_id      BIGINT NOT NULL,
	status      TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	log         TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS zombie_events (
	id          BIGSERIAL PRIMARY KEY,
	session_key TEXT NOT NULL,
	agent_id    TEXT NOT NULL DEFAULT '',
	task_id     BIGINT,
	status      TEXT NOT NULL,
	heuristic   TEXT NOT NULL DEFAULT '',
	details     TEXT NOT NULL DEFAULT '{}',
	detected_at TIMESTAMPTZ NOT NULL,
	resolved_at TIMESTAMPTZ
);
`
