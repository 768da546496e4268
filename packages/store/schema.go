package store

const schema = `
CREATE TABLE IF NOT EXISTS suites (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS steps (
	id                TEXT PRIMARY KEY,
	suite_id          TEXT NOT NULL REFERENCES suites(id) ON DELETE CASCADE,
	name              TEXT NOT NULL,
	step_order        INTEGER NOT NULL,
	method            TEXT NOT NULL,
	endpoint          TEXT NOT NULL,
	headers           TEXT,
	body              TEXT,
	assertions        TEXT,
	extract_variables TEXT
);
CREATE INDEX IF NOT EXISTS idx_steps_suite ON steps(suite_id, step_order);

CREATE TABLE IF NOT EXISTS environments (
	id       TEXT PRIMARY KEY,
	name     TEXT NOT NULL,
	base_url TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS credentials (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS executions (
	id             TEXT PRIMARY KEY,
	suite_id       TEXT NOT NULL,
	environment_id TEXT NOT NULL,
	credential_id  TEXT,
	status         TEXT NOT NULL,
	variables      TEXT,
	created_at     TEXT NOT NULL,
	started_at     TEXT,
	completed_at   TEXT,
	duration       INTEGER NOT NULL DEFAULT 0,
	summary        TEXT,
	error          TEXT
);
CREATE INDEX IF NOT EXISTS idx_executions_status ON executions(status);

CREATE TABLE IF NOT EXISTS step_results (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	execution_id        TEXT NOT NULL REFERENCES executions(id) ON DELETE CASCADE,
	step_id             TEXT NOT NULL,
	step_name           TEXT NOT NULL,
	status              TEXT NOT NULL,
	started_at          TEXT NOT NULL,
	completed_at        TEXT NOT NULL,
	duration            INTEGER NOT NULL,
	request             TEXT NOT NULL,
	response            TEXT,
	assertions          TEXT NOT NULL,
	extracted_variables TEXT NOT NULL,
	error               TEXT
);
CREATE INDEX IF NOT EXISTS idx_step_results_execution ON step_results(execution_id);
`
