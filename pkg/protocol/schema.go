package protocol

// SchemaDDL defines the SQLite schema for the action journal.
// Tables: actions (one row per dispatched action), events (lifecycle).
// Execute against a SQLite database with: db.Exec(SchemaDDL)
const SchemaDDL = `
-- One row per dispatched action. Arguments are never stored, only their count.
CREATE TABLE IF NOT EXISTS actions (
    id INTEGER PRIMARY KEY,
    ticket TEXT NOT NULL,
    kind TEXT NOT NULL,
    arg_count INTEGER NOT NULL DEFAULT 0,
    outcome TEXT NOT NULL DEFAULT '',
    error_kind TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT '',
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL,
    duration_ms INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS actions_started_at ON actions(started_at);

-- Lifecycle events: target application restarts, client disconnects, startup.
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY,
    type TEXT NOT NULL,
    detail TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);
`

// Event types written to the events table.
const (
	EventServerStarted      = "server_started"
	EventServerStopped      = "server_stopped"
	EventAppRestart         = "app_restart"
	EventAppRestartFailed   = "app_restart_failed"
	EventClientDisconnected = "client_disconnected"
)
