package serverdb

// ServerSchemaVersion is the current server database schema version.
const ServerSchemaVersion = 1

const serverSchema = `
-- Workspaces table
CREATE TABLE IF NOT EXISTS workspaces (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- API keys table; keys are stored hashed, scoped to one workspace
CREATE TABLE IF NOT EXISTS api_keys (
    id TEXT PRIMARY KEY,
    workspace_id TEXT NOT NULL,
    key_hash TEXT UNIQUE NOT NULL,
    key_prefix TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    revoked_at DATETIME,
    last_used_at DATETIME,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (workspace_id) REFERENCES workspaces(id) ON DELETE CASCADE
);

-- Canonical entity records, all kinds in one table scoped by workspace
CREATE TABLE IF NOT EXISTS entities (
    workspace_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    id TEXT NOT NULL,
    data TEXT NOT NULL,
    modified_at DATETIME NOT NULL,
    PRIMARY KEY (workspace_id, kind, id),
    FOREIGN KEY (workspace_id) REFERENCES workspaces(id) ON DELETE CASCADE
);

-- Schema info table
CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_api_keys_prefix ON api_keys(key_prefix);
CREATE INDEX IF NOT EXISTS idx_entities_modified ON entities(workspace_id, kind, modified_at);
`

// Migration defines a server database migration.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations lists schema changes beyond the base schema, in order.
var Migrations = []Migration{}
