package store

// SchemaVersion is the current device database schema version.
const SchemaVersion = 2

// entityTables lists the per-kind tables in creation order. Each shares the
// same envelope shape: primary key on id, secondary index on workspace_id.
var entityTables = []string{
	"jobs",
	"clients",
	"technicians",
	"form_drafts",
	"media_attachments",
}

const schema = `
-- One table per entity kind, identical envelope shape
CREATE TABLE IF NOT EXISTS jobs (
    id TEXT PRIMARY KEY,
    workspace_id TEXT NOT NULL DEFAULT '',
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    sync_status TEXT NOT NULL DEFAULT 'local_only',
    data JSON NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_jobs_workspace ON jobs(workspace_id);

CREATE TABLE IF NOT EXISTS clients (
    id TEXT PRIMARY KEY,
    workspace_id TEXT NOT NULL DEFAULT '',
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    sync_status TEXT NOT NULL DEFAULT 'local_only',
    data JSON NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_clients_workspace ON clients(workspace_id);

CREATE TABLE IF NOT EXISTS technicians (
    id TEXT PRIMARY KEY,
    workspace_id TEXT NOT NULL DEFAULT '',
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    sync_status TEXT NOT NULL DEFAULT 'local_only',
    data JSON NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_technicians_workspace ON technicians(workspace_id);

CREATE TABLE IF NOT EXISTS form_drafts (
    id TEXT PRIMARY KEY,
    workspace_id TEXT NOT NULL DEFAULT '',
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    sync_status TEXT NOT NULL DEFAULT 'local_only',
    data JSON NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_form_drafts_workspace ON form_drafts(workspace_id);

CREATE TABLE IF NOT EXISTS media_attachments (
    id TEXT PRIMARY KEY,
    workspace_id TEXT NOT NULL DEFAULT '',
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    sync_status TEXT NOT NULL DEFAULT 'local_only',
    data JSON NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_media_attachments_workspace ON media_attachments(workspace_id);

-- Outbox: append-only log of unacknowledged mutations, rowid = creation sequence
CREATE TABLE IF NOT EXISTS outbox (
    workspace_id TEXT NOT NULL,
    action_kind TEXT NOT NULL,
    entity_kind TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    payload JSON NOT NULL DEFAULT '{}',
    retry_count INTEGER NOT NULL DEFAULT 0,
    next_attempt_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    failed INTEGER NOT NULL DEFAULT 0,
    last_error TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_outbox_workspace ON outbox(workspace_id, failed);

-- Conflicts awaiting explicit resolution
CREATE TABLE IF NOT EXISTS conflicts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    workspace_id TEXT NOT NULL,
    entity_kind TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    local_data JSON NOT NULL DEFAULT '{}',
    remote_data JSON NOT NULL DEFAULT '{}',
    fields JSON NOT NULL DEFAULT '[]',
    detected_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    resolved INTEGER NOT NULL DEFAULT 0,
    resolution TEXT
);
CREATE INDEX IF NOT EXISTS idx_conflicts_workspace ON conflicts(workspace_id, resolved);

-- Key-value space: sync cursors, workspace-isolation flag, rescue snapshots
CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL DEFAULT ''
);

-- Schema metadata
CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
