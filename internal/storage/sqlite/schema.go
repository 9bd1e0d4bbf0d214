package sqlite

const schema = `
-- Segments: one row per node per scope. change_set_id '' means published;
-- the sentinel keeps the uniqueness constraint effective in the published
-- scope (SQLite unique indexes treat NULLs as distinct).
CREATE TABLE IF NOT EXISTS segments (
    id INTEGER PRIMARY KEY,
    routing_id TEXT NOT NULL,
    change_set_id TEXT NOT NULL DEFAULT '',
    name TEXT NOT NULL,
    segment_type TEXT NOT NULL,
    display_name TEXT NOT NULL DEFAULT '',
    exec_order INTEGER NOT NULL DEFAULT 0,
    active INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (routing_id, name, change_set_id)
);

CREATE INDEX IF NOT EXISTS idx_segments_scope ON segments(routing_id, change_set_id, active);

-- Ordered config entries; position is display-significant.
CREATE TABLE IF NOT EXISTS segment_config (
    segment_id INTEGER NOT NULL REFERENCES segments(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    key TEXT NOT NULL,
    value TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (segment_id, position)
);

-- Per-segment hook handler overrides. Type defaults live in the dictionary
-- and are merged at load time, instance wins.
CREATE TABLE IF NOT EXISTS segment_hooks (
    segment_id INTEGER NOT NULL REFERENCES segments(id) ON DELETE CASCADE,
    hook TEXT NOT NULL,
    handler TEXT NOT NULL,
    PRIMARY KEY (segment_id, hook)
);

-- Transitions: one row per (result, context key) pair, plus at most one
-- default fallback row. Targets are segment names; '' means terminal exit.
-- Uniqueness of (result_name, context_key) is a validator rule, not a
-- constraint, so granular edits can pass through a temporarily invalid state.
CREATE TABLE IF NOT EXISTS transitions (
    segment_id INTEGER NOT NULL REFERENCES segments(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    result_name TEXT NOT NULL DEFAULT '',
    context_key TEXT NOT NULL DEFAULT '',
    is_default INTEGER NOT NULL DEFAULT 0,
    target TEXT NOT NULL DEFAULT '',
    params TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_transitions_segment ON transitions(segment_id, position);

CREATE TABLE IF NOT EXISTS change_sets (
    id TEXT PRIMARY KEY,
    routing_id TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'draft',
    created_by TEXT NOT NULL DEFAULT '',
    published_by TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    published_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_change_sets_routing ON change_sets(routing_id, status);

CREATE TABLE IF NOT EXISTS routing_entries (
    id TEXT PRIMARY KEY,
    routing_id TEXT NOT NULL,
    source TEXT NOT NULL,
    init_segment TEXT NOT NULL DEFAULT '',
    flags TEXT NOT NULL DEFAULT '{}',
    active INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_routing_entries_routing ON routing_entries(routing_id, active);

-- Append-only snapshots of the routing directory, per routing. content is
-- the JSON array of entries captured at snapshot time.
CREATE TABLE IF NOT EXISTS routing_versions (
    routing_id TEXT NOT NULL,
    version INTEGER NOT NULL,
    content TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    created_by TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (routing_id, version)
);

CREATE TABLE IF NOT EXISTS config (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
