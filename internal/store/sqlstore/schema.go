package sqlstore

// schema is intentionally dialect-neutral: both SQLite (3.35+) and Postgres accept
// "ON CONFLICT (...) DO NOTHING", so the per-backend differences this module
// has to account for elsewhere are bind-placeholder syntax and boolean literals
// (see dialect.go and assets.go). IDs are
// application-generated UUIDs stored as TEXT/VARCHAR(36) rather than a native
// postgres UUID column, so one statement set serves both backends.
const schema = `
CREATE TABLE IF NOT EXISTS assets (
	id TEXT PRIMARY KEY,
	hash TEXT UNIQUE,
	size_bytes BIGINT NOT NULL,
	mime_type TEXT,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS asset_references (
	id TEXT PRIMARY KEY,
	asset_id TEXT NOT NULL REFERENCES assets(id),
	owner_id TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL,
	preview_id TEXT,
	user_metadata BLOB,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	last_access_time TIMESTAMP NOT NULL,
	enrichment_level INTEGER NOT NULL DEFAULT 0,
	UNIQUE (asset_id, owner_id, name)
);

CREATE INDEX IF NOT EXISTS idx_references_last_access ON asset_references(last_access_time);
CREATE INDEX IF NOT EXISTS idx_references_created_at ON asset_references(created_at);
CREATE INDEX IF NOT EXISTS idx_references_updated_at ON asset_references(updated_at);
CREATE INDEX IF NOT EXISTS idx_references_name ON asset_references(name);
CREATE INDEX IF NOT EXISTS idx_references_enrichment ON asset_references(enrichment_level);
CREATE INDEX IF NOT EXISTS idx_references_owner ON asset_references(owner_id);

CREATE TABLE IF NOT EXISTS cache_states (
	id TEXT PRIMARY KEY,
	asset_id TEXT NOT NULL REFERENCES assets(id),
	file_path TEXT NOT NULL UNIQUE,
	mtime_ns BIGINT,
	needs_verify BOOLEAN NOT NULL DEFAULT FALSE,
	is_missing BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_cachestates_asset ON cache_states(asset_id);
CREATE INDEX IF NOT EXISTS idx_cachestates_missing ON cache_states(is_missing);

CREATE TABLE IF NOT EXISTS tags (
	name TEXT PRIMARY KEY,
	type TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS reference_tags (
	reference_id TEXT NOT NULL REFERENCES asset_references(id),
	tag_name TEXT NOT NULL REFERENCES tags(name),
	origin TEXT NOT NULL,
	added_at TIMESTAMP NOT NULL,
	PRIMARY KEY (reference_id, tag_name)
);

CREATE TABLE IF NOT EXISTS reference_meta (
	reference_id TEXT NOT NULL REFERENCES asset_references(id),
	key TEXT NOT NULL,
	ordinal INTEGER NOT NULL,
	val_kind INTEGER NOT NULL,
	val_str TEXT,
	val_num TEXT,
	val_bool BOOLEAN,
	val_json BLOB,
	PRIMARY KEY (reference_id, key, ordinal)
);

CREATE INDEX IF NOT EXISTS idx_refmeta_key_str ON reference_meta(key, val_str);
CREATE INDEX IF NOT EXISTS idx_refmeta_key_num ON reference_meta(key, val_num);
CREATE INDEX IF NOT EXISTS idx_refmeta_key_bool ON reference_meta(key, val_bool);

CREATE TABLE IF NOT EXISTS scanner_runs (
	id TEXT PRIMARY KEY,
	phase TEXT NOT NULL,
	state TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	finished_at TIMESTAMP,
	scanned BIGINT NOT NULL DEFAULT 0,
	created BIGINT NOT NULL DEFAULT 0,
	skipped BIGINT NOT NULL DEFAULT 0,
	error_count BIGINT NOT NULL DEFAULT 0
);
`
