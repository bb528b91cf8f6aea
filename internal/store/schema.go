package store

import (
	"fmt"
	"regexp"
)

// SchemaVersion is the monotonically increasing schema version recorded in
// schema_meta (spec.md section 4.1).
const SchemaVersion = 1

const baseSchemaSQL = `
CREATE TABLE IF NOT EXISTS memory_items (
	id TEXT PRIMARY KEY,
	tier TEXT NOT NULL,
	type TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	tags TEXT NOT NULL DEFAULT '[]',
	entities TEXT NOT NULL DEFAULT '[]',
	provenance TEXT NOT NULL DEFAULT '{}',
	confidence REAL NOT NULL DEFAULT 0.5,
	validation TEXT NOT NULL DEFAULT 'unverified',
	scope TEXT NOT NULL DEFAULT '',
	expires_at TEXT,
	usage_count INTEGER NOT NULL DEFAULT 0,
	last_used_at TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	rule_id TEXT NOT NULL DEFAULT '',
	corpus_id TEXT NOT NULL DEFAULT '',
	superseded_by TEXT NOT NULL DEFAULT '',
	archived INTEGER NOT NULL DEFAULT 0,
	injectable INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_items_tier ON memory_items(tier);
CREATE INDEX IF NOT EXISTS idx_items_scope ON memory_items(scope);
CREATE INDEX IF NOT EXISTS idx_items_content_hash ON memory_items(content_hash);
CREATE INDEX IF NOT EXISTS idx_items_corpus_id ON memory_items(corpus_id);
CREATE INDEX IF NOT EXISTS idx_items_archived ON memory_items(archived);

CREATE TABLE IF NOT EXISTS memory_revisions (
	id TEXT PRIMARY KEY,
	item_id TEXT NOT NULL,
	revision_num INTEGER NOT NULL,
	reason TEXT NOT NULL,
	snapshot TEXT NOT NULL,
	created_at TEXT NOT NULL,
	FOREIGN KEY (item_id) REFERENCES memory_items(id)
);

CREATE INDEX IF NOT EXISTS idx_revisions_item_id ON memory_revisions(item_id);

CREATE TABLE IF NOT EXISTS memory_events (
	id TEXT PRIMARY KEY,
	action TEXT NOT NULL,
	item_id TEXT,
	timestamp TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	content_hash TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_events_item_id ON memory_events(item_id);
CREATE INDEX IF NOT EXISTS idx_events_action ON memory_events(action);

CREATE TABLE IF NOT EXISTS memory_links (
	src_id TEXT NOT NULL,
	dst_id TEXT NOT NULL,
	rel TEXT NOT NULL,
	created_at TEXT NOT NULL,
	PRIMARY KEY (src_id, dst_id, rel)
);

CREATE INDEX IF NOT EXISTS idx_links_dst ON memory_links(dst_id);

CREATE TABLE IF NOT EXISTS corpus_hashes (
	sha256 TEXT NOT NULL,
	mount_id TEXT NOT NULL DEFAULT '',
	rel_path TEXT NOT NULL,
	ext TEXT NOT NULL DEFAULT '',
	size_bytes INTEGER NOT NULL DEFAULT 0,
	mtime_epoch REAL NOT NULL DEFAULT 0,
	lang_hint TEXT NOT NULL DEFAULT '',
	item_ids TEXT NOT NULL DEFAULT '[]',
	archived INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (mount_id, rel_path)
);

CREATE INDEX IF NOT EXISTS idx_corpus_hashes_sha ON corpus_hashes(sha256);

CREATE TABLE IF NOT EXISTS memory_mounts (
	id TEXT PRIMARY KEY,
	path TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL DEFAULT '',
	ignore_patterns TEXT NOT NULL DEFAULT '[]',
	lang_hint TEXT NOT NULL DEFAULT '',
	last_synced_at TEXT
);

CREATE TABLE IF NOT EXISTS schema_meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// ftsTokenizerPattern whitelists the characters allowed in a tokenizer
// string before it is formatted into DDL, preventing SQL injection via a
// config-supplied tokenizer name (grounded in the original's
// _FTS_TOKENIZER_PATTERN).
var ftsTokenizerPattern = regexp.MustCompile(`^[a-zA-Z0-9_ .\-]+$`)

// ValidTokenizer reports whether tokenizer is safe to format into DDL.
func ValidTokenizer(tokenizer string) bool {
	return ftsTokenizerPattern.MatchString(tokenizer)
}

func ftsSchemaSQL(tokenizer string) string {
	return fmt.Sprintf(`
CREATE VIRTUAL TABLE IF NOT EXISTS memory_items_fts USING fts5(
	title, content, tags,
	content='memory_items', content_rowid='rowid',
	tokenize='%s'
);

CREATE TRIGGER IF NOT EXISTS memory_items_ai AFTER INSERT ON memory_items BEGIN
	INSERT INTO memory_items_fts(rowid, title, content, tags)
	VALUES (new.rowid, new.title, new.content, new.tags);
END;

CREATE TRIGGER IF NOT EXISTS memory_items_ad AFTER DELETE ON memory_items BEGIN
	INSERT INTO memory_items_fts(memory_items_fts, rowid, title, content, tags)
	VALUES ('delete', old.rowid, old.title, old.content, old.tags);
END;

CREATE TRIGGER IF NOT EXISTS memory_items_au AFTER UPDATE ON memory_items BEGIN
	INSERT INTO memory_items_fts(memory_items_fts, rowid, title, content, tags)
	VALUES ('delete', old.rowid, old.title, old.content, old.tags);
	INSERT INTO memory_items_fts(rowid, title, content, tags)
	VALUES (new.rowid, new.title, new.content, new.tags);
END;
`, tokenizer)
}

func dropFTSSQL() string {
	return `
DROP TRIGGER IF EXISTS memory_items_ai;
DROP TRIGGER IF EXISTS memory_items_ad;
DROP TRIGGER IF EXISTS memory_items_au;
DROP TABLE IF EXISTS memory_items_fts;
`
}
