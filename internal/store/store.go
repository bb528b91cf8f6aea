// Package store implements memctl's single on-disk SQLite database: schema
// migrations, CRUD on items/events/links/mounts, the content-addressed hash
// registry, and FTS5 virtual table management (spec.md section 4.1).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"

	"github.com/memctl/memctl/internal/memory"
)

// Store owns every row in the database; readers receive deep copies
// (spec.md section 3's ownership rule).
type Store struct {
	db     *sql.DB
	minter memory.IDMinter
	log    *zap.Logger

	mu        sync.Mutex // serializes the single-writer rule within this process
	tokenizer string
}

// Options configure Open.
type Options struct {
	Tokenizer string // FTS5 tokenizer spec; empty = the "fr" preset
	Logger    *zap.Logger
}

// Open opens (creating if necessary) the SQLite database at path, applies
// any missing migrations, and initializes the FTS5 index.
func Open(path string, opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	tokenizer := opts.Tokenizer
	if tokenizer == "" {
		tokenizer = "unicode61 remove_diacritics 2"
	}
	if !ValidTokenizer(tokenizer) {
		return nil, fmt.Errorf("invalid fts tokenizer %q", tokenizer)
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, minter: memory.NewIDMinter(nil), log: opts.Logger, tokenizer: tokenizer}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.initFTS(tokenizer); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(baseSchemaSQL); err != nil {
		return fmt.Errorf("apply base schema: %w", err)
	}
	var version string
	row := s.db.QueryRow(`SELECT value FROM schema_meta WHERE key = 'schema_version'`)
	if err := row.Scan(&version); err != nil {
		if _, err := s.db.Exec(
			`INSERT INTO schema_meta(key, value) VALUES ('schema_version', ?)`,
			fmt.Sprintf("%d", SchemaVersion),
		); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	}
	return nil
}

// initFTS creates the FTS5 virtual table if missing, and warns (without
// failing the open) if the stored tokenizer differs from the configured
// one, per spec.md section 4.1.
func (s *Store) initFTS(tokenizer string) error {
	var stored string
	row := s.db.QueryRow(`SELECT value FROM schema_meta WHERE key = 'fts_tokenizer'`)
	err := row.Scan(&stored)
	if err == sql.ErrNoRows {
		if _, execErr := s.db.Exec(ftsSchemaSQL(tokenizer)); execErr != nil {
			return fmt.Errorf("create fts5 table: %w", execErr)
		}
		if _, execErr := s.db.Exec(
			`INSERT INTO schema_meta(key, value) VALUES ('fts_tokenizer', ?)`, tokenizer,
		); execErr != nil {
			return fmt.Errorf("record fts tokenizer: %w", execErr)
		}
		if _, execErr := s.db.Exec(
			`INSERT INTO schema_meta(key, value) VALUES ('fts_indexed_at', ?)`, nowISO(),
		); execErr != nil {
			return execErr
		}
		_, execErr := s.db.Exec(
			`INSERT INTO schema_meta(key, value) VALUES ('fts_reindex_count', '0')`)
		return execErr
	}
	if err != nil {
		return fmt.Errorf("read fts tokenizer meta: %w", err)
	}
	if stored != tokenizer {
		s.log.Warn("fts tokenizer mismatch on open; run reindex to rebind",
			zap.String("stored", stored), zap.String("configured", tokenizer))
	}
	return nil
}

// RebuildFTS drops and repopulates the FTS table with the named tokenizer
// preset, updates tokenizer metadata, and emits a reindex event
// (spec.md section 4.1's rebuild_fts).
func (s *Store) RebuildFTS(ctx context.Context, tokenizer string) (itemsIndexed int, duration time.Duration, err error) {
	if !ValidTokenizer(tokenizer) {
		return 0, 0, fmt.Errorf("invalid fts tokenizer %q", tokenizer)
	}
	start := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(dropFTSSQL()); err != nil {
		return 0, 0, fmt.Errorf("drop fts: %w", err)
	}
	if _, err := tx.Exec(ftsSchemaSQL(tokenizer)); err != nil {
		return 0, 0, fmt.Errorf("recreate fts: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO memory_items_fts(rowid, title, content, tags) SELECT rowid, title, content, tags FROM memory_items`,
	); err != nil {
		return 0, 0, fmt.Errorf("repopulate fts: %w", err)
	}

	row := tx.QueryRow(`SELECT COUNT(*) FROM memory_items`)
	if err := row.Scan(&itemsIndexed); err != nil {
		return 0, 0, err
	}

	if _, err := tx.Exec(
		`INSERT INTO schema_meta(key, value) VALUES ('fts_tokenizer', ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		tokenizer,
	); err != nil {
		return 0, 0, err
	}
	if _, err := tx.Exec(
		`INSERT INTO schema_meta(key, value) VALUES ('fts_indexed_at', ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		nowISO(),
	); err != nil {
		return 0, 0, err
	}
	if _, err := tx.Exec(
		`UPDATE schema_meta SET value = CAST(CAST(value AS INTEGER) + 1 AS TEXT) WHERE key = 'fts_reindex_count'`,
	); err != nil {
		return 0, 0, err
	}

	ev := memory.Event{ID: s.minter.New("EVT"), Action: memory.EventReindex, Timestamp: time.Now()}
	if err := insertEvent(tx, ev); err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}

	s.tokenizer = tokenizer
	return itemsIndexed, time.Since(start), nil
}

// withRetry wraps a storage mutation in bounded exponential backoff, for
// the database-lock-contention transient-error case from spec.md section 7
// (at most 3 attempts total). A permanent error (fn wrapped it in
// backoff.Permanent, e.g. a content-hash integrity violation) passes
// through unchanged.
func withRetry(ctx context.Context, fn func() error) error {
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2)
	return backoff.Retry(fn, backoff.WithContext(b, ctx))
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
