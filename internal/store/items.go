package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/memctl/memctl/internal/errs"
	"github.com/memctl/memctl/internal/memory"
)

// WriteItem inserts a new item, stamping its id and content hash, appends
// a revision recording why it was written, and records a write event. It
// enforces spec.md section 3's content-hash/scope uniqueness invariant
// itself — a live (non-archived) item already holding the same content
// hash in the same scope fails the write with errs.Integrity rather than
// silently duplicating. reason is the policy decision or caller intent
// that justified this write (e.g. "policy=accept", "ingest: push") and is
// what satisfies spec.md section 3's "every live item has at least one
// policy decision recorded in its revision chain" invariant — it returns
// the id of the memory_revisions row it appended (spec.md section 4.1).
func (s *Store) WriteItem(ctx context.Context, it memory.Item, reason string) (memory.Item, string, error) {
	if it.ID == "" {
		it.ID = s.minter.New("MEM")
	}
	hash := it.ContentHash()

	s.mu.Lock()
	defer s.mu.Unlock()

	var revisionID string
	err := withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var existingID string
		dupErr := tx.QueryRowContext(ctx,
			`SELECT id FROM memory_items WHERE content_hash = ? AND scope = ? AND archived = 0 LIMIT 1`,
			hash, it.Scope,
		).Scan(&existingID)
		if dupErr == nil {
			return backoff.Permanent(errs.Integrity(nil, "content hash %s already live in scope %q as %s", hash, it.Scope, existingID))
		}
		if dupErr != sql.ErrNoRows {
			return dupErr
		}

		if err := insertItem(tx, it, hash); err != nil {
			return err
		}
		revisionID, err = appendRevision(tx, s.minter, it, reason)
		if err != nil {
			return err
		}
		ev := memory.Event{
			ID: s.minter.New("EVT"), Action: memory.EventWrite, ItemID: it.ID,
			Timestamp: time.Now(), ContentHash: hash,
		}
		if err := insertEvent(tx, ev); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		if ae, ok := errs.As(err); ok {
			return memory.Item{}, "", ae
		}
		return memory.Item{}, "", fmt.Errorf("write item: %w", err)
	}
	return it, revisionID, nil
}

// appendRevision inserts the next memory_revisions row for it, numbering
// revisions per-item starting at 1, and returns the new revision's id.
func appendRevision(tx *sql.Tx, minter memory.IDMinter, it memory.Item, reason string) (string, error) {
	var maxNum int
	if err := tx.QueryRow(`SELECT COALESCE(MAX(revision_num), 0) FROM memory_revisions WHERE item_id = ?`, it.ID).Scan(&maxNum); err != nil {
		return "", err
	}
	snapshot, err := json.Marshal(it)
	if err != nil {
		return "", err
	}
	id := minter.New("REV")
	_, err = tx.Exec(
		`INSERT INTO memory_revisions (id, item_id, revision_num, reason, snapshot, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, it.ID, maxNum+1, reason, string(snapshot), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

func insertItem(tx *sql.Tx, it memory.Item, hash string) error {
	tagsJSON, err := json.Marshal(nonNil(it.Tags))
	if err != nil {
		return err
	}
	entitiesJSON, err := json.Marshal(nonNil(it.Entities))
	if err != nil {
		return err
	}
	provJSON, err := json.Marshal(it.Provenance)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`
		INSERT INTO memory_items (
			id, tier, type, title, content, content_hash, tags, entities, provenance,
			confidence, validation, scope, expires_at, usage_count, last_used_at,
			created_at, updated_at, rule_id, corpus_id, superseded_by, archived, injectable
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.ID, string(it.Tier), it.Type, it.Title, it.Content, hash,
		string(tagsJSON), string(entitiesJSON), string(provJSON),
		it.Confidence, string(it.Validation), it.Scope,
		nullTime(it.ExpiresAt), it.UsageCount, nullTime(it.LastUsedAt),
		it.CreatedAt.UTC().Format(time.RFC3339), it.UpdatedAt.UTC().Format(time.RFC3339),
		it.RuleID, it.CorpusID, it.SupersededBy, boolToInt(it.Archived), boolToInt(it.Injectable),
	)
	return err
}

// ReadItem fetches an item by id. When incrementUsage is true, usage_count
// and last_used_at are bumped as part of the same read — callers opt in
// explicitly; the store never increments implicitly (spec.md section 4.1).
func (s *Store) ReadItem(ctx context.Context, id string, incrementUsage bool) (memory.Item, error) {
	row := s.db.QueryRowContext(ctx, itemSelectSQL+` WHERE id = ?`, id)
	it, err := scanItem(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return memory.Item{}, fmt.Errorf("item not found: %s", id)
		}
		return memory.Item{}, err
	}

	if incrementUsage {
		now := time.Now()
		it.Touch(now)
		s.mu.Lock()
		_, execErr := s.db.ExecContext(ctx,
			`UPDATE memory_items SET usage_count = ?, last_used_at = ?, updated_at = ? WHERE id = ?`,
			it.UsageCount, nullTime(it.LastUsedAt), it.UpdatedAt.UTC().Format(time.RFC3339), it.ID)
		s.mu.Unlock()
		if execErr != nil {
			return memory.Item{}, execErr
		}
		ev := memory.Event{ID: s.minter.New("EVT"), Action: memory.EventRead, ItemID: it.ID, Timestamp: now}
		if err := insertEventDB(s.db, ev); err != nil {
			return memory.Item{}, err
		}
	}
	return it, nil
}

// UpdateItem overwrites the mutable fields of an existing item (content,
// tags, confidence, validation, tier, etc.) and records an update event.
// The caller is responsible for re-running policy evaluation before
// calling UpdateItem with changed content.
func (s *Store) UpdateItem(ctx context.Context, it memory.Item) error {
	it.UpdatedAt = time.Now()
	hash := it.ContentHash()

	s.mu.Lock()
	defer s.mu.Unlock()

	return withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		tagsJSON, _ := json.Marshal(nonNil(it.Tags))
		entitiesJSON, _ := json.Marshal(nonNil(it.Entities))
		provJSON, _ := json.Marshal(it.Provenance)

		res, err := tx.Exec(`
			UPDATE memory_items SET
				tier=?, type=?, title=?, content=?, content_hash=?, tags=?, entities=?,
				provenance=?, confidence=?, validation=?, scope=?, expires_at=?,
				usage_count=?, last_used_at=?, updated_at=?, rule_id=?, corpus_id=?,
				superseded_by=?, archived=?, injectable=?
			WHERE id = ?`,
			string(it.Tier), it.Type, it.Title, it.Content, hash,
			string(tagsJSON), string(entitiesJSON), string(provJSON),
			it.Confidence, string(it.Validation), it.Scope, nullTime(it.ExpiresAt),
			it.UsageCount, nullTime(it.LastUsedAt), it.UpdatedAt.UTC().Format(time.RFC3339),
			it.RuleID, it.CorpusID, it.SupersededBy, boolToInt(it.Archived), boolToInt(it.Injectable),
			it.ID,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("item not found: %s", it.ID)
		}
		ev := memory.Event{ID: s.minter.New("EVT"), Action: memory.EventUpdate, ItemID: it.ID,
			Timestamp: it.UpdatedAt, ContentHash: hash}
		if err := insertEvent(tx, ev); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// ArchiveItem marks an item archived without deleting its row, freeing its
// content hash for reuse and recording an archive event (spec.md section
// 4.1's archival contract).
func (s *Store) ArchiveItem(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		res, err := tx.Exec(`UPDATE memory_items SET archived = 1, updated_at = ? WHERE id = ?`,
			nowISO(), id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("item not found: %s", id)
		}
		ev := memory.Event{ID: s.minter.New("EVT"), Action: memory.EventArchive, ItemID: id, Timestamp: time.Now()}
		if err := insertEvent(tx, ev); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// SupersedeItem archives the old item, links old->new with "supersedes",
// and records the link atomically — the primitive consolidation and
// re-ingestion both build on.
func (s *Store) SupersedeItem(ctx context.Context, oldID, newID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.Exec(
			`UPDATE memory_items SET archived = 1, superseded_by = ?, updated_at = ? WHERE id = ?`,
			newID, nowISO(), oldID,
		); err != nil {
			return err
		}
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO memory_links (src_id, dst_id, rel, created_at) VALUES (?, ?, ?, ?)`,
			newID, oldID, string(memory.LinkSupersedes), nowISO(),
		); err != nil {
			return err
		}
		ev := memory.Event{ID: s.minter.New("EVT"), Action: memory.EventArchive, ItemID: oldID,
			Timestamp: time.Now(), Detail: "superseded_by=" + newID}
		if err := insertEvent(tx, ev); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// ListItems returns items matching the given filters, newest first.
type ListFilter struct {
	Tier            memory.Tier
	Type            string
	Scope           string
	IncludeArchived bool
	Limit           int
}

func (s *Store) ListItems(ctx context.Context, f ListFilter) ([]memory.Item, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if f.Tier != "" {
		where = append(where, "tier = ?")
		args = append(args, string(f.Tier))
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, f.Type)
	}
	if f.Scope != "" {
		where = append(where, "scope = ?")
		args = append(args, f.Scope)
	}
	if !f.IncludeArchived {
		where = append(where, "archived = 0")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	q := itemSelectSQL + ` WHERE ` + join(where, " AND ") + ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []memory.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// FindByContentHash returns the live (non-archived) item with the given
// content hash in scope, if any — the uniqueness check callers must run
// before WriteItem.
func (s *Store) FindByContentHash(ctx context.Context, hash, scope string) (memory.Item, bool, error) {
	row := s.db.QueryRowContext(ctx,
		itemSelectSQL+` WHERE content_hash = ? AND scope = ? AND archived = 0 LIMIT 1`, hash, scope)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return memory.Item{}, false, nil
	}
	if err != nil {
		return memory.Item{}, false, err
	}
	return it, true, nil
}

// CountItems returns the number of live items, optionally filtered by tier.
func (s *Store) CountItems(ctx context.Context, tier memory.Tier) (int, error) {
	var n int
	var err error
	if tier == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory_items WHERE archived = 0`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM memory_items WHERE archived = 0 AND tier = ?`, string(tier)).Scan(&n)
	}
	return n, err
}

const itemSelectSQL = `
SELECT id, tier, type, title, content, content_hash, tags, entities, provenance,
       confidence, validation, scope, expires_at, usage_count, last_used_at,
       created_at, updated_at, rule_id, corpus_id, superseded_by, archived, injectable
FROM memory_items`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (memory.Item, error) {
	var it memory.Item
	var tier, validation string
	var tagsJSON, entitiesJSON, provJSON string
	var createdAt, updatedAt string
	var expiresAt, lastUsedAt sql.NullString
	var archived, injectable int

	err := row.Scan(
		&it.ID, &tier, &it.Type, &it.Title, &it.Content, new(string), &tagsJSON, &entitiesJSON, &provJSON,
		&it.Confidence, &validation, &it.Scope, &expiresAt, &it.UsageCount, &lastUsedAt,
		&createdAt, &updatedAt, &it.RuleID, &it.CorpusID, &it.SupersededBy, &archived, &injectable,
	)
	if err != nil {
		return it, err
	}
	it.Tier = memory.Tier(tier)
	it.Validation = memory.Validation(validation)
	it.Archived = archived != 0
	it.Injectable = injectable != 0
	_ = json.Unmarshal([]byte(tagsJSON), &it.Tags)
	_ = json.Unmarshal([]byte(entitiesJSON), &it.Entities)
	_ = json.Unmarshal([]byte(provJSON), &it.Provenance)
	it.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	it.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if expiresAt.Valid {
		t, _ := time.Parse(time.RFC3339, expiresAt.String)
		it.ExpiresAt = &t
	}
	if lastUsedAt.Valid {
		t, _ := time.Parse(time.RFC3339, lastUsedAt.String)
		it.LastUsedAt = &t
	}
	return it, nil
}

func nonNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func join(parts []string, sep string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}
