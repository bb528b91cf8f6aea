package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/memctl/memctl/internal/memory"
)

// UpsertCorpusHash records (or updates) the ingestion fingerprint for one
// source file within a mount, the row delta sync (spec.md section 4.7)
// reads back on the next pass.
func (s *Store) UpsertCorpusHash(ctx context.Context, ch memory.CorpusHash) error {
	idsJSON, err := json.Marshal(nonNil(ch.ItemIDs))
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO corpus_hashes (sha256, mount_id, rel_path, ext, size_bytes, mtime_epoch, lang_hint, item_ids, archived)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(mount_id, rel_path) DO UPDATE SET
			sha256 = excluded.sha256, ext = excluded.ext, size_bytes = excluded.size_bytes,
			mtime_epoch = excluded.mtime_epoch, lang_hint = excluded.lang_hint,
			item_ids = excluded.item_ids, archived = excluded.archived`,
		ch.SHA256, ch.MountID, ch.RelPath, ch.Ext, ch.SizeBytes, ch.MtimeEpoch, ch.LangHint,
		string(idsJSON), boolToInt(ch.Archived))
	return err
}

// GetCorpusHash fetches the fingerprint row for a mount-relative path, if
// one exists.
func (s *Store) GetCorpusHash(ctx context.Context, mountID, relPath string) (memory.CorpusHash, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT sha256, mount_id, rel_path, ext, size_bytes, mtime_epoch, lang_hint, item_ids, archived
		 FROM corpus_hashes WHERE mount_id = ? AND rel_path = ?`, mountID, relPath)
	ch, err := scanCorpusHash(row)
	if err == sql.ErrNoRows {
		return memory.CorpusHash{}, false, nil
	}
	if err != nil {
		return memory.CorpusHash{}, false, err
	}
	return ch, true, nil
}

// ListCorpusHashes returns every fingerprint row registered under a mount,
// used by sync's staleness check and orphan detection.
func (s *Store) ListCorpusHashes(ctx context.Context, mountID string) ([]memory.CorpusHash, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sha256, mount_id, rel_path, ext, size_bytes, mtime_epoch, lang_hint, item_ids, archived
		 FROM corpus_hashes WHERE mount_id = ?`, mountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []memory.CorpusHash
	for rows.Next() {
		ch, err := scanCorpusHash(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// ArchiveCorpusHash marks a fingerprint row archived without deleting it,
// used when a previously ingested file disappears from the mount on sync.
func (s *Store) ArchiveCorpusHash(ctx context.Context, mountID, relPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`UPDATE corpus_hashes SET archived = 1 WHERE mount_id = ? AND rel_path = ?`, mountID, relPath)
	return err
}

func scanCorpusHash(row rowScanner) (memory.CorpusHash, error) {
	var ch memory.CorpusHash
	var idsJSON string
	var archived int
	err := row.Scan(&ch.SHA256, &ch.MountID, &ch.RelPath, &ch.Ext, &ch.SizeBytes, &ch.MtimeEpoch,
		&ch.LangHint, &idsJSON, &archived)
	if err != nil {
		return ch, err
	}
	_ = json.Unmarshal([]byte(idsJSON), &ch.ItemIDs)
	ch.Archived = archived != 0
	return ch, nil
}
