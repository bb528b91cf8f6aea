package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/memctl/memctl/internal/memory"
)

// AddMount registers a folder as a mount, minting an id if absent.
func (s *Store) AddMount(ctx context.Context, m memory.Mount) (memory.Mount, error) {
	if m.ID == "" {
		m.ID = s.minter.New("MNT")
	}
	patternsJSON, err := json.Marshal(nonNil(m.IgnorePatterns))
	if err != nil {
		return memory.Mount{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO memory_mounts (id, path, name, ignore_patterns, lang_hint, last_synced_at) VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.Path, m.Name, string(patternsJSON), m.LangHint, nullTime(m.LastSyncedAt))
	if err != nil {
		return memory.Mount{}, fmt.Errorf("add mount: %w", err)
	}
	return m, nil
}

// GetMountByPath returns the mount registered at the exact path, if any.
func (s *Store) GetMountByPath(ctx context.Context, path string) (memory.Mount, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, path, name, ignore_patterns, lang_hint, last_synced_at FROM memory_mounts WHERE path = ?`, path)
	m, err := scanMount(row)
	if err == sql.ErrNoRows {
		return memory.Mount{}, false, nil
	}
	if err != nil {
		return memory.Mount{}, false, err
	}
	return m, true, nil
}

// GetMount returns a mount by id.
func (s *Store) GetMount(ctx context.Context, id string) (memory.Mount, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, path, name, ignore_patterns, lang_hint, last_synced_at FROM memory_mounts WHERE id = ?`, id)
	m, err := scanMount(row)
	if err == sql.ErrNoRows {
		return memory.Mount{}, fmt.Errorf("mount not found: %s", id)
	}
	return m, err
}

// ListMounts returns every registered mount.
func (s *Store) ListMounts(ctx context.Context) ([]memory.Mount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, path, name, ignore_patterns, lang_hint, last_synced_at FROM memory_mounts ORDER BY path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []memory.Mount
	for rows.Next() {
		m, err := scanMount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// RemoveMount deregisters a mount. Items previously ingested from it are
// left untouched — removing a mount stops future sync, it does not
// retroactively archive what was already ingested.
func (s *Store) RemoveMount(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM memory_mounts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mount not found: %s", id)
	}
	return nil
}

// TouchMountSynced stamps last_synced_at to now.
func (s *Store) TouchMountSynced(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`UPDATE memory_mounts SET last_synced_at = ? WHERE id = ?`, nowISO(), id)
	return err
}

func scanMount(row rowScanner) (memory.Mount, error) {
	var m memory.Mount
	var patternsJSON string
	var lastSynced sql.NullString
	err := row.Scan(&m.ID, &m.Path, &m.Name, &patternsJSON, &m.LangHint, &lastSynced)
	if err != nil {
		return m, err
	}
	_ = json.Unmarshal([]byte(patternsJSON), &m.IgnorePatterns)
	if lastSynced.Valid {
		t, _ := time.Parse(time.RFC3339, lastSynced.String)
		m.LastSyncedAt = &t
	}
	return m, nil
}
