package store

import (
	"context"
	"time"

	"github.com/memctl/memctl/internal/memory"
)

// WriteLink records a directed, typed relationship between two items.
// Duplicate (src, dst, rel) triples are idempotent.
func (s *Store) WriteLink(ctx context.Context, link memory.Link) error {
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO memory_links (src_id, dst_id, rel, created_at) VALUES (?, ?, ?, ?)`,
		link.SrcID, link.DstID, string(link.Rel), link.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

// RemoveLink deletes a specific (src, dst, rel) triple.
func (s *Store) RemoveLink(ctx context.Context, srcID, dstID string, rel memory.LinkRel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM memory_links WHERE src_id = ? AND dst_id = ? AND rel = ?`, srcID, dstID, string(rel))
	return err
}

// GetLinks returns every link where itemID appears as either endpoint.
func (s *Store) GetLinks(ctx context.Context, itemID string) ([]memory.Link, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT src_id, dst_id, rel, created_at FROM memory_links WHERE src_id = ? OR dst_id = ?`,
		itemID, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []memory.Link
	for rows.Next() {
		var l memory.Link
		var rel, ts string
		if err := rows.Scan(&l.SrcID, &l.DstID, &rel, &ts); err != nil {
			return nil, err
		}
		l.Rel = memory.LinkRel(rel)
		l.CreatedAt, _ = time.Parse(time.RFC3339, ts)
		out = append(out, l)
	}
	return out, rows.Err()
}
