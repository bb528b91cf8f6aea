package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/memctl/memctl/internal/memory"
)

func insertEvent(tx *sql.Tx, ev memory.Event) error {
	_, err := tx.Exec(
		`INSERT INTO memory_events (id, action, item_id, timestamp, detail, content_hash) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.Action), nullString(ev.ItemID), ev.Timestamp.UTC().Format(time.RFC3339), ev.Detail, ev.ContentHash,
	)
	return err
}

func insertEventDB(db *sql.DB, ev memory.Event) error {
	_, err := db.Exec(
		`INSERT INTO memory_events (id, action, item_id, timestamp, detail, content_hash) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.Action), nullString(ev.ItemID), ev.Timestamp.UTC().Format(time.RFC3339), ev.Detail, ev.ContentHash,
	)
	return err
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// LogEvent records a standalone audit event not tied to a single
// item mutation (e.g. search, loop_iter, policy_reject).
func (s *Store) LogEvent(ctx context.Context, ev memory.Event) error {
	if ev.ID == "" {
		ev.ID = s.minter.New("EVT")
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertEventDB(s.db, ev)
}

// ListEvents returns events for an item (or all events if itemID is
// empty), newest first, bounded by limit.
func (s *Store) ListEvents(ctx context.Context, itemID string, limit int) ([]memory.Event, error) {
	if limit <= 0 {
		limit = 200
	}
	var rows *sql.Rows
	var err error
	if itemID == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, action, item_id, timestamp, detail, content_hash FROM memory_events ORDER BY timestamp DESC LIMIT ?`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, action, item_id, timestamp, detail, content_hash FROM memory_events WHERE item_id = ? ORDER BY timestamp DESC LIMIT ?`, itemID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []memory.Event
	for rows.Next() {
		var ev memory.Event
		var action string
		var iid sql.NullString
		var ts string
		if err := rows.Scan(&ev.ID, &action, &iid, &ts, &ev.Detail, &ev.ContentHash); err != nil {
			return nil, err
		}
		ev.Action = memory.EventAction(action)
		if iid.Valid {
			ev.ItemID = iid.String
		}
		ev.Timestamp, _ = time.Parse(time.RFC3339, ts)
		out = append(out, ev)
	}
	return out, rows.Err()
}
