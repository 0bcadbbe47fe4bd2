package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wuhu-labs/wuhu/pkg/types"
)

// AppendEntry re-reads the session's tail_entry_id, inserts a new entry as
// its child, and updates tail_entry_id/updated_at, all in one transaction
// (spec §4.1). If payload is session_settings, the session's provider/model
// fields are updated in the same transaction.
func (s *Store) AppendEntry(ctx context.Context, sessionID string, payload types.Payload) (*types.Entry, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := time.Now().UnixNano()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx: %v", types.ErrStoreError, err)
	}
	defer tx.Rollback()

	var tailID sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT tail_entry_id FROM sessions WHERE id = ?`, sessionID).Scan(&tailID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", types.ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read tail: %v", types.ErrStoreError, err)
	}
	if !tailID.Valid {
		return nil, fmt.Errorf("%w: session %s has no tail entry", types.ErrSessionCorrupt, sessionID)
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal payload: %v", types.ErrStoreError, err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO session_entries (session_id, parent_entry_id, type, payload, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		sessionID, tailID.Int64, string(payload.Kind), payloadJSON, now,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: insert entry: %v", types.ErrSessionCorrupt, err)
	}
	newID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("%w: entry id: %v", types.ErrSessionCorrupt, err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET tail_entry_id = ?, updated_at = ? WHERE id = ?`, newID, now, sessionID); err != nil {
		return nil, fmt.Errorf("%w: update tail: %v", types.ErrSessionCorrupt, err)
	}

	if payload.Kind == types.PayloadSessionSettings && payload.SessionSettings != nil {
		if err := s.updateSessionSettingsTx(ctx, tx, sessionID, *payload.SessionSettings, now); err != nil {
			return nil, fmt.Errorf("%w: update settings: %v", types.ErrSessionCorrupt, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", types.ErrSessionCorrupt, err)
	}

	parent := tailID.Int64
	return &types.Entry{ID: newID, SessionID: sessionID, ParentEntryID: &parent, CreatedAt: now, Payload: payload}, nil
}

// GetEntriesOptions filters get_entries (spec §4.1).
type GetEntriesOptions struct {
	SinceCursor *int64
	SinceTime   *int64
}

// GetEntries reads a session's entries. With no filter it runs the
// linearization check: builds a parent->child map, walks from head, and
// verifies the walk reaches exactly the expected count and ends at
// tail_entry_id; any mismatch is types.ErrSessionCorrupt. With a filter it
// simply returns the matching range in ascending id order (spec §8:
// "get_entries(since_cursor=C) returns only entries with id > C").
func (s *Store) GetEntries(ctx context.Context, sessionID string, opts GetEntriesOptions) ([]*types.Entry, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, session_id, parent_entry_id, type, payload, created_at FROM session_entries WHERE session_id = ?`
	args := []any{sessionID}
	if opts.SinceCursor != nil {
		query += ` AND id > ?`
		args = append(args, *opts.SinceCursor)
	}
	if opts.SinceTime != nil {
		query += ` AND created_at > ?`
		args = append(args, *opts.SinceTime)
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query entries: %v", types.ErrStoreError, err)
	}
	defer rows.Close()

	var entries []*types.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan entry: %v", types.ErrStoreError, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStoreError, err)
	}

	if opts.SinceCursor == nil && opts.SinceTime == nil {
		if err := verifyLinearization(entries, sess); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func scanEntry(rows *sql.Rows) (*types.Entry, error) {
	var e types.Entry
	var parentID sql.NullInt64
	var typeStr string
	var payloadBytes []byte

	if err := rows.Scan(&e.ID, &e.SessionID, &parentID, &typeStr, &payloadBytes, &e.CreatedAt); err != nil {
		return nil, err
	}
	if parentID.Valid {
		v := parentID.Int64
		e.ParentEntryID = &v
	}
	if err := json.Unmarshal(payloadBytes, &e.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload for entry %d: %w", e.ID, err)
	}
	return &e, nil
}

// verifyLinearization walks the parent->child chain from the session's head
// and verifies it visits every loaded entry exactly once and ends at tail
// (spec §4.1, §8).
func verifyLinearization(entries []*types.Entry, sess *types.Session) error {
	if len(entries) == 0 {
		if sess.HeadEntryID == 0 && sess.TailEntryID == 0 {
			return nil
		}
		return fmt.Errorf("%w: session %s has head/tail but no entries", types.ErrSessionCorrupt, sess.ID)
	}

	byID := make(map[int64]*types.Entry, len(entries))
	childOf := make(map[int64]int64, len(entries)) // parent id -> child id
	var headers []int64
	for _, e := range entries {
		byID[e.ID] = e
		if e.ParentEntryID == nil {
			headers = append(headers, e.ID)
			continue
		}
		if _, dup := childOf[*e.ParentEntryID]; dup {
			return fmt.Errorf("%w: session %s has a fork at entry %d", types.ErrSessionCorrupt, sess.ID, *e.ParentEntryID)
		}
		childOf[*e.ParentEntryID] = e.ID
	}
	if len(headers) != 1 {
		return fmt.Errorf("%w: session %s has %d header entries, want 1", types.ErrSessionCorrupt, sess.ID, len(headers))
	}
	if headers[0] != sess.HeadEntryID {
		return fmt.Errorf("%w: session %s head_entry_id mismatch", types.ErrSessionCorrupt, sess.ID)
	}

	visited := 0
	cur := headers[0]
	seen := map[int64]bool{}
	for {
		if seen[cur] {
			return fmt.Errorf("%w: session %s has a cycle at entry %d", types.ErrSessionCorrupt, sess.ID, cur)
		}
		seen[cur] = true
		visited++
		next, ok := childOf[cur]
		if !ok {
			break
		}
		cur = next
	}
	if visited != len(entries) {
		return fmt.Errorf("%w: session %s linearization visited %d of %d entries", types.ErrSessionCorrupt, sess.ID, visited, len(entries))
	}
	if cur != sess.TailEntryID {
		return fmt.Errorf("%w: session %s tail_entry_id mismatch (chain ends at %d, session says %d)", types.ErrSessionCorrupt, sess.ID, cur, sess.TailEntryID)
	}
	return nil
}
