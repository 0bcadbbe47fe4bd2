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

// CreateSessionParams groups create_session's arguments (spec §4.1).
type CreateSessionParams struct {
	ID              string
	Provider        string
	Model           string
	ReasoningEffort *types.ReasoningEffort
	SystemPrompt    string
	Environment     types.Environment
	Runner          *string
	ParentSession   *string
	Type            types.SessionType
	Metadata        map[string]any
}

// CreateSession inserts the session row and its single header entry in one
// transaction, then sets head_entry_id = tail_entry_id = header.id (spec
// §4.1). Fails with types.ErrSessionCorrupt if the header cannot be
// created.
func (s *Store) CreateSession(ctx context.Context, p CreateSessionParams) (*types.Session, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if p.Type == "" {
		p.Type = types.SessionTypeCoding
	}
	now := time.Now().UnixNano()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx: %v", types.ErrStoreError, err)
	}
	defer tx.Rollback()

	var reasoningEffort *string
	if p.ReasoningEffort != nil {
		v := string(*p.ReasoningEffort)
		reasoningEffort = &v
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (
			id, provider, model, reasoning_effort, environment_name, environment_type,
			environment_path, environment_template_path, environment_startup_script,
			cwd, runner, type, parent_session_id, created_at, updated_at, head_entry_id, tail_entry_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL)`,
		p.ID, p.Provider, p.Model, reasoningEffort,
		p.Environment.Name, string(p.Environment.Kind), p.Environment.Path,
		p.Environment.TemplatePath, p.Environment.StartupScript,
		p.Environment.Path, p.Runner, string(p.Type), p.ParentSession, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: insert session: %v", types.ErrSessionCorrupt, err)
	}

	header := types.HeaderPayloadOf(p.SystemPrompt, p.Metadata)
	payloadJSON, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal header: %v", types.ErrSessionCorrupt, err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO session_entries (session_id, parent_entry_id, type, payload, created_at)
		VALUES (?, NULL, ?, ?, ?)`,
		p.ID, string(types.PayloadHeader), payloadJSON, now,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: insert header entry: %v", types.ErrSessionCorrupt, err)
	}
	headerID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("%w: header entry id: %v", types.ErrSessionCorrupt, err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET head_entry_id = ?, tail_entry_id = ? WHERE id = ?`, headerID, headerID, p.ID); err != nil {
		return nil, fmt.Errorf("%w: set head/tail: %v", types.ErrSessionCorrupt, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", types.ErrSessionCorrupt, err)
	}

	return &types.Session{
		ID: p.ID, Provider: p.Provider, Model: p.Model, ReasoningEffort: p.ReasoningEffort,
		CWD: p.Environment.Path, Runner: p.Runner, ParentSessionID: p.ParentSession,
		Type: p.Type, Environment: p.Environment, CreatedAt: now, UpdatedAt: now,
		HeadEntryID: headerID, TailEntryID: headerID,
	}, nil
}

func scanSession(row interface{ Scan(...any) error }) (*types.Session, error) {
	var sess types.Session
	var reasoningEffort, templatePath, startupScript, runner, parentSession sql.NullString
	var environmentKindStr, sessionTypeStr string
	var headID, tailID sql.NullInt64

	err := row.Scan(
		&sess.ID, &sess.Provider, &sess.Model, &reasoningEffort,
		&sess.Environment.Name, &environmentKindStr, &sess.Environment.Path,
		&templatePath, &startupScript, &sess.CWD, &runner, &sessionTypeStr,
		&parentSession, &sess.CreatedAt, &sess.UpdatedAt, &headID, &tailID,
	)
	if err != nil {
		return nil, err
	}
	if reasoningEffort.Valid {
		v := types.ReasoningEffort(reasoningEffort.String)
		sess.ReasoningEffort = &v
	}
	if templatePath.Valid {
		sess.Environment.TemplatePath = &templatePath.String
	}
	if startupScript.Valid {
		sess.Environment.StartupScript = &startupScript.String
	}
	if runner.Valid {
		sess.Runner = &runner.String
	}
	if parentSession.Valid {
		sess.ParentSessionID = &parentSession.String
	}
	sess.Environment.Kind = types.EnvironmentKind(environmentKindStr)
	sess.Type = types.SessionType(sessionTypeStr)
	sess.HeadEntryID = headID.Int64
	sess.TailEntryID = tailID.Int64
	return &sess, nil
}

const sessionColumns = `id, provider, model, reasoning_effort, environment_name, environment_type,
	environment_path, environment_template_path, environment_startup_script,
	cwd, runner, type, parent_session_id, created_at, updated_at, head_entry_id, tail_entry_id`

// GetSession loads a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*types.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", types.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get session: %v", types.ErrStoreError, err)
	}
	return sess, nil
}

// ListSessions returns sessions ordered by updated_at descending (spec
// §4.1). limit<=0 means unbounded.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]*types.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY updated_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list sessions: %v", types.ErrStoreError, err)
	}
	defer rows.Close()

	var out []*types.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan session: %v", types.ErrStoreError, err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// updateSessionSettingsTx writes a provider/model/reasoning-effort change to
// the session row inside tx; AppendEntry calls it for session_settings
// entries, in the same transaction as the append.
func (s *Store) updateSessionSettingsTx(ctx context.Context, tx *sql.Tx, sessionID string, settings types.SessionSettings, now int64) error {
	var reasoningEffort *string
	if settings.ReasoningEffort != nil {
		v := string(*settings.ReasoningEffort)
		reasoningEffort = &v
	}
	_, err := tx.ExecContext(ctx, `UPDATE sessions SET provider = ?, model = ?, reasoning_effort = ?, updated_at = ? WHERE id = ?`,
		settings.Provider, settings.Model, reasoningEffort, now, sessionID)
	return err
}
