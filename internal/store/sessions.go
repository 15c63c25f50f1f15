package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
)

// SaveSession upserts the latest serialized context for one session.
func (s *SQLiteStore) SaveSession(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		return fmt.Errorf("session id is required")
	}
	if len(sess.Context) == 0 {
		return fmt.Errorf("session context is required")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, initial_description, context)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			context    = excluded.context,
			updated_at = CURRENT_TIMESTAMP`,
		sess.ID, sess.InitialDescription, sess.Context)
	if err != nil {
		return fmt.Errorf("saving session %s: %w", sess.ID, err)
	}
	return nil
}

// GetSession loads one session by id. Returns nil, nil when not found.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, initial_description, context, created_at, updated_at
		FROM sessions WHERE id = ?`, id)

	var sess Session
	err := row.Scan(&sess.ID, &sess.InitialDescription, &sess.Context, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}
	return &sess, nil
}

// ListSessions returns sessions most recently updated first.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, initial_description, context, created_at, updated_at
		FROM sessions
		ORDER BY updated_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.InitialDescription, &sess.Context, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and, via cascade, its interaction log.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	return nil
}

// LogInteraction appends one interaction event. The log is append-only;
// there is deliberately no update or delete for individual events.
func (s *SQLiteStore) LogInteraction(ctx context.Context, e *InteractionEvent) (int64, error) {
	if e.SessionID == "" {
		return 0, fmt.Errorf("session id is required")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO interaction_events (session_id, interaction_id, tag, input, field_changes)
		VALUES (?, ?, ?, ?, ?)`,
		e.SessionID, e.InteractionID, e.Tag, e.Input, e.FieldChanges)
	if err != nil {
		return 0, fmt.Errorf("logging interaction: %w", err)
	}
	return res.LastInsertId()
}

// ListInteractions returns a session's events oldest first.
func (s *SQLiteStore) ListInteractions(ctx context.Context, sessionID string, limit int) ([]*InteractionEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, interaction_id, tag, input, COALESCE(field_changes, ''), created_at
		FROM interaction_events
		WHERE session_id = ?
		ORDER BY id
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing interactions: %w", err)
	}
	defer rows.Close()

	var out []*InteractionEvent
	for rows.Next() {
		var e InteractionEvent
		if err := rows.Scan(&e.ID, &e.SessionID, &e.InteractionID, &e.Tag, &e.Input, &e.FieldChanges, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning interaction: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Stats reports row counts and the database file size.
func (s *SQLiteStore) Stats(ctx context.Context) (*StoreStats, error) {
	var st StoreStats

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&st.SessionCount); err != nil {
		return nil, fmt.Errorf("counting sessions: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM interaction_events`).Scan(&st.EventCount); err != nil {
		return nil, fmt.Errorf("counting events: %w", err)
	}

	if s.dbPath != ":memory:" {
		if fi, err := os.Stat(s.dbPath); err == nil {
			st.DBSizeBytes = fi.Size()
		}
	}
	return &st, nil
}
