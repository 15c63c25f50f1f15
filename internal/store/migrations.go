package store

import "fmt"

// migrate creates all tables if they don't exist.
func (s *SQLiteStore) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id                  TEXT PRIMARY KEY,
			initial_description TEXT,
			context             BLOB NOT NULL,
			created_at          DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at          DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS interaction_events (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id     TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			interaction_id TEXT NOT NULL,
			tag            TEXT NOT NULL,
			input          TEXT NOT NULL,
			field_changes  TEXT,
			created_at     DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_events_session
			ON interaction_events(session_id, id)`,

		`CREATE INDEX IF NOT EXISTS idx_sessions_updated
			ON sessions(updated_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}
	return nil
}
