package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/taskroute/engine/internal/domain"
)

// SessionRepo handles persistence for work sessions.
type SessionRepo struct{}

// Create inserts a new active session.
func (r *SessionRepo) Create(ctx context.Context, db *sql.DB, s domain.Session) error {
	const q = `INSERT INTO sessions (session_id, started_at, archived_at) VALUES (?, ?, 0)`
	_, err := db.ExecContext(ctx, q, s.SessionID, s.StartedAtUnix)
	if err != nil {
		return domain.WrapEngineError(domain.ErrStoreWrite.Code, "create session", err)
	}
	return nil
}

// Archive stamps a session as archived.
func (r *SessionRepo) Archive(ctx context.Context, db *sql.DB, sessionID string, archivedAtUnix int64) error {
	const q = `UPDATE sessions SET archived_at = ? WHERE session_id = ? AND archived_at = 0`
	res, err := db.ExecContext(ctx, q, archivedAtUnix, sessionID)
	if err != nil {
		return domain.WrapEngineError(domain.ErrStoreWrite.Code, "archive session", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNoActiveSession
	}
	return nil
}

// GetActive returns the current unarchived session, or ErrNoActiveSession.
func (r *SessionRepo) GetActive(ctx context.Context, db *sql.DB) (*domain.Session, error) {
	const q = `SELECT session_id, started_at, archived_at
FROM sessions
WHERE archived_at = 0
ORDER BY started_at DESC
LIMIT 1`

	var s domain.Session
	err := db.QueryRowContext(ctx, q).Scan(&s.SessionID, &s.StartedAtUnix, &s.ArchivedAtUnix)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNoActiveSession
	}
	if err != nil {
		return nil, domain.WrapEngineError(domain.ErrStoreQuery.Code, "get active session", err)
	}
	return &s, nil
}
