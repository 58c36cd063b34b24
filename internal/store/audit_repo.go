package store

import (
	"context"
	"database/sql"

	"github.com/taskroute/engine/internal/domain"
)

// AuditRepo handles persistence for AuditRecord entries.
type AuditRepo struct{}

// Record inserts an audit record.
func (r *AuditRepo) Record(ctx context.Context, db *sql.DB, rec domain.AuditRecord) error {
	const q = `INSERT INTO audit_records (id, session_id, category, actor, action, request_json, decision_json, severity, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q,
		rec.ID,
		rec.SessionID,
		rec.Category,
		rec.Actor,
		rec.Action,
		rec.RequestJSON,
		rec.DecisionJSON,
		rec.Severity,
		rec.CreatedAt,
	)
	if err != nil {
		return domain.WrapEngineError(domain.ErrStoreWrite.Code, "record audit", err)
	}
	return nil
}

// ListBySession returns all audit records for a session, oldest first.
func (r *AuditRepo) ListBySession(ctx context.Context, db *sql.DB, sessionID string) ([]domain.AuditRecord, error) {
	const q = `SELECT id, session_id, category, actor, action, request_json, decision_json, severity, created_at
FROM audit_records
WHERE session_id = ?
ORDER BY created_at ASC, id ASC`

	rows, err := db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, domain.WrapEngineError(domain.ErrStoreQuery.Code, "list audit records", err)
	}
	defer rows.Close()

	var records []domain.AuditRecord
	for rows.Next() {
		var a domain.AuditRecord
		if err := rows.Scan(&a.ID, &a.SessionID, &a.Category, &a.Actor, &a.Action,
			&a.RequestJSON, &a.DecisionJSON, &a.Severity, &a.CreatedAt); err != nil {
			return nil, domain.WrapEngineError(domain.ErrStoreQuery.Code, "scan audit record", err)
		}
		records = append(records, a)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapEngineError(domain.ErrStoreQuery.Code, "iterate audit records", err)
	}
	return records, nil
}
