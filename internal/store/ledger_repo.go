package store

import (
	"context"
	"database/sql"

	"github.com/taskroute/engine/internal/domain"
)

// LedgerRepo handles persistence for the append-only ledger history.
type LedgerRepo struct{}

// Append inserts one ledger entry. Entries are never updated or deleted.
func (r *LedgerRepo) Append(ctx context.Context, db *sql.DB, entry domain.LedgerEntry) error {
	const q = `INSERT INTO ledger_entries (entry_id, delta, reason_code, created_at)
VALUES (?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q, entry.EntryID, entry.Delta, entry.ReasonCode, entry.Timestamp)
	if err != nil {
		return domain.WrapEngineError(domain.ErrStoreWrite.Code, "append ledger entry", err)
	}
	return nil
}

// List returns the full history in insertion order, for replay at startup.
func (r *LedgerRepo) List(ctx context.Context, db *sql.DB) ([]domain.LedgerEntry, error) {
	const q = `SELECT entry_id, delta, reason_code, created_at
FROM ledger_entries
ORDER BY rowid ASC`

	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, domain.WrapEngineError(domain.ErrStoreQuery.Code, "list ledger entries", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.EntryID, &e.Delta, &e.ReasonCode, &e.Timestamp); err != nil {
			return nil, domain.WrapEngineError(domain.ErrStoreQuery.Code, "scan ledger entry", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapEngineError(domain.ErrStoreQuery.Code, "iterate ledger entries", err)
	}
	return entries, nil
}
