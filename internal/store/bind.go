package store

import (
	"context"
	"database/sql"

	"github.com/taskroute/engine/internal/domain"
)

// PolicyStore binds the ledger and quest repos to a database handle so the
// policy engine can persist through a single dependency.
type PolicyStore struct {
	DB     *sql.DB
	Ledger *LedgerRepo
	Quests *QuestRepo
}

// NewPolicyStore creates a PolicyStore with default repos.
func NewPolicyStore(db *sql.DB) *PolicyStore {
	return &PolicyStore{DB: db, Ledger: &LedgerRepo{}, Quests: &QuestRepo{}}
}

// AppendEntry persists one ledger entry.
func (s *PolicyStore) AppendEntry(ctx context.Context, entry domain.LedgerEntry) error {
	return s.Ledger.Append(ctx, s.DB, entry)
}

// SaveQuest persists a newly armed quest.
func (s *PolicyStore) SaveQuest(ctx context.Context, quest domain.RedemptionQuest) error {
	return s.Quests.Save(ctx, s.DB, quest)
}

// UpdateQuestConditions persists the satisfied-conditions set.
func (s *PolicyStore) UpdateQuestConditions(ctx context.Context, questID string, satisfied []string) error {
	return s.Quests.UpdateConditions(ctx, s.DB, questID, satisfied)
}

// ResolveQuest stamps the quest resolved.
func (s *PolicyStore) ResolveQuest(ctx context.Context, questID string, resolvedAtUnix int64) error {
	return s.Quests.Resolve(ctx, s.DB, questID, resolvedAtUnix)
}

// AuditSink binds the audit repo to a database handle for the gate and the
// engine.
type AuditSink struct {
	DB   *sql.DB
	Repo *AuditRepo
}

// NewAuditSink creates an AuditSink with a default repo.
func NewAuditSink(db *sql.DB) *AuditSink {
	return &AuditSink{DB: db, Repo: &AuditRepo{}}
}

// Record inserts an audit record.
func (s *AuditSink) Record(ctx context.Context, rec domain.AuditRecord) error {
	return s.Repo.Record(ctx, s.DB, rec)
}
