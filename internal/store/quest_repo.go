package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/taskroute/engine/internal/domain"
)

// QuestRepo handles persistence for redemption quests.
type QuestRepo struct{}

// Save inserts a newly armed quest.
func (r *QuestRepo) Save(ctx context.Context, db *sql.DB, quest domain.RedemptionQuest) error {
	required, err := json.Marshal(quest.RequiredConditions)
	if err != nil {
		return domain.WrapEngineError(domain.ErrStoreWrite.Code, "marshal quest conditions", err)
	}
	satisfied, err := json.Marshal(orEmpty(quest.SatisfiedConditions))
	if err != nil {
		return domain.WrapEngineError(domain.ErrStoreWrite.Code, "marshal quest conditions", err)
	}

	const q = `INSERT INTO quests (quest_id, tier, required_json, satisfied_json, created_at)
VALUES (?, ?, ?, ?, ?)`
	_, err = db.ExecContext(ctx, q, quest.QuestID, string(quest.Tier),
		string(required), string(satisfied), quest.CreatedAtUnix)
	if err != nil {
		return domain.WrapEngineError(domain.ErrStoreWrite.Code, "save quest", err)
	}
	return nil
}

// UpdateConditions replaces the satisfied-conditions set of an open quest.
func (r *QuestRepo) UpdateConditions(ctx context.Context, db *sql.DB, questID string, satisfied []string) error {
	data, err := json.Marshal(orEmpty(satisfied))
	if err != nil {
		return domain.WrapEngineError(domain.ErrStoreWrite.Code, "marshal quest conditions", err)
	}

	const q = `UPDATE quests SET satisfied_json = ? WHERE quest_id = ? AND resolved_at = 0`
	res, err := db.ExecContext(ctx, q, string(data), questID)
	if err != nil {
		return domain.WrapEngineError(domain.ErrStoreWrite.Code, "update quest conditions", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNoActiveQuest
	}
	return nil
}

// Resolve stamps the quest as resolved. Resolving twice fails, which keeps
// the reward single-application even across process restarts.
func (r *QuestRepo) Resolve(ctx context.Context, db *sql.DB, questID string, resolvedAtUnix int64) error {
	const q = `UPDATE quests SET resolved_at = ? WHERE quest_id = ? AND resolved_at = 0`
	res, err := db.ExecContext(ctx, q, resolvedAtUnix, questID)
	if err != nil {
		return domain.WrapEngineError(domain.ErrStoreWrite.Code, "resolve quest", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNoActiveQuest
	}
	return nil
}

// GetOpen returns the unresolved quest, or nil when none is pending.
func (r *QuestRepo) GetOpen(ctx context.Context, db *sql.DB) (*domain.RedemptionQuest, error) {
	const q = `SELECT quest_id, tier, required_json, satisfied_json, created_at
FROM quests
WHERE resolved_at = 0
ORDER BY created_at DESC
LIMIT 1`

	var quest domain.RedemptionQuest
	var tier, required, satisfied string
	err := db.QueryRowContext(ctx, q).Scan(
		&quest.QuestID, &tier, &required, &satisfied, &quest.CreatedAtUnix)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.WrapEngineError(domain.ErrStoreQuery.Code, "get open quest", err)
	}

	quest.Tier = domain.QuestTier(tier)
	if err := json.Unmarshal([]byte(required), &quest.RequiredConditions); err != nil {
		return nil, domain.WrapEngineError(domain.ErrStoreQuery.Code, "decode quest conditions", err)
	}
	if err := json.Unmarshal([]byte(satisfied), &quest.SatisfiedConditions); err != nil {
		return nil, domain.WrapEngineError(domain.ErrStoreQuery.Code, "decode quest conditions", err)
	}
	return &quest, nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
