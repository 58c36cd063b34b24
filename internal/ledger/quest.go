package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/taskroute/engine/internal/domain"
)

// defaultQuestConditions are the required conditions for an auto-armed
// Standard quest when no explicit set is configured.
var defaultQuestConditions = []string{
	"fixed_all_lint_findings",
	"tests_passing",
}

// newQuest builds a quest of the given tier with the given conditions.
func newQuest(tier domain.QuestTier, conditions []string, now time.Time) domain.RedemptionQuest {
	return domain.RedemptionQuest{
		QuestID:            uuid.NewString(),
		Tier:               tier,
		RequiredConditions: append([]string(nil), conditions...),
		CreatedAtUnix:      now.Unix(),
	}
}

// questReasonCode is the ledger reason code recorded when a quest of the
// given tier is resolved and its reward applied.
func questReasonCode(tier domain.QuestTier) string {
	return "quest_resolved:" + string(tier)
}
