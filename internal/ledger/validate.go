package ledger

import (
	"fmt"
	"strings"

	"github.com/taskroute/engine/internal/domain"
)

// Worker-supplied GoodPractice rewards must stay inside this range.
const (
	minGoodPracticeDelta = 5
	maxGoodPracticeDelta = 20
)

var validKinds = map[domain.EventKind]bool{
	domain.EventGoodPractice:   true,
	domain.EventMinorIssue:     true,
	domain.EventModerateIssue:  true,
	domain.EventSeriousIssue:   true,
	domain.EventMajorViolation: true,
}

// ValidateEvent checks a quality event against the event schema and returns
// an error listing all violations if any are found.
func ValidateEvent(ev domain.QualityEvent) error {
	var violations []string

	if !validKinds[ev.Kind] {
		violations = append(violations, fmt.Sprintf("kind %q is not valid", ev.Kind))
	}
	if ev.ReasonCode == "" {
		violations = append(violations, "reason code must be non-empty")
	}

	switch ev.Kind {
	case domain.EventGoodPractice:
		if ev.Delta < minGoodPracticeDelta || ev.Delta > maxGoodPracticeDelta {
			violations = append(violations, fmt.Sprintf(
				"good practice delta %d out of range [%d, %d]",
				ev.Delta, minGoodPracticeDelta, maxGoodPracticeDelta))
		}
	default:
		if ev.Delta != 0 {
			violations = append(violations, fmt.Sprintf(
				"issue events carry fixed penalties; worker-supplied delta %d rejected", ev.Delta))
		}
	}

	if len(violations) > 0 {
		return domain.NewEngineError(domain.ErrEventInvalid.Code, strings.Join(violations, "; "))
	}
	return nil
}
