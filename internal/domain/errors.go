package domain

import "fmt"

// EngineError is the unified error type for the engine.
// Each error has a numeric code and human-readable message.
type EngineError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("engine error %d: %s", e.Code, e.Message)
}

// Is makes sentinel comparisons work through errors.Is by matching codes.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	return ok && t.Code == e.Code
}

// NewEngineError creates a new EngineError.
func NewEngineError(code int, msg string) *EngineError {
	return &EngineError{Code: code, Message: msg}
}

// WrapEngineError creates an EngineError that includes a cause.
func WrapEngineError(code int, msg string, cause error) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf("%s: %v", msg, cause)}
}

// AsEngineError reports whether err is an *EngineError and returns it.
func AsEngineError(err error) (*EngineError, bool) {
	ee, ok := err.(*EngineError)
	return ee, ok
}

// ---- Registry errors (-32010 to -32039, load-time, fatal) ----

var (
	ErrDuplicateWorkerID  = &EngineError{Code: -32010, Message: "duplicate worker id in registry"}
	ErrEmptyCapabilitySet = &EngineError{Code: -32011, Message: "worker profile has no capability tags"}
	ErrWorkerNotFound     = &EngineError{Code: -32012, Message: "worker not found in registry"}
	ErrCatalogInvalid     = &EngineError{Code: -32013, Message: "worker catalog validation failed"}
)

// ---- Classification errors (-32040 to -32069, recoverable) ----

var (
	ErrNoMatchingWorker = &EngineError{Code: -32040, Message: "no worker matches the requested domains"}
)

// ---- Budget errors (-32070 to -32099, recoverable) ----

var (
	ErrBudgetExceeded      = &EngineError{Code: -32070, Message: "context budget exceeded: delegate or archive the session"}
	ErrInvalidChargeWeight = &EngineError{Code: -32071, Message: "charge weight must be positive"}
)

// ---- Dispatch / gate errors (-32100 to -32129, recoverable) ----

var (
	ErrRedemptionRequired        = &EngineError{Code: -32100, Message: "redemption quest must be resolved before complex work"}
	ErrRateLimitExceeded         = &EngineError{Code: -32101, Message: "rate limit exceeded"}
	ErrPermissionDenied          = &EngineError{Code: -32102, Message: "worker tool permission denied"}
	ErrWorkerFailed              = &EngineError{Code: -32103, Message: "worker execution failed"}
	ErrUnknownWorkerInDecision   = &EngineError{Code: -32104, Message: "routing decision references an unregistered worker"}
	ErrDuplicateWorkerInDecision = &EngineError{Code: -32105, Message: "routing decision references a worker more than once"}
)

// ---- Ledger / quest errors (-32130 to -32159) ----

var (
	ErrEventInvalid       = &EngineError{Code: -32130, Message: "quality event validation failed"}
	ErrNoActiveQuest      = &EngineError{Code: -32131, Message: "no redemption quest is active"}
	ErrUnknownCondition   = &EngineError{Code: -32132, Message: "condition is not part of the active quest"}
	ErrLedgerInconsistent = &EngineError{Code: -32133, Message: "ledger balance does not match history sum"}
	ErrQuestActive        = &EngineError{Code: -32134, Message: "a redemption quest is already active"}
)

// ---- Store / config errors (-32160 to -32189, load-time, fatal) ----

var (
	ErrStoreInit       = &EngineError{Code: -32160, Message: "failed to initialize store"}
	ErrStoreQuery      = &EngineError{Code: -32161, Message: "store query failed"}
	ErrStoreWrite      = &EngineError{Code: -32162, Message: "store write failed"}
	ErrConfigInvalid   = &EngineError{Code: -32163, Message: "invalid configuration"}
	ErrNoActiveSession = &EngineError{Code: -32164, Message: "no active session"}
)

// ---- Executor errors (-32190 to -32219) ----

var (
	ErrProviderUnavailable = &EngineError{Code: -32190, Message: "worker provider unavailable"}
	ErrWorkerTimeout       = &EngineError{Code: -32191, Message: "worker exceeded its deadline"}
	ErrInternal            = &EngineError{Code: -32200, Message: "internal error"}
)
