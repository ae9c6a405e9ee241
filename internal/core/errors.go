package core

import "errors"

// Error kinds surfaced by the service layer. Callers match them with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrBudgetExceeded   = errors.New("budget exceeded")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Kind labels used in logs and API error bodies.
const (
	KindNotFound         = "not_found"
	KindConflict         = "conflict"
	KindBudgetExceeded   = "budget_exceeded"
	KindInvalidArgument  = "invalid_argument"
	KindStoreUnavailable = "store_unavailable"
	KindInternal         = "internal"
)

// KindOf maps an error to its kind label. Unknown errors are internal.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrBudgetExceeded):
		return KindBudgetExceeded
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	case errors.Is(err, ErrStoreUnavailable):
		return KindStoreUnavailable
	default:
		return KindInternal
	}
}
