package depot

import "errors"

// Error taxonomy for transition and reconciliation failures. Transition
// errors are recoverable locally; storage failures propagate wrapped so
// callers can errors.Is against these sentinels.
var (
	// ErrAlreadyInProgress means a concurrent BeginDownload won the race
	// for the same (app, depot) pair. Callers should join the existing
	// operation rather than surface an error.
	ErrAlreadyInProgress = errors.New("depot: download already in progress")

	// ErrInvalidTransition means the requested transition is not legal
	// from the depot's current state.
	ErrInvalidTransition = errors.New("depot: invalid state transition")

	// ErrReconciliationInProgress means another reconciliation for the
	// same app is running. Callers retry after backoff.
	ErrReconciliationInProgress = errors.New("depot: reconciliation already in progress for app")
)
