package shared

import "errors"

// Domain error taxonomy. Packages wrap these with fmt.Errorf("...: %w", err)
// so HTTP handlers can map them with errors.Is.
var (
	// ErrValidation indicates malformed input rejected before any write.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates a lifecycle transition not permitted from the current state.
	ErrInvalidState = errors.New("invalid state transition")
	// ErrCodeMismatch indicates a delivery confirmation code that does not match.
	ErrCodeMismatch = errors.New("confirmation code mismatch")
	// ErrConflict indicates a uniqueness conflict that retries could not resolve.
	ErrConflict = errors.New("conflict")
	// ErrDependency indicates a failing collaborator such as the datastore.
	ErrDependency = errors.New("dependency failure")
)
