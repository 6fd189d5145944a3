package types

import "errors"

// Error taxonomy. Callers classify failures with errors.Is; wrapping is
// done at the point of failure with fmt.Errorf("...: %w", ...).
var (
	// ErrValidation marks client mistakes: empty message list, wrong
	// final role, malformed or unreadable upload. Never retried.
	ErrValidation = errors.New("validation error")

	// ErrUpstream marks an embedding or completion gateway failure after
	// its single attempt. Retry policy belongs to the caller.
	ErrUpstream = errors.New("upstream service error")

	// ErrConsistency marks registry integrity damage: an index entry for
	// a missing document, or a partially applied delete. Repair requires
	// an explicit reload.
	ErrConsistency = errors.New("consistency error")

	// ErrSelectionParse marks unparsable tool-selection output from the
	// language model. Always recovered locally, never surfaced to the
	// end user.
	ErrSelectionParse = errors.New("selection parse error")
)
