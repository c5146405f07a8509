package lifecycle

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is matched by every TransitionError.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrNotFound is returned for an unknown recommendation id.
	ErrNotFound = errors.New("recommendation not found")

	// ErrConflict is returned by Store.Update when the stored state changed
	// since it was read.
	ErrConflict = errors.New("recommendation state changed concurrently")
)

// TransitionError reports a transition that the status machine does not
// allow. The recommendation's state is unchanged.
type TransitionError struct {
	RecommendationID string
	From             Status
	To               Status
	Reason           string
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("recommendation %s: cannot transition from %s to %s: %s", e.RecommendationID, e.From, e.To, e.Reason)
}

// Is makes every TransitionError match ErrInvalidTransition.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
