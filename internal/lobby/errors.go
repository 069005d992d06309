package lobby

import (
	"errors"
	"fmt"
)

// ErrSessionNotReady gates the start of the game on submission
// completeness.
var ErrSessionNotReady = errors.New("session does not have all words submitted")

// ValidationError rejects a word submission before any write happens.
// It is fully local: a failed submission has no store side effects.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid submission: %s", e.Reason)
}
