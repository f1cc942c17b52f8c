package coach

import (
	"errors"
	"fmt"
)

// ErrEmptyResponse is returned when the provider call succeeded but no
// usable text could be extracted. It is retryable.
var ErrEmptyResponse = errors.New("coach returned an empty response")

// ErrPollTimeout is returned when a response job never reached a terminal
// state before the completion deadline. It is not retried further.
var ErrPollTimeout = errors.New("response job did not complete before the timeout")

// ProviderError carries the provider's HTTP status and message for failed
// calls. Handlers log it in full and surface a generic 500 to callers.
type ProviderError struct {
	Status  int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.Status, e.Message)
}
