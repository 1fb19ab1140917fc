package engine

import "fmt"

// BackendError reports a transport, authentication or HTTP-level failure of
// the model service. It is never retried within a turn.
type BackendError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *BackendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("model backend error during %s (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("model backend error during %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// MalformedResponseError reports a response that has no choices, or whose
// message carries neither content nor tool calls.
type MalformedResponseError struct {
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return "malformed model response: " + e.Reason
}
