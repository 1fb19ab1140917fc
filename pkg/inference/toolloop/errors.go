package toolloop

import (
	"context"
	"fmt"
	"time"
)

// TurnLimitExceededError aborts a run that wanted more model calls than allowed.
type TurnLimitExceededError struct {
	Limit int
}

func (e *TurnLimitExceededError) Error() string {
	return fmt.Sprintf("turn limit of %d model calls exceeded", e.Limit)
}

const (
	TimeoutScopeRun       = "run"
	TimeoutScopeModelCall = "model_call"
)

// TimeoutError aborts a run whose wall clock or model call deadline expired.
type TimeoutError struct {
	Scope string
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Scope, e.Limit)
}

// Unwrap lets errors.Is(err, context.DeadlineExceeded) match timeouts.
func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}
