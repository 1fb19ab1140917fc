package tools

import (
	"fmt"
	"strings"
)

// UnknownToolError is returned for calls naming a tool that is not registered.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Name)
}

// ToolNotAllowedError is returned for registered tools filtered out by the allow list.
type ToolNotAllowedError struct {
	Name string
}

func (e *ToolNotAllowedError) Error() string {
	return fmt.Sprintf("tool not allowed: %s", e.Name)
}

// InvalidArgumentsError is returned when call arguments are not valid JSON or
// do not match the tool's parameter schema.
type InvalidArgumentsError struct {
	Name   string
	Reason string
	// Violations lists individual schema validation failures
	Violations []string
}

func (e *InvalidArgumentsError) Error() string {
	msg := fmt.Sprintf("invalid arguments for %s: %s", e.Name, e.Reason)
	if len(e.Violations) > 0 {
		msg += " (" + strings.Join(e.Violations, "; ") + ")"
	}
	return msg
}
