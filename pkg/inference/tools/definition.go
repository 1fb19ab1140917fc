package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-go-golems/sqlagent/pkg/conversation"
	"github.com/invopop/jsonschema"
)

// ToolCall is the model's request to run a tool.
type ToolCall = conversation.ToolCall

// Handler runs a tool with raw JSON arguments that already passed schema validation.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// ToolDefinition represents a tool that can be called by AI models
type ToolDefinition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
	Handler     Handler            `json:"-"`
}

// ToolSchema is the model-facing description of a registered tool.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// NewTool creates a ToolDefinition from a typed Go function. The parameter
// schema is reflected from In.
func NewTool[In any, Out any](name, description string, fn func(context.Context, In) (Out, error)) ToolDefinition {
	var zero In
	reflector := jsonschema.Reflector{
		// Expand definitions inline instead of using $refs
		DoNotReference: true,
	}
	schema := reflector.Reflect(zero)
	// Ensure the root schema has type "object" for OpenAI compatibility
	if schema.Type == "" && schema.Ref == "" {
		schema.Type = "object"
	}

	return ToolDefinition{
		Name:        name,
		Description: description,
		Parameters:  schema,
		Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in In
			if len(args) > 0 {
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, &InvalidArgumentsError{Name: name, Reason: err.Error()}
				}
			}
			return fn(ctx, in)
		},
	}
}

// ToolResult is the outcome of dispatching one ToolCall.
type ToolResult struct {
	ToolCallID string        `json:"tool_call_id"`
	Name       string        `json:"name"`
	Result     any           `json:"result,omitempty"`
	Error      string        `json:"error,omitempty"`
	OK         bool          `json:"ok"`
	Duration   time.Duration `json:"duration"`

	// Err keeps the typed failure (UnknownToolError, InvalidArgumentsError, ...).
	Err error `json:"-"`
}

func failedResult(call ToolCall, err error) ToolResult {
	return ToolResult{
		ToolCallID: call.ID,
		Name:       call.Name,
		Error:      err.Error(),
		Err:        err,
	}
}

// Content is the text sent back to the model for this result. Strings are
// passed through, other values are JSON encoded, failures read "error: ...".
func (r ToolResult) Content() string {
	if !r.OK {
		return "error: " + r.Error
	}
	switch v := r.Result.(type) {
	case nil:
		return "null"
	case string:
		return v
	case json.RawMessage:
		return string(v)
	}
	b, err := json.Marshal(r.Result)
	if err != nil {
		return fmt.Sprintf("%v", r.Result)
	}
	return string(b)
}

// Message turns the result into the tool message answering its call.
func (r ToolResult) Message() conversation.Message {
	return conversation.NewToolMessage(r.ToolCallID, r.Name, r.Content())
}
