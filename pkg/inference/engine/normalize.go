package engine

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/go-go-golems/sqlagent/pkg/conversation"
	"github.com/google/uuid"
)

// NormalizeResponse turns a decoded assistant message into the form the loop
// relies on: role assistant, every tool call with a non-empty unique id and a
// name, empty arguments replaced by {}.
func NormalizeResponse(msg *conversation.Message) error {
	if msg == nil {
		return &MalformedResponseError{Reason: "no message"}
	}
	msg.Role = conversation.RoleAssistant

	if strings.TrimSpace(msg.Content) == "" && len(msg.ToolCalls) == 0 {
		return &MalformedResponseError{Reason: "message has neither content nor tool calls"}
	}

	seen := map[string]bool{}
	for i := range msg.ToolCalls {
		tc := &msg.ToolCalls[i]
		if tc.Name == "" {
			return &MalformedResponseError{Reason: "tool call without a function name"}
		}
		if tc.ID == "" {
			tc.ID = NewToolCallID()
		}
		if seen[tc.ID] {
			return &MalformedResponseError{Reason: "duplicate tool call id " + tc.ID}
		}
		seen[tc.ID] = true
		if len(bytes.TrimSpace(tc.Arguments)) == 0 {
			tc.Arguments = json.RawMessage(`{}`)
		}
	}
	return nil
}

// NewToolCallID generates an id for tool calls the backend left unnamed.
func NewToolCallID() string {
	return "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
