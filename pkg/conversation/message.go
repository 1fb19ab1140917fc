package conversation

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a request from the model to run a named tool with the given arguments.
// IDs are unique within a single model response.
type ToolCall struct {
	ID        string          `json:"id" yaml:"id"`
	Name      string          `json:"name" yaml:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty" yaml:"-"`
}

// Message is a single entry of a conversation. Content is empty when absent,
// ToolCalls is only set on assistant messages and ToolCallID only on tool messages.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

func NewSystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

func NewAssistantMessage(text string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: text, ToolCalls: calls}
}

// NewToolMessage builds the tool-role message answering the tool call with the given id.
func NewToolMessage(toolCallID, name, content string) Message {
	return Message{Role: RoleTool, ToolCallID: toolCallID, Name: name, Content: content}
}

// HasToolCalls reports whether the message requests any tool execution.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

func (m Message) clone() Message {
	out := m
	if len(m.ToolCalls) > 0 {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			out.ToolCalls[i] = tc
			if tc.Arguments != nil {
				out.ToolCalls[i].Arguments = append(json.RawMessage(nil), tc.Arguments...)
			}
		}
	}
	return out
}

func (m Message) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", m.Role)
	if m.ToolCallID != "" {
		fmt.Fprintf(&b, "(%s)", m.ToolCallID)
	}
	if m.Content != "" {
		fmt.Fprintf(&b, " %s", strings.TrimRight(m.Content, "\n"))
	}
	for _, tc := range m.ToolCalls {
		fmt.Fprintf(&b, " <%s %s %s>", tc.ID, tc.Name, string(tc.Arguments))
	}
	return b.String()
}
