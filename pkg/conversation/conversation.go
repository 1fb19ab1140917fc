package conversation

import (
	"fmt"
	"sync"
)

// Conversation is an append-only ordered sequence of messages.
// Messages handed out are copies; appended messages cannot be changed afterwards.
type Conversation struct {
	mu       sync.RWMutex
	messages []Message
}

func NewConversation(msgs ...Message) *Conversation {
	c := &Conversation{}
	c.Append(msgs...)
	return c
}

// Append adds copies of msgs at the end of the conversation.
func (c *Conversation) Append(msgs ...Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range msgs {
		c.messages = append(c.messages, m.clone())
	}
}

// Messages returns a copy of all messages.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = m.clone()
	}
	return out
}

func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Last returns the last message, if any.
func (c *Conversation) Last() (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1].clone(), true
}

// Clone returns an independent copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	return NewConversation(c.Messages()...)
}

// CheckReadyForModel verifies the conversation can be sent to a model:
// non-empty, ending with a user or tool message, and without two consecutive
// assistant messages.
func (c *Conversation) CheckReadyForModel() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.messages) == 0 {
		return fmt.Errorf("conversation is empty")
	}
	last := c.messages[len(c.messages)-1]
	if last.Role != RoleUser && last.Role != RoleTool {
		return fmt.Errorf("conversation ends with a %s message", last.Role)
	}
	for i := 1; i < len(c.messages); i++ {
		if c.messages[i].Role == RoleAssistant && c.messages[i-1].Role == RoleAssistant {
			return fmt.Errorf("consecutive assistant messages at index %d", i)
		}
	}
	return checkToolPairing(c.messages, true)
}

// CheckToolPairing verifies that every tool call is answered by exactly one
// tool message with a matching id before the next non-tool message, and that
// no tool message answers an unknown or already answered call.
func (c *Conversation) CheckToolPairing() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return checkToolPairing(c.messages, false)
}

// checkToolPairing walks msgs; when complete is set, calls of the trailing
// assistant message must all be answered too.
func checkToolPairing(msgs []Message, complete bool) error {
	pending := map[string]bool{}
	for i, m := range msgs {
		switch m.Role {
		case RoleTool:
			if m.ToolCallID == "" {
				return fmt.Errorf("tool message at index %d has no tool_call_id", i)
			}
			answered, ok := pending[m.ToolCallID]
			if !ok {
				return fmt.Errorf("tool message at index %d answers unknown call %q", i, m.ToolCallID)
			}
			if answered {
				return fmt.Errorf("tool call %q answered twice", m.ToolCallID)
			}
			pending[m.ToolCallID] = true
		case RoleSystem, RoleUser, RoleAssistant:
			for id, answered := range pending {
				if !answered {
					return fmt.Errorf("tool call %q has no result before message at index %d", id, i)
				}
			}
			pending = map[string]bool{}
			for _, tc := range m.ToolCalls {
				if tc.ID == "" {
					return fmt.Errorf("tool call %q at index %d has no id", tc.Name, i)
				}
				if _, dup := pending[tc.ID]; dup {
					return fmt.Errorf("duplicate tool call id %q at index %d", tc.ID, i)
				}
				pending[tc.ID] = false
			}
		}
	}
	if complete {
		for id, answered := range pending {
			if !answered {
				return fmt.Errorf("tool call %q has no result", id)
			}
		}
	}
	return nil
}

// PendingToolCalls returns the tool calls of the trailing assistant message
// that have not been answered yet.
func (c *Conversation) PendingToolCalls() []ToolCall {
	c.mu.RLock()
	defer c.mu.RUnlock()
	answered := map[string]bool{}
	for i := len(c.messages) - 1; i >= 0; i-- {
		m := c.messages[i]
		if m.Role == RoleTool {
			answered[m.ToolCallID] = true
			continue
		}
		if m.Role != RoleAssistant {
			return nil
		}
		var out []ToolCall
		for _, tc := range m.ToolCalls {
			if !answered[tc.ID] {
				out = append(out, tc)
			}
		}
		return out
	}
	return nil
}
