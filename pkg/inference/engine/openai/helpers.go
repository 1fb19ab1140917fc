package openai

import (
	"context"
	"encoding/json"
	"net"
	"sort"

	"github.com/go-go-golems/sqlagent/pkg/conversation"
	"github.com/go-go-golems/sqlagent/pkg/inference/engine"
	"github.com/go-go-golems/sqlagent/pkg/inference/tools"
	"github.com/pkg/errors"
	go_openai "github.com/sashabaranov/go-openai"
)

// MakeCompletionRequest builds the chat-completions request for a conversation.
// A non-empty catalog is sent as function tools with tool_choice=auto.
func MakeCompletionRequest(model string, msgs []conversation.Message, catalog []tools.ToolSchema) go_openai.ChatCompletionRequest {
	req := go_openai.ChatCompletionRequest{
		Model:    model,
		Messages: make([]go_openai.ChatCompletionMessage, 0, len(msgs)),
	}
	for _, m := range msgs {
		req.Messages = append(req.Messages, toOpenAIMessage(m))
	}

	if len(catalog) > 0 {
		for _, tool := range catalog {
			req.Tools = append(req.Tools, go_openai.Tool{
				Type: go_openai.ToolTypeFunction,
				Function: &go_openai.FunctionDefinition{
					Name:        tool.Name,
					Description: tool.Description,
					Parameters:  tool.Parameters,
				},
			})
		}
		req.ToolChoice = "auto"
	}

	return req
}

func toOpenAIMessage(m conversation.Message) go_openai.ChatCompletionMessage {
	ret := go_openai.ChatCompletionMessage{
		Role:       string(m.Role),
		Content:    m.Content,
		ToolCallID: m.ToolCallID,
	}
	if m.Role == conversation.RoleTool {
		ret.Name = m.Name
	}
	for _, tc := range m.ToolCalls {
		args := string(tc.Arguments)
		if args == "" {
			args = "{}"
		}
		ret.ToolCalls = append(ret.ToolCalls, go_openai.ToolCall{
			ID:   tc.ID,
			Type: go_openai.ToolTypeFunction,
			Function: go_openai.FunctionCall{
				Name:      tc.Name,
				Arguments: args,
			},
		})
	}
	return ret
}

func fromOpenAIMessage(content string, toolCalls []go_openai.ToolCall) *conversation.Message {
	msg := &conversation.Message{
		Role:    conversation.RoleAssistant,
		Content: content,
	}
	for _, tc := range toolCalls {
		msg.ToolCalls = append(msg.ToolCalls, conversation.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return msg
}

// ToolCallMerger reassembles streamed tool-call deltas, keyed by delta index.
type ToolCallMerger struct {
	toolCalls map[int]go_openai.ToolCall
}

func NewToolCallMerger() *ToolCallMerger {
	return &ToolCallMerger{
		toolCalls: make(map[int]go_openai.ToolCall),
	}
}

func (tcm *ToolCallMerger) AddToolCalls(toolCalls []go_openai.ToolCall) {
	for _, call := range toolCalls {
		index := 0
		if call.Index != nil {
			index = *call.Index
		}
		if existing, found := tcm.toolCalls[index]; found {
			if existing.ID == "" {
				existing.ID = call.ID
			}
			existing.Function.Name += call.Function.Name
			existing.Function.Arguments += call.Function.Arguments
			tcm.toolCalls[index] = existing
		} else {
			tcm.toolCalls[index] = call
		}
	}
}

// GetToolCalls returns the merged calls ordered by index.
func (tcm *ToolCallMerger) GetToolCalls() []go_openai.ToolCall {
	indices := make([]int, 0, len(tcm.toolCalls))
	for idx := range tcm.toolCalls {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	result := make([]go_openai.ToolCall, 0, len(indices))
	for _, idx := range indices {
		result = append(result, tcm.toolCalls[idx])
	}
	return result
}

// wrapBackendError classifies a go-openai failure. Context errors are passed
// through so callers can tell timeouts and cancellation apart, and HTTP client
// timeouts are reported as context.DeadlineExceeded.
func wrapBackendError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(err, op)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.Wrapf(context.DeadlineExceeded, "%s: %v", op, err)
	}

	status := 0
	var apiErr *go_openai.APIError
	var reqErr *go_openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	return &engine.BackendError{Op: op, StatusCode: status, Err: err}
}
