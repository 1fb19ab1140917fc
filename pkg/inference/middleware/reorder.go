package middleware

import (
	"context"

	"github.com/go-go-golems/sqlagent/pkg/conversation"
	"github.com/go-go-golems/sqlagent/pkg/inference/tools"
	"github.com/rs/zerolog/log"
)

// NewToolResultReorderMiddleware moves tool messages directly behind the
// assistant message that requested them, in call order. OpenAI rejects
// conversations where anything else sits between a call and its result.
func NewToolResultReorderMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, conv *conversation.Conversation, catalog []tools.ToolSchema) (*conversation.Message, error) {
			msgs := conv.Messages()
			reordered, moved := ReorderToolResults(msgs)
			if moved > 0 {
				log.Ctx(ctx).Debug().Int("moved", moved).Msg("reordered tool results")
				conv = conversation.NewConversation(reordered...)
			}
			return next(ctx, conv, catalog)
		}
	}
}

// ReorderToolResults returns msgs with every tool message placed right after
// the assistant message carrying its call id, plus the number of messages
// that changed position. Tool messages without a matching call keep their
// relative position.
func ReorderToolResults(msgs []conversation.Message) ([]conversation.Message, int) {
	owner := map[string]int{}
	for i, m := range msgs {
		for _, c := range m.ToolCalls {
			owner[c.ID] = i
		}
	}

	results := map[string][]conversation.Message{}
	for _, m := range msgs {
		if m.Role == conversation.RoleTool {
			if _, ok := owner[m.ToolCallID]; ok {
				results[m.ToolCallID] = append(results[m.ToolCallID], m)
			}
		}
	}

	out := make([]conversation.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == conversation.RoleTool {
			if _, ok := owner[m.ToolCallID]; ok {
				continue
			}
		}
		out = append(out, m)
		for _, c := range m.ToolCalls {
			out = append(out, results[c.ID]...)
			delete(results, c.ID)
		}
	}

	moved := 0
	for i := range out {
		if out[i].Role != msgs[i].Role || out[i].ToolCallID != msgs[i].ToolCallID {
			moved++
		}
	}
	return out, moved
}
