package middleware

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/go-go-golems/sqlagent/pkg/conversation"
	"github.com/go-go-golems/sqlagent/pkg/inference/fixtures"
	"github.com/go-go-golems/sqlagent/pkg/inference/tools"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, conv *conversation.Conversation, catalog []tools.ToolSchema) (*conversation.Message, error) {
				order = append(order, name)
				return next(ctx, conv, catalog)
			}
		}
	}
	handler := func(ctx context.Context, conv *conversation.Conversation, catalog []tools.ToolSchema) (*conversation.Message, error) {
		order = append(order, "handler")
		m := conversation.NewAssistantMessage("ok")
		return &m, nil
	}

	msg, err := Chain(handler, mark("m1"), mark("m2"))(context.Background(), conversation.NewConversation(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", msg.Content)
	assert.Equal(t, []string{"m1", "m2", "handler"}, order)
}

func TestWrapPassesThroughToClient(t *testing.T) {
	client := fixtures.NewScriptedClient(fixtures.Reply("hello"))
	var buf bytes.Buffer
	wrapped := Wrap(client, NewLoggingMiddleware(zerolog.New(&buf)))

	conv := conversation.NewConversation(conversation.NewUserMessage("hi"))
	msg, err := wrapped.Complete(context.Background(), conv, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, 1, client.Calls())
	assert.Contains(t, buf.String(), "model call: completed")
	assert.Contains(t, buf.String(), `"message_count":1`)
}

func TestWrapWithoutMiddlewareReturnsClient(t *testing.T) {
	client := fixtures.NewScriptedClient()
	assert.Same(t, client, Wrap(client))
}

func TestLoggingMiddlewareLogsFailure(t *testing.T) {
	var buf bytes.Buffer
	failing := func(ctx context.Context, conv *conversation.Conversation, catalog []tools.ToolSchema) (*conversation.Message, error) {
		return nil, errors.New("boom")
	}
	_, err := NewLoggingMiddleware(zerolog.New(&buf))(failing)(context.Background(), conversation.NewConversation(), nil)
	require.EqualError(t, err, "boom")
	assert.Contains(t, buf.String(), "model call: failed")
	assert.Contains(t, buf.String(), "boom")
}

func TestReorderToolResults(t *testing.T) {
	calls := []conversation.ToolCall{{ID: "a", Name: "get_schema"}, {ID: "b", Name: "read_query"}}
	msgs := []conversation.Message{
		conversation.NewUserMessage("q"),
		conversation.NewAssistantMessage("", calls...),
		conversation.NewToolMessage("b", "read_query", "rows"),
		conversation.NewUserMessage("interjection"),
		conversation.NewToolMessage("a", "get_schema", "schema"),
	}

	out, moved := ReorderToolResults(msgs)
	require.Len(t, out, len(msgs))
	assert.Equal(t, 3, moved)
	assert.Equal(t, "a", out[2].ToolCallID)
	assert.Equal(t, "b", out[3].ToolCallID)
	assert.Equal(t, "interjection", out[4].Content)
}

func TestReorderToolResultsKeepsOrderedConversation(t *testing.T) {
	msgs := []conversation.Message{
		conversation.NewUserMessage("q"),
		conversation.NewAssistantMessage("", conversation.ToolCall{ID: "a", Name: "get_schema"}),
		conversation.NewToolMessage("a", "get_schema", "schema"),
	}
	out, moved := ReorderToolResults(msgs)
	assert.Equal(t, 0, moved)
	assert.Equal(t, msgs, out)
}

func TestReorderMiddlewareSendsFixedConversation(t *testing.T) {
	client := fixtures.NewScriptedClient(fixtures.Reply("done"))
	wrapped := Wrap(client, NewToolResultReorderMiddleware())

	conv := conversation.NewConversation(
		conversation.NewUserMessage("q"),
		conversation.NewAssistantMessage("", conversation.ToolCall{ID: "a", Name: "x"}, conversation.ToolCall{ID: "b", Name: "x"}),
		conversation.NewToolMessage("b", "x", "2"),
		conversation.NewToolMessage("a", "x", "1"),
	)
	_, err := wrapped.Complete(context.Background(), conv, nil)
	require.NoError(t, err)

	sent := client.Requests()[0]
	require.Len(t, sent, 4)
	assert.Equal(t, "a", sent[2].ToolCallID)
	assert.Equal(t, "b", sent[3].ToolCallID)
	// the caller's conversation is untouched
	assert.Equal(t, "b", conv.Messages()[2].ToolCallID)
}
