package conversation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func call(id, name string) ToolCall {
	return ToolCall{ID: id, Name: name, Arguments: json.RawMessage(`{}`)}
}

func TestAppendedMessagesAreImmutable(t *testing.T) {
	c := NewConversation(NewUserMessage("hello"))
	msgs := c.Messages()
	msgs[0].Content = "changed"

	last, ok := c.Last()
	require.True(t, ok)
	assert.Equal(t, "hello", last.Content)

	tc := call("c1", "get_schema")
	c.Append(NewAssistantMessage("", tc))
	tc.Name = "mutated"
	got := c.Messages()[1].ToolCalls[0]
	assert.Equal(t, "get_schema", got.Name)
}

func TestCheckReadyForModel(t *testing.T) {
	require.Error(t, NewConversation().CheckReadyForModel())

	c := NewConversation(NewSystemMessage("sys"), NewUserMessage("q"))
	require.NoError(t, c.CheckReadyForModel())

	c.Append(NewAssistantMessage("answer"))
	require.Error(t, c.CheckReadyForModel(), "must not end with assistant")

	c2 := NewConversation(
		NewUserMessage("q"),
		NewAssistantMessage("a"),
		NewAssistantMessage("b"),
		NewUserMessage("q2"),
	)
	require.Error(t, c2.CheckReadyForModel(), "consecutive assistant messages")
}

func TestToolPairing(t *testing.T) {
	c := NewConversation(
		NewUserMessage("q"),
		NewAssistantMessage("", call("c1", "a"), call("c2", "b")),
		NewToolMessage("c1", "a", "ok"),
	)
	require.NoError(t, c.CheckToolPairing())
	require.Error(t, c.CheckReadyForModel(), "c2 is still unanswered")
	assert.Equal(t, []ToolCall{call("c2", "b")}, c.PendingToolCalls())

	c.Append(NewToolMessage("c2", "b", "ok"))
	require.NoError(t, c.CheckReadyForModel())
	assert.Empty(t, c.PendingToolCalls())

	dup := c.Clone()
	dup.Append(NewToolMessage("c2", "b", "again"))
	require.Error(t, dup.CheckToolPairing())

	orphan := NewConversation(
		NewUserMessage("q"),
		NewAssistantMessage("", call("c1", "a")),
		NewUserMessage("next"),
	)
	require.Error(t, orphan.CheckToolPairing())

	unknown := NewConversation(NewUserMessage("q"), NewToolMessage("zz", "a", "ok"))
	require.Error(t, unknown.CheckToolPairing())

	dupIDs := NewConversation(NewUserMessage("q"), NewAssistantMessage("", call("c1", "a"), call("c1", "b")))
	require.Error(t, dupIDs.CheckToolPairing())
}
