package engine

import (
	"errors"
	"testing"

	"github.com/go-go-golems/sqlagent/pkg/conversation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeResponseGeneratesMissingIDs(t *testing.T) {
	msg := &conversation.Message{
		Role: "",
		ToolCalls: []conversation.ToolCall{
			{Name: "get_schema"},
			{Name: "read_query", Arguments: []byte(`{"query":"SELECT 1"}`)},
		},
	}
	require.NoError(t, NormalizeResponse(msg))

	assert.Equal(t, conversation.RoleAssistant, msg.Role)
	assert.NotEmpty(t, msg.ToolCalls[0].ID)
	assert.NotEmpty(t, msg.ToolCalls[1].ID)
	assert.NotEqual(t, msg.ToolCalls[0].ID, msg.ToolCalls[1].ID)
	assert.JSONEq(t, `{}`, string(msg.ToolCalls[0].Arguments))
}

func TestNormalizeResponseRejectsMalformedMessages(t *testing.T) {
	cases := map[string]*conversation.Message{
		"nil":       nil,
		"empty":     {Content: "  "},
		"no name":   {ToolCalls: []conversation.ToolCall{{ID: "a"}}},
		"duplicate": {ToolCalls: []conversation.ToolCall{{ID: "a", Name: "x"}, {ID: "a", Name: "y"}}},
	}
	for name, msg := range cases {
		err := NormalizeResponse(msg)
		var malformed *MalformedResponseError
		assert.True(t, errors.As(err, &malformed), name)
	}
}

func TestBackendErrorUnwraps(t *testing.T) {
	inner := errors.New("connection refused")
	err := error(&BackendError{Op: "chat completion", Err: inner})
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "connection refused")
}
