package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoInput struct {
	Query string `json:"query" jsonschema:"description=Text to echo"`
	Limit int    `json:"limit,omitempty"`
}

type echoOutput struct {
	Echo string `json:"echo"`
}

func newEchoTool(calls *int) ToolDefinition {
	return NewTool("echo", "Echo the query", func(ctx context.Context, in echoInput) (echoOutput, error) {
		if calls != nil {
			*calls++
		}
		return echoOutput{Echo: in.Query}, nil
	})
}

func TestRegisterRejectsDuplicatesAndEmptyNames(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newEchoTool(nil)))
	assert.Error(t, r.Register(newEchoTool(nil)))

	def := newEchoTool(nil)
	def.Name = ""
	assert.Error(t, r.Register(def))

	assert.Equal(t, 1, r.Len())
}

func TestDispatchRunsHandler(t *testing.T) {
	calls := 0
	r := NewRegistry()
	require.NoError(t, r.Register(newEchoTool(&calls)))

	res := r.Dispatch(context.Background(), ToolCall{ID: "c1", Name: "echo", Arguments: json.RawMessage(`{"query":"hi"}`)})
	require.True(t, res.OK, res.Error)
	assert.Equal(t, "c1", res.ToolCallID)
	assert.Equal(t, "echo", res.Name)
	assert.Equal(t, echoOutput{Echo: "hi"}, res.Result)
	assert.JSONEq(t, `{"echo":"hi"}`, res.Content())
	assert.Equal(t, 1, calls)
}

func TestDispatchUnknownTool(t *testing.T) {
	r := NewRegistry()
	res := r.Dispatch(context.Background(), ToolCall{ID: "c1", Name: "drop_table"})
	assert.False(t, res.OK)

	var unknown *UnknownToolError
	require.True(t, errors.As(res.Err, &unknown))
	assert.Equal(t, "drop_table", unknown.Name)
	assert.Equal(t, "error: unknown tool: drop_table", res.Content())
}

func TestDispatchSchemaViolationSkipsHandler(t *testing.T) {
	calls := 0
	r := NewRegistry()
	require.NoError(t, r.Register(newEchoTool(&calls)))

	for _, args := range []string{`{"query": 5}`, `{}`, `{"query":"x","extra":true}`, `not json`} {
		res := r.Dispatch(context.Background(), ToolCall{ID: "c1", Name: "echo", Arguments: json.RawMessage(args)})
		assert.False(t, res.OK, args)

		var invalid *InvalidArgumentsError
		assert.True(t, errors.As(res.Err, &invalid), args)
	}
	assert.Equal(t, 0, calls)
}

func TestDispatchHandlerErrorAndPanic(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(ToolDefinition{
		Name: "fails",
		Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			return nil, errors.New("relation does not exist")
		},
	}))
	require.NoError(t, r.Register(ToolDefinition{
		Name: "panics",
		Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			panic("boom")
		},
	}))

	res := r.Dispatch(context.Background(), ToolCall{ID: "a", Name: "fails"})
	assert.False(t, res.OK)
	assert.Equal(t, "relation does not exist", res.Error)

	res = r.Dispatch(context.Background(), ToolCall{ID: "b", Name: "panics"})
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "panicked")
}

func TestAllowedToolsFilterCatalogAndDispatch(t *testing.T) {
	r := NewRegistry(WithAllowedTools("get_*"))
	handler := func(ctx context.Context, args json.RawMessage) (any, error) { return "ok", nil }
	require.NoError(t, r.Register(ToolDefinition{Name: "read_query", Handler: handler}))
	require.NoError(t, r.Register(ToolDefinition{Name: "get_schema", Handler: handler}))
	require.NoError(t, r.Register(ToolDefinition{Name: "get_tables", Handler: handler}))

	catalog := r.Catalog()
	require.Len(t, catalog, 2)
	assert.Equal(t, "get_schema", catalog[0].Name)
	assert.Equal(t, "get_tables", catalog[1].Name)

	res := r.Dispatch(context.Background(), ToolCall{ID: "c", Name: "read_query"})
	var notAllowed *ToolNotAllowedError
	assert.True(t, errors.As(res.Err, &notAllowed))

	res = r.Dispatch(context.Background(), ToolCall{ID: "d", Name: "get_schema"})
	assert.True(t, res.OK)
	assert.Equal(t, "ok", res.Content())
}

func TestCatalogParametersAreCleanObjects(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newEchoTool(nil)))

	catalog := r.Catalog()
	require.Len(t, catalog, 1)

	var params map[string]any
	require.NoError(t, json.Unmarshal(catalog[0].Parameters, &params))
	assert.Equal(t, "object", params["type"])
	assert.NotContains(t, params, "$schema")
	assert.Contains(t, params["properties"], "query")
	assert.Equal(t, []any{"query"}, params["required"])
}
