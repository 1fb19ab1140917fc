package tools

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/go-go-golems/sqlagent/pkg/events"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sleepInput struct {
	Name  string `json:"name"`
	Delay int    `json:"delay_ms"`
}

func TestExecuteAllRunsSiblingsConcurrentlyInOrder(t *testing.T) {
	var started sync.WaitGroup
	started.Add(2)
	allStarted := make(chan struct{})
	go func() {
		started.Wait()
		close(allStarted)
	}()

	r := NewRegistry()
	require.NoError(t, r.Register(NewTool("sleep", "sleep", func(ctx context.Context, in sleepInput) (string, error) {
		started.Done()
		select {
		case <-allStarted:
		case <-time.After(5 * time.Second):
			return "", errors.New("siblings did not run concurrently")
		}
		time.Sleep(time.Duration(in.Delay) * time.Millisecond)
		return in.Name, nil
	})))

	sink := &events.CollectingSink{}
	ctx := events.WithEventSinks(context.Background(), sink)
	calls := []ToolCall{
		{ID: "slow", Name: "sleep", Arguments: json.RawMessage(`{"name":"slow","delay_ms":50}`)},
		{ID: "fast", Name: "sleep", Arguments: json.RawMessage(`{"name":"fast","delay_ms":0}`)},
	}

	results := NewExecutor(DefaultToolConfig()).ExecuteAll(ctx, r, calls)
	require.Len(t, results, 2)
	assert.Equal(t, "slow", results[0].ToolCallID)
	assert.Equal(t, "slow", results[0].Result)
	assert.Equal(t, "fast", results[1].ToolCallID)
	assert.Equal(t, "fast", results[1].Result)

	assert.Len(t, sink.OfType(events.EventTypeToolCallExecute), 2)
	assert.Len(t, sink.OfType(events.EventTypeToolResult), 2)
}

func TestExecuteAllCancellationLetsRunningHandlerFinish(t *testing.T) {
	handlerStarted := make(chan struct{})
	proceed := make(chan struct{})
	var handlerCtxErr error
	runs := 0

	r := NewRegistry()
	require.NoError(t, r.Register(ToolDefinition{
		Name: "blocking",
		Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			runs++
			if runs == 1 {
				close(handlerStarted)
				<-proceed
			}
			handlerCtxErr = ctx.Err()
			return "finished", nil
		},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-handlerStarted
		cancel()
		close(proceed)
	}()

	exec := NewExecutor(DefaultToolConfig().WithMaxParallelTools(1))
	results := exec.ExecuteAll(ctx, r, []ToolCall{
		{ID: "first", Name: "blocking"},
		{ID: "second", Name: "blocking"},
	})

	require.Len(t, results, 2)
	assert.True(t, results[0].OK)
	assert.Equal(t, "finished", results[0].Result)
	assert.NoError(t, handlerCtxErr)

	assert.False(t, results[1].OK)
	assert.Equal(t, "second", results[1].ToolCallID)
	assert.Contains(t, results[1].Error, "cancelled")
	assert.Equal(t, 1, runs)
}

func TestExecuteAllAppliesExecutionTimeout(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(ToolDefinition{
		Name: "hang",
		Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}))

	exec := NewExecutor(DefaultToolConfig().WithExecutionTimeout(20 * time.Millisecond))
	results := exec.ExecuteAll(context.Background(), r, []ToolCall{{ID: "h", Name: "hang"}})
	require.Len(t, results, 1)
	assert.False(t, results[0].OK)
	assert.ErrorIs(t, results[0].Err, context.DeadlineExceeded)
}

func TestExecuteAllEmpty(t *testing.T) {
	results := NewExecutor(DefaultToolConfig()).ExecuteAll(context.Background(), NewRegistry(), nil)
	assert.Empty(t, results)
}
