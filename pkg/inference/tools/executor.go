package tools

import (
	"context"
	"encoding/json"

	"github.com/go-go-golems/sqlagent/pkg/events"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Executor runs the sibling tool calls of one model response.
type Executor struct {
	config ToolConfig
}

func NewExecutor(cfg ToolConfig) *Executor {
	return &Executor{config: cfg}
}

func (e *Executor) Config() ToolConfig {
	return e.config
}

func (e *Executor) maxParallel(calls int) int {
	if e.config.MaxParallelTools <= 0 {
		return calls
	}
	return e.config.MaxParallelTools
}

// ExecuteAll dispatches every call and returns once all of them finished.
// results[i] always answers calls[i].
//
// Calls that have not started when ctx is cancelled are answered with a
// failed result without running. Calls already running get a context that
// only ends with the execution timeout, so they complete.
func (e *Executor) ExecuteAll(ctx context.Context, d Dispatcher, calls []ToolCall) []ToolResult {
	results := make([]ToolResult, len(calls))
	if len(calls) == 0 {
		return results
	}

	eg := errgroup.Group{}
	eg.SetLimit(e.maxParallel(len(calls)))
	for i, call := range calls {
		eg.Go(func() error {
			results[i] = e.executeOne(ctx, d, call)
			return nil
		})
	}
	_ = eg.Wait()

	log.Debug().Int("calls", len(calls)).Msg("tool batch finished")
	return results
}

func (e *Executor) executeOne(ctx context.Context, d Dispatcher, call ToolCall) ToolResult {
	if err := ctx.Err(); err != nil {
		res := failedResult(call, errors.Wrap(err, "cancelled"))
		e.publishResult(ctx, res)
		return res
	}

	events.PublishEventToContext(ctx, events.NewToolCallExecuteEvent(call.ID, call.Name, compactArguments(call.Arguments)))

	runCtx := context.WithoutCancel(ctx)
	if e.config.ExecutionTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, e.config.ExecutionTimeout)
		defer cancel()
	}

	res := d.Dispatch(runCtx, call)
	e.publishResult(ctx, res)
	return res
}

func (e *Executor) publishResult(ctx context.Context, res ToolResult) {
	payload := ""
	if res.OK {
		payload = res.Content()
	}
	events.PublishEventToContext(ctx, events.NewToolResultEvent(res.ToolCallID, res.Name, payload, res.Error))
	log.Debug().
		Str("tool", res.Name).
		Str("tool_call_id", res.ToolCallID).
		Bool("ok", res.OK).
		Dur("duration", res.Duration).
		Msg("tool call finished")
}

// compactArguments returns compact JSON for event payloads.
func compactArguments(args json.RawMessage) string {
	if len(args) == 0 {
		return ""
	}
	var tmp any
	if err := json.Unmarshal(args, &tmp); err == nil {
		if b, err2 := json.Marshal(tmp); err2 == nil {
			return string(b)
		}
	}
	return string(args)
}
