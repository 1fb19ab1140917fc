package fixtures

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/go-go-golems/sqlagent/pkg/conversation"
	"github.com/go-go-golems/sqlagent/pkg/inference/engine"
	"github.com/go-go-golems/sqlagent/pkg/inference/tools"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Script is a scripted model conversation, one step per model call.
//
//	version: 1
//	steps:
//	  - tool_calls:
//	      - {id: call_1, name: get_schema}
//	  - content: "There are 42 customers."
type Script struct {
	Version int    `yaml:"version,omitempty"`
	Steps   []Step `yaml:"steps"`
}

// Step is the model's answer to one call. Exactly one of Content/ToolCalls
// or Error is expected; Content and ToolCalls may be combined.
type Step struct {
	Content   string     `yaml:"content,omitempty"`
	ToolCalls []ToolCall `yaml:"tool_calls,omitempty"`

	// Error makes the call fail: "backend", "malformed" or any other text,
	// which is returned as a plain error.
	Error  string `yaml:"error,omitempty"`
	Status int    `yaml:"status,omitempty"`

	// Delay is waited before answering, honoring cancellation.
	Delay time.Duration `yaml:"delay,omitempty"`
}

type ToolCall struct {
	ID        string         `yaml:"id,omitempty"`
	Name      string         `yaml:"name"`
	Arguments map[string]any `yaml:"arguments,omitempty"`
	// RawArguments is sent verbatim, to script invalid JSON.
	RawArguments string `yaml:"raw_arguments,omitempty"`
}

// Reply is a step answering with text.
func Reply(text string) Step {
	return Step{Content: text}
}

// CallTools is a step requesting tool calls.
func CallTools(calls ...ToolCall) Step {
	return Step{ToolCalls: calls}
}

// Call builds a tool call with the given id and arguments.
func Call(id, name string, args map[string]any) ToolCall {
	return ToolCall{ID: id, Name: name, Arguments: args}
}

// Fail is a step returning a BackendError with the given HTTP status.
func Fail(status int) Step {
	return Step{Error: "backend", Status: status}
}

// LoadScript reads a Script from a YAML file.
func LoadScript(path string) (*Script, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read fixture %s", path)
	}
	var s Script
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, errors.Wrapf(err, "could not parse fixture %s", path)
	}
	if len(s.Steps) == 0 {
		return nil, errors.Errorf("fixture %s has no steps", path)
	}
	return &s, nil
}

// ScriptedClient is an engine.ModelClient replaying a Script. It records
// every conversation it was called with.
type ScriptedClient struct {
	mu       sync.Mutex
	steps    []Step
	next     int
	requests [][]conversation.Message
	catalogs [][]tools.ToolSchema
}

func NewScriptedClient(steps ...Step) *ScriptedClient {
	return &ScriptedClient{steps: steps}
}

func NewScriptedClientFromFile(path string) (*ScriptedClient, error) {
	s, err := LoadScript(path)
	if err != nil {
		return nil, err
	}
	return NewScriptedClient(s.Steps...), nil
}

func (c *ScriptedClient) Complete(ctx context.Context, conv *conversation.Conversation, catalog []tools.ToolSchema) (*conversation.Message, error) {
	if err := conv.CheckReadyForModel(); err != nil {
		return nil, errors.Wrap(err, "conversation is not ready for the model")
	}

	c.mu.Lock()
	c.requests = append(c.requests, conv.Messages())
	c.catalogs = append(c.catalogs, catalog)
	if c.next >= len(c.steps) {
		c.mu.Unlock()
		return nil, errors.Errorf("fixture script exhausted after %d steps", len(c.steps))
	}
	step := c.steps[c.next]
	c.next++
	c.mu.Unlock()

	log.Debug().Int("step", c.Calls()).Int("messages", conv.Len()).Msg("replaying fixture step")

	if step.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(step.Delay):
		}
	}

	switch step.Error {
	case "":
	case "backend":
		return nil, &engine.BackendError{Op: "fixture", StatusCode: step.Status, Err: errors.New("scripted backend failure")}
	case "malformed":
		return nil, &engine.MalformedResponseError{Reason: "scripted malformed response"}
	default:
		return nil, errors.New(step.Error)
	}

	msg := &conversation.Message{
		Role:    conversation.RoleAssistant,
		Content: step.Content,
	}
	for _, tc := range step.ToolCalls {
		args := json.RawMessage(tc.RawArguments)
		if tc.RawArguments == "" {
			b, err := json.Marshal(tc.Arguments)
			if err != nil {
				return nil, errors.Wrapf(err, "could not encode arguments of %s", tc.Name)
			}
			if tc.Arguments == nil {
				b = []byte(`{}`)
			}
			args = b
		}
		msg.ToolCalls = append(msg.ToolCalls, conversation.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: args})
	}

	if err := engine.NormalizeResponse(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Calls returns how many times Complete consumed a step or was refused for exhaustion.
func (c *ScriptedClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

// Requests returns the conversations Complete was called with, in order.
func (c *ScriptedClient) Requests() [][]conversation.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]conversation.Message(nil), c.requests...)
}

// Catalogs returns the tool catalogs Complete was called with, in order.
func (c *ScriptedClient) Catalogs() [][]tools.ToolSchema {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]tools.ToolSchema(nil), c.catalogs...)
}

// Remaining reports how many steps have not been replayed yet.
func (c *ScriptedClient) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.steps) - c.next
}

var _ engine.ModelClient = (*ScriptedClient)(nil)
