package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

// Dispatcher executes a single tool call. Registry is the default implementation.
type Dispatcher interface {
	Dispatch(ctx context.Context, call ToolCall) ToolResult
}

type registeredTool struct {
	def    ToolDefinition
	params json.RawMessage
	schema *gojsonschema.Schema
}

// Registry is a thread-safe in-memory set of tools.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*registeredTool
	config ToolConfig
}

type RegistryOption func(*Registry)

// WithAllowedTools restricts dispatch and the catalog to tools matching one of the glob patterns.
func WithAllowedTools(patterns ...string) RegistryOption {
	return func(r *Registry) {
		r.config = r.config.WithAllowedTools(patterns)
	}
}

func NewRegistry(options ...RegistryOption) *Registry {
	r := &Registry{
		tools: make(map[string]*registeredTool),
	}
	for _, o := range options {
		o(r)
	}
	return r
}

// Register adds a tool. The parameter schema is compiled once here.
func (r *Registry) Register(def ToolDefinition) error {
	if def.Name == "" {
		return errors.New("tool name cannot be empty")
	}
	if def.Handler == nil {
		return errors.Errorf("tool %s has no handler", def.Name)
	}

	params, err := normalizeParameters(def)
	if err != nil {
		return errors.Wrapf(err, "could not serialize parameters of tool %s", def.Name)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(params))
	if err != nil {
		return errors.Wrapf(err, "invalid parameter schema for tool %s", def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return errors.Errorf("tool %s is already registered", def.Name)
	}
	r.tools[def.Name] = &registeredTool{def: def, params: params, schema: schema}

	log.Debug().Str("tool", def.Name).Msg("registered tool")
	return nil
}

// normalizeParameters serializes the schema without the $schema/$id
// annotations the reflector adds, which chat backends don't expect.
func normalizeParameters(def ToolDefinition) (json.RawMessage, error) {
	if def.Parameters == nil {
		return json.RawMessage(`{"type":"object","properties":{}}`), nil
	}
	b, err := json.Marshal(def.Parameters)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	delete(m, "$schema")
	delete(m, "$id")
	if _, ok := m["type"]; !ok {
		m["type"] = "object"
	}
	return json.Marshal(m)
}

// Get returns the definition registered under name.
func (r *Registry) Get(name string) (ToolDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return ToolDefinition{}, false
	}
	return t.def, true
}

// Len returns the number of registered tools, allowed or not.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Catalog lists the allowed tools sorted by name.
func (r *Registry) Catalog() []ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ret := make([]ToolSchema, 0, len(r.tools))
	for name, t := range r.tools {
		if !r.config.IsToolAllowed(name) {
			continue
		}
		ret = append(ret, ToolSchema{
			Name:        name,
			Description: t.def.Description,
			Parameters:  append(json.RawMessage(nil), t.params...),
		})
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].Name < ret[j].Name
	})
	return ret
}

// Dispatch validates and runs one call. Failures never escape as errors, they
// are reported in the returned ToolResult. The handler runs at most once.
func (r *Registry) Dispatch(ctx context.Context, call ToolCall) (res ToolResult) {
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
	}()

	r.mu.RLock()
	t, ok := r.tools[call.Name]
	allowed := r.config.IsToolAllowed(call.Name)
	r.mu.RUnlock()

	if !ok {
		return failedResult(call, &UnknownToolError{Name: call.Name})
	}
	if !allowed {
		return failedResult(call, &ToolNotAllowedError{Name: call.Name})
	}

	args := call.Arguments
	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage(`{}`)
	}
	if err := validateArguments(t, args); err != nil {
		return failedResult(call, err)
	}

	out, err := invoke(ctx, t.def, args)
	if err != nil {
		log.Debug().Err(err).Str("tool", call.Name).Str("tool_call_id", call.ID).Msg("tool handler failed")
		return failedResult(call, err)
	}

	return ToolResult{
		ToolCallID: call.ID,
		Name:       call.Name,
		Result:     out,
		OK:         true,
	}
}

func validateArguments(t *registeredTool, args json.RawMessage) error {
	if !json.Valid(args) {
		return &InvalidArgumentsError{Name: t.def.Name, Reason: "arguments are not valid JSON"}
	}
	result, err := t.schema.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return &InvalidArgumentsError{Name: t.def.Name, Reason: err.Error()}
	}
	if !result.Valid() {
		var violations []string
		for _, desc := range result.Errors() {
			violations = append(violations, desc.String())
		}
		return &InvalidArgumentsError{
			Name:       t.def.Name,
			Reason:     "arguments do not match the parameter schema",
			Violations: violations,
		}
	}
	return nil
}

func invoke(ctx context.Context, def ToolDefinition, args json.RawMessage) (out any, err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Str("tool", def.Name).Interface("panic", p).Msg("tool handler panicked")
			out = nil
			err = fmt.Errorf("tool %s panicked: %v", def.Name, p)
		}
	}()
	return def.Handler(ctx, args)
}

var _ Dispatcher = (*Registry)(nil)
