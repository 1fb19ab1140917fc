package cmds

import (
	"context"

	"github.com/go-go-golems/sqlagent/pkg/events"
	"github.com/go-go-golems/sqlagent/pkg/gateway"
	"github.com/go-go-golems/sqlagent/pkg/inference/dashboard"
	"github.com/go-go-golems/sqlagent/pkg/inference/engine"
	"github.com/go-go-golems/sqlagent/pkg/inference/engine/factory"
	"github.com/go-go-golems/sqlagent/pkg/inference/middleware"
	"github.com/go-go-golems/sqlagent/pkg/inference/toolloop"
	"github.com/go-go-golems/sqlagent/pkg/inference/tools"
	"github.com/go-go-golems/sqlagent/pkg/prompts"
	"github.com/go-go-golems/sqlagent/pkg/settings"
	"github.com/go-go-golems/sqlagent/pkg/sqltool"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Runtime holds everything a command needs to answer queries. It is built
// once per process from Settings.
type Runtime struct {
	Settings  *settings.Settings
	Prompts   *prompts.Config
	Store     *sqltool.Store
	Registry  *tools.Registry
	Client    engine.ModelClient
	Agent     *toolloop.Loop
	Dashboard *toolloop.Loop
	Gateway   *gateway.Gateway

	ownsStore bool
}

type runtimeOptions struct {
	client        engine.ModelClient
	store         *sqltool.Store
	sinks         []events.EventSink
	clientOptions []engine.Option
	snapshotHook  toolloop.SnapshotHook
}

type RuntimeOption func(*runtimeOptions)

// WithModelClient replaces the client the backend settings would create.
func WithModelClient(c engine.ModelClient) RuntimeOption {
	return func(o *runtimeOptions) { o.client = c }
}

// WithStore uses an already opened store. The runtime does not close it.
func WithStore(s *sqltool.Store) RuntimeOption {
	return func(o *runtimeOptions) { o.store = s }
}

func WithEventSinks(sinks ...events.EventSink) RuntimeOption {
	return func(o *runtimeOptions) { o.sinks = append(o.sinks, sinks...) }
}

func WithClientOptions(options ...engine.Option) RuntimeOption {
	return func(o *runtimeOptions) { o.clientOptions = append(o.clientOptions, options...) }
}

func WithSnapshotHook(h toolloop.SnapshotHook) RuntimeOption {
	return func(o *runtimeOptions) { o.snapshotHook = h }
}

// NewRuntime connects to the database, registers the tools and builds the
// agent and dashboard loops behind a gateway.
func NewRuntime(ctx context.Context, s *settings.Settings, options ...RuntimeOption) (*Runtime, error) {
	o := &runtimeOptions{}
	for _, opt := range options {
		opt(o)
	}
	if err := s.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid settings")
	}
	// the runtime owns its copy of the settings
	s = s.Clone()

	p, err := prompts.Load(s.PromptsFile)
	if err != nil {
		return nil, err
	}

	r := &Runtime{Settings: s, Prompts: p, Store: o.store}
	if r.Store == nil {
		r.Store, err = sqltool.Open(ctx, *s.Database)
		if err != nil {
			return nil, err
		}
		r.ownsStore = true
	}

	r.Registry = tools.NewRegistry(tools.WithAllowedTools(s.Agent.AllowedTools...))
	if err := r.Store.Register(r.Registry); err != nil {
		_ = r.Close()
		return nil, errors.Wrap(err, "could not register database tools")
	}

	r.Client = o.client
	if r.Client == nil {
		r.Client, err = factory.NewModelClient(s.Backend, o.clientOptions...)
		if err != nil {
			_ = r.Close()
			return nil, err
		}
	}

	var toolNames []string
	for _, t := range r.Registry.Catalog() {
		toolNames = append(toolNames, t.Name)
	}
	data := prompts.Data{Driver: r.Store.Driver(), Tools: toolNames}
	agentPrompt, err := p.AgentPrompt(data)
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	dashboardPrompt, err := p.DashboardPrompt(data)
	if err != nil {
		_ = r.Close()
		return nil, err
	}

	executor := tools.NewExecutor(tools.DefaultToolConfig().
		WithExecutionTimeout(s.Agent.ToolTimeout).
		WithMaxParallelTools(s.Agent.MaxParallelTools))
	loopCfg := toolloop.DefaultLoopConfig().
		WithMaxTurns(s.Agent.MaxTurns).
		WithModelCallTimeout(s.Agent.ModelCallTimeout).
		WithRunTimeout(s.Agent.RunTimeout)

	client := middleware.Wrap(r.Client,
		middleware.NewLoggingMiddleware(log.Logger),
		middleware.NewToolResultReorderMiddleware(),
	)
	common := []toolloop.Option{
		toolloop.WithModelClient(client),
		toolloop.WithTools(r.Registry),
		toolloop.WithExecutor(executor),
		toolloop.WithEventSinks(o.sinks...),
		toolloop.WithSnapshotHook(o.snapshotHook),
	}

	r.Agent = toolloop.New(append([]toolloop.Option{
		toolloop.WithName("agent"),
		toolloop.WithSystemPrompt(agentPrompt),
		toolloop.WithLoopConfig(loopCfg),
	}, common...)...)

	r.Dashboard = dashboard.NewLoop(dashboardPrompt, append([]toolloop.Option{
		toolloop.WithLoopConfig(loopCfg.WithCorrectiveTurns(s.Agent.CorrectiveTurns)),
		toolloop.WithCorrectionPrompt(p.CorrectionPrompt),
	}, common...)...)

	r.Gateway = gateway.New(
		gateway.WithRunner(gateway.KindAgent, r.Agent),
		gateway.WithRunner(gateway.KindDashboard, r.Dashboard),
	)

	log.Debug().
		Strs("tools", toolNames).
		Int("max_turns", loopCfg.MaxTurns).
		Msg("runtime ready")
	return r, nil
}

// Close releases the database connection if the runtime opened it.
func (r *Runtime) Close() error {
	if r.ownsStore && r.Store != nil {
		return r.Store.Close()
	}
	return nil
}
