package toolloop

import (
	"context"
	"fmt"
	"time"

	"github.com/go-go-golems/sqlagent/pkg/conversation"
	"github.com/go-go-golems/sqlagent/pkg/events"
	"github.com/go-go-golems/sqlagent/pkg/inference/engine"
	"github.com/go-go-golems/sqlagent/pkg/inference/tools"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type State string

const (
	StateStart          State = "start"
	StateAwaitingModel  State = "awaiting_model"
	StateExecutingTools State = "executing_tools"
	StateDone           State = "done"
	StateAborted        State = "aborted"
)

const (
	PhasePreModel  = "pre_model"
	PhasePostModel = "post_model"
	PhasePostTools = "post_tools"
)

// ToolSet is what the loop needs from a tool registry.
type ToolSet interface {
	tools.Dispatcher
	Catalog() []tools.ToolSchema
}

// ArtifactValidator checks a final answer and returns the artifact to hand
// back to the caller.
type ArtifactValidator func(answer string) (string, error)

// CorrectionPrompt turns a validation failure into the user message of a corrective turn.
type CorrectionPrompt func(err error) string

// Outcome is the result of one run. Conversation holds the full message log,
// also when the run aborted.
type Outcome struct {
	RunID        string
	State        State
	Answer       string
	Turns        int
	Corrections  int
	Conversation *conversation.Conversation
	Err          error
	Duration     time.Duration
}

// Loop drives the conversation between a model client and a tool set until
// the model answers without tool calls.
type Loop struct {
	name       string
	client     engine.ModelClient
	tools      ToolSet
	executor   *tools.Executor
	loopCfg    LoopConfig
	system     string
	validate   ArtifactValidator
	correction CorrectionPrompt
	sinks      []events.EventSink

	snapshotHook SnapshotHook
}

type Option func(*Loop)

func New(opts ...Option) *Loop {
	l := &Loop{
		name:       "agent",
		loopCfg:    DefaultLoopConfig(),
		correction: defaultCorrectionPrompt,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	if l.tools == nil {
		l.tools = tools.NewRegistry()
	}
	if l.executor == nil {
		l.executor = tools.NewExecutor(tools.DefaultToolConfig())
	}
	return l
}

func WithName(name string) Option {
	return func(l *Loop) { l.name = name }
}

func WithModelClient(c engine.ModelClient) Option {
	return func(l *Loop) { l.client = c }
}

func WithTools(ts ToolSet) Option {
	return func(l *Loop) { l.tools = ts }
}

func WithExecutor(exec *tools.Executor) Option {
	return func(l *Loop) { l.executor = exec }
}

func WithLoopConfig(cfg LoopConfig) Option {
	return func(l *Loop) { l.loopCfg = cfg }
}

func WithSystemPrompt(prompt string) Option {
	return func(l *Loop) { l.system = prompt }
}

// WithArtifactValidator checks every final answer. A rejected answer is sent
// back to the model up to LoopConfig.CorrectiveTurns times.
func WithArtifactValidator(v ArtifactValidator) Option {
	return func(l *Loop) { l.validate = v }
}

func WithCorrectionPrompt(p CorrectionPrompt) Option {
	return func(l *Loop) {
		if p != nil {
			l.correction = p
		}
	}
}

func WithEventSinks(sinks ...events.EventSink) Option {
	return func(l *Loop) { l.sinks = append(l.sinks, sinks...) }
}

func WithSnapshotHook(h SnapshotHook) Option {
	return func(l *Loop) { l.snapshotHook = h }
}

func (l *Loop) Name() string {
	return l.name
}

func (l *Loop) Config() LoopConfig {
	return l.loopCfg
}

func defaultCorrectionPrompt(err error) string {
	return fmt.Sprintf("Your previous answer was rejected: %v. Reply again with a corrected answer.", err)
}

// Run answers query. The returned error is also stored in Outcome.Err; the
// outcome is never nil.
func (l *Loop) Run(ctx context.Context, query string) (*Outcome, error) {
	start := time.Now()

	runID := events.RunIDFromContext(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = events.WithRunID(ctx, runID)
	}
	ctx = events.WithEventSinks(ctx, l.sinks...)
	hook := l.snapshotHook
	if hook == nil {
		hook, _ = SnapshotHookFromContext(ctx)
	}

	conv := conversation.NewConversation()
	if l.system != "" {
		conv.Append(conversation.NewSystemMessage(l.system))
	}
	conv.Append(conversation.NewUserMessage(query))

	out := &Outcome{RunID: runID, State: StateStart, Conversation: conv}
	logger := log.With().Str("loop", l.name).Str("run_id", runID).Logger()
	logger.Debug().Int("max_turns", l.loopCfg.MaxTurns).Msg("run started")
	events.PublishEventToContext(ctx, events.NewRunStartEvent(runID, query))

	abort := func(err error) (*Outcome, error) {
		out.State = StateAborted
		out.Err = err
		out.Duration = time.Since(start)
		logger.Debug().Err(err).Int("turns", out.Turns).Dur("duration", out.Duration).Msg("run aborted")
		events.PublishEventToContext(ctx, events.NewErrorEvent(runID, out.Turns, err))
		return out, err
	}

	if l.client == nil {
		return abort(errors.New("no model client configured"))
	}

	runCtx := ctx
	if l.loopCfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, l.loopCfg.RunTimeout)
		defer cancel()
	}

	catalog := l.tools.Catalog()

	for {
		out.State = StateAwaitingModel
		if err := l.checkContext(ctx, runCtx); err != nil {
			return abort(err)
		}
		// corrective turns come on top of the budget
		if l.loopCfg.MaxTurns > 0 && out.Turns >= l.loopCfg.MaxTurns+out.Corrections {
			return abort(&TurnLimitExceededError{Limit: l.loopCfg.MaxTurns})
		}
		out.Turns++

		if hook != nil {
			hook(ctx, conv, PhasePreModel)
		}
		events.PublishEventToContext(ctx, events.NewModelRequestEvent(runID, out.Turns, conv.Len()))

		msg, err := l.callModel(ctx, runCtx, conv, catalog)
		if err != nil {
			return abort(err)
		}
		conv.Append(*msg)
		events.PublishEventToContext(ctx, events.NewModelResponseEvent(runID, out.Turns, msg.Content, len(msg.ToolCalls)))
		if hook != nil {
			hook(ctx, conv, PhasePostModel)
		}

		if !msg.HasToolCalls() {
			answer := msg.Content
			if l.validate != nil {
				artifact, verr := l.validate(answer)
				if verr != nil {
					if out.Corrections >= l.loopCfg.CorrectiveTurns {
						return abort(verr)
					}
					out.Corrections++
					logger.Debug().Err(verr).Int("turn", out.Turns).Msg("answer rejected, asking for a correction")
					events.PublishEventToContext(ctx, events.NewCorrectionEvent(runID, out.Turns, verr.Error()))
					conv.Append(conversation.NewUserMessage(l.correction(verr)))
					continue
				}
				answer = artifact
			}

			out.State = StateDone
			out.Answer = answer
			out.Duration = time.Since(start)
			logger.Debug().Int("turns", out.Turns).Dur("duration", out.Duration).Msg("run finished")
			events.PublishEventToContext(ctx, events.NewFinalEvent(runID, out.Turns, answer))
			return out, nil
		}

		out.State = StateExecutingTools
		results := l.executor.ExecuteAll(runCtx, l.tools, msg.ToolCalls)
		for _, res := range results {
			conv.Append(res.Message())
		}
		if hook != nil {
			hook(ctx, conv, PhasePostTools)
		}
	}
}

// checkContext reports parent cancellation as the context error and an
// expired run deadline as a TimeoutError.
func (l *Loop) checkContext(parent, runCtx context.Context) error {
	if err := parent.Err(); err != nil {
		return err
	}
	if runCtx.Err() != nil {
		return &TimeoutError{Scope: TimeoutScopeRun, Limit: l.loopCfg.RunTimeout}
	}
	return nil
}

func (l *Loop) callModel(parent, runCtx context.Context, conv *conversation.Conversation, catalog []tools.ToolSchema) (*conversation.Message, error) {
	callCtx := runCtx
	if l.loopCfg.ModelCallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(runCtx, l.loopCfg.ModelCallTimeout)
		defer cancel()
	}

	msg, err := l.client.Complete(callCtx, conv, catalog)
	if err == nil {
		return msg, nil
	}
	if cerr := l.checkContext(parent, runCtx); cerr != nil {
		return nil, cerr
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return nil, &TimeoutError{Scope: TimeoutScopeModelCall, Limit: l.loopCfg.ModelCallTimeout}
	}
	return nil, errors.Wrap(err, "model call failed")
}
