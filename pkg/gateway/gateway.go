package gateway

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-go-golems/sqlagent/pkg/inference/engine"
	"github.com/go-go-golems/sqlagent/pkg/inference/toolloop"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Kind string

const (
	KindAgent     Kind = "agent"
	KindDashboard Kind = "dashboard"
)

var ErrEmptyQuery = errors.New("query must not be empty")

// UnknownKindError is returned when no runner is configured for a kind.
type UnknownKindError struct {
	Kind Kind
}

func (e *UnknownKindError) Error() string {
	return "no runner configured for " + string(e.Kind)
}

// Runner answers one query. *toolloop.Loop implements it.
type Runner interface {
	Run(ctx context.Context, query string) (*toolloop.Outcome, error)
}

// Response is always exactly one of result or error.
type Response struct {
	Result *string `json:"result,omitempty"`
	Error  *string `json:"error,omitempty"`
}

func resultResponse(s string) Response {
	return Response{Result: &s}
}

func errorResponse(err error) Response {
	msg := err.Error()
	return Response{Error: &msg}
}

// Gateway routes queries to the configured runners and turns every failure
// into an error response.
type Gateway struct {
	runners map[Kind]Runner
}

type Option func(*Gateway)

func WithRunner(kind Kind, r Runner) Option {
	return func(g *Gateway) {
		g.runners[kind] = r
	}
}

func New(options ...Option) *Gateway {
	g := &Gateway{runners: map[Kind]Runner{}}
	for _, o := range options {
		o(g)
	}
	return g
}

// Handle runs query with the runner for kind.
func (g *Gateway) Handle(ctx context.Context, kind Kind, query string) Response {
	res, err := g.run(ctx, kind, query)
	if err != nil {
		return errorResponse(err)
	}
	return resultResponse(res)
}

func (g *Gateway) run(ctx context.Context, kind Kind, query string) (result string, err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Ctx(ctx).Error().Interface("panic", p).Str("kind", string(kind)).Msg("runner panicked")
			result = ""
			err = errors.Errorf("internal error: %v", p)
		}
	}()

	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyQuery
	}
	r, ok := g.runners[kind]
	if !ok || r == nil {
		return "", &UnknownKindError{Kind: kind}
	}

	start := time.Now()
	out, err := r.Run(ctx, query)
	ev := log.Ctx(ctx).Info().Str("kind", string(kind)).Dur("duration", time.Since(start))
	if out != nil {
		ev = ev.Str("run_id", out.RunID).Int("turns", out.Turns).Str("state", string(out.State))
	}
	if err != nil {
		ev.Err(err).Msg("query failed")
		return "", err
	}
	ev.Int("result_length", len(out.Answer)).Msg("query answered")
	return out.Answer, nil
}

// StatusCode maps a run error to the HTTP status of its response.
func StatusCode(err error) int {
	var (
		backendErr   *engine.BackendError
		malformedErr *engine.MalformedResponseError
		timeoutErr   *toolloop.TimeoutError
		kindErr      *UnknownKindError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.As(err, &kindErr):
		return http.StatusNotFound
	case errors.As(err, &timeoutErr), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &backendErr), errors.As(err, &malformedErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
