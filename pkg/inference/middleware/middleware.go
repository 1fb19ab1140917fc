package middleware

import (
	"context"

	"github.com/go-go-golems/sqlagent/pkg/conversation"
	"github.com/go-go-golems/sqlagent/pkg/inference/engine"
	"github.com/go-go-golems/sqlagent/pkg/inference/tools"
)

// HandlerFunc processes one model call.
type HandlerFunc func(ctx context.Context, conv *conversation.Conversation, catalog []tools.ToolSchema) (*conversation.Message, error)

// Middleware wraps a HandlerFunc with additional functionality.
// Middleware are applied in order: Chain(m1, m2, m3) results in m1(m2(m3(handler))).
type Middleware func(HandlerFunc) HandlerFunc

// Chain composes multiple middleware into a single HandlerFunc.
func Chain(handler HandlerFunc, middlewares ...Middleware) HandlerFunc {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}

// Wrap returns a ModelClient that runs the middleware chain before calling client.
func Wrap(client engine.ModelClient, middlewares ...Middleware) engine.ModelClient {
	if len(middlewares) == 0 {
		return client
	}
	return engine.ModelClientFunc(Chain(client.Complete, middlewares...))
}
