package middleware

import (
	"context"
	"time"

	"github.com/go-go-golems/sqlagent/pkg/conversation"
	"github.com/go-go-golems/sqlagent/pkg/inference/tools"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NewLoggingMiddleware logs every model call with its size and outcome.
// The logger attached to ctx wins over logger, so request ids carry through.
func NewLoggingMiddleware(logger zerolog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, conv *conversation.Conversation, catalog []tools.ToolSchema) (*conversation.Message, error) {
			lg := logger
			if ctxLogger := log.Ctx(ctx); ctxLogger.GetLevel() != zerolog.Disabled {
				lg = *ctxLogger
			}
			if lg.GetLevel() == zerolog.NoLevel {
				lg = log.Logger
			}

			lg = lg.With().
				Int("message_count", conv.Len()).
				Int("tool_count", len(catalog)).
				Logger()
			lg.Debug().Msg("model call: starting")

			start := time.Now()
			msg, err := next(ctx, conv, catalog)
			lg = lg.With().Dur("duration", time.Since(start)).Logger()
			if err != nil {
				lg.Warn().Err(err).Msg("model call: failed")
				return msg, err
			}

			ev := lg.Debug().Int("tool_calls", len(msg.ToolCalls))
			if !msg.HasToolCalls() {
				ev = ev.Int("answer_length", len(msg.Content))
			}
			ev.Msg("model call: completed")
			return msg, nil
		}
	}
}
