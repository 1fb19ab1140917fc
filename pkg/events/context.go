package events

import (
	"context"

	"github.com/rs/zerolog/log"
)

// EventSink is a destination for run events.
type EventSink interface {
	PublishEvent(event Event) error
}

// ctxKey is an unexported type for keys defined in this package.
// This prevents collisions with keys defined in other packages.
type ctxKey int

const (
	ctxKeyEventSinks ctxKey = iota
	ctxKeyRunID
)

// WithEventSinks attaches one or more EventSink instances to the context.
// Downstream code can retrieve the sinks and publish events without
// requiring access to loop configuration.
func WithEventSinks(ctx context.Context, sinks ...EventSink) context.Context {
	if len(sinks) == 0 {
		return ctx
	}
	existing := GetEventSinks(ctx)
	combined := append([]EventSink{}, existing...)
	combined = append(combined, sinks...)
	return context.WithValue(ctx, ctxKeyEventSinks, combined)
}

// GetEventSinks returns the list of EventSinks attached to the context.
func GetEventSinks(ctx context.Context) []EventSink {
	if v := ctx.Value(ctxKeyEventSinks); v != nil {
		if sinks, ok := v.([]EventSink); ok {
			return sinks
		}
	}
	return nil
}

// WithRunID tags every event published through ctx with runID.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, ctxKeyRunID, runID)
}

func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRunID).(string)
	return id
}

// PublishEventToContext publishes the provided event to all EventSinks stored in the context.
// If no sinks are present, this is a no-op.
func PublishEventToContext(ctx context.Context, event Event) {
	sinks := GetEventSinks(ctx)
	if len(sinks) == 0 {
		return
	}
	if event.RunID == "" {
		event.RunID = RunIDFromContext(ctx)
	}
	log.Trace().Str("component", "events.context").Str("event_type", string(event.Type)).Int("sink_count", len(sinks)).Msg("publishing to sinks")
	for _, sink := range sinks {
		// Best-effort: ignore individual sink errors to avoid disrupting the flow
		if err := sink.PublishEvent(event); err != nil {
			log.Debug().Err(err).Str("event_type", string(event.Type)).Msg("event sink failed")
		}
	}
}
