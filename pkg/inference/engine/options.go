package engine

import (
	"context"

	"github.com/go-go-golems/sqlagent/pkg/events"
	"github.com/rs/zerolog/log"
)

// Option is a functional option for configuring model clients.
type Option func(*Config) error

// Config holds configuration shared by model client implementations.
type Config struct {
	// EventSinks receive events in addition to the sinks carried in the context.
	EventSinks []events.EventSink
}

func NewConfig() *Config {
	return &Config{
		EventSinks: make([]events.EventSink, 0),
	}
}

// WithSink adds an EventSink to the configuration.
func WithSink(sink events.EventSink) Option {
	return func(c *Config) error {
		c.EventSinks = append(c.EventSinks, sink)
		return nil
	}
}

func ApplyOptions(config *Config, options ...Option) error {
	for _, option := range options {
		if err := option(config); err != nil {
			return err
		}
	}
	return nil
}

// Publish sends event to the configured sinks and to the sinks carried in ctx.
func (c *Config) Publish(ctx context.Context, event events.Event) {
	if event.RunID == "" {
		event.RunID = events.RunIDFromContext(ctx)
	}
	for _, sink := range c.EventSinks {
		if err := sink.PublishEvent(event); err != nil {
			log.Warn().Err(err).Str("event_type", string(event.Type)).Msg("Failed to publish event to sink")
		}
	}
	events.PublishEventToContext(ctx, event)
}
