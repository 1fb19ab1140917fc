package events

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog/log"
)

// TopicRunEvents is the topic run events are published on.
const TopicRunEvents = "sqlagent.run-events"

// EventRouter is an in-process watermill bus run events flow through.
type EventRouter struct {
	logger     watermill.LoggerAdapter
	Publisher  message.Publisher
	Subscriber message.Subscriber
	router     *message.Router
}

type EventRouterOption func(*EventRouter)

func WithLogger(logger watermill.LoggerAdapter) EventRouterOption {
	return func(r *EventRouter) {
		r.logger = logger
	}
}

func NewEventRouter(options ...EventRouterOption) (*EventRouter, error) {
	ret := &EventRouter{
		logger: watermill.NopLogger{},
	}

	for _, o := range options {
		o(ret)
	}

	goPubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
	}, ret.logger)
	ret.Publisher = goPubSub
	ret.Subscriber = goPubSub

	router, err := message.NewRouter(message.RouterConfig{}, ret.logger)
	if err != nil {
		return nil, err
	}
	ret.router = router

	return ret, nil
}

// Sink returns an EventSink publishing onto the router's run-events topic.
func (e *EventRouter) Sink() *WatermillSink {
	return NewWatermillSink(e.Publisher, TopicRunEvents)
}

// AddHandler subscribes f to the run-events topic with already decoded events.
func (e *EventRouter) AddHandler(name string, f func(Event) error) {
	e.router.AddNoPublisherHandler(name, TopicRunEvents, e.Subscriber, func(msg *message.Message) error {
		ev, err := NewEventFromJSON(msg.Payload)
		if err != nil {
			// Don't kill the handler for one bad message, just log and continue
			log.Warn().Err(err).Str("message_id", msg.UUID).Msg("could not decode run event")
			return nil
		}
		return f(ev)
	})
}

// LogEvents registers a handler writing every run event to the global logger.
func (e *EventRouter) LogEvents() {
	e.AddHandler("log-run-events", func(ev Event) error {
		switch ev.Type {
		case EventTypeError:
			log.Warn().EmbedObject(ev).Msg("run event")
		case EventTypePartial:
			log.Trace().EmbedObject(ev).Msg("run event")
		default:
			log.Debug().EmbedObject(ev).Msg("run event")
		}
		return nil
	})
}

func (e *EventRouter) Running() chan struct{} {
	return e.router.Running()
}

// Run blocks until ctx is cancelled or the router is closed.
func (e *EventRouter) Run(ctx context.Context) error {
	return e.router.Run(ctx)
}

func (e *EventRouter) Close() error {
	if err := e.Publisher.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close pubsub")
		// not returning just yet
	}
	if err := e.router.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close router")
		return err
	}
	return nil
}
