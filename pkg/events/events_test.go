package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishEventToContextTagsRunID(t *testing.T) {
	sink := &CollectingSink{}
	ctx := WithRunID(WithEventSinks(context.Background(), sink), "run-1")

	PublishEventToContext(ctx, NewToolCallExecuteEvent("c1", "get_schema", "{}"))
	PublishEventToContext(ctx, NewFinalEvent("explicit", 2, "done"))

	evs := sink.Events()
	require.Len(t, evs, 2)
	assert.Equal(t, "run-1", evs[0].RunID)
	assert.Equal(t, "explicit", evs[1].RunID)
	assert.Len(t, sink.OfType(EventTypeFinal), 1)
}

func TestPublishWithoutSinksIsNoop(t *testing.T) {
	PublishEventToContext(context.Background(), NewErrorEvent("r", 1, errors.New("boom")))
}

func TestEventRouterDeliversToHandlers(t *testing.T) {
	router, err := NewEventRouter()
	require.NoError(t, err)

	received := make(chan Event, 1)
	router.AddHandler("test", func(ev Event) error {
		received <- ev
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = router.Run(ctx)
	}()
	<-router.Running()

	require.NoError(t, router.Sink().PublishEvent(NewFinalEvent("run-7", 3, "answer")))

	select {
	case ev := <-received:
		assert.Equal(t, EventTypeFinal, ev.Type)
		assert.Equal(t, "run-7", ev.RunID)
		assert.Equal(t, 3, ev.Turn)
		assert.Equal(t, "answer", ev.Text)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}
	require.NoError(t, router.Close())
}
