package events

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

type EventType string

const (
	EventTypeRunStart      EventType = "run-start"
	EventTypeModelRequest  EventType = "model-request"
	EventTypeModelResponse EventType = "model-response"
	// Streamed text delta received from the model backend
	EventTypePartial EventType = "partial"

	// Execution-phase events (we are actually executing tools locally)
	EventTypeToolCallExecute EventType = "tool-call-execute"
	EventTypeToolResult      EventType = "tool-result"

	EventTypeCorrection EventType = "correction"
	EventTypeFinal      EventType = "final"
	EventTypeError      EventType = "error"
)

// Event is a single observation emitted while a run progresses.
type Event struct {
	Type       EventType      `json:"type"`
	RunID      string         `json:"run_id,omitempty"`
	Turn       int            `json:"turn,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	Text       string         `json:"text,omitempty"`
	Error      string         `json:"error,omitempty"`
	Time       time.Time      `json:"time"`
	Extra      map[string]any `json:"extra,omitempty"`
}

func newEvent(t EventType, runID string, turn int) Event {
	return Event{Type: t, RunID: runID, Turn: turn, Time: time.Now()}
}

func NewRunStartEvent(runID, query string) Event {
	e := newEvent(EventTypeRunStart, runID, 0)
	e.Text = query
	return e
}

func NewModelRequestEvent(runID string, turn int, messageCount int) Event {
	e := newEvent(EventTypeModelRequest, runID, turn)
	e.Extra = map[string]any{"messages": messageCount}
	return e
}

func NewModelResponseEvent(runID string, turn int, text string, toolCalls int) Event {
	e := newEvent(EventTypeModelResponse, runID, turn)
	e.Text = text
	e.Extra = map[string]any{"tool_calls": toolCalls}
	return e
}

func NewPartialEvent(delta, completion string) Event {
	e := newEvent(EventTypePartial, "", 0)
	e.Text = delta
	e.Extra = map[string]any{"length": len(completion)}
	return e
}

func NewToolCallExecuteEvent(id, name, input string) Event {
	e := newEvent(EventTypeToolCallExecute, "", 0)
	e.ToolCallID = id
	e.ToolName = name
	e.Text = input
	return e
}

func NewToolResultEvent(id, name, result, errMsg string) Event {
	e := newEvent(EventTypeToolResult, "", 0)
	e.ToolCallID = id
	e.ToolName = name
	e.Text = result
	e.Error = errMsg
	return e
}

func NewCorrectionEvent(runID string, turn int, reason string) Event {
	e := newEvent(EventTypeCorrection, runID, turn)
	e.Error = reason
	return e
}

func NewFinalEvent(runID string, turn int, text string) Event {
	e := newEvent(EventTypeFinal, runID, turn)
	e.Text = text
	return e
}

func NewErrorEvent(runID string, turn int, err error) Event {
	e := newEvent(EventTypeError, runID, turn)
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// NewEventFromJSON decodes an event serialized with json.Marshal.
func NewEventFromJSON(b []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(b, &e)
	return e, err
}

// MarshalZerologObject lets events be logged with zerolog's Object.
func (e Event) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type))
	if e.RunID != "" {
		ev.Str("run_id", e.RunID)
	}
	if e.Turn > 0 {
		ev.Int("turn", e.Turn)
	}
	if e.ToolCallID != "" {
		ev.Str("tool_call_id", e.ToolCallID).Str("tool_name", e.ToolName)
	}
	if e.Error != "" {
		ev.Str("error", e.Error)
	}
	if len(e.Text) > 200 {
		ev.Str("text", e.Text[:200]+"…")
	} else if e.Text != "" {
		ev.Str("text", e.Text)
	}
}
