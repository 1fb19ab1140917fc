package fixtures

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/go-go-golems/sqlagent/pkg/events"
)

// FileSink writes events as NDJSON, optionally echoing each line to stdout.
type FileSink struct {
	mu   sync.Mutex
	w    io.Writer
	echo bool
}

func NewFileSink(w io.Writer, echo bool) *FileSink {
	return &FileSink{w: w, echo: echo}
}

func (s *FileSink) PublishEvent(e events.Event) error {
	b, err := json.Marshal(map[string]any{
		"type":  string(e.Type),
		"event": e,
		"ts":    time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	line := append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(line); err != nil {
		return err
	}
	if s.echo {
		_, _ = os.Stdout.Write(line)
	}
	return nil
}

var _ events.EventSink = (*FileSink)(nil)
