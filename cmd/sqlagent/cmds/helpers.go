package cmds

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	agentcmds "github.com/go-go-golems/sqlagent/pkg/cmds"
	"github.com/go-go-golems/sqlagent/pkg/conversation"
	"github.com/go-go-golems/sqlagent/pkg/inference/fixtures"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// runFlags are shared by the commands that answer a single query.
type runFlags struct {
	EventsFile string
	Trace      bool
}

func (f *runFlags) add(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.EventsFile, "events-file", "", "Write run events as NDJSON to this file")
	cmd.Flags().BoolVar(&f.Trace, "trace", false, "Print every message of the conversation to stderr")
}

// newRuntime builds the runtime for cmd. The returned cleanup closes the
// runtime and the events file.
func (f *runFlags) newRuntime(ctx context.Context, cmd *cobra.Command) (*agentcmds.Runtime, func(), error) {
	s, err := agentcmds.LoadSettings(cmd)
	if err != nil {
		return nil, nil, err
	}

	var (
		opts    []agentcmds.RuntimeOption
		closers []io.Closer
	)
	if f.EventsFile != "" {
		file, err := os.Create(f.EventsFile)
		if err != nil {
			return nil, nil, errors.Wrap(err, "could not create events file")
		}
		closers = append(closers, file)
		opts = append(opts, agentcmds.WithEventSinks(fixtures.NewFileSink(file, false)))
	}
	if f.Trace {
		opts = append(opts, agentcmds.WithSnapshotHook(traceHook(cmd.ErrOrStderr())))
	}

	rt, err := agentcmds.NewRuntime(ctx, s, opts...)
	if err != nil {
		for _, c := range closers {
			_ = c.Close()
		}
		return nil, nil, err
	}
	closers = append([]io.Closer{rtCloser{rt}}, closers...)

	return rt, func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}, nil
}

type rtCloser struct {
	rt *agentcmds.Runtime
}

func (c rtCloser) Close() error {
	return c.rt.Close()
}

// traceHook prints the newest message of the conversation at every phase.
func traceHook(w io.Writer) func(ctx context.Context, conv *conversation.Conversation, phase string) {
	return func(ctx context.Context, conv *conversation.Conversation, phase string) {
		msgs := conv.Messages()
		if phase == "post_tools" {
			for i := len(msgs) - 1; i >= 0 && msgs[i].Role == conversation.RoleTool; i-- {
				_, _ = fmt.Fprintf(w, "[%s] %s\n", phase, msgs[i].String())
			}
			return
		}
		if m, ok := conv.Last(); ok {
			_, _ = fmt.Fprintf(w, "[%s] %s\n", phase, m.String())
		}
	}
}

// printMarkdown renders markdown with glamour when w is a terminal.
func printMarkdown(w io.Writer, text string) error {
	if file, ok := w.(*os.File); ok && isatty.IsTerminal(file.Fd()) {
		styled, err := glamour.Render(text, "dark")
		if err == nil {
			_, err = fmt.Fprint(w, styled)
			return err
		}
	}
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	_, err := fmt.Fprint(w, text)
	return err
}
