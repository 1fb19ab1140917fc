package cmds

import (
	"fmt"
	"strings"

	"github.com/go-go-golems/sqlagent/pkg/gateway"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tcnksm/go-input"
)

type exchange struct {
	Question string
	Answer   string
	Failed   bool
}

func NewChatCommand() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask questions interactively",
		Long: "Ask questions interactively. Every question is answered by a fresh run. " +
			"Type /history to show the session, an empty line to quit.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, cleanup, err := flags.newRuntime(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			ui := &input.UI{
				Writer: cmd.OutOrStdout(),
				Reader: cmd.InOrStdin(),
			}

			var history []exchange
			for {
				question, err := ui.Ask("Question", &input.Options{
					Required:  false,
					HideOrder: true,
				})
				if err != nil {
					if errors.Is(err, input.ErrInterrupted) || strings.Contains(err.Error(), "EOF") {
						return nil
					}
					return err
				}
				question = strings.TrimSpace(question)

				switch question {
				case "":
					return nil
				case "/history":
					for i, e := range history {
						status := ""
						if e.Failed {
							status = " (failed)"
						}
						_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d. %s%s\n%s\n\n", i+1, e.Question, status, e.Answer)
					}
					continue
				}

				resp := rt.Gateway.Handle(cmd.Context(), gateway.KindAgent, question)
				if resp.Error != nil {
					log.Debug().Str("error", *resp.Error).Msg("question failed")
					history = append(history, exchange{Question: question, Answer: *resp.Error, Failed: true})
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "error: %s\n", *resp.Error)
					continue
				}
				history = append(history, exchange{Question: question, Answer: *resp.Result})
				if err := printMarkdown(cmd.OutOrStdout(), *resp.Result); err != nil {
					return err
				}
			}
		},
	}
	flags.add(cmd)
	return cmd
}
