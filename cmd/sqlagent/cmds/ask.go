package cmds

import (
	"strings"

	"github.com/go-go-golems/sqlagent/pkg/gateway"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewAskCommand() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "ask <question>...",
		Short: "Answer one question about the database",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, cleanup, err := flags.newRuntime(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			resp := rt.Gateway.Handle(cmd.Context(), gateway.KindAgent, strings.Join(args, " "))
			if resp.Error != nil {
				return errors.New(*resp.Error)
			}
			return printMarkdown(cmd.OutOrStdout(), *resp.Result)
		},
	}
	flags.add(cmd)
	return cmd
}
