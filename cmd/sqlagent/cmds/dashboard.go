package cmds

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-go-golems/sqlagent/pkg/gateway"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewDashboardCommand() *cobra.Command {
	flags := &runFlags{}
	var output string
	cmd := &cobra.Command{
		Use:   "dashboard <request>...",
		Short: "Generate an HTML dashboard from the database",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, cleanup, err := flags.newRuntime(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			resp := rt.Gateway.Handle(cmd.Context(), gateway.KindDashboard, strings.Join(args, " "))
			if resp.Error != nil {
				return errors.New(*resp.Error)
			}
			if output == "-" {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), *resp.Result)
				return err
			}
			if err := os.WriteFile(output, []byte(*resp.Result), 0644); err != nil {
				return errors.Wrapf(err, "could not write %s", output)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "dashboard written to %s\n", output)
			return err
		},
	}
	flags.add(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "dashboard.html", "Output file, - for stdout")
	return cmd
}
