package cmds

import (
	"os"
	"os/signal"
	"syscall"

	agentcmds "github.com/go-go-golems/sqlagent/pkg/cmds"
	"github.com/go-go-golems/sqlagent/pkg/events"
	"github.com/go-go-golems/sqlagent/pkg/gateway"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve /run_agent and /run_dashboard_agent over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := agentcmds.LoadSettings(cmd)
			if err != nil {
				return err
			}

			router, err := events.NewEventRouter(events.WithLogger(events.NewWatermillLogger(log.Logger)))
			if err != nil {
				return err
			}
			router.LogEvents()

			rt, err := agentcmds.NewRuntime(ctx, s, agentcmds.WithEventSinks(router.Sink()))
			if err != nil {
				return err
			}
			defer func() {
				if err := rt.Close(); err != nil {
					log.Warn().Err(err).Msg("could not close database")
				}
			}()

			srv := gateway.NewServer(s.Server.Address, rt.Gateway, s.Server.ShutdownTimeout)

			eg, ctx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				return router.Run(ctx)
			})
			eg.Go(func() error {
				defer func() {
					_ = router.Close()
				}()
				select {
				case <-router.Running():
				case <-ctx.Done():
					return nil
				}
				return srv.ListenAndServe(ctx)
			})
			return eg.Wait()
		},
	}
}
