package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"xdao.co/mediacid/httpapi"
	"xdao.co/mediacid/internal/app"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read API and watch submitted jobs",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			base := cmd.Context()
			if base == nil {
				base = context.Background()
			}
			sigCtx, stop := signal.NotifyContext(base, os.Interrupt, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(sigCtx)

			return ctx.withApp(cmd, func(c context.Context, a *app.App) error {
				srv, err := httpapi.New(httpapi.Options{
					Merger:      a.Merger,
					Pipeline:    a.Pipeline,
					Poller:      a.Poller,
					Logger:      a.Logger,
					BaseContext: c,
				})
				if err != nil {
					return err
				}
				addr := bind
				if addr == "" {
					addr = a.Config.HTTP.Bind
				}
				return srv.ListenAndServe(c, addr)
			})
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (default http.bind)")
	return cmd
}
