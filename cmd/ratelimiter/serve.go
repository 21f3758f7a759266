package main

import (
	"context"

	"github.com/KOMKZ/go-yogan-ratelimiter/application"
	"github.com/KOMKZ/go-yogan-ratelimiter/di"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			injector := opts.injector(cmd)
			app, err := application.New(injector)
			if err != nil {
				injector.ShutdownWithContext(context.Background())
				return err
			}
			app.WithVersion(Version)
			if err := di.StartBackground(app.Context(), injector); err != nil {
				_ = app.Shutdown(app.Config().Server.ShutdownTimeout)
				return err
			}
			return app.Run()
		},
	}
	cmd.Flags().Int("port", 0, "listen port")
	cmd.Flags().String("mode", "", "gin mode (debug, release, test)")
	return cmd
}
