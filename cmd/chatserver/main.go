package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/omochice/termchat/internal/logging"
	"github.com/omochice/termchat/internal/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		port     string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:           "chatserver",
		Short:         "Run a termchat room server",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, closer := logging.New(logging.Options{Console: os.Stderr, Level: logLevel})
			defer closer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := server.New(port, server.WithLogger(logger))

			eg, ctx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				logger.Info().Str("port", port).Msg("Starting chat server")
				err := srv.Start()
				if errors.Is(err, server.ErrServerStopped) {
					return nil
				}
				return err
			})
			eg.Go(func() error {
				<-ctx.Done()
				logger.Info().Msg("Shutting down...")
				srv.Stop()
				return nil
			})

			if err := eg.Wait(); err != nil {
				return err
			}
			logger.Info().Msg("Chat server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&port, "port", ":9898", "Address to listen on (e.g., :9898)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	return cmd
}
