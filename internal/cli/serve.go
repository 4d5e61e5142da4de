package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ds124wfegd/studio-booking/internal/appServer"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var storage string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, queue consumers and background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if storage != "" {
				cfg.Server.Storage = storage
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			cfg.Server.AppVersion = Version

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			logrus.WithFields(logrus.Fields{
				"version": Version,
				"storage": cfg.Server.Storage,
				"queue":   cfg.Queue.Driver,
			}).Info("Starting studio-booking")
			return appServer.NewServer(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&storage, "storage", "", "override storage backend (postgres|memory)")
	return cmd
}
