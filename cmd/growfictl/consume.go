package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/growfi/growfi-server/internal/queue"
)

func newConsumeCmd() *cobra.Command {
	var logDir string
	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Run the purchase event consumer",
		Long: `Consume plots.purchased events and append one line per purchase to
<log-dir>/purchase.log until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if logDir == "" {
				logDir = cfg.LogDir
			}
			log := newLogger(cfg)
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log.Info("consuming", zap.String("queue", queue.PlotsPurchasedQueue), zap.String("log_dir", logDir))
			err = queue.NewConsumer(cfg.RabbitURL, logDir, log).Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&logDir, "log-dir", "", "directory for purchase.log (default: LOG_DIR)")
	return cmd
}
