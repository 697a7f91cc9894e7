/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/eventdesk/apiserver/internal/mq"
	"github.com/eventdesk/apiserver/internal/notify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// workerCmd delivers notifications queued by servers running MAIL_BACKEND=queue.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Deliver queued notification emails",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}
		defer logger.Sync()

		if cfg.MQ.Backend == "" || cfg.MQ.Backend == "memory" {
			return fmt.Errorf("worker needs a shared broker, MQ_BACKEND is %q", cfg.MQ.Backend)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		queue, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		defer queue.Close()

		deliver, err := notify.DeliverySender(cfg, logger)
		if err != nil {
			return err
		}

		logger.Info("worker started", zap.String("backend", cfg.MQ.Backend), zap.String("channel", cfg.MQ.Channel))
		err = notify.Consume(ctx, queue, cfg.MQ.Channel, deliver, logger)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		logger.Info("worker stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
