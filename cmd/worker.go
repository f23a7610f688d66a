/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"os"
	"time"

	"github.com/pilotodevendas/apiserver/config"
	"github.com/pilotodevendas/apiserver/internal/avatar"
	"github.com/pilotodevendas/apiserver/internal/logger"
	"github.com/pilotodevendas/apiserver/internal/mq"
	"github.com/pilotodevendas/apiserver/internal/storage"
	"github.com/spf13/cobra"
)

var avatarTimeout time.Duration

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Mirrors Google profile pictures into object storage",
	Long: `Consumes auth events from the message broker and copies the Google
profile picture of newly created or linked accounts into object storage.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		log := logger.SetupDefault(os.Stdout, levelFor(cfg))
		ctx := cmd.Context()

		broker, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if broker == nil {
			return errors.New("worker requires MQ_BACKEND")
		}
		defer broker.Close()

		objects, err := storage.Open(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		if objects == nil {
			return errors.New("worker requires STORAGE_BACKEND")
		}
		defer objects.Close()

		mirror := avatar.NewMirror(objects, avatarTimeout, log)
		return avatar.NewWorker(broker, cfg.MQ.Channel, mirror, log).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().DurationVar(&avatarTimeout, "download-timeout", avatar.DefaultTimeout, "timeout for each avatar download")
}
