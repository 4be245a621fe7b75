package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/datagoal/datagoal/internal/watcher"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the background watch daemon",
		Long:  "Runs the watch daemon: polls for runs needing attention, escalates them to the configured chat channels, fails stalled generations, and sends scheduled digests.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "datagoal.yaml", "path to Data Goal config file")
	return cmd
}

func runWatch(cmd *cobra.Command, configPath string) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	ctrl, err := buildController(cfg, gormDB)
	if err != nil {
		return err
	}
	notifier, err := buildNotifier(cfg, gormDB)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := notifier.Connect(ctx); err != nil {
		return err
	}
	defer notifier.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	return watcher.Run(ctx, watcher.Opts{
		DB:           gormDB,
		Controller:   ctrl,
		Notifier:     notifier,
		PollInterval: cfg.Watch.PollInterval,
		StallTimeout: cfg.Watch.StallTimeout,
		DigestCron:   cfg.Watch.DigestCron,
		Out:          cmd.OutOrStdout(),
	})
}
