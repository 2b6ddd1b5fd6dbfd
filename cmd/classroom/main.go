package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/a-essam23/go-classroom/pkg/config"
	"github.com/a-essam23/go-classroom/pkg/logging"
)

func main() {
	bootLogger := logging.New(logging.LevelWarn)
	cfg, err := config.Load(bootLogger, "classroom")
	if err != nil {
		bootLogger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger := logging.New(logging.ParseLevel(cfg.Log.Level))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli := newCommandLine(cfg, logger, os.Stdout, os.Stderr)
	if err := cli.run(ctx, os.Args); err != nil {
		if err != errHelp {
			logger.Error("Command failed", slog.Any("error", err))
		}
		os.Exit(1)
	}
}
