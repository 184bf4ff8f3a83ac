package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/monitord/internal/config"
	"codeberg.org/mutker/monitord/internal/errors"
	"codeberg.org/mutker/monitord/internal/logger"
	"codeberg.org/mutker/monitord/internal/pid"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	loader, err := config.NewLoader()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	cfg, err := loader.Load(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	if cfg.ShowVersion {
		fmt.Println("monitord", version)
		return 0
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level: %v\n", err)
		return 1
	}
	logger.Init(level, logger.IsService())
	logger.Debug().
		Str("config_file", loader.ConfigFile()).
		Str("version", version).
		Msg("Config loaded")

	if cfg.PIDFile {
		pidFile, err := pid.Acquire("")
		if err != nil {
			logger.Error().Err(err).Msg("Failed to acquire PID file")
			return 1
		}
		defer func() {
			if err := pidFile.Remove(); err != nil {
				logger.Error().Err(err).Msg("Failed to remove PID file")
			}
		}()
	}

	d, err := newDaemon(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize")
		return 1
	}
	defer d.close()

	if err := loader.Watch(d.reload); err != nil {
		if errors.CodeOf(err) == config.ErrNoConfigFile {
			logger.Debug().Msg("No config file, live reload disabled")
		} else {
			logger.Warn().Err(err).Msg("Failed to watch config file")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := d.run(ctx); err != nil {
		logger.Error().Err(err).Msg("Error in main loop")
	}

	logger.Info().Msg("Exiting...")

	return 0
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
