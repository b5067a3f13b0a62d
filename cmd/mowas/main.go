package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	mowas "github.com/hamarituc/mowas/src"
)

func main() {
	var (
		configPath string
		logLevel   string
		logFile    string
		logConsole bool
	)
	pflag.StringVarP(&configPath, "config", "c", "/etc/mowas.yml", "configuration file")
	pflag.StringVar(&logLevel, "log-level", "", "override the configured log level")
	pflag.StringVar(&logFile, "log-file", "", "override the configured log file")
	pflag.BoolVar(&logConsole, "log-console", false, "force logging to the console")
	pflag.Parse()

	cfg, err := mowas.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFile != "" {
		cfg.Logging.File = logFile
	}
	if logConsole {
		console := true
		cfg.Logging.Console = &console
	}

	logger, err := mowas.SetupLogging(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	geodata := mowas.NewGeodata(cfg.Geodata, logger)
	cache := mowas.NewCache(cfg.Cache, logger)

	sources, err := mowas.BuildSources(cfg.Source, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	targets, err := mowas.BuildTargets(cfg.Target, geodata, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mowas.NewSupervisor(cache, sources, targets, logger).Run(ctx)

	for _, target := range targets {
		if err := target.Close(); err != nil {
			logger.Error().Err(err).Str("target", target.Type()+"/"+target.Name()).Msg("error closing target")
		}
	}
}
