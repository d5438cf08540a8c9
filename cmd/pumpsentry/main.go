// ====================================
// File: cmd/pumpsentry/main.go
// ====================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/curvelab/pumpsentry/internal/bot"
	"github.com/curvelab/pumpsentry/internal/config"
	"github.com/curvelab/pumpsentry/internal/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logCfg := logger.DefaultConfig()
	logCfg.LogFile = cfg.LogFile
	logCfg.Debug = cfg.DebugLogging
	log, err := logger.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting pumpsentry")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := bot.NewRunner(log)
	if err := runner.Initialize(ctx, cfg); err != nil {
		log.Fatal("initialization failed", zap.Error(err))
	}
	if err := runner.Run(ctx); err != nil {
		log.Fatal("runner stopped with error", zap.Error(err))
	}
}
