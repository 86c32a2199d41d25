package main

import (
	"context"
	"log"
	"os"

	"cardstate/internal/app"
	"cardstate/pkg/config"
	"cardstate/pkg/logger"
	"cardstate/pkg/shutdown"
)

// build metadata - set via ldflags during build/release
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	flags, err := config.ParseCommandFlags(os.Args[1:])
	if err != nil {
		log.Fatalf("failed to parse flags: %v", err)
	}

	cfg, err := config.LoadEffective(flags)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.InitWithLevel(cfg.Logging.Level)

	a, err := app.New(cfg, version, commit, buildDate)
	if err != nil {
		shutdown.Abort("startup", err, cfg.Storage.DBPath, 0)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	if err := a.Run(ctx); err != nil {
		shutdown.Abort("server", err, cfg.Storage.DBPath, 0)
	}
}
