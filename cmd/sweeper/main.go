package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"articulator/internal/config"
	"articulator/internal/judge"
	"articulator/internal/loader"
	"articulator/internal/logging"
	"articulator/internal/pipeline"
	"articulator/internal/storage"
	"articulator/internal/sweep"
)

func main() {
	cfg, err := config.Load()
	must(err)

	logger, err := logging.New(cfg.LogLevel)
	must(err)
	defer func() { _ = logger.Sync() }()

	profile, err := config.LoadProfile(cfg.ProfilePath)
	must(err)

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var j pipeline.Judge
	if cfg.SemanticEnabled {
		g, err := judge.New(ctx, cfg, logger)
		must(err)
		j = g
	}

	browser := loader.NewBrowser(loader.BrowserOptionsFromConfig(cfg), logger)
	defer func() { _ = browser.Close() }()

	runner := pipeline.NewService(db, cfg, profile, j, logger)
	svc := sweep.NewService(db, cfg, profile, runner, browser, logger)
	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
