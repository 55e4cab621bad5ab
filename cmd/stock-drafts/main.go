package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/farmacia/farmacia-backend/internal/client"
	"github.com/farmacia/farmacia-backend/internal/drafts"
	"github.com/farmacia/farmacia-backend/pkg/config"
	"github.com/farmacia/farmacia-backend/pkg/logger"
	"github.com/joho/godotenv"
)

const serviceName = "stock-drafts"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Drafts.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewWithLevel(serviceName, cfg.Server.Environment, cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var opts []client.Option
	if cfg.Drafts.Token != "" {
		opts = append(opts, client.WithToken(cfg.Drafts.Token))
	}
	api := client.New(cfg.Drafts.ServiceURL, log, opts...)

	store := drafts.NewFileStore(cfg.Drafts.Path)
	reconciler, err := drafts.NewReconciler(ctx, store, api, log)
	if err != nil {
		log.Fatal().Err(err).Str("path", store.Path()).Msg("failed to load drafts")
	}

	if err := run(ctx, reconciler, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}
