package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/and161185/imagify/internal/app"
	"github.com/and161185/imagify/internal/config"
	"github.com/and161185/imagify/internal/deps"
	"github.com/and161185/imagify/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	deps, err := deps.NewDependencies(cfg.JWTSecret, cfg.TokenTTL, cfg.LogOutputs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer deps.Logger.Sync()

	a, err := app.New(ctx, cfg, deps.Logger)
	if err != nil {
		deps.Logger.Fatal(err)
	}
	defer a.Close()

	srv := server.NewServer(a.Storage, a.Orders, a.Catalog, cfg, deps)
	if err := srv.Run(ctx); err != nil {
		deps.Logger.Fatal(err)
	}
}
