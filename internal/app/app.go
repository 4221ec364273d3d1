// Package app wires storage, the payment gateway and the order service from
// configuration. Both the HTTP server and the ops CLI start from here.
package app

import (
	"context"
	"fmt"

	"github.com/and161185/imagify/internal/config"
	"github.com/and161185/imagify/internal/gateway"
	"github.com/and161185/imagify/internal/orders"
	"github.com/and161185/imagify/internal/plans"
	"github.com/and161185/imagify/internal/storage"
	"go.uber.org/zap"
)

type App struct {
	Storage *storage.PostgresStorage
	Orders  *orders.Service
	Catalog *plans.Catalog
}

func New(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*App, error) {
	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, fmt.Errorf("plans: %w", err)
	}

	store, err := storage.NewPostgreStorage(ctx, cfg.DatabaseURI)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	gw := gateway.NewClient(gateway.Config{
		BaseURL:      cfg.GatewayBaseURL(),
		ClientID:     cfg.Gateway.AppID,
		ClientSecret: cfg.Gateway.SecretKey,
		Timeout:      cfg.Gateway.Timeout,
	})

	svc := orders.NewService(store, gw, catalog, OrderOptions(cfg), logger)

	return &App{Storage: store, Orders: svc, Catalog: catalog}, nil
}

func OrderOptions(cfg *config.Config) orders.Options {
	return orders.Options{
		Currency:     cfg.Gateway.Currency,
		FrontendURL:  cfg.FrontendURL,
		BackendURL:   cfg.BackendURL,
		StaleAfter:   cfg.Reconcile.StaleAfter,
		RecheckAfter: cfg.Reconcile.RecheckAfter,
		Lookback:     cfg.Reconcile.Lookback,
		BatchSize:    cfg.Reconcile.BatchSize,
	}
}

func (a *App) Close() {
	a.Storage.Close()
}
