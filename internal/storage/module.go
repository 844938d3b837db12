package storage

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/polkiloo/orderpipeline/internal/config"
	"github.com/polkiloo/orderpipeline/internal/domain/repository"
	"github.com/polkiloo/orderpipeline/internal/storage/memory"
	"github.com/polkiloo/orderpipeline/internal/storage/postgres"
)

// Backend is a conditional store serving every repository.
type Backend interface {
	repository.Factory
	HealthCheck(ctx context.Context) error
	Close()
}

// Module wires the configured storage backend and repository adapters.
var Module = fx.Options(
	fx.Provide(newBackend),
	fx.Provide(
		func(b Backend) repository.OrderRepository { return b.Orders() },
		func(b Backend) repository.InventoryRepository { return b.Inventory() },
	),
	fx.Invoke(registerLifecycle),
)

var openPostgres = func(ctx context.Context, dsn string, opts postgres.Options, logger *slog.Logger) (Backend, error) {
	s, err := postgres.New(ctx, dsn, opts, logger)
	if err != nil {
		return nil, err
	}
	return s, nil
}

type backendParams struct {
	fx.In

	Ctx    context.Context
	Config *config.Config
	Logger *slog.Logger
}

func newBackend(p backendParams) (Backend, error) {
	if p.Config.DatabaseURI == "" {
		p.Logger.Warn("DATABASE_URI not set, using in-memory store")
		return memory.New(), nil
	}

	return openPostgres(p.Ctx, p.Config.DatabaseURI, postgres.Options{
		OrdersTable:    p.Config.OrdersTable,
		InventoryTable: p.Config.InventoryTable,
		QueryTimeout:   p.Config.StoreTimeout,
	}, p.Logger)
}

func registerLifecycle(lc fx.Lifecycle, backend Backend) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			backend.Close()
			return nil
		},
	})
}
