package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/polkiloo/orderpipeline/internal/bus"
	"github.com/polkiloo/orderpipeline/internal/config"
	"github.com/polkiloo/orderpipeline/internal/domain/model"
	"github.com/polkiloo/orderpipeline/internal/worker"
)

// Module wires application services, runtime components, and lifecycle hooks.
var Module = fx.Options(
	fx.Provide(
		NewPipelineFacade,
		newHTTPServer,
		newConsumers,
	),
	fx.Invoke(registerLifecycle),
)

type serverParams struct {
	fx.In

	Config *config.Config
	Router *gin.Engine
}

func newHTTPServer(p serverParams) *http.Server {
	return &http.Server{
		Addr:    p.Config.RunAddress,
		Handler: p.Router,
	}
}

// Consumers are the two independent subscribers of the order events topic.
type Consumers struct {
	Inventory    *worker.Consumer
	Notification *worker.Consumer
}

type consumerParams struct {
	fx.In

	Facade     *PipelineFacade
	Subscriber bus.Subscriber
	Config     *config.Config
	Logger     *slog.Logger
}

func newConsumers(p consumerParams) Consumers {
	return Consumers{
		Inventory: worker.NewConsumer(p.Subscriber, worker.JSON(p.Facade.SettleOrder), worker.Options{
			Queue:          p.Config.InventoryQueue,
			EventType:      model.EventTypeOrderCreated,
			BatchSize:      config.InventoryBatchSize,
			HandlerTimeout: p.Config.HandlerTimeout,
		}, p.Logger),
		Notification: worker.NewConsumer(p.Subscriber, worker.JSON(p.Facade.NotifyOrder), worker.Options{
			Queue:          p.Config.NotificationQueue,
			EventType:      model.EventTypeOrderCreated,
			BatchSize:      p.Config.NotificationBatchSize,
			HandlerTimeout: p.Config.HandlerTimeout,
		}, p.Logger),
	}
}

type lifecycleParams struct {
	fx.In

	Ctx        context.Context
	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
	Logger     *slog.Logger
	Server     *http.Server
	Consumers  Consumers
	Config     *config.Config
}

func registerLifecycle(p lifecycleParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			p.Logger.Info("starting orderpipeline", slog.String("addr", p.Server.Addr))
			if err := p.Consumers.Inventory.Start(p.Ctx); err != nil {
				return err
			}
			if err := p.Consumers.Notification.Start(p.Ctx); err != nil {
				p.Consumers.Inventory.Stop()
				return err
			}
			go func() {
				if err := p.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					p.Logger.Error("http server terminated", slog.String("error", err.Error()))
					_ = p.Shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx := ctx
			cancel := func() {}
			if _, ok := ctx.Deadline(); !ok {
				shutdownCtx, cancel = context.WithTimeout(ctx, p.Config.ShutdownTimeout)
			}
			defer cancel()

			err := p.Server.Shutdown(shutdownCtx)
			p.Consumers.Inventory.Stop()
			p.Consumers.Notification.Stop()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			p.Logger.Info("orderpipeline stopped")
			return nil
		},
	})
}
