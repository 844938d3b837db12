package di

import (
	"go.uber.org/fx"

	"github.com/polkiloo/orderpipeline/internal/adapter/completion"
	"github.com/polkiloo/orderpipeline/internal/adapter/content"
	"github.com/polkiloo/orderpipeline/internal/adapter/idempotency"
	"github.com/polkiloo/orderpipeline/internal/adapter/mail"
	"github.com/polkiloo/orderpipeline/internal/adapter/risk"
	"github.com/polkiloo/orderpipeline/internal/app"
	"github.com/polkiloo/orderpipeline/internal/bus/transport"
	"github.com/polkiloo/orderpipeline/internal/config"
	"github.com/polkiloo/orderpipeline/internal/logger"
	"github.com/polkiloo/orderpipeline/internal/metrics"
	"github.com/polkiloo/orderpipeline/internal/server/http/handlers"
	"github.com/polkiloo/orderpipeline/internal/server/http/router"
	"github.com/polkiloo/orderpipeline/internal/storage"
	"github.com/polkiloo/orderpipeline/internal/usecase"
)

func Module(opts ...fx.Option) fx.Option {
	modules := []fx.Option{
		config.Module,
		logger.Module,
		metrics.Module,
		storage.Module,
		transport.Module,
		completion.Module,
		risk.Module,
		content.Module,
		mail.Module,
		idempotency.Module,
		usecase.Module,
		fx.Provide(func(b storage.Backend) app.HealthChecker { return b }),
		fx.Provide(func(f *app.PipelineFacade) handlers.PipelineFacade { return f }),
		router.Module,
		app.Module,
	}
	modules = append(modules, opts...)
	return fx.Options(modules...)
}
