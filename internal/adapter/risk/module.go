package risk

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/polkiloo/orderpipeline/internal/adapter/completion"
	"github.com/polkiloo/orderpipeline/internal/config"
)

// Module exposes the risk gate to fx graph.
var Module = fx.Provide(newGate)

type gateParams struct {
	fx.In

	Client completion.Client
	Config *config.Config
	Logger *slog.Logger
}

func newGate(p gateParams) *Gate {
	return NewGate(p.Client, p.Config.RiskTimeout, p.Logger)
}
