package content

import (
	"go.uber.org/fx"

	"github.com/polkiloo/orderpipeline/internal/adapter/completion"
	"github.com/polkiloo/orderpipeline/internal/config"
)

// Module exposes the content generator to fx graph.
var Module = fx.Provide(newGenerator)

type generatorParams struct {
	fx.In

	Client completion.Client
	Config *config.Config
}

func newGenerator(p generatorParams) *Generator {
	return NewGenerator(p.Client, p.Config.ContentTimeout)
}
