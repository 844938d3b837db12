package completion

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/polkiloo/orderpipeline/internal/config"
)

// Module exposes completion client implementation to fx graph.
var Module = fx.Provide(newClient)

type clientParams struct {
	fx.In

	Config *config.Config
	Logger *slog.Logger
}

func newClient(p clientParams) (Client, error) {
	if p.Config.CompletionURL == "" {
		p.Logger.Warn("COMPLETION_URL not set, risk checks allow and notifications use fallback content")
		return Disabled{}, nil
	}
	return NewHTTPClient(p.Config.CompletionURL, p.Config.CompletionAPIKey, p.Config.CompletionModel, p.Logger)
}
