package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	"go.uber.org/fx"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/polkiloo/orderpipeline/internal/config"
)

// New creates a preconfigured slog.Logger.
func New() *slog.Logger {
	return newWithWriter(os.Stdout)
}

func newWithWriter(w io.Writer) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(handler)
}

// newRotating tees output to a size-rotated file.
func newRotating(path string) (*slog.Logger, *lumberjack.Logger) {
	rot := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    50, // MB
		MaxBackups: 3,
		MaxAge:     7, // days
	}
	return newWithWriter(io.MultiWriter(os.Stdout, rot)), rot
}

type loggerParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
}

func provide(p loggerParams) *slog.Logger {
	if p.Config == nil || p.Config.LogFile == "" {
		return New()
	}

	l, rot := newRotating(p.Config.LogFile)
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return rot.Close()
		},
	})
	return l
}
