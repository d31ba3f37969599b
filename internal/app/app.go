package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/vk/texturesets/internal/config"
	"github.com/vk/texturesets/internal/ctxlog"
	"github.com/vk/texturesets/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	registry *registry.Registry
	loader   config.Loader
	resolver *FileResolver

	httpServer *http.Server
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App with its own isolated logger and a sealed registry holding
// plugins, or the built-in modules when none are given.
func NewApp(outW io.Writer, cfg *Config, loader config.Loader, plugins ...registry.Plugin) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	reg := registry.New()
	if len(plugins) == 0 {
		plugins = coreModules
	}
	reg.Install(plugins...)
	reg.Seal()
	logger.Debug("Processing modules registered.", "count", reg.Len(), "ids", reg.IDs())

	if err := reg.ValidateRegistry(ctx); err != nil {
		// A module with an invalid signature is a programmer error.
		panic(err)
	}

	return &App{
		outW:     outW,
		logger:   logger,
		config:   cfg,
		registry: reg,
		loader:   loader,
		resolver: NewFileResolver(),
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}
