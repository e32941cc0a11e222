package internal

import (
	"io"
	"log/slog"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	logger    *slog.Logger
	logOutput io.Writer
	withIndex bool
	version   string
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogger overrides the JSON logger built from the configuration.
func WithLogger(logger *slog.Logger) Option {
	return func(a *application) {
		a.logger = logger
	}
}

// WithLogOutput sets where the default JSON logger writes (stderr if unset).
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOutput = w
	}
}

// WithIndex opens the SQLite catalog index.
func WithIndex() Option {
	return func(a *application) {
		a.withIndex = true
	}
}

// WithVersion sets the build version reported by the status surfaces.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}
