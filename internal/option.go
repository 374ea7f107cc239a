package internal

import (
	"io"

	"github.com/starford/dagaz/internal/planner"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	generator planner.Generator
	logOutput io.Writer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithGenerator replaces the Gemini-backed generator.
func WithGenerator(g planner.Generator) Option {
	return func(a *application) {
		a.generator = g
	}
}

// WithLogOutput redirects the JSON log stream (stdout by default).
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOutput = w
	}
}
