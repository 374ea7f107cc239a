package planner

import "context"

// Generator produces raw model text for a prompt. The text is expected, but
// not guaranteed, to be JSON.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// GeneratorFunc adapts an ordinary function to the Generator interface.
type GeneratorFunc func(ctx context.Context, p Prompt) (string, error)

// Generate calls f(ctx, p).
func (f GeneratorFunc) Generate(ctx context.Context, p Prompt) (string, error) {
	return f(ctx, p)
}
