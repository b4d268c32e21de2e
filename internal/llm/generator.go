// Package llm provides the generator abstraction the planner and executor
// consume, an HTTP client for OpenAI-compatible endpoints with retry and
// circuit-breaker protection, and the fence-tolerant JSON decoding shared by
// every consumer of generator output.
package llm

import (
	"context"
	"fmt"
)

// Generator produces a completion for a prompt. Implementations must honor
// context cancellation.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// ParseError is the single failure mode of generator-output decoding: the
// model produced text that cannot be interpreted as the expected JSON.
type ParseError struct {
	Detail string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable generator output: %s", e.Detail)
}
