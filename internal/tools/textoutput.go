// Package tools provides the built-in tool implementations registered with
// every controller: deterministic text output and web search.
package tools

import (
	"context"
	"fmt"

	"github.com/aristath/ecf/internal/tool"
)

// TextOutput returns its text parameter verbatim. It exists so the model has
// a deterministic way to emit a final answer or intermediate note as a step
// artifact.
type TextOutput struct{}

// NewTextOutput returns the text_output tool.
func NewTextOutput() *TextOutput { return &TextOutput{} }

func (t *TextOutput) Definition() tool.Definition {
	return tool.Definition{
		Name:        "text_output",
		Description: "Produce a text artifact. Returns the given text unchanged.",
		Parameters: map[string]any{
			"type":     "object",
			"required": []any{"text"},
			"properties": map[string]any{
				"text": map[string]any{
					"type":        "string",
					"description": "The text to output.",
				},
			},
		},
	}
}

func (t *TextOutput) Execute(_ context.Context, params map[string]any) (any, error) {
	text, ok := params["text"].(string)
	if !ok {
		return nil, fmt.Errorf("text parameter must be a string")
	}
	return text, nil
}
