package tools

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/ecf/internal/tool"
)

// WebSearch exposes the configured search providers as one tool. The
// "provider" parameter selects one by name; "auto" (the default) queries all
// providers concurrently and returns the first non-empty result set in
// provider priority order.
type WebSearch struct {
	providers []SearchProvider
	log       *slog.Logger
}

// NewWebSearch builds the web_search tool. Provider order is priority order
// for auto mode.
func NewWebSearch(providers []SearchProvider, log *slog.Logger) *WebSearch {
	if log == nil {
		log = slog.Default()
	}
	return &WebSearch{providers: providers, log: log}
}

func (w *WebSearch) Definition() tool.Definition {
	names := []any{"auto"}
	for _, p := range w.providers {
		names = append(names, p.Name())
	}
	return tool.Definition{
		Name:        "web_search",
		Description: "Search the web and return a list of results with title, url, and snippet.",
		Parameters: map[string]any{
			"type":     "object",
			"required": []any{"query"},
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query.",
				},
				"provider": map[string]any{
					"type":        "string",
					"enum":        names,
					"description": "Search provider to use. auto fans out to all.",
				},
				"max_results": map[string]any{
					"type":        "integer",
					"minimum":     1,
					"maximum":     20,
					"description": "Maximum number of results.",
				},
			},
		},
	}
}

func (w *WebSearch) Execute(ctx context.Context, params map[string]any) (any, error) {
	if len(w.providers) == 0 {
		return nil, fmt.Errorf("no search providers configured")
	}

	query, _ := params["query"].(string)
	providerName, _ := params["provider"].(string)
	maxResults := 0
	// JSON numbers decode as float64.
	if f, ok := params["max_results"].(float64); ok {
		maxResults = int(f)
	}

	if providerName == "" || providerName == "auto" {
		return w.searchAuto(ctx, query, maxResults)
	}

	for _, p := range w.providers {
		if p.Name() == providerName {
			results, err := p.Search(ctx, query, maxResults)
			if err != nil {
				return nil, fmt.Errorf("provider %s: %w", providerName, err)
			}
			return results, nil
		}
	}
	return nil, fmt.Errorf("unknown search provider %q", providerName)
}

// searchAuto queries every provider concurrently. Individual provider
// failures are tolerated as long as one provider returns results.
func (w *WebSearch) searchAuto(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	results := make([][]SearchResult, len(w.providers))
	failures := make([]error, len(w.providers))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range w.providers {
		g.Go(func() error {
			res, err := p.Search(gctx, query, maxResults)
			if err != nil {
				w.log.Warn("search provider failed", "provider", p.Name(), "error", err)
				failures[i] = err
				return nil
			}
			results[i] = res
			return nil
		})
	}
	g.Wait()

	for i := range w.providers {
		if len(results[i]) > 0 {
			return results[i], nil
		}
	}
	for _, err := range failures {
		if err != nil {
			return nil, fmt.Errorf("all search providers failed: %w", err)
		}
	}
	return []SearchResult{}, nil
}
