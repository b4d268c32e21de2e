package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// SearchResult is one hit returned by a provider.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// SearchProvider answers web queries.
type SearchProvider interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

const defaultSearchTimeout = 15 * time.Second

// DuckDuckGo queries the unauthenticated instant-answer API. Coverage is
// shallow but it needs no key, so it serves as the always-available fallback.
type DuckDuckGo struct {
	BaseURL string
	httpc   *http.Client
}

// NewDuckDuckGo returns a provider against the public endpoint. baseURL
// overrides the endpoint when non-empty.
func NewDuckDuckGo(baseURL string) *DuckDuckGo {
	if baseURL == "" {
		baseURL = "https://api.duckduckgo.com"
	}
	return &DuckDuckGo{
		BaseURL: baseURL,
		httpc:   &http.Client{Timeout: defaultSearchTimeout},
	}
}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

type ddgResponse struct {
	AbstractText  string `json:"AbstractText"`
	AbstractURL   string `json:"AbstractURL"`
	Heading       string `json:"Heading"`
	RelatedTopics []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

func (d *DuckDuckGo) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_html", "1")
	q.Set("skip_disambig", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.BaseURL+"/?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building duckduckgo request: %w", err)
	}

	resp, err := d.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo returned status %d", resp.StatusCode)
	}

	var decoded ddgResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding duckduckgo response: %w", err)
	}

	var results []SearchResult
	if decoded.AbstractText != "" {
		results = append(results, SearchResult{
			Title:   decoded.Heading,
			URL:     decoded.AbstractURL,
			Snippet: decoded.AbstractText,
		})
	}
	for _, topic := range decoded.RelatedTopics {
		if topic.Text == "" || topic.FirstURL == "" {
			continue
		}
		results = append(results, SearchResult{Title: topic.Text, URL: topic.FirstURL})
		if maxResults > 0 && len(results) >= maxResults {
			break
		}
	}
	if maxResults > 0 && len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

// Tavily queries the Tavily search API. Requires an API key.
type Tavily struct {
	BaseURL string
	apiKey  string
	httpc   *http.Client
}

// NewTavily returns a provider for the given key. baseURL overrides the
// endpoint when non-empty.
func NewTavily(apiKey, baseURL string) *Tavily {
	if baseURL == "" {
		baseURL = "https://api.tavily.com"
	}
	return &Tavily{
		BaseURL: baseURL,
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: defaultSearchTimeout},
	}
}

func (t *Tavily) Name() string { return "tavily" }

type tavilyResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func (t *Tavily) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	body, err := json.Marshal(map[string]any{
		"api_key":     t.apiKey,
		"query":       query,
		"max_results": maxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding tavily request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building tavily request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tavily returned status %d", resp.StatusCode)
	}

	var decoded tavilyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding tavily response: %w", err)
	}

	results := make([]SearchResult, 0, len(decoded.Results))
	for _, r := range decoded.Results {
		results = append(results, SearchResult{Title: r.Title, URL: r.URL, Snippet: r.Content})
	}
	return results, nil
}
