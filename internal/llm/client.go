package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// APIError is a non-2xx response from the generator endpoint.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("generator API error %d: %s", e.StatusCode, e.Message)
}

// Transient reports whether the error is worth retrying: request timeout,
// rate limiting, or a server-side failure.
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= 500
}

// RetryConfig configures exponential backoff for generator calls.
type RetryConfig struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	MaxElapsedTime      time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// Config configures the HTTP generator client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	Retry   RetryConfig
}

// Client talks to an OpenAI-compatible chat-completions endpoint. Transient
// failures retry with exponential backoff; repeated failures trip a circuit
// breaker so a dead endpoint fails fast instead of stacking timeouts.
type Client struct {
	cfg     Config
	httpc   *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *slog.Logger
}

// NewClient builds a client with retry and breaker protection around the
// raw HTTP call.
func NewClient(cfg Config, log *slog.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}
	if log == nil {
		log = slog.Default()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "generator",
		MaxRequests: 3,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation is not an endpoint failure.
			if err == nil {
				return true
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			return false
		},
	})

	return &Client{
		cfg:     cfg,
		httpc:   &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
		log:     log,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate sends a single-turn prompt and returns the first completion.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	var content string

	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		result, err := c.breaker.Execute(func() (interface{}, error) {
			return c.complete(ctx, prompt)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			var apiErr *APIError
			if errors.As(err, &apiErr) && !apiErr.Transient() {
				return backoff.Permanent(err)
			}
			c.log.Warn("generator call failed, will retry", "error", err)
			return err
		}

		content = result.(string)
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.Retry.InitialInterval
	policy.MaxInterval = c.cfg.Retry.MaxInterval
	policy.MaxElapsedTime = c.cfg.Retry.MaxElapsedTime
	policy.Multiplier = c.cfg.Retry.Multiplier
	policy.RandomizationFactor = c.cfg.Retry.RandomizationFactor

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return "", err
	}
	return content, nil
}

// complete performs one HTTP round trip.
func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.cfg.Model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("generator request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", fmt.Errorf("reading generator response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(data))
		var decoded chatResponse
		if json.Unmarshal(data, &decoded) == nil && decoded.Error != nil {
			msg = decoded.Error.Message
		}
		return "", &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	var decoded chatResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return "", fmt.Errorf("decoding generator response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("generator returned no choices")
	}
	return decoded.Choices[0].Message.Content, nil
}

// Ping probes the endpoint's model listing, for startup health checks.
func (c *Client) Ping(ctx context.Context) error {
	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("generator unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
	}
	return nil
}
