package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// fastRetry keeps test retries sub-second.
func fastRetry() RetryConfig {
	return RetryConfig{
		InitialInterval:     time.Millisecond,
		MaxInterval:         5 * time.Millisecond,
		MaxElapsedTime:      200 * time.Millisecond,
		Multiplier:          1.5,
		RandomizationFactor: 0,
	}
}

func completionBody(content string) string {
	return `{"choices": [{"message": {"role": "assistant", "content": ` + jsonString(content) + `}}]}`
}

func jsonString(s string) string {
	b := make([]byte, 0, len(s)+2)
	b = append(b, '"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			b = append(b, '\\')
		}
		b = append(b, s[i])
	}
	return string(append(b, '"'))
}

func TestClientGenerate(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completionBody("the answer")))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "sk-test", Model: "m", Retry: fastRetry()}, nil)
	out, err := c.Generate(context.Background(), "question")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if out != "the answer" {
		t.Errorf("Generate() = %q, want %q", out, "the answer")
	}
	if gotPath != "/chat/completions" {
		t.Errorf("request path = %q, want /chat/completions", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestClientRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(completionBody("recovered")))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Model: "m", Retry: fastRetry()}, nil)
	out, err := c.Generate(context.Background(), "q")
	if err != nil {
		t.Fatalf("Generate failed after transient errors: %v", err)
	}
	if out != "recovered" {
		t.Errorf("Generate() = %q, want recovered", out)
	}
	if calls.Load() != 3 {
		t.Errorf("server saw %d calls, want 3", calls.Load())
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "bad key"}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Model: "m", Retry: fastRetry()}, nil)
	_, err := c.Generate(context.Background(), "q")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want APIError", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", apiErr.StatusCode)
	}
	if apiErr.Message != "bad key" {
		t.Errorf("Message = %q, want bad key", apiErr.Message)
	}
	if calls.Load() != 1 {
		t.Errorf("client error retried: %d calls", calls.Load())
	}
}

func TestClientRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(completionBody("ok")))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Model: "m", Retry: fastRetry()}, nil)
	out, err := c.Generate(context.Background(), "q")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if out != "ok" || calls.Load() != 2 {
		t.Errorf("out=%q calls=%d, want ok after one retry", out, calls.Load())
	}
}

func TestClientHonorsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Consume the body so the client's write completes, then hold the
		// response until the caller gives up. The timer fallback keeps
		// srv.Close from waiting on this handler forever.
		io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Model: "m", Retry: fastRetry()}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Generate(ctx, "q")
	if err == nil {
		t.Fatal("Generate should fail when context expires")
	}
}

func TestClientPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"data": []}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Model: "m", Retry: fastRetry()}, nil)
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}

	bad := NewClient(Config{BaseURL: "http://127.0.0.1:1", Model: "m", Retry: fastRetry()}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := bad.Ping(ctx); err == nil {
		t.Error("Ping against a dead endpoint should fail")
	}
}
