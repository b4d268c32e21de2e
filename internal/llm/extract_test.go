package llm

import (
	"errors"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{
			name: "bare object",
			raw:  `{"tool": "text_output"}`,
			want: `{"tool": "text_output"}`,
		},
		{
			name: "json fence",
			raw:  "```json\n{\"tool\": \"text_output\"}\n```",
			want: `{"tool": "text_output"}`,
		},
		{
			name: "bare fence",
			raw:  "```\n{\"a\": 1}\n```",
			want: `{"a": 1}`,
		},
		{
			name: "surrounding prose",
			raw:  "Here is the plan:\n{\"tasks\": []}\nHope that helps!",
			want: `{"tasks": []}`,
		},
		{
			name: "leading whitespace",
			raw:  "\n\n  {\"x\": true}  ",
			want: `{"x": true}`,
		},
		{
			name: "array output",
			raw:  `[1, 2, 3]`,
			want: `[1, 2, 3]`,
		},
		{
			name:    "empty",
			raw:     "",
			wantErr: true,
		},
		{
			name:    "no json at all",
			raw:     "I cannot help with that.",
			wantErr: true,
		},
		{
			name:    "broken json in fence",
			raw:     "```json\n{\"tool\": \n```",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExtractJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var perr *ParseError
				if !errors.As(err, &perr) {
					t.Errorf("error type = %T, want *ParseError", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ExtractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var out struct {
		Tool string `json:"tool"`
	}
	if err := DecodeJSON("```json\n{\"tool\": \"web_search\"}\n```", &out); err != nil {
		t.Fatalf("DecodeJSON failed: %v", err)
	}
	if out.Tool != "web_search" {
		t.Errorf("decoded tool = %q, want web_search", out.Tool)
	}

	// Type mismatch inside valid JSON must still be a ParseError.
	err := DecodeJSON(`{"tool": 42}`, &out)
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Errorf("type mismatch error = %v, want ParseError", err)
	}
}
