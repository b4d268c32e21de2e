package llm

import (
	"encoding/json"
	"strings"
)

// ExtractJSON pulls a JSON document out of raw generator output. Models wrap
// answers in markdown fences or surround them with prose more often than
// not, so three forms are accepted in order: a fenced block, bare JSON, and
// a JSON object embedded in surrounding text.
func ExtractJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", &ParseError{Detail: "empty output"}
	}

	if fenced, ok := stripFence(s); ok {
		s = fenced
	} else if !strings.HasPrefix(s, "{") && !strings.HasPrefix(s, "[") {
		start := strings.Index(s, "{")
		end := strings.LastIndex(s, "}")
		if start == -1 || end <= start {
			return "", &ParseError{Detail: "no JSON object found"}
		}
		s = s[start : end+1]
	}

	if !json.Valid([]byte(s)) {
		return "", &ParseError{Detail: "extracted text is not valid JSON"}
	}
	return s, nil
}

// stripFence removes a leading ```json (or bare ```) fence and its closing
// marker. Returns ok=false when the text is not fenced.
func stripFence(s string) (string, bool) {
	if !strings.HasPrefix(s, "```") {
		return "", false
	}
	body := strings.TrimPrefix(s, "```")
	if nl := strings.Index(body, "\n"); nl >= 0 {
		// Drop the language tag line ("json", "JSON", or empty).
		body = body[nl+1:]
	}
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body), true
}

// DecodeJSON extracts and unmarshals generator output into v. Any failure is
// a ParseError.
func DecodeJSON(raw string, v any) error {
	doc, err := ExtractJSON(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(doc), v); err != nil {
		return &ParseError{Detail: err.Error()}
	}
	return nil
}
