package analyst

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RawOutputError is returned when the LLM produced output that could not be
// parsed as the expected JSON shape. Raw carries the model output so the
// caller can surface it for debugging.
type RawOutputError struct {
	Op  string
	Raw string
	Err error
}

func (e *RawOutputError) Error() string {
	return fmt.Sprintf("%s: failed to parse LLM JSON: %v", e.Op, e.Err)
}

func (e *RawOutputError) Unwrap() error { return e.Err }

// ExtractJSON pulls the JSON object out of a raw LLM response, tolerating
// markdown fences and surrounding prose. Returns "" when no object is found.
func ExtractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if fenced := stripFences(raw); fenced != "" {
		raw = fenced
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return ""
	}
	return raw[start : end+1]
}

func stripFences(raw string) string {
	open := strings.Index(raw, "```")
	if open < 0 {
		return ""
	}
	rest := raw[open+3:]
	if nl := strings.Index(rest, "\n"); nl >= 0 {
		// drop the language tag line, e.g. ```json
		rest = rest[nl+1:]
	}
	if close := strings.Index(rest, "```"); close >= 0 {
		return strings.TrimSpace(rest[:close])
	}
	return strings.TrimSpace(rest)
}

// decodeJSON extracts and unmarshals the LLM response into out, wrapping
// failures in a RawOutputError.
func decodeJSON(op, raw string, out interface{}) error {
	cleaned := ExtractJSON(raw)
	if cleaned == "" {
		return &RawOutputError{Op: op, Raw: raw, Err: fmt.Errorf("no JSON object in response")}
	}
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return &RawOutputError{Op: op, Raw: raw, Err: err}
	}
	return nil
}
