package content

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Canonical reformats raw JSON into the repository's on-disk form:
// 4-space indentation with the author's key order preserved. The same
// input always yields the same bytes, so an untouched file round-trips
// to an identical blob.
func Canonical(raw []byte) (string, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, bytes.TrimSpace(raw), "", "    "); err != nil {
		return "", fmt.Errorf("canonicalize json: %w", err)
	}
	return buf.String(), nil
}

// Render serializes a programmatically built value the same way
// Canonical formats raw input. Map keys come out sorted, which keeps
// rewrites of the same value deterministic.
func Render(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("render json: %w", err)
	}
	// Encode appends a newline the repository files do not carry.
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
