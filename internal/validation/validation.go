package validation

import (
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/ReignOfTea/protest-dash/internal/errors"
	shared "github.com/ReignOfTea/protest-dash/shared/types"
)

// File names are bare identifiers like "locations" or
// "repeating-events". Paths, extensions and uppercase are rejected
// before the name ever reaches the content registry.
var fileNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

const maxFileNameLen = 64

func ValidateFileName(name string) error {
	if name == "" {
		return errors.ValidationError("file name is required", nil)
	}
	if len(name) > maxFileNameLen || !fileNamePattern.MatchString(name) {
		return errors.ValidationError("invalid file name", map[string]any{"name": name})
	}
	return nil
}

// ValidateBatchRequest decodes a direct batch commit. Per-file JSON and
// path checks happen again in the commit pipeline; this layer only
// rejects bodies that are not worth handing over.
func ValidateBatchRequest(r *http.Request) (*shared.CommitRequest, error) {
	var req shared.CommitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.ValidationError("invalid request body", nil)
	}

	if req.Message == "" {
		return nil, errors.ValidationError("commitMessage is required", nil)
	}
	if len(req.Files) == 0 {
		return nil, errors.ValidationError("no files to commit", nil)
	}

	return &req, nil
}

// ValidateStageRequest decodes a PUT file body. Content arrives as the
// edited JSON value itself, not a string wrapping it.
func ValidateStageRequest(r *http.Request) (json.RawMessage, error) {
	var req struct {
		Content json.RawMessage `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.ValidationError("invalid request body", nil)
	}
	if len(req.Content) == 0 {
		return nil, errors.ValidationError("content is required", nil)
	}
	return req.Content, nil
}

func ValidatePushRequest(r *http.Request) (string, error) {
	var req struct {
		Message string `json:"commitMessage"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", errors.ValidationError("invalid request body", nil)
	}
	if req.Message == "" {
		return "", errors.ValidationError("commitMessage is required", nil)
	}
	return req.Message, nil
}

// ValidateDiscardRequest decodes a discard body. No paths, or no body
// at all, means discard everything.
func ValidateDiscardRequest(r *http.Request) ([]string, error) {
	if r.Body == nil || r.ContentLength == 0 {
		return nil, nil
	}

	var req struct {
		Paths []string `json:"paths"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.ValidationError("invalid request body", nil)
	}
	return req.Paths, nil
}
