// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package pkgindex

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound marks a project or release the index does not know.
// Returned wrapped, so use errors.Is.
var ErrNotFound = errors.New("not found")

// APIError represents a non-2xx response from the index API.
type APIError struct {
	// StatusCode is the HTTP response status code.
	StatusCode int

	// Message is the response body, truncated for display. Index
	// error bodies are plain text or HTML, not structured JSON.
	Message string
}

func (err *APIError) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("index: HTTP %d", err.StatusCode)
	}
	return fmt.Sprintf("index: HTTP %d: %s", err.StatusCode, err.Message)
}

// IsNotFound reports whether err is a missing project/release, either
// the wrapped sentinel or a raw 404 from the API.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var apiError *APIError
	return errors.As(err, &apiError) && apiError.StatusCode == 404
}

// IsRateLimited reports whether err is an index rate limit response
// that persisted through the client's single retry.
func IsRateLimited(err error) bool {
	var apiError *APIError
	return errors.As(err, &apiError) &&
		(apiError.StatusCode == 429 || apiError.StatusCode == 503)
}

// DigestError reports a downloaded archive whose content hash does not
// match the index's published digest.
type DigestError struct {
	Filename string
	Want     string
	Got      string
}

func (err *DigestError) Error() string {
	return fmt.Sprintf("index: %s: sha256 mismatch: index lists %s, downloaded %s",
		err.Filename, err.Want, err.Got)
}

// errorMessage condenses an error response body for APIError.Message.
const maxErrorBody = 512

func errorMessage(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody] + "..."
	}
	return text
}
