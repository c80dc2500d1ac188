// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package pkgindex

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/baleproject/bale/lib/pkgname"
)

// UploadMetadata describes the archive being published. Name, Version,
// and Filetype are required.
type UploadMetadata struct {
	Name    pkgname.Name
	Version string
	// Filetype is "sdist" or "bdist_wheel".
	Filetype string
	// PyVersion is the tag for binary archives; sdists use "source",
	// the default when empty.
	PyVersion string
	Summary   string
}

// Upload publishes an archive to the index upload endpoint as the
// multipart form the legacy upload API expects, authenticating with
// the configured token.
func (client *Client) Upload(ctx context.Context, path string, meta UploadMetadata) error {
	if client.token == "" {
		return fmt.Errorf("index: upload requires a token")
	}
	if meta.Name == "" || meta.Version == "" || meta.Filetype == "" {
		return fmt.Errorf("index: upload metadata requires name, version, and filetype")
	}
	pyVersion := meta.PyVersion
	if pyVersion == "" {
		pyVersion = "source"
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("index: reading upload archive: %w", err)
	}
	digest := sha256.Sum256(content)

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	fields := map[string]string{
		":action":          "file_upload",
		"protocol_version": "1",
		"metadata_version": "2.1",
		"name":             string(meta.Name),
		"version":          meta.Version,
		"filetype":         meta.Filetype,
		"pyversion":        pyVersion,
		"sha256_digest":    hex.EncodeToString(digest[:]),
	}
	if meta.Summary != "" {
		fields["summary"] = meta.Summary
	}
	for field, value := range fields {
		if err := form.WriteField(field, value); err != nil {
			return fmt.Errorf("index: building upload form: %w", err)
		}
	}
	part, err := form.CreateFormFile("content", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("index: building upload form: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return fmt.Errorf("index: building upload form: %w", err)
	}
	if err := form.Close(); err != nil {
		return fmt.Errorf("index: building upload form: %w", err)
	}

	if err := client.rateLimit.Wait(ctx); err != nil {
		return err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, client.uploadURL, &body)
	if err != nil {
		return fmt.Errorf("index: creating upload request: %w", err)
	}
	request.Header.Set("Content-Type", form.FormDataContentType())
	// Index API tokens authenticate as basic auth with a fixed user.
	request.SetBasicAuth("__token__", client.token)

	response, err := client.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("index: upload %s: %w", filepath.Base(path), err)
	}
	defer response.Body.Close()
	client.rateLimit.Update(response.Header)

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		responseBody, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBody))
		return &APIError{StatusCode: response.StatusCode, Message: errorMessage(responseBody)}
	}
	client.logger.Info("uploaded archive",
		"filename", filepath.Base(path),
		"name", meta.Name,
		"version", meta.Version,
	)
	return nil
}
