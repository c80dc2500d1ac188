// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package pkgindex

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Download streams a release file to w, hashing while copying. The
// hex sha256 of the received bytes and the byte count are returned.
// When the index published a digest for the file, a mismatch is a
// *DigestError; the mismatched bytes have already been written to w,
// so callers writing to a final location should stage through a
// temporary file.
func (client *Client) Download(ctx context.Context, file File, w io.Writer) (string, int64, error) {
	if err := client.rateLimit.Wait(ctx); err != nil {
		return "", 0, err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, file.URL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("index: creating download request: %w", err)
	}

	response, err := client.httpClient.Do(request)
	if err != nil {
		return "", 0, fmt.Errorf("index: download %s: %w", file.Filename, err)
	}
	defer response.Body.Close()
	client.rateLimit.Update(response.Header)

	if response.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBody))
		return "", 0, &APIError{StatusCode: response.StatusCode, Message: errorMessage(body)}
	}

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(w, hasher), response.Body)
	if err != nil {
		return "", written, fmt.Errorf("index: download %s: %w", file.Filename, err)
	}
	digest := hex.EncodeToString(hasher.Sum(nil))

	if file.SHA256 != "" && !strings.EqualFold(digest, file.SHA256) {
		return digest, written, &DigestError{
			Filename: file.Filename,
			Want:     strings.ToLower(file.SHA256),
			Got:      digest,
		}
	}
	client.logger.Debug("downloaded release file",
		"filename", file.Filename,
		"bytes", written,
		"sha256", digest,
	)
	return digest, written, nil
}
