// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package forge

import (
	"context"
	"fmt"
	"strings"
)

// GetRef retrieves a git reference. The ref is the path without the
// "refs/" prefix: "heads/main", "tags/v1.2.3". Returns an error
// satisfying IsNotFound when the ref does not exist.
func (client *Client) GetRef(ctx context.Context, ref string) (*Ref, error) {
	var result Ref
	path := client.repoPath + "/git/ref/" + strings.TrimPrefix(ref, "refs/")
	if err := client.get(ctx, path, &result); err != nil {
		return nil, fmt.Errorf("getting ref %s: %w", ref, err)
	}
	return &result, nil
}

// CreateRef creates a git reference pointing at a commit. The ref is
// the path without the "refs/" prefix: "heads/release-1.4",
// "tags/v1.4.0". Creating a ref that already exists fails with
// IsValidationFailed.
func (client *Client) CreateRef(ctx context.Context, ref, sha string) (*Ref, error) {
	var result Ref
	request := struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	}{Ref: "refs/" + strings.TrimPrefix(ref, "refs/"), SHA: sha}

	if err := client.post(ctx, client.repoPath+"/git/refs", request, &result); err != nil {
		return nil, fmt.Errorf("creating ref %s at %s: %w", ref, sha, err)
	}
	return &result, nil
}
