// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package forge

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// CreateReleaseRequest contains the fields for creating a release.
type CreateReleaseRequest struct {
	// TagName is the tag the release is created from.
	TagName string `json:"tag_name"`

	// Name is the release title. Defaults to the tag name when empty.
	Name string `json:"name,omitempty"`

	// Body is the release notes, as markdown.
	Body string `json:"body,omitempty"`

	// Draft creates an unpublished draft release.
	Draft bool `json:"draft"`

	// Prerelease marks the release as a prerelease.
	Prerelease bool `json:"prerelease"`
}

// CreateRelease creates a release from an existing tag. Creating a
// second release for the same tag fails with IsValidationFailed.
func (client *Client) CreateRelease(ctx context.Context, request CreateReleaseRequest) (*Release, error) {
	var release Release
	if err := client.post(ctx, client.repoPath+"/releases", request, &release); err != nil {
		return nil, fmt.Errorf("creating release for %s: %w", request.TagName, err)
	}
	return &release, nil
}

// GetRelease retrieves a release by ID.
func (client *Client) GetRelease(ctx context.Context, releaseID int64) (*Release, error) {
	var release Release
	path := fmt.Sprintf("%s/releases/%d", client.repoPath, releaseID)
	if err := client.get(ctx, path, &release); err != nil {
		return nil, fmt.Errorf("getting release %d: %w", releaseID, err)
	}
	return &release, nil
}

// GetReleaseByTag retrieves the release associated with a tag.
// Returns an error satisfying IsNotFound when no release exists for
// the tag.
func (client *Client) GetReleaseByTag(ctx context.Context, tag string) (*Release, error) {
	var release Release
	path := client.repoPath + "/releases/tags/" + url.PathEscape(tag)
	if err := client.get(ctx, path, &release); err != nil {
		return nil, fmt.Errorf("getting release for tag %s: %w", tag, err)
	}
	return &release, nil
}

// ListReleases returns an iterator over the repository's releases,
// newest first.
func (client *Client) ListReleases() *PageIterator[Release] {
	return list[Release](client, client.repoPath+"/releases")
}

// UploadReleaseAsset uploads a local file as a release asset. The
// asset name is the file's base name; the content type is inferred
// from the extension, falling back to application/octet-stream.
//
// The upload endpoint is taken from the release's upload URL, so
// uploads work against forges that host uploads on a separate domain.
func (client *Client) UploadReleaseAsset(ctx context.Context, releaseID int64, path string) (*ReleaseAsset, error) {
	release, err := client.GetRelease(ctx, releaseID)
	if err != nil {
		return nil, err
	}
	uploadURL := release.UploadURL
	// The upload URL arrives as an RFC 6570 template:
	// ".../assets{?name,label}".
	if i := strings.Index(uploadURL, "{"); i >= 0 {
		uploadURL = uploadURL[:i]
	}
	if uploadURL == "" {
		return nil, fmt.Errorf("uploading %s: release %d has no upload URL", path, releaseID)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("uploading release asset: %w", err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("uploading release asset: %w", err)
	}

	name := filepath.Base(path)
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	var asset ReleaseAsset
	target := uploadURL + "?name=" + url.QueryEscape(name)
	if err := client.upload(ctx, target, contentType, info.Size(), file, &asset); err != nil {
		return nil, fmt.Errorf("uploading %s to release %d: %w", name, releaseID, err)
	}
	return &asset, nil
}
