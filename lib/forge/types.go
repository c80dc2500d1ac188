// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package forge

import "time"

// CombinedStatus is the aggregated commit status for a ref: the
// rolled-up state plus the individual status contexts.
type CombinedStatus struct {
	State      string         `json:"state"` // "pending", "success", "failure", "error"
	SHA        string         `json:"sha"`
	TotalCount int            `json:"total_count"`
	Statuses   []CommitStatus `json:"statuses"`
}

// CommitStatus is one status context on a commit.
type CommitStatus struct {
	State       string    `json:"state"` // "pending", "success", "failure", "error"
	Context     string    `json:"context"`
	Description string    `json:"description"`
	TargetURL   string    `json:"target_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CheckRun is one check suite run on a commit.
type CheckRun struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`     // "queued", "in_progress", "completed"
	Conclusion  string     `json:"conclusion"` // "success", "failure", "neutral", "cancelled", "skipped", "timed_out", "action_required"
	HeadSHA     string     `json:"head_sha"`
	HTMLURL     string     `json:"html_url"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// Release is a published or draft release.
type Release struct {
	ID          int64          `json:"id"`
	TagName     string         `json:"tag_name"`
	Name        string         `json:"name"`
	Body        string         `json:"body"`
	Draft       bool           `json:"draft"`
	Prerelease  bool           `json:"prerelease"`
	HTMLURL     string         `json:"html_url"`
	UploadURL   string         `json:"upload_url"`
	Assets      []ReleaseAsset `json:"assets"`
	CreatedAt   time.Time      `json:"created_at"`
	PublishedAt *time.Time     `json:"published_at"`
}

// ReleaseAsset is a file attached to a release.
type ReleaseAsset struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	ContentType        string `json:"content_type"`
	Size               int64  `json:"size"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// Ref is a git reference (branch or tag).
type Ref struct {
	Ref    string    `json:"ref"` // "refs/heads/main", "refs/tags/v1.2.3"
	Object RefObject `json:"object"`
}

// RefObject is the object a ref points to.
type RefObject struct {
	SHA  string `json:"sha"`
	Type string `json:"type"` // "commit" or "tag"
}
