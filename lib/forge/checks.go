// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package forge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// CombinedStatus retrieves the aggregated commit status for a ref
// (branch name, tag name, or SHA).
func (client *Client) CombinedStatus(ctx context.Context, ref string) (*CombinedStatus, error) {
	var combined CombinedStatus
	path := client.repoPath + "/commits/" + url.PathEscape(ref) + "/status"
	if err := client.get(ctx, path, &combined); err != nil {
		return nil, fmt.Errorf("getting combined status for %s: %w", ref, err)
	}
	return &combined, nil
}

// CheckRuns retrieves all check runs for a ref, following pagination.
// The endpoint wraps its items in a count envelope, so this follows
// Link headers directly rather than going through PageIterator.
func (client *Client) CheckRuns(ctx context.Context, ref string) ([]CheckRun, error) {
	next := client.baseURL + client.repoPath + "/commits/" + url.PathEscape(ref) + "/check-runs?per_page=100"
	var runs []CheckRun
	for next != "" {
		response, err := client.doRaw(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, fmt.Errorf("getting check runs for %s: %w", ref, err)
		}
		if response.StatusCode != http.StatusOK {
			apiError := parseAPIError(response)
			response.Body.Close()
			return nil, fmt.Errorf("getting check runs for %s: %w", ref, apiError)
		}

		var page struct {
			TotalCount int        `json:"total_count"`
			CheckRuns  []CheckRun `json:"check_runs"`
		}
		err = json.NewDecoder(response.Body).Decode(&page)
		response.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("getting check runs for %s: %w", ref, err)
		}

		runs = append(runs, page.CheckRuns...)
		next = parseLinkNext(response.Header.Get("Link"))
	}
	return runs, nil
}

// ChecksFailedError reports that CI concluded against a ref: at least
// one status context or check run failed.
type ChecksFailedError struct {
	// Ref is the ref the checks ran against.
	Ref string

	// Failures names each failed status context or check run with its
	// state or conclusion.
	Failures []string
}

func (err *ChecksFailedError) Error() string {
	return fmt.Sprintf("checks failed for %s: %s", err.Ref, strings.Join(err.Failures, ", "))
}

// WaitForChecks polls the commit statuses and check runs for a ref
// until every one succeeds, any one fails, or the context is
// cancelled. Polling waits interval between rounds on the injected
// clock. A ref with no reported checks yet counts as pending — CI
// that never reports is bounded by the caller's context deadline.
//
// Returns nil when all checks passed and a *ChecksFailedError when
// any concluded against the ref.
func (client *Client) WaitForChecks(ctx context.Context, ref string, interval time.Duration) error {
	for {
		combined, err := client.CombinedStatus(ctx, ref)
		if err != nil {
			return err
		}
		runs, err := client.CheckRuns(ctx, ref)
		if err != nil {
			return err
		}

		var failures []string
		pending := len(combined.Statuses) == 0 && len(runs) == 0
		for _, status := range combined.Statuses {
			switch status.State {
			case "failure", "error":
				failures = append(failures, status.Context+": "+status.State)
			case "pending":
				pending = true
			}
		}
		for _, run := range runs {
			if run.Status != "completed" {
				pending = true
				continue
			}
			switch run.Conclusion {
			case "success", "neutral", "skipped":
			default:
				failures = append(failures, run.Name+": "+run.Conclusion)
			}
		}

		if len(failures) > 0 {
			return &ChecksFailedError{Ref: ref, Failures: failures}
		}
		if !pending {
			return nil
		}

		client.logger.Debug("checks pending",
			"ref", ref,
			"statuses", len(combined.Statuses),
			"check_runs", len(runs),
		)
		select {
		case <-client.clock.After(interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
