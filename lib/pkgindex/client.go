// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package pkgindex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/baleproject/bale/lib/clock"
	"github.com/baleproject/bale/lib/netutil"
)

// defaultBaseURL is the public package index.
const defaultBaseURL = "https://pypi.org"

// acceptJSON is the Accept header for the per-project JSON documents.
const acceptJSON = "application/json"

// acceptSimple is the versioned media type of the project list API.
const acceptSimple = "application/vnd.pypi.simple.v1+json"

// Config holds configuration for creating an index Client.
type Config struct {
	// BaseURL is the root URL of the index. Defaults to
	// "https://pypi.org". Must use HTTPS; plain HTTP is allowed only
	// for loopback hosts so tests and local mirrors work.
	BaseURL string

	// UploadURL is the endpoint archives are published to. Defaults
	// to BaseURL + "/legacy/".
	UploadURL string

	// Token is an index API token. Read endpoints are public; the
	// token is required only for Upload.
	Token string

	// HTTPClient is used for all HTTP requests. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client

	// Clock provides time operations. Defaults to clock.Real().
	// Inject a fake in tests for deterministic backoff behavior.
	Clock clock.Clock

	// Logger is used for structured logging. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// Client is a typed package index client with ETag caching, rate
// limit backoff, and structured error handling.
type Client struct {
	baseURL    string
	uploadURL  string
	token      string
	httpClient *http.Client
	rateLimit  *netutil.RateLimitTracker
	etagCache  *netutil.ETagCache
	clock      clock.Clock
	logger     *slog.Logger
}

// NewClient creates an index client from the given configuration.
func NewClient(config Config) (*Client, error) {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if err := checkIndexURL(baseURL); err != nil {
		return nil, err
	}

	uploadURL := config.UploadURL
	if uploadURL == "" {
		uploadURL = baseURL + "/legacy/"
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    baseURL,
		uploadURL:  uploadURL,
		token:      config.Token,
		httpClient: httpClient,
		rateLimit:  netutil.NewRateLimitTracker(clk),
		etagCache:  netutil.NewETagCache(),
		clock:      clk,
		logger:     logger,
	}, nil
}

// BaseURL returns the normalized index root URL.
func (client *Client) BaseURL() string { return client.baseURL }

// checkIndexURL enforces HTTPS for non-loopback hosts.
func checkIndexURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("index: invalid base URL %q: %w", raw, err)
	}
	switch parsed.Scheme {
	case "https":
		return nil
	case "http":
		host := parsed.Hostname()
		if host == "localhost" || host == "127.0.0.1" || host == "::1" {
			return nil
		}
		return fmt.Errorf("index: plain HTTP is only allowed for loopback hosts (got %q)", raw)
	default:
		return fmt.Errorf("index: base URL %q must use HTTPS", raw)
	}
}

// do executes an index API request. Handles preemptive rate limit
// waiting, ETag caching for GETs, and a single backed-off retry on
// 429/503 responses carrying Retry-After. The path is relative to the
// base URL.
func (client *Client) do(ctx context.Context, method, path, accept string) ([]byte, http.Header, error) {
	return client.doWithRetry(ctx, method, path, accept, false)
}

func (client *Client) doWithRetry(ctx context.Context, method, path, accept string, isRetry bool) ([]byte, http.Header, error) {
	if err := client.rateLimit.Wait(ctx); err != nil {
		return nil, nil, err
	}

	requestURL := client.baseURL + path
	request, err := http.NewRequestWithContext(ctx, method, requestURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("index: creating request: %w", err)
	}
	request.Header.Set("Accept", accept)
	if method == http.MethodGet {
		if etag := client.etagCache.Get(requestURL); etag != "" {
			request.Header.Set("If-None-Match", etag)
		}
	}

	response, err := client.httpClient.Do(request)
	if err != nil {
		return nil, nil, fmt.Errorf("index: %s %s: %w", method, requestURL, err)
	}
	defer response.Body.Close()
	client.rateLimit.Update(response.Header)

	if response.StatusCode == http.StatusNotModified {
		if cached := client.etagCache.Body(requestURL); cached != nil {
			return cached, response.Header, nil
		}
		// A 304 without a cached body should not happen; fall through
		// and let the empty body produce a decode error upstream.
	}

	body, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("index: reading response body: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		retryable := response.StatusCode == http.StatusTooManyRequests ||
			response.StatusCode == http.StatusServiceUnavailable
		if retryable && !isRetry {
			if backoff := client.rateLimit.RetryAfter(response.Header); backoff > 0 {
				client.logger.Info("index rate limited, backing off",
					"duration", backoff,
					"method", method,
					"path", path,
				)
				select {
				case <-client.clock.After(backoff):
				case <-ctx.Done():
					return nil, nil, ctx.Err()
				}
				return client.doWithRetry(ctx, method, path, accept, true)
			}
		}
		return nil, nil, &APIError{StatusCode: response.StatusCode, Message: errorMessage(body)}
	}

	if method == http.MethodGet {
		if etag := response.Header.Get("ETag"); etag != "" {
			client.etagCache.Put(requestURL, etag, body)
		}
	}
	return body, response.Header, nil
}

// get fetches a JSON document into result.
func (client *Client) get(ctx context.Context, path, accept string, result any) error {
	body, _, err := client.do(ctx, http.MethodGet, path, accept)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("index: decoding %s: %w", path, err)
	}
	return nil
}
