// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package forge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/baleproject/bale/lib/clock"
)

// newTestClient creates a Client backed by the given httptest TLS
// server, targeting the wadalab/wada repository.
func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient(Config{
		BaseURL:    server.URL,
		Repository: "wadalab/wada",
		Token:      "test-token",
		HTTPClient: server.Client(),
		Clock:      clock.Real(),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestNewClient_HTTPSEnforcement(t *testing.T) {
	_, err := NewClient(Config{
		BaseURL:    "http://api.github.com",
		Repository: "wadalab/wada",
		Token:      "test",
	})
	if err == nil {
		t.Fatal("expected error for HTTP URL")
	}
	if got := err.Error(); got != `forge: API client requires HTTPS (got "http://api.github.com")` {
		t.Errorf("unexpected error: %s", got)
	}
}

func TestNewClient_RepositoryValidation(t *testing.T) {
	for _, repository := range []string{"", "wada", "wadalab/", "/wada", "a/b/c"} {
		_, err := NewClient(Config{Repository: repository, Token: "test"})
		if err == nil {
			t.Errorf("Repository %q should be rejected", repository)
		}
	}
	if _, err := NewClient(Config{Repository: "wadalab/wada", Token: "test"}); err != nil {
		t.Errorf("Repository wadalab/wada rejected: %v", err)
	}
}

func TestNewClient_TokenRequired(t *testing.T) {
	_, err := NewClient(Config{Repository: "wadalab/wada"})
	if err == nil {
		t.Fatal("expected error for missing token")
	}
}

func TestClient_RequestHeaders(t *testing.T) {
	var gotAuth, gotAccept, gotVersion, gotPath string
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		gotAuth = request.Header.Get("Authorization")
		gotAccept = request.Header.Get("Accept")
		gotVersion = request.Header.Get("X-GitHub-Api-Version")
		gotPath = request.URL.Path
		writer.Header().Set("Content-Type", "application/json")
		writer.Write([]byte(`{"state":"success","statuses":[]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	if _, err := client.CombinedStatus(context.Background(), "main"); err != nil {
		t.Fatalf("CombinedStatus: %v", err)
	}

	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer test-token")
	}
	if gotAccept != "application/vnd.github+json" {
		t.Errorf("Accept = %q", gotAccept)
	}
	if gotVersion != "2022-11-28" {
		t.Errorf("X-GitHub-Api-Version = %q", gotVersion)
	}
	if gotPath != "/repos/wadalab/wada/commits/main/status" {
		t.Errorf("path = %q", gotPath)
	}
}

func TestClient_RateLimitBackoff(t *testing.T) {
	fakeClock := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	requestCount := 0
	resetTime := fakeClock.Now().Add(30 * time.Second)

	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		requestCount++
		if requestCount == 1 {
			writer.Header().Set("X-RateLimit-Remaining", "0")
			writer.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))
			writer.Header().Set("Retry-After", "30")
			writer.WriteHeader(http.StatusForbidden)
			json.NewEncoder(writer).Encode(map[string]string{
				"message": "API rate limit exceeded",
			})
			return
		}
		writer.Header().Set("X-RateLimit-Remaining", "4999")
		writer.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Add(time.Hour).Unix(), 10))
		writer.Header().Set("Content-Type", "application/json")
		writer.Write([]byte(`{"state":"success","sha":"abc123","statuses":[]}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{
		BaseURL:    server.URL,
		Repository: "wadalab/wada",
		Token:      "test-token",
		HTTPClient: server.Client(),
		Clock:      fakeClock,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	// The request blocks in the backoff sleep, so drive it from a
	// goroutine and advance the clock past the retry window.
	done := make(chan error, 1)
	var combined *CombinedStatus
	go func() {
		var requestErr error
		combined, requestErr = client.CombinedStatus(context.Background(), "main")
		done <- requestErr
	}()

	fakeClock.WaitForTimers(1)
	fakeClock.Advance(31 * time.Second)

	if err := <-done; err != nil {
		t.Fatalf("CombinedStatus: %v", err)
	}
	if requestCount != 2 {
		t.Errorf("expected 2 requests (rate limited + retry), got %d", requestCount)
	}
	if combined == nil || combined.State != "success" {
		t.Errorf("expected success status, got %+v", combined)
	}
}

func TestClient_ETagCaching(t *testing.T) {
	requestCount := 0
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		requestCount++
		if request.Header.Get("If-None-Match") == `"etag-123"` {
			writer.WriteHeader(http.StatusNotModified)
			return
		}
		writer.Header().Set("ETag", `"etag-123"`)
		writer.Header().Set("Content-Type", "application/json")
		writer.Write([]byte(`{"state":"success","sha":"abc123","statuses":[]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	ctx := context.Background()

	first, err := client.CombinedStatus(ctx, "main")
	if err != nil {
		t.Fatalf("first CombinedStatus: %v", err)
	}
	if first.SHA != "abc123" {
		t.Errorf("first SHA = %q", first.SHA)
	}

	// The second request gets 304 and is served from the cache.
	second, err := client.CombinedStatus(ctx, "main")
	if err != nil {
		t.Fatalf("second CombinedStatus: %v", err)
	}
	if second.SHA != "abc123" {
		t.Errorf("second SHA = %q", second.SHA)
	}
	if requestCount != 2 {
		t.Errorf("expected 2 HTTP requests, got %d", requestCount)
	}
}

func TestClient_ErrorParsing(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusNotFound)
		json.NewEncoder(writer).Encode(map[string]any{
			"message":           "Not Found",
			"documentation_url": "https://docs.example/rest",
		})
	}))
	defer server.Close()

	client := newTestClient(t, server)
	_, err := client.GetReleaseByTag(context.Background(), "v9.9.9")
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if !IsNotFound(err) {
		t.Errorf("expected IsNotFound, got: %v", err)
	}
}

func TestClient_ValidationError(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(writer).Encode(map[string]any{
			"message": "Validation Failed",
			"errors": []map[string]string{
				{"resource": "Release", "code": "already_exists", "field": "tag_name"},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server)
	_, err := client.CreateRelease(context.Background(), CreateReleaseRequest{TagName: "v1.0.0"})
	if err == nil {
		t.Fatal("expected error for 422")
	}
	if !IsValidationFailed(err) {
		t.Errorf("expected IsValidationFailed, got: %v", err)
	}
}
