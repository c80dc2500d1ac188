// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package doctor

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/baleproject/bale/lib/manifest"
	"github.com/baleproject/bale/lib/pkgname"
)

// writeProject creates a project directory with a bale.yaml pointing
// the index at indexURL and points BALE_CONFIG at it. The sealed store
// is redirected into the temp directory too so the identity check
// never touches the real user config.
func writeProject(t *testing.T, indexURL string) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(
		"project:\n  name: testproj\ncache:\n  dir: %s\nindex:\n  url: %s\n",
		filepath.Join(dir, "cache"), indexURL)
	configPath := filepath.Join(dir, "bale.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BALE_CONFIG", configPath)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	return dir
}

// fakeIndex answers every project query with a 404, which the
// reachability check counts as reachable.
func fakeIndex(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "Not Found"}`, http.StatusNotFound)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestDoctorHealthyProject(t *testing.T) {
	server := fakeIndex(t)
	dir := writeProject(t, server.URL)
	vendorTxt := "requests==2.32.5\n"
	if err := os.WriteFile(filepath.Join(dir, "vendor.txt"), []byte(vendorTxt), 0o644); err != nil {
		t.Fatal(err)
	}

	var params commandParams
	if err := runDoctor(context.Background(), params); err != nil {
		t.Errorf("doctor on healthy project: %v", err)
	}
}

func TestDoctorMissingConfig(t *testing.T) {
	result := checkConfiguration(&checkState{}, filepath.Join(t.TempDir(), "absent.yaml"))
	if result.Status != StatusFail {
		t.Errorf("status = %s, want fail", result.Status)
	}
	if !strings.Contains(result.Message, "bale.yaml") {
		t.Errorf("message %q does not name bale.yaml", result.Message)
	}
}

func TestDoctorMissingManifestWarns(t *testing.T) {
	server := fakeIndex(t)
	writeProject(t, server.URL)

	var state checkState
	if result := checkConfiguration(&state, ""); result.Status != StatusPass {
		t.Fatalf("configuration: %s: %s", result.Status, result.Message)
	}
	result := checkManifest(&state)
	if result.Status != StatusWarn {
		t.Errorf("manifest status = %s, want warn", result.Status)
	}
}

func TestDoctorSkipsWithoutConfig(t *testing.T) {
	var state checkState
	for _, result := range []Result{
		checkManifest(&state),
		checkCache(&state),
		checkIndex(context.Background(), &state),
	} {
		if result.Status != StatusSkip {
			t.Errorf("%s status = %s, want skip", result.Name, result.Status)
		}
	}
}

func TestDoctorUnreachableIndex(t *testing.T) {
	server := fakeIndex(t)
	url := server.URL
	server.Close()
	writeProject(t, url)

	var state checkState
	if result := checkConfiguration(&state, ""); result.Status != StatusPass {
		t.Fatalf("configuration: %s: %s", result.Status, result.Message)
	}
	result := checkIndex(context.Background(), &state)
	if result.Status != StatusFail {
		t.Errorf("index status = %s, want fail", result.Status)
	}
}

func TestProbeName(t *testing.T) {
	if got := probeName(nil); got != pkgname.Canonicalize("requests") {
		t.Errorf("probeName(nil) = %s", got)
	}
	m, err := manifest.Parse([]byte("certifi==2026.1.1\nurllib3==2.5.0\n"))
	if err != nil {
		t.Fatal(err)
	}
	if got := probeName(m); got != "certifi" {
		t.Errorf("probeName = %s, want certifi", got)
	}
}
