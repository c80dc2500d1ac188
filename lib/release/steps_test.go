// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package release

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/baleproject/bale/lib/clock"
	"github.com/baleproject/bale/lib/config"
	"github.com/baleproject/bale/lib/forge"
	"github.com/baleproject/bale/lib/gitcli"
	"github.com/baleproject/bale/lib/pkgindex"
)

func TestRunCommandExportsVariables(t *testing.T) {
	repo := initReleaseRepo(t)
	// Bare $VERSION is not expanded by the plan layer; it reaches the
	// shell, which finds it in the environment.
	plan := parsePlan(t, `{"steps": [{
		"id": "env",
		"name": "Env",
		"run": "printf %s \"$VERSION\" > version.txt"
	}]}`)
	runner, _ := newTestRunner(t, repo, plan)
	ctx := context.Background()

	state, err := runner.Start(ctx, "25.1")
	if err != nil {
		t.Fatal(err)
	}
	if err := runner.RunStep(ctx, state, "env", false); err != nil {
		t.Fatalf("RunStep: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(repo.Dir(), "version.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "25.1" {
		t.Errorf("shell saw VERSION=%q, want 25.1", data)
	}
}

func TestRunCommandTimeout(t *testing.T) {
	repo := initReleaseRepo(t)
	plan := parsePlan(t, `{"steps": [{
		"id": "slow",
		"name": "Slow",
		"run": "sleep 5",
		"timeout": "100ms"
	}]}`)
	runner, _ := newTestRunner(t, repo, plan)
	ctx := context.Background()

	state, err := runner.Start(ctx, "25.1")
	if err != nil {
		t.Fatal(err)
	}
	err = runner.RunStep(ctx, state, "slow", false)
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("RunStep error = %v, want timed out", err)
	}
	if state.Steps["slow"].Status != StatusFailed {
		t.Errorf("status = %s, want failed", state.Steps["slow"].Status)
	}
}

func TestRunCommandCheckFailure(t *testing.T) {
	repo := initReleaseRepo(t)
	plan := parsePlan(t, `{"steps": [{
		"id": "gate",
		"name": "Gate",
		"run": "true",
		"check": "false"
	}]}`)
	runner, _ := newTestRunner(t, repo, plan)
	ctx := context.Background()

	state, err := runner.Start(ctx, "25.1")
	if err != nil {
		t.Fatal(err)
	}
	err = runner.RunStep(ctx, state, "gate", false)
	if err == nil || !strings.Contains(err.Error(), "check failed") {
		t.Fatalf("RunStep error = %v, want check failed", err)
	}
}

func TestTagStep(t *testing.T) {
	repo := initReleaseRepo(t)
	plan := parsePlan(t, `{"steps": [{
		"id": "tag",
		"name": "Tag ${VERSION}",
		"action": "tag",
		"params": {"message": "wada ${VERSION} is out"}
	}]}`)
	runner, _ := newTestRunner(t, repo, plan)
	ctx := context.Background()

	state, err := runner.Start(ctx, "25.1")
	if err != nil {
		t.Fatal(err)
	}
	if err := runner.RunStep(ctx, state, "tag", false); err != nil {
		t.Fatalf("RunStep: %v", err)
	}

	tagged, err := repo.HasTag(ctx, "v25.1")
	if err != nil {
		t.Fatal(err)
	}
	if !tagged {
		t.Fatal("HasTag(v25.1) = false")
	}
	subject, err := repo.Run(ctx, "tag", "-l", "--format=%(contents:subject)", "v25.1")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(subject) != "wada 25.1 is out" {
		t.Errorf("tag message = %q, want expanded params message", strings.TrimSpace(subject))
	}
}

func TestTagStepPush(t *testing.T) {
	repo := initReleaseRepo(t)
	remoteDir := t.TempDir()
	gitOrSkip(t, "init", "--bare", remoteDir)
	gitOrSkip(t, "-C", repo.Dir(), "remote", "add", "origin", remoteDir)

	plan := parsePlan(t, `{"steps": [{
		"id": "tag",
		"name": "Tag",
		"action": "tag",
		"params": {"push": "true"}
	}]}`)
	runner, _ := newTestRunner(t, repo, plan)
	ctx := context.Background()

	state, err := runner.Start(ctx, "25.1")
	if err != nil {
		t.Fatal(err)
	}
	if err := runner.RunStep(ctx, state, "tag", false); err != nil {
		t.Fatalf("RunStep: %v", err)
	}

	remote := gitcli.NewRepository(remoteDir)
	output, err := remote.Run(ctx, "tag", "--list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(output, "v25.1") {
		t.Errorf("remote tags = %q, want v25.1", output)
	}
	if !strings.Contains(state.Steps["tag"].Output, "pushed to origin") {
		t.Errorf("step output = %q", state.Steps["tag"].Output)
	}
}

func TestBranchStep(t *testing.T) {
	repo := initReleaseRepo(t)
	plan := parsePlan(t, `{"steps": [{
		"id": "cut",
		"name": "Cut docs branch",
		"action": "branch",
		"params": {"name": "docs-${VERSION}"}
	}]}`)
	runner, _ := newTestRunner(t, repo, plan)
	ctx := context.Background()

	state, err := runner.Start(ctx, "25.1")
	if err != nil {
		t.Fatal(err)
	}
	if err := runner.RunStep(ctx, state, "cut", false); err != nil {
		t.Fatalf("RunStep: %v", err)
	}
	if _, err := repo.RevParse(ctx, "docs-25.1"); err != nil {
		t.Errorf("branch docs-25.1 missing: %v", err)
	}
}

func TestBranchStepRequiresName(t *testing.T) {
	repo := initReleaseRepo(t)
	plan := parsePlan(t, `{"steps": [{
		"id": "cut",
		"name": "Cut docs branch",
		"action": "branch"
	}]}`)
	runner, _ := newTestRunner(t, repo, plan)
	ctx := context.Background()

	state, err := runner.Start(ctx, "25.1")
	if err != nil {
		t.Fatal(err)
	}
	err = runner.RunStep(ctx, state, "cut", false)
	if err == nil || !strings.Contains(err.Error(), "params[name] is required") {
		t.Fatalf("RunStep error = %v, want params[name] required", err)
	}
	if state.Steps["cut"].Status != StatusFailed {
		t.Errorf("status = %s, want failed", state.Steps["cut"].Status)
	}
}

// newCIServer serves commit status and check-run endpoints with fixed
// bodies.
func newCIServer(t *testing.T, statuses, checkRuns string) *httptest.Server {
	t.Helper()
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(req.URL.Path, "/status"):
			fmt.Fprintf(w, `{"state": "pending", "statuses": %s}`, statuses)
		case strings.HasSuffix(req.URL.Path, "/check-runs"):
			fmt.Fprintf(w, `{"total_count": 0, "check_runs": %s}`, checkRuns)
		default:
			http.NotFound(w, req)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func newCIRunner(t *testing.T, repo *gitcli.Repository, planSource string, server *httptest.Server) *Runner {
	t.Helper()
	forgeClient, err := forge.NewClient(forge.Config{
		BaseURL:    server.URL,
		Repository: "wadalab/wada",
		Token:      "test-token",
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("forge.NewClient: %v", err)
	}
	cfg := config.Default(repo.Dir())
	cfg.Project.Name = "wada"
	cfg.Release.TagPrefix = "v"
	runner, err := NewRunner(Config{
		Plan:    parsePlan(t, planSource),
		Project: cfg,
		Repo:    repo,
		Forge:   func() (*forge.Client, error) { return forgeClient, nil },
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:   clock.Real(),
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return runner
}

func TestCIWaitStep(t *testing.T) {
	repo := initReleaseRepo(t)
	server := newCIServer(t,
		`[{"state": "success", "context": "ci/build"}]`,
		`[{"id": 1, "name": "tests", "status": "completed", "conclusion": "success"}]`,
	)
	runner := newCIRunner(t, repo, `{"steps": [{
		"id": "ci",
		"name": "Wait for CI",
		"action": "ci-wait",
		"params": {"interval": "10ms"}
	}]}`, server)
	ctx := context.Background()

	state, err := runner.Start(ctx, "25.1")
	if err != nil {
		t.Fatal(err)
	}
	if err := runner.RunStep(ctx, state, "ci", false); err != nil {
		t.Fatalf("RunStep: %v", err)
	}
	if state.Steps["ci"].Output != "checks passed for release/25.1" {
		t.Errorf("output = %q", state.Steps["ci"].Output)
	}
}

func TestCIWaitStepFailure(t *testing.T) {
	repo := initReleaseRepo(t)
	server := newCIServer(t,
		`[]`,
		`[{"id": 1, "name": "tests", "status": "completed", "conclusion": "failure"}]`,
	)
	runner := newCIRunner(t, repo, `{"steps": [{
		"id": "ci",
		"name": "Wait for CI",
		"action": "ci-wait"
	}]}`, server)
	ctx := context.Background()

	state, err := runner.Start(ctx, "25.1")
	if err != nil {
		t.Fatal(err)
	}
	err = runner.RunStep(ctx, state, "ci", false)
	if err == nil || !strings.Contains(err.Error(), "checks failed") {
		t.Fatalf("RunStep error = %v, want checks failed", err)
	}
	if state.Steps["ci"].Status != StatusFailed {
		t.Errorf("status = %s, want failed", state.Steps["ci"].Status)
	}
}

func TestCIWaitStepTimeout(t *testing.T) {
	repo := initReleaseRepo(t)
	server := newCIServer(t,
		`[{"state": "pending", "context": "ci/build"}]`,
		`[]`,
	)
	runner := newCIRunner(t, repo, `{"steps": [{
		"id": "ci",
		"name": "Wait for CI",
		"action": "ci-wait",
		"timeout": "50ms",
		"params": {"interval": "10ms"}
	}]}`, server)
	ctx := context.Background()

	state, err := runner.Start(ctx, "25.1")
	if err != nil {
		t.Fatal(err)
	}
	err = runner.RunStep(ctx, state, "ci", false)
	if err == nil || !strings.Contains(err.Error(), "context deadline exceeded") {
		t.Fatalf("RunStep error = %v, want deadline exceeded", err)
	}
}

func TestPublishStep(t *testing.T) {
	repo := initReleaseRepo(t)

	type recordedUpload struct {
		fields   map[string]string
		filename string
	}
	var uploads []recordedUpload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fields := make(map[string]string)
		for field, values := range r.MultipartForm.Value {
			fields[field] = values[0]
		}
		_, header, err := r.FormFile("content")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		uploads = append(uploads, recordedUpload{fields: fields, filename: header.Filename})
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	indexClient, err := pkgindex.NewClient(pkgindex.Config{
		BaseURL:    server.URL,
		UploadURL:  server.URL + "/legacy/",
		Token:      "pypi-token",
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("pkgindex.NewClient: %v", err)
	}

	cfg := config.Default(repo.Dir())
	cfg.Project.Name = "wada"
	cfg.Project.Summary = "vendoring for wada"
	cfg.Release.TagPrefix = "v"
	cfg.Release.Artifacts = []string{"dist/*"}
	runner, err := NewRunner(Config{
		Plan: parsePlan(t, `{"steps": [{
			"id": "upload",
			"name": "Upload artifacts",
			"action": "publish"
		}]}`),
		Project: cfg,
		Repo:    repo,
		Index:   func() (*pkgindex.Client, error) { return indexClient, nil },
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:   clock.Real(),
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	ctx := context.Background()

	state, err := runner.Start(ctx, "25.1")
	if err != nil {
		t.Fatal(err)
	}
	distDir := filepath.Join(repo.Dir(), "dist")
	if err := os.MkdirAll(distDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"wada-25.1.tar.gz", "wada-25.1-py3-none-any.whl"} {
		if err := os.WriteFile(filepath.Join(distDir, name), []byte(name+" bytes"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if err := runner.RunStep(ctx, state, "upload", false); err != nil {
		t.Fatalf("RunStep: %v", err)
	}

	if len(uploads) != 2 {
		t.Fatalf("uploads = %d, want 2", len(uploads))
	}
	// Paths sort the wheel first.
	wheel, sdist := uploads[0], uploads[1]
	if wheel.filename != "wada-25.1-py3-none-any.whl" {
		t.Errorf("first upload = %q", wheel.filename)
	}
	if wheel.fields["filetype"] != "bdist_wheel" || wheel.fields["pyversion"] != "py3" {
		t.Errorf("wheel fields = %q/%q", wheel.fields["filetype"], wheel.fields["pyversion"])
	}
	if sdist.filename != "wada-25.1.tar.gz" {
		t.Errorf("second upload = %q", sdist.filename)
	}
	if sdist.fields["filetype"] != "sdist" || sdist.fields["pyversion"] != "source" {
		t.Errorf("sdist fields = %q/%q", sdist.fields["filetype"], sdist.fields["pyversion"])
	}
	for _, upload := range uploads {
		if upload.fields["name"] != "wada" || upload.fields["version"] != "25.1" {
			t.Errorf("upload name/version = %q/%q", upload.fields["name"], upload.fields["version"])
		}
		if upload.fields["summary"] != "vendoring for wada" {
			t.Errorf("upload summary = %q", upload.fields["summary"])
		}
	}
	if !strings.Contains(state.Steps["upload"].Output, "uploaded wada-25.1.tar.gz") {
		t.Errorf("step output = %q", state.Steps["upload"].Output)
	}
}

func TestPublishStepNoArtifacts(t *testing.T) {
	repo := initReleaseRepo(t)
	cfg := config.Default(repo.Dir())
	cfg.Project.Name = "wada"
	runner, err := NewRunner(Config{
		Plan: parsePlan(t, `{"steps": [{
			"id": "upload",
			"name": "Upload artifacts",
			"action": "publish",
			"params": {"artifacts": "missing/*.tar.gz"}
		}]}`),
		Project: cfg,
		Repo:    repo,
		Index:   func() (*pkgindex.Client, error) { return nil, fmt.Errorf("unreachable") },
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:   clock.Real(),
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	ctx := context.Background()

	state, err := runner.Start(ctx, "25.1")
	if err != nil {
		t.Fatal(err)
	}
	err = runner.RunStep(ctx, state, "upload", false)
	if err == nil || !strings.Contains(err.Error(), "no artifacts match") {
		t.Fatalf("RunStep error = %v, want no artifacts match", err)
	}
}

func TestOutputTail(t *testing.T) {
	if got := outputTail([]byte("short output\n")); got != "short output" {
		t.Errorf("outputTail = %q", got)
	}

	var builder strings.Builder
	for i := 0; i < 1000; i++ {
		fmt.Fprintf(&builder, "line %d\n", i)
	}
	tail := outputTail([]byte(builder.String()))
	if len(tail) > outputTailLimit {
		t.Errorf("tail length = %d, want <= %d", len(tail), outputTailLimit)
	}
	if !strings.HasSuffix(tail, "line 999") {
		t.Errorf("tail should keep the last line, got ...%q", tail[len(tail)-20:])
	}
	// Truncation lands on a line boundary, not mid-line.
	if !strings.HasPrefix(tail, "line ") {
		t.Errorf("tail starts mid-line: %q", tail[:20])
	}
}

func TestWheelPyVersion(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"wada-25.1-py3-none-any.whl", "py3"},
		{"wada-25.1-1-py2.py3-none-any.whl", "py2.py3"},
		{"wada-25.1-cp312-cp312-manylinux_2_17_x86_64.whl", "cp312"},
		{"odd.whl", "py3"},
	}
	for _, test := range tests {
		if got := wheelPyVersion(test.filename); got != test.want {
			t.Errorf("wheelPyVersion(%q) = %q, want %q", test.filename, got, test.want)
		}
	}
}
