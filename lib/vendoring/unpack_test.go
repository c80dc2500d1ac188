// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package vendoring

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/baleproject/bale/lib/testutil"
	"github.com/klauspost/compress/gzip"
)

// buildTarGz builds a gzipped tarball from slash-path -> content
// pairs, written in sorted order so fixture bytes are stable.
func buildTarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	compressor := gzip.NewWriter(&buf)
	writer := tar.NewWriter(compressor)
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		content := files[name]
		header := &tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}
		if err := writer.WriteHeader(header); err != nil {
			t.Fatalf("tar header %s: %v", name, err)
		}
		if _, err := writer.Write([]byte(content)); err != nil {
			t.Fatalf("tar content %s: %v", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("closing tar writer: %v", err)
	}
	if err := compressor.Close(); err != nil {
		t.Fatalf("closing gzip writer: %v", err)
	}
	return buf.Bytes()
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		member, err := writer.Create(name)
		if err != nil {
			t.Fatalf("zip member %s: %v", name, err)
		}
		if _, err := member.Write([]byte(files[name])); err != nil {
			t.Fatalf("zip content %s: %v", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("closing zip writer: %v", err)
	}
	return buf.Bytes()
}

func TestUnpackTarGz(t *testing.T) {
	t.Parallel()
	data := buildTarGz(t, map[string]string{
		"demo-1.0/PKG-INFO":         "Name: demo\n",
		"demo-1.0/demo/__init__.py": "VERSION = \"1.0\"\n",
		"demo-1.0/demo/core.py":     "def run():\n    pass\n",
	})
	dest := t.TempDir()
	if err := unpackArchive(data, "demo-1.0.tar.gz", dest); err != nil {
		t.Fatalf("unpackArchive: %v", err)
	}
	if got := testutil.ReadFile(t, dest, "demo-1.0/demo/core.py"); got != "def run():\n    pass\n" {
		t.Errorf("core.py = %q", got)
	}
	if !testutil.Exists(t, dest, "demo-1.0/PKG-INFO") {
		t.Error("PKG-INFO missing after unpack")
	}
}

func TestUnpackZip(t *testing.T) {
	t.Parallel()
	data := buildZip(t, map[string]string{
		"wada/__init__.py":            "helper = 1\n",
		"wada-2.0.dist-info/METADATA": "Name: wada\n",
	})
	dest := t.TempDir()
	if err := unpackArchive(data, "wada-2.0-py3-none-any.whl", dest); err != nil {
		t.Fatalf("unpackArchive: %v", err)
	}
	if got := testutil.ReadFile(t, dest, "wada/__init__.py"); got != "helper = 1\n" {
		t.Errorf("__init__.py = %q", got)
	}
}

func TestUnpackUnknownFormat(t *testing.T) {
	t.Parallel()
	err := unpackArchive([]byte("x"), "demo-1.0.tar.bz2", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "unsupported archive type") {
		t.Fatalf("err = %v, want unsupported archive type", err)
	}
}

func TestUnpackRejectsHostileMembers(t *testing.T) {
	t.Parallel()
	for _, name := range []string{
		"../evil.py",
		"/etc/evil.py",
		"demo/../../evil.py",
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			data := buildTarGz(t, map[string]string{name: "bad\n"})
			dest := t.TempDir()
			err := unpackArchive(data, "demo-1.0.tar.gz", dest)
			if err == nil || !strings.Contains(err.Error(), "escapes the extraction directory") {
				t.Fatalf("err = %v, want extraction escape error", err)
			}
			if testutil.Exists(t, filepath.Dir(dest), "evil.py") {
				t.Error("hostile member was written outside the destination")
			}
		})
	}

	t.Run("zip traversal", func(t *testing.T) {
		t.Parallel()
		data := buildZip(t, map[string]string{"../evil.py": "bad\n"})
		err := unpackArchive(data, "wada-2.0.whl", t.TempDir())
		if err == nil || !strings.Contains(err.Error(), "escapes the extraction directory") {
			t.Fatalf("err = %v, want extraction escape error", err)
		}
	})
}

func TestUnpackRejectsLinks(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	compressor := gzip.NewWriter(&buf)
	writer := tar.NewWriter(compressor)
	header := &tar.Header{
		Name:     "demo-1.0/demo/link.py",
		Typeflag: tar.TypeSymlink,
		Linkname: "/etc/passwd",
	}
	if err := writer.WriteHeader(header); err != nil {
		t.Fatalf("tar header: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("closing tar writer: %v", err)
	}
	if err := compressor.Close(); err != nil {
		t.Fatalf("closing gzip writer: %v", err)
	}

	err := unpackArchive(buf.Bytes(), "demo-1.0.tar.gz", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "unsupported type") {
		t.Fatalf("err = %v, want unsupported member type", err)
	}
}

func TestLocateModule(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		files    map[string]string
		wantPath string
		wantRoot string
		wantFile bool
		wantErr  bool
	}{
		{
			name: "classic sdist layout",
			files: map[string]string{
				"demo-1.0/PKG-INFO":         "Name: demo\n",
				"demo-1.0/demo/__init__.py": "",
			},
			wantPath: "demo-1.0/demo",
			wantRoot: "demo-1.0",
		},
		{
			name: "src layout",
			files: map[string]string{
				"demo-1.0/PKG-INFO":             "Name: demo\n",
				"demo-1.0/src/demo/__init__.py": "",
			},
			wantPath: "demo-1.0/src/demo",
			wantRoot: "demo-1.0",
		},
		{
			name: "flat single-file module",
			files: map[string]string{
				"demo-1.0/PKG-INFO": "Name: demo\n",
				"demo-1.0/demo.py":  "x = 1\n",
			},
			wantPath: "demo-1.0/demo.py",
			wantRoot: "demo-1.0",
			wantFile: true,
		},
		{
			name: "wheel layout at archive root",
			files: map[string]string{
				"demo/__init__.py":            "",
				"demo-1.0.dist-info/METADATA": "Name: demo\n",
			},
			wantPath: "demo",
			wantRoot: ".",
		},
		{
			name: "module absent",
			files: map[string]string{
				"demo-1.0/other/__init__.py": "",
			},
			wantErr: true,
		},
	}
	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			unpacked := t.TempDir()
			testutil.WriteTree(t, unpacked, testCase.files)

			modulePath, archiveRoot, isFile, err := locateModule(unpacked, "demo")
			if testCase.wantErr {
				if err == nil {
					t.Fatalf("locateModule found %s, want error", modulePath)
				}
				return
			}
			if err != nil {
				t.Fatalf("locateModule: %v", err)
			}
			if got, _ := filepath.Rel(unpacked, modulePath); got != filepath.FromSlash(testCase.wantPath) {
				t.Errorf("module path = %s, want %s", got, testCase.wantPath)
			}
			if got, _ := filepath.Rel(unpacked, archiveRoot); got != filepath.FromSlash(testCase.wantRoot) {
				t.Errorf("archive root = %s, want %s", got, testCase.wantRoot)
			}
			if isFile != testCase.wantFile {
				t.Errorf("isFile = %v, want %v", isFile, testCase.wantFile)
			}
		})
	}
}

func TestMemberPathAllowsDotSlash(t *testing.T) {
	t.Parallel()
	rel, err := memberPath("./demo-1.0/setup.py")
	if err != nil {
		t.Fatalf("memberPath: %v", err)
	}
	if rel != filepath.FromSlash("demo-1.0/setup.py") {
		t.Errorf("rel = %q", rel)
	}
}

func TestUnpackPreservesExecutableBit(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	compressor := gzip.NewWriter(&buf)
	writer := tar.NewWriter(compressor)
	content := "#!/bin/sh\n"
	header := &tar.Header{
		Name:     "demo-1.0/demo/tool.sh",
		Mode:     0o755,
		Size:     int64(len(content)),
		Typeflag: tar.TypeReg,
	}
	if err := writer.WriteHeader(header); err != nil {
		t.Fatalf("tar header: %v", err)
	}
	if _, err := writer.Write([]byte(content)); err != nil {
		t.Fatalf("tar content: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("closing tar writer: %v", err)
	}
	if err := compressor.Close(); err != nil {
		t.Fatalf("closing gzip writer: %v", err)
	}

	dest := t.TempDir()
	if err := unpackArchive(buf.Bytes(), "demo-1.0.tar.gz", dest); err != nil {
		t.Fatalf("unpackArchive: %v", err)
	}
	info, err := os.Stat(filepath.Join(dest, "demo-1.0", "demo", "tool.sh"))
	if err != nil {
		t.Fatalf("stat extracted file: %v", err)
	}
	if info.Mode().Perm()&0o100 == 0 {
		t.Errorf("mode = %v, want executable bit preserved", info.Mode())
	}
}
