// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package vendoring

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
)

// unpackArchive extracts a release archive into dest. The format is
// chosen by filename: sdists are gzipped tarballs, wheels are zip
// files. Member paths are sanitized before any write; an absolute path
// or a path escaping dest fails the whole extraction.
func unpackArchive(data []byte, filename, dest string) error {
	switch {
	case strings.HasSuffix(filename, ".tar.gz"), strings.HasSuffix(filename, ".tgz"):
		return unpackTarGz(data, dest)
	case strings.HasSuffix(filename, ".zip"), strings.HasSuffix(filename, ".whl"):
		return unpackZip(data, dest)
	default:
		return fmt.Errorf("%s: unsupported archive type", filename)
	}
}

func unpackTarGz(data []byte, dest string) error {
	decompressed, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("reading gzip stream: %w", err)
	}
	defer decompressed.Close()

	reader := tar.NewReader(decompressed)
	for {
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar stream: %w", err)
		}
		rel, err := memberPath(header.Name)
		if err != nil {
			return err
		}
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(filepath.Join(dest, rel), 0o755); err != nil {
				return fmt.Errorf("extracting %s: %w", header.Name, err)
			}
		case tar.TypeReg:
			mode := header.FileInfo().Mode().Perm()
			if err := writeMember(dest, rel, mode, reader); err != nil {
				return fmt.Errorf("extracting %s: %w", header.Name, err)
			}
		default:
			return fmt.Errorf("archive member %q has unsupported type %q", header.Name, header.Typeflag)
		}
	}
}

func unpackZip(data []byte, dest string) error {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("reading zip archive: %w", err)
	}
	archive.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
		return flate.NewReader(r)
	})
	for _, member := range archive.File {
		rel, err := memberPath(member.Name)
		if err != nil {
			return err
		}
		if member.FileInfo().IsDir() {
			if err := os.MkdirAll(filepath.Join(dest, rel), 0o755); err != nil {
				return fmt.Errorf("extracting %s: %w", member.Name, err)
			}
			continue
		}
		content, err := member.Open()
		if err != nil {
			return fmt.Errorf("extracting %s: %w", member.Name, err)
		}
		writeErr := writeMember(dest, rel, member.Mode().Perm(), content)
		content.Close()
		if writeErr != nil {
			return fmt.Errorf("extracting %s: %w", member.Name, writeErr)
		}
	}
	return nil
}

// memberPath validates an archive member name and returns it as a
// native relative path. Archives use forward slashes regardless of
// platform.
func memberPath(name string) (string, error) {
	cleaned := strings.TrimPrefix(name, "./")
	if cleaned == "" || strings.HasPrefix(cleaned, "/") || !filepath.IsLocal(filepath.FromSlash(cleaned)) {
		return "", fmt.Errorf("archive member %q escapes the extraction directory", name)
	}
	return filepath.FromSlash(cleaned), nil
}

func writeMember(dest, rel string, mode os.FileMode, r io.Reader) error {
	if mode == 0 {
		mode = 0o644
	}
	path := filepath.Join(dest, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// locateModule finds the importable module inside an unpacked archive.
// Wheels carry the module directory at the root. Sdists wrap everything
// in a name-version directory and sometimes use a src/ layout, so the
// search descends one single-directory level before trying the module
// directory, the src layout, and the flat single-file form.
//
// The returned root is the directory the module was found in, which is
// where an sdist keeps its license files.
func locateModule(unpacked, module string) (path, root string, isFile bool, err error) {
	candidates := []string{unpacked}
	entries, err := os.ReadDir(unpacked)
	if err != nil {
		return "", "", false, fmt.Errorf("reading unpacked archive: %w", err)
	}
	if len(entries) == 1 && entries[0].IsDir() {
		candidates = append(candidates, filepath.Join(unpacked, entries[0].Name()))
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(filepath.Join(candidate, module)); err == nil && info.IsDir() {
			return filepath.Join(candidate, module), candidate, false, nil
		}
		if info, err := os.Stat(filepath.Join(candidate, "src", module)); err == nil && info.IsDir() {
			return filepath.Join(candidate, "src", module), candidate, false, nil
		}
		if info, err := os.Stat(filepath.Join(candidate, module+".py")); err == nil && info.Mode().IsRegular() {
			return filepath.Join(candidate, module+".py"), candidate, true, nil
		}
	}
	return "", "", false, fmt.Errorf("archive does not provide module %q (looked for %s/, src/%s/, and %s.py)",
		module, module, module, module)
}
