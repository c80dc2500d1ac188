// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package vendoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/baleproject/bale/lib/cachestore"
	"github.com/baleproject/bale/lib/globpath"
	"github.com/baleproject/bale/lib/manifest"
	"github.com/baleproject/bale/lib/patchfile"
	"github.com/baleproject/bale/lib/pkgindex"
	"github.com/baleproject/bale/lib/pkgname"
	"github.com/baleproject/bale/lib/rewrite"
)

// MarkerName is the file a sync writes into the destination to record
// that the tree is machine-built and safe to clean.
const MarkerName = ".bale-managed"

// ReportName is the license report a sync writes into the destination.
const ReportName = ".bale-licenses.json"

const (
	licenseSourceArchive  = "archive"
	licenseSourceFallback = "fallback"
)

// SyncOptions adjusts a single Sync run.
type SyncOptions struct {
	// Adopt takes ownership of an unmanaged destination by writing the
	// marker before cleaning, instead of failing.
	Adopt bool

	// NoCache bypasses the archive cache: nothing is read from it and
	// downloads are not stored back.
	NoCache bool
}

// PackageOutcome reports what a sync did for one manifest entry.
type PackageOutcome struct {
	Name      pkgname.Name `json:"name"`
	Version   string       `json:"version"`
	Filename  string       `json:"filename"`
	FromCache bool         `json:"from_cache"`
	Module    string       `json:"module"`
	Dropped   int          `json:"dropped,omitempty"`
	Licenses  []string     `json:"licenses,omitempty"`
}

// LicenseRecord is one entry of the license report.
type LicenseRecord struct {
	Package pkgname.Name `json:"package"`
	Version string       `json:"version"`
	// Files are destination-relative license paths.
	Files []string `json:"files"`
	// Source is "archive" when the files came out of the release
	// archive, "fallback" when they were downloaded from a configured
	// URL.
	Source string `json:"source"`
	URL    string `json:"url,omitempty"`
}

// Outcome reports a completed sync.
type Outcome struct {
	Packages  []PackageOutcome `json:"packages"`
	Patches   []string         `json:"patches,omitempty"`
	Rewritten []string         `json:"rewritten,omitempty"`
	Licenses  []LicenseRecord  `json:"licenses"`
}

// Sync rebuilds the vendored tree: clean the destination, fetch and
// unpack every pinned archive, drop unwanted files, apply the patch
// directory, rewrite imports, collect licenses, and write the marker
// and the license report. The same manifest, configuration, and
// archives always produce a byte-identical tree.
func (s *Syncer) Sync(ctx context.Context, opts SyncOptions) (*Outcome, error) {
	start := s.clock.Now()
	m, err := manifest.Load(s.project.ManifestPath())
	if err != nil {
		return nil, err
	}
	dest := s.project.DestinationPath()
	if err := s.checkManaged(dest, opts.Adopt); err != nil {
		return nil, err
	}
	archives, err := s.resolveArchives(ctx, m)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dest, err)
	}
	if opts.Adopt {
		if err := writeMarker(dest, s.project.Vendoring.Manifest); err != nil {
			return nil, err
		}
	}
	if err := cleanTree(dest, s.project.Vendoring.Protected); err != nil {
		return nil, fmt.Errorf("cleaning %s: %w", dest, err)
	}

	outcome := &Outcome{Licenses: []LicenseRecord{}}
	for _, archive := range archives {
		result, record, err := s.syncPackage(ctx, dest, archive, opts.NoCache)
		if err != nil {
			return nil, fmt.Errorf("%s==%s: %w", archive.name, archive.version, err)
		}
		outcome.Packages = append(outcome.Packages, result)
		outcome.Licenses = append(outcome.Licenses, record)
	}

	outcome.Patches, err = s.applyPatches(dest)
	if err != nil {
		return nil, err
	}
	outcome.Rewritten, err = s.rewriteTree(dest, m)
	if err != nil {
		return nil, err
	}

	if err := writeMarker(dest, s.project.Vendoring.Manifest); err != nil {
		return nil, err
	}
	if err := writeReport(dest, outcome.Licenses); err != nil {
		return nil, err
	}

	s.logger.Info("vendored tree synced",
		"destination", dest,
		"packages", len(outcome.Packages),
		"patches", len(outcome.Patches),
		"rewritten", len(outcome.Rewritten),
		"duration", s.clock.Now().Sub(start),
	)
	return outcome, nil
}

// checkManaged refuses to clean a non-empty destination that no sync
// created.
func (s *Syncer) checkManaged(dest string, adopt bool) error {
	entries, err := os.ReadDir(dest)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", dest, err)
	}
	if len(entries) == 0 || adopt {
		return nil
	}
	if _, err := os.Stat(filepath.Join(dest, MarkerName)); err == nil {
		return nil
	}
	return &UnmanagedTreeError{Dir: dest}
}

// syncPackage fetches, unpacks, and stages one package. All work
// happens in a staging directory under dest; the module is renamed
// into place only once it is complete, so a failure never leaves a
// partial package behind.
func (s *Syncer) syncPackage(ctx context.Context, dest string, archive packageArchive, noCache bool) (PackageOutcome, LicenseRecord, error) {
	module := archive.name.Module()
	result := PackageOutcome{
		Name:     archive.name,
		Version:  archive.version,
		Filename: archive.file.Filename,
		Module:   module,
	}
	record := LicenseRecord{Package: archive.name, Version: archive.version, Source: licenseSourceArchive}

	data, fromCache, err := s.fetch(ctx, archive, noCache)
	if err != nil {
		return result, record, err
	}
	result.FromCache = fromCache

	staging, err := os.MkdirTemp(dest, ".unpack-*")
	if err != nil {
		return result, record, fmt.Errorf("creating staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	if err := unpackArchive(data, archive.file.Filename, staging); err != nil {
		return result, record, err
	}
	modulePath, archiveRoot, isFile, err := locateModule(staging, module)
	if err != nil {
		return result, record, err
	}
	includes := s.project.Vendoring.License.Include

	if isFile {
		// A flat module gets its license as a sibling <module>.LICENSE.
		found, err := licenseNames(archiveRoot, includes)
		if err != nil {
			return result, record, err
		}
		var content []byte
		if len(found) > 0 {
			content, err = os.ReadFile(filepath.Join(archiveRoot, found[0]))
			if err != nil {
				return result, record, fmt.Errorf("reading license: %w", err)
			}
		} else {
			content, record.URL, err = s.fallbackLicense(ctx, archive.name)
			if err != nil {
				return result, record, err
			}
			record.Source = licenseSourceFallback
		}
		if err := os.Rename(modulePath, filepath.Join(dest, module+".py")); err != nil {
			return result, record, fmt.Errorf("placing %s.py: %w", module, err)
		}
		licenseName := module + ".LICENSE"
		if err := os.WriteFile(filepath.Join(dest, licenseName), content, 0o644); err != nil {
			return result, record, fmt.Errorf("writing %s: %w", licenseName, err)
		}
		result.Licenses = []string{licenseName}
		record.Files = []string{licenseName}
		return result, record, nil
	}

	dropped, err := dropFiles(modulePath, s.project.Vendoring.Drop)
	if err != nil {
		return result, record, err
	}
	result.Dropped = dropped

	// Sdists keep license files at the archive root; copy them into
	// the module so they travel with the vendored code.
	rootNames, err := licenseNames(archiveRoot, includes)
	if err != nil {
		return result, record, err
	}
	for _, name := range rootNames {
		target := filepath.Join(modulePath, name)
		if _, err := os.Stat(target); err == nil {
			continue
		}
		if err := copyFile(filepath.Join(archiveRoot, name), target); err != nil {
			return result, record, fmt.Errorf("copying license %s: %w", name, err)
		}
	}
	names, err := licenseNames(modulePath, includes)
	if err != nil {
		return result, record, err
	}
	if len(names) == 0 {
		content, url, err := s.fallbackLicense(ctx, archive.name)
		if err != nil {
			return result, record, err
		}
		if err := os.WriteFile(filepath.Join(modulePath, "LICENSE"), content, 0o644); err != nil {
			return result, record, fmt.Errorf("writing LICENSE: %w", err)
		}
		record.Source = licenseSourceFallback
		record.URL = url
		names = []string{"LICENSE"}
	}

	if err := os.Rename(modulePath, filepath.Join(dest, module)); err != nil {
		return result, record, fmt.Errorf("placing %s: %w", module, err)
	}
	for _, name := range names {
		rel := path.Join(module, name)
		result.Licenses = append(result.Licenses, rel)
		record.Files = append(record.Files, rel)
	}
	return result, record, nil
}

// fetch returns the archive bytes, preferring the cache. Downloads are
// digest-verified by the index client; a cache write failure costs a
// warning, not the sync.
func (s *Syncer) fetch(ctx context.Context, archive packageArchive, noCache bool) ([]byte, bool, error) {
	useCache := s.cache != nil && !noCache
	key := cachestore.KeyFor(s.index.BaseURL(), archive.file.Filename, archive.file.SHA256)
	if useCache {
		if blob, ok := s.cache.Get(key); ok {
			data, err := io.ReadAll(blob)
			blob.Close()
			if err == nil {
				return data, true, nil
			}
			s.logger.Warn("cached archive unreadable, downloading",
				"filename", archive.file.Filename,
				"error", err,
			)
		}
	}

	var buf bytes.Buffer
	if _, _, err := s.index.Download(ctx, archive.file, &buf); err != nil {
		return nil, false, err
	}
	if useCache {
		if _, err := s.cache.Put(key, archive.file.Filename, bytes.NewReader(buf.Bytes())); err != nil {
			s.logger.Warn("caching archive failed",
				"filename", archive.file.Filename,
				"error", err,
			)
		}
	}
	return buf.Bytes(), false, nil
}

// fallbackLicense downloads the configured license URL for a package
// whose archive ships none.
func (s *Syncer) fallbackLicense(ctx context.Context, name pkgname.Name) ([]byte, string, error) {
	url := s.project.Vendoring.License.Fallback[string(name)]
	if url == "" {
		return nil, "", fmt.Errorf("archive contains no license file and no fallback URL is configured")
	}
	var buf bytes.Buffer
	file := pkgindex.File{Filename: path.Base(url), URL: url}
	if _, _, err := s.index.Download(ctx, file, &buf); err != nil {
		return nil, "", fmt.Errorf("downloading fallback license: %w", err)
	}
	s.logger.Debug("license fetched from fallback URL", "package", name, "url", url)
	return buf.Bytes(), url, nil
}

// licenseNames returns the direct children of dir matching the include
// globs, in name order.
func licenseNames(dir string, includes []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scanning for licenses: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && globpath.MatchAny(includes, entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// dropFiles removes files under moduleDir matching the drop globs and
// prunes directories the removals left empty. It returns the number of
// files removed.
func dropFiles(moduleDir string, globs []string) (int, error) {
	if len(globs) == 0 {
		return 0, nil
	}
	dropped := 0
	err := filepath.WalkDir(moduleDir, func(walkPath string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if walkPath == moduleDir {
			return nil
		}
		rel, relErr := filepath.Rel(moduleDir, walkPath)
		if relErr != nil {
			return relErr
		}
		if !globpath.MatchAny(globs, filepath.ToSlash(rel)) {
			return nil
		}
		if entry.IsDir() {
			count, countErr := countFiles(walkPath)
			if countErr != nil {
				return countErr
			}
			if err := os.RemoveAll(walkPath); err != nil {
				return err
			}
			dropped += count
			return fs.SkipDir
		}
		if err := os.Remove(walkPath); err != nil {
			return err
		}
		dropped++
		return nil
	})
	if err != nil {
		return dropped, fmt.Errorf("applying drop patterns: %w", err)
	}
	return dropped, pruneEmptyDirs(moduleDir)
}

func countFiles(dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(_ string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			count++
		}
		return nil
	})
	return count, err
}

// applyPatches applies every patch in the patch directory to the
// destination, in filename order. Patch headers use git-style a/ b/
// prefixes with paths relative to the destination.
func (s *Syncer) applyPatches(dest string) ([]string, error) {
	paths, err := s.patchFiles()
	if err != nil {
		return nil, err
	}
	var applied []string
	for _, patchPath := range paths {
		name := filepath.Base(patchPath)
		data, err := os.ReadFile(patchPath)
		if err != nil {
			return applied, fmt.Errorf("reading patch: %w", err)
		}
		patch, err := patchfile.Parse(data)
		if err != nil {
			return applied, fmt.Errorf("%s: %w", name, err)
		}
		if _, err := patchfile.Apply(dest, patch, patchfile.Options{Strip: 1}); err != nil {
			return applied, fmt.Errorf("%s: %w", name, err)
		}
		applied = append(applied, name)
		s.logger.Debug("patch applied", "patch", name)
	}
	return applied, nil
}

// patchFiles lists the *.patch and *.diff files in the patch
// directory, sorted by name. A missing directory means no patches.
func (s *Syncer) patchFiles() ([]string, error) {
	dir := s.project.PatchDirPath()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading patch directory: %w", err)
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".patch") || strings.HasSuffix(name, ".diff") {
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	return paths, nil
}

// rewriteTree shifts imports under the vendored namespace, then runs
// each configured substitution restricted to its own globs. It returns
// the destination-relative changed paths, sorted.
func (s *Syncer) rewriteTree(dest string, m *manifest.Manifest) ([]string, error) {
	settings := s.project.Vendoring
	var changed []string
	seen := make(map[string]bool)
	record := func(paths []string) {
		for _, p := range paths {
			if !seen[p] {
				seen[p] = true
				changed = append(changed, p)
			}
		}
	}

	if settings.Namespace != "" {
		rules := rewrite.NamespaceRules(settings.Namespace, m.Names())
		paths, err := rewrite.New(rules, nil).Tree(dest)
		if err != nil {
			return changed, err
		}
		record(paths)
	}
	for _, rule := range settings.Substitute {
		compiled, err := rewrite.CompileRule(rule.Match, rule.Replace)
		if err != nil {
			return changed, err
		}
		globs := rule.Globs
		if len(globs) == 0 {
			globs = nil
		}
		paths, err := rewrite.New([]rewrite.Rule{compiled}, globs).Tree(dest)
		if err != nil {
			return changed, err
		}
		record(paths)
	}
	sort.Strings(changed)
	return changed, nil
}

// cleanTree removes everything under dest except the marker and paths
// matching the protected globs, then prunes emptied directories.
func cleanTree(dest string, protected []string) error {
	err := filepath.WalkDir(dest, func(walkPath string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if walkPath == dest || entry.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(dest, walkPath)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if rel == MarkerName || globpath.MatchAny(protected, rel) {
			return nil
		}
		return os.Remove(walkPath)
	})
	if err != nil {
		return err
	}
	return pruneEmptyDirs(dest)
}

// pruneEmptyDirs removes directories under root left empty, deepest
// first. The root itself stays.
func pruneEmptyDirs(root string) error {
	var dirs []string
	err := filepath.WalkDir(root, func(walkPath string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() && walkPath != root {
			dirs = append(dirs, walkPath)
		}
		return nil
	})
	if err != nil {
		return err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			if err := os.Remove(dir); err != nil {
				return err
			}
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

func writeMarker(dest, manifestName string) error {
	text := fmt.Sprintf("This directory is managed by bale; do not edit it by hand.\nChange %s and run \"bale vendor sync\" to rebuild it.\n", manifestName)
	if err := writeFileAtomic(filepath.Join(dest, MarkerName), []byte(text)); err != nil {
		return fmt.Errorf("writing marker: %w", err)
	}
	return nil
}

func writeReport(dest string, records []LicenseRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding license report: %w", err)
	}
	data = append(data, '\n')
	if err := writeFileAtomic(filepath.Join(dest, ReportName), data); err != nil {
		return fmt.Errorf("writing license report: %w", err)
	}
	return nil
}

// ReadReport loads the license report a previous sync wrote into dest.
func ReadReport(dest string) ([]LicenseRecord, error) {
	data, err := os.ReadFile(filepath.Join(dest, ReportName))
	if err != nil {
		return nil, fmt.Errorf("reading license report: %w", err)
	}
	var records []LicenseRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("license report %s: %w", ReportName, err)
	}
	return records, nil
}

func writeFileAtomic(filePath string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(filePath), "."+filepath.Base(filePath)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filePath)
}
