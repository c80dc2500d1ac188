// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads project configuration from bale.yaml.
//
// The file is found via the BALE_CONFIG environment variable, the
// --config flag, or the default bale.yaml in the working directory.
// There is no discovery walk and no merging of multiple files; the one
// file is the single source of truth. The only expansion performed is
// ${VAR} and ${VAR:-default} in path fields, for portability of cache
// locations.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the project configuration.
type Config struct {
	// Project identifies the project itself.
	Project ProjectConfig `yaml:"project"`

	// Vendoring configures the managed dependency tree.
	Vendoring VendoringConfig `yaml:"vendoring"`

	// Index configures the package index client.
	Index IndexConfig `yaml:"index"`

	// Cache configures the local archive cache.
	Cache CacheConfig `yaml:"cache"`

	// Release configures the release runner.
	Release ReleaseConfig `yaml:"release"`

	// root is the project directory the config was loaded from.
	// Relative paths in the config resolve against it.
	root string
}

// ProjectConfig identifies the project.
type ProjectConfig struct {
	// Name is the package name the project publishes under. Required
	// by the release publish step.
	Name string `yaml:"name"`

	// Summary is the one-line description sent with uploads.
	Summary string `yaml:"summary"`
}

// VendoringConfig configures the managed dependency tree.
type VendoringConfig struct {
	// Destination is the directory the vendored tree is materialized
	// into, relative to the project root. Default: _vendor.
	Destination string `yaml:"destination"`

	// Manifest is the pinned requirement list. Default: vendor.txt.
	Manifest string `yaml:"manifest"`

	// Namespace is the import namespace vendored modules are rewritten
	// under (for example "myapp._vendor"). Empty disables rewriting.
	Namespace string `yaml:"namespace"`

	// Protected are glob patterns (relative to Destination) that
	// survive a sync's clean step: hand-maintained files like README
	// and the patch inventory.
	Protected []string `yaml:"protected"`

	// PatchDir holds unified diffs applied after unpacking.
	// Default: patches.
	PatchDir string `yaml:"patch_dir"`

	// Drop are glob patterns (relative to each unpacked package)
	// removed after unpacking: tests, packaging scaffolding.
	Drop []string `yaml:"drop"`

	// Substitute are regular-expression rewrites applied to vendored
	// source after namespace rewriting.
	Substitute []SubstituteRule `yaml:"substitute"`

	// License configures license collection.
	License LicenseConfig `yaml:"license"`
}

// SubstituteRule is one regular-expression rewrite.
type SubstituteRule struct {
	// Match is the pattern, compiled with the standard regexp package.
	Match string `yaml:"match"`

	// Replace is the replacement text; $1-style references expand.
	Replace string `yaml:"replace"`

	// Globs restricts the rule to matching files (relative to the
	// vendored tree). Empty applies the rule to every rewritten file.
	Globs []string `yaml:"globs"`
}

// LicenseConfig configures license collection during sync.
type LicenseConfig struct {
	// Include are glob patterns identifying license files inside
	// unpacked archives. Default: LICENSE*, LICENCE*, COPYING*,
	// NOTICE*.
	Include []string `yaml:"include"`

	// Fallback maps canonical package names to URLs fetched when an
	// archive carries no license file.
	Fallback map[string]string `yaml:"fallback"`
}

// IndexConfig configures the package index client.
type IndexConfig struct {
	// URL is the index base URL. Must be https, or http://localhost
	// for testing. Default: https://pypi.org.
	URL string `yaml:"url"`

	// Timeout bounds individual index requests, as a duration string.
	// Default: 30s.
	Timeout string `yaml:"timeout"`
}

// CacheConfig configures the local archive cache.
type CacheConfig struct {
	// Dir is the cache directory. Default: ${HOME}/.cache/bale.
	Dir string `yaml:"dir"`

	// MaxBytes caps the cache size; GC deletes oldest entries beyond
	// it. Default: 2 GiB. Zero disables the cap.
	MaxBytes int64 `yaml:"max_bytes"`

	// Compression is the storage codec: none, lz4, or zstd.
	// Default: zstd.
	Compression string `yaml:"compression"`

	// Encrypt seals cache entries with a locally derived key.
	Encrypt bool `yaml:"encrypt"`
}

// ReleaseConfig configures the release runner.
type ReleaseConfig struct {
	// Plan is the release plan file. Default: release.jsonc.
	Plan string `yaml:"plan"`

	// Checklist is the generated markdown checklist.
	// Default: RELEASE.md.
	Checklist string `yaml:"checklist"`

	// Remote is the git remote releases push to. Default: origin.
	Remote string `yaml:"remote"`

	// TagPrefix is prepended to the version when tagging ("v" yields
	// v1.2.3 tags). Default: empty.
	TagPrefix string `yaml:"tag_prefix"`

	// BranchPrefix is prepended to the version to form the release
	// branch name ("release/" yields release/25.1). Default: release/.
	BranchPrefix string `yaml:"branch_prefix"`

	// Sign makes release tags annotated and signed.
	Sign bool `yaml:"sign"`

	// StateDir holds per-release state files. Default: .bale/release.
	StateDir string `yaml:"state_dir"`

	// Artifacts are glob patterns of build outputs the publish step
	// uploads.
	Artifacts []string `yaml:"artifacts"`

	// Forge configures the source-hosting API used by CI gates and
	// release publishing.
	Forge ForgeConfig `yaml:"forge"`
}

// ForgeConfig locates the forge the release runner talks to.
type ForgeConfig struct {
	// URL is the forge API root. Default: https://api.github.com.
	URL string `yaml:"url"`

	// Repository is the "owner/name" pair releases are created in.
	Repository string `yaml:"repository"`
}

// Default returns the default configuration, rooted at dir.
func Default(dir string) *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Vendoring: VendoringConfig{
			Destination: "_vendor",
			Manifest:    "vendor.txt",
			PatchDir:    "patches",
			License: LicenseConfig{
				Include: []string{"LICENSE*", "LICENCE*", "COPYING*", "NOTICE*"},
			},
		},
		Index: IndexConfig{
			URL:     "https://pypi.org",
			Timeout: "30s",
		},
		Cache: CacheConfig{
			Dir:         filepath.Join(homeDir, ".cache", "bale"),
			MaxBytes:    2 << 30,
			Compression: "zstd",
		},
		Release: ReleaseConfig{
			Plan:         "release.jsonc",
			Checklist:    "RELEASE.md",
			Remote:       "origin",
			BranchPrefix: "release/",
			StateDir:     filepath.Join(".bale", "release"),
			Forge: ForgeConfig{
				URL: "https://api.github.com",
			},
		},
		root: dir,
	}
}

// Load loads configuration from BALE_CONFIG when set, otherwise from
// bale.yaml in the working directory.
func Load() (*Config, error) {
	path := os.Getenv("BALE_CONFIG")
	if path == "" {
		path = "bale.yaml"
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file. The file's
// directory becomes the project root that relative paths resolve
// against.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	absolute, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg := Default(filepath.Dir(absolute))
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.expandVariables()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} in path fields.
func (c *Config) expandVariables() {
	vars := map[string]string{"HOME": os.Getenv("HOME")}
	c.Cache.Dir = expandVars(c.Cache.Dir, vars)
	c.Vendoring.Destination = expandVars(c.Vendoring.Destination, vars)
	c.Release.StateDir = expandVars(c.Release.StateDir, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, fallback := parts[1], parts[2]
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return fallback
	})
}

// Validate checks the configuration; every problem is reported,
// joined.
func (c *Config) Validate() error {
	var errs []error

	destination := strings.TrimSpace(c.Vendoring.Destination)
	if destination == "" {
		errs = append(errs, fmt.Errorf("vendoring.destination is required"))
	} else if filepath.Clean(destination) == "/" || filepath.Clean(destination) == "." {
		errs = append(errs, fmt.Errorf("vendoring.destination %q would clobber the project", destination))
	}
	if c.Vendoring.Manifest == "" {
		errs = append(errs, fmt.Errorf("vendoring.manifest is required"))
	}
	for i, rule := range c.Vendoring.Substitute {
		if _, err := regexp.Compile(rule.Match); err != nil {
			errs = append(errs, fmt.Errorf("vendoring.substitute[%d]: %w", i, err))
		}
	}
	if !strings.HasPrefix(c.Index.URL, "https://") && !strings.HasPrefix(c.Index.URL, "http://localhost") {
		errs = append(errs, fmt.Errorf("index.url must use https (got %q)", c.Index.URL))
	}
	switch c.Cache.Compression {
	case "", "none", "lz4", "zstd":
	default:
		errs = append(errs, fmt.Errorf("cache.compression must be none, lz4, or zstd (got %q)", c.Cache.Compression))
	}
	if c.Cache.MaxBytes < 0 {
		errs = append(errs, fmt.Errorf("cache.max_bytes must not be negative"))
	}
	if c.Release.Plan == "" {
		errs = append(errs, fmt.Errorf("release.plan is required"))
	}
	if repository := c.Release.Forge.Repository; repository != "" {
		owner, name, ok := strings.Cut(repository, "/")
		if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
			errs = append(errs, fmt.Errorf("release.forge.repository must be owner/name (got %q)", repository))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Root returns the project directory.
func (c *Config) Root() string { return c.root }

// resolve joins a possibly relative path against the project root.
func (c *Config) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.root, path)
}

// DestinationPath returns the absolute vendored-tree directory.
func (c *Config) DestinationPath() string { return c.resolve(c.Vendoring.Destination) }

// ManifestPath returns the absolute manifest path.
func (c *Config) ManifestPath() string { return c.resolve(c.Vendoring.Manifest) }

// PatchDirPath returns the absolute patch directory.
func (c *Config) PatchDirPath() string { return c.resolve(c.Vendoring.PatchDir) }

// PlanPath returns the absolute release plan path.
func (c *Config) PlanPath() string { return c.resolve(c.Release.Plan) }

// ChecklistPath returns the absolute checklist path.
func (c *Config) ChecklistPath() string { return c.resolve(c.Release.Checklist) }

// StateDirPath returns the absolute release state directory.
func (c *Config) StateDirPath() string { return c.resolve(c.Release.StateDir) }
