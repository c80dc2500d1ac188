// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

// Package vendoring materializes the vendored dependency tree. The
// manifest pins exact releases; a sync fetches their archives (cache
// first, index on miss), unpacks each package into the destination,
// applies the project's patches, rewrites imports under the vendored
// namespace, and collects license files.
//
// Sync rebuilds the destination from scratch on every run, so hand
// edits there do not survive; durable changes belong in the manifest,
// the patch directory, or the substitution rules. The .bale-managed
// marker records that the tree was machine-built and is safe to clean.
// Syncing over a non-empty directory without the marker fails with a
// *UnmanagedTreeError until the caller adopts the tree.
package vendoring

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/baleproject/bale/lib/cachestore"
	"github.com/baleproject/bale/lib/clock"
	"github.com/baleproject/bale/lib/config"
	"github.com/baleproject/bale/lib/manifest"
	"github.com/baleproject/bale/lib/pkgindex"
	"github.com/baleproject/bale/lib/pkgname"
)

// Config configures a Syncer.
type Config struct {
	// Project is the loaded project configuration. Required.
	Project *config.Config

	// Index fetches release metadata, archives, and fallback licenses.
	// Required.
	Index *pkgindex.Client

	// Cache stores downloaded archives so later syncs skip the
	// network. Optional; cache failures degrade to warnings.
	Cache *cachestore.Store

	// Logger is used for structured logging. Defaults to
	// slog.Default().
	Logger *slog.Logger

	// Clock provides time operations. Defaults to clock.Real().
	Clock clock.Clock
}

// Syncer materializes the vendored tree the manifest describes.
type Syncer struct {
	project *config.Config
	index   *pkgindex.Client
	cache   *cachestore.Store
	logger  *slog.Logger
	clock   clock.Clock
}

// New creates a Syncer from the given configuration.
func New(c Config) (*Syncer, error) {
	if c.Project == nil {
		return nil, fmt.Errorf("vendoring: Project is required")
	}
	if c.Index == nil {
		return nil, fmt.Errorf("vendoring: Index is required")
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := c.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &Syncer{
		project: c.Project,
		index:   c.Index,
		cache:   c.Cache,
		logger:  logger,
		clock:   clk,
	}, nil
}

// ActionKind classifies one step of a sync plan.
type ActionKind int

const (
	ActionFetch ActionKind = iota
	ActionUnpack
	ActionDrop
	ActionPatch
	ActionRewrite
	ActionLicense
)

func (k ActionKind) String() string {
	switch k {
	case ActionFetch:
		return "fetch"
	case ActionUnpack:
		return "unpack"
	case ActionDrop:
		return "drop"
	case ActionPatch:
		return "patch"
	case ActionRewrite:
		return "rewrite"
	case ActionLicense:
		return "license"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// MarshalText renders the kind as its name in JSON output.
func (k ActionKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Action is one planned sync step. Package and Version are empty for
// tree-wide steps (patch, rewrite).
type Action struct {
	Kind    ActionKind   `json:"kind"`
	Package pkgname.Name `json:"package,omitempty"`
	Version string       `json:"version,omitempty"`
	Detail  string       `json:"detail,omitempty"`
}

func (a Action) String() string {
	switch a.Kind {
	case ActionFetch:
		return fmt.Sprintf("fetch %s==%s (%s)", a.Package, a.Version, a.Detail)
	case ActionUnpack:
		return fmt.Sprintf("unpack %s==%s as %s", a.Package, a.Version, a.Detail)
	case ActionDrop:
		return fmt.Sprintf("drop %s from %s", a.Detail, a.Package.Module())
	case ActionPatch:
		return "apply " + a.Detail
	case ActionRewrite:
		if a.Detail == "" {
			return "rewrite vendored sources"
		}
		return "rewrite imports under " + a.Detail
	case ActionLicense:
		return fmt.Sprintf("collect license for %s", a.Package)
	default:
		return a.Kind.String()
	}
}

// Plan is the ordered list of steps a sync would execute.
type Plan struct {
	Actions []Action `json:"actions"`
}

// Plan reads the manifest and the index metadata and computes the
// steps a Sync would run, without touching the destination.
func (s *Syncer) Plan(ctx context.Context) (*Plan, error) {
	m, err := manifest.Load(s.project.ManifestPath())
	if err != nil {
		return nil, err
	}
	archives, err := s.resolveArchives(ctx, m)
	if err != nil {
		return nil, err
	}

	plan := &Plan{}
	for _, archive := range archives {
		plan.Actions = append(plan.Actions,
			Action{Kind: ActionFetch, Package: archive.name, Version: archive.version, Detail: archive.file.Filename},
			Action{Kind: ActionUnpack, Package: archive.name, Version: archive.version, Detail: archive.name.Module()},
		)
		if len(s.project.Vendoring.Drop) > 0 {
			plan.Actions = append(plan.Actions, Action{
				Kind:    ActionDrop,
				Package: archive.name,
				Version: archive.version,
				Detail:  strings.Join(s.project.Vendoring.Drop, " "),
			})
		}
		plan.Actions = append(plan.Actions, Action{Kind: ActionLicense, Package: archive.name, Version: archive.version})
	}
	patches, err := s.patchFiles()
	if err != nil {
		return nil, err
	}
	for _, patch := range patches {
		plan.Actions = append(plan.Actions, Action{Kind: ActionPatch, Detail: filepath.Base(patch)})
	}
	if s.project.Vendoring.Namespace != "" || len(s.project.Vendoring.Substitute) > 0 {
		plan.Actions = append(plan.Actions, Action{Kind: ActionRewrite, Detail: s.project.Vendoring.Namespace})
	}
	return plan, nil
}

// packageArchive pairs a manifest entry with the index file chosen for
// it.
type packageArchive struct {
	name    pkgname.Name
	version string
	file    pkgindex.File
}

// resolveArchives picks the archive to vendor for every manifest
// entry. Sdists are preferred: the patch directory and license layout
// are written against the source tree, and wheels only serve packages
// that publish no sdist.
func (s *Syncer) resolveArchives(ctx context.Context, m *manifest.Manifest) ([]packageArchive, error) {
	archives := make([]packageArchive, 0, len(m.Entries))
	for _, entry := range m.Entries {
		name := entry.Requirement.Name
		version, ok := entry.Requirement.PinnedVersion()
		if !ok {
			return nil, fmt.Errorf("%s: manifest entry does not pin an exact version", name)
		}
		files, err := s.index.ReleaseFiles(ctx, name, version.String())
		if err != nil {
			return nil, fmt.Errorf("%s==%s: %w", name, version, err)
		}
		file, ok := chooseArchive(files)
		if !ok {
			return nil, fmt.Errorf("%s==%s: release has no sdist or wheel", name, version)
		}
		if file.Yanked {
			s.logger.Warn("pinned release file is yanked",
				"package", name,
				"version", version.String(),
				"reason", file.YankedReason,
			)
		}
		archives = append(archives, packageArchive{name: name, version: version.String(), file: file})
	}
	return archives, nil
}

func chooseArchive(files []pkgindex.File) (pkgindex.File, bool) {
	for _, file := range files {
		if file.Kind == pkgindex.KindSdist {
			return file, true
		}
	}
	for _, file := range files {
		if file.Kind == pkgindex.KindWheel {
			return file, true
		}
	}
	return pkgindex.File{}, false
}
