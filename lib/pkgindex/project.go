// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package pkgindex

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/baleproject/bale/lib/pkgname"
	"github.com/baleproject/bale/lib/pkgversion"
)

// Kind classifies an index file.
type Kind int

const (
	KindOther Kind = iota
	KindSdist
	KindWheel
)

func (k Kind) String() string {
	switch k {
	case KindSdist:
		return "sdist"
	case KindWheel:
		return "wheel"
	default:
		return "other"
	}
}

// File is one downloadable archive of a release.
type File struct {
	Filename string
	URL      string
	SHA256   string
	Size     int64
	// UploadTime is zero when the index does not publish one; date
	// cutoffs treat such files as always admissible.
	UploadTime     time.Time
	Kind           Kind
	RequiresPython string
	Yanked         bool
	YankedReason   string
}

// Project is the index's view of one package: every version it has
// files for.
type Project struct {
	Name pkgname.Name
	// Releases maps version strings as the index spells them to their
	// files. Spellings are not canonicalized here; resolvers parse
	// them with pkgversion.
	Releases map[string][]File
}

// Versions returns the release versions in ascending version order.
// Versions that do not parse sort before all parseable ones, in
// lexical order among themselves.
func (p *Project) Versions() []string {
	versions := make([]string, 0, len(p.Releases))
	parsed := make(map[string]pkgversion.Version, len(p.Releases))
	for v := range p.Releases {
		versions = append(versions, v)
		if parsedVersion, err := pkgversion.Parse(v); err == nil {
			parsed[v] = parsedVersion
		}
	}
	sort.Slice(versions, func(i, j int) bool {
		a, okA := parsed[versions[i]]
		b, okB := parsed[versions[j]]
		switch {
		case !okA && !okB:
			return versions[i] < versions[j]
		case !okA:
			return true
		case !okB:
			return false
		default:
			return pkgversion.Less(a, b)
		}
	})
	return versions
}

// Release is the per-version metadata document. Dependency metadata
// (Requires) lives here, not on the project document.
type Release struct {
	Name           pkgname.Name
	Version        string
	Requires       []string
	RequiresPython string
	Files          []File
	Yanked         bool
	YankedReason   string
}

// wireFile is the index's JSON encoding of a file entry.
type wireFile struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Digests  struct {
		SHA256 string `json:"sha256"`
	} `json:"digests"`
	Size           int64  `json:"size"`
	UploadTime     string `json:"upload_time_iso_8601"`
	PackageType    string `json:"packagetype"`
	RequiresPython string `json:"requires_python"`
	Yanked         bool   `json:"yanked"`
	YankedReason   string `json:"yanked_reason"`
}

func (w wireFile) toFile() File {
	file := File{
		Filename:       w.Filename,
		URL:            w.URL,
		SHA256:         w.Digests.SHA256,
		Size:           w.Size,
		RequiresPython: w.RequiresPython,
		Yanked:         w.Yanked,
		YankedReason:   w.YankedReason,
	}
	switch w.PackageType {
	case "sdist":
		file.Kind = KindSdist
	case "bdist_wheel":
		file.Kind = KindWheel
	}
	// Malformed timestamps degrade to the zero time, same as absent
	// ones.
	if w.UploadTime != "" {
		if t, err := time.Parse(time.RFC3339Nano, w.UploadTime); err == nil {
			file.UploadTime = t.UTC()
		}
	}
	return file
}

func toFiles(wire []wireFile) []File {
	files := make([]File, len(wire))
	for i, w := range wire {
		files[i] = w.toFile()
	}
	return files
}

// Project fetches the project document for a package. A 404 returns
// an error wrapping ErrNotFound.
func (client *Client) Project(ctx context.Context, name pkgname.Name) (*Project, error) {
	var wire struct {
		Info struct {
			Name string `json:"name"`
		} `json:"info"`
		Releases map[string][]wireFile `json:"releases"`
	}
	path := fmt.Sprintf("/pypi/%s/json", url.PathEscape(string(name)))
	if err := client.get(ctx, path, acceptJSON, &wire); err != nil {
		return nil, notFoundOr(err, "project %s", name)
	}
	project := &Project{
		Name:     name,
		Releases: make(map[string][]File, len(wire.Releases)),
	}
	for version, files := range wire.Releases {
		project.Releases[version] = toFiles(files)
	}
	return project, nil
}

// Release fetches the per-version metadata document.
func (client *Client) Release(ctx context.Context, name pkgname.Name, version string) (*Release, error) {
	var wire struct {
		Info struct {
			Name           string   `json:"name"`
			Version        string   `json:"version"`
			RequiresDist   []string `json:"requires_dist"`
			RequiresPython string   `json:"requires_python"`
			Yanked         bool     `json:"yanked"`
			YankedReason   string   `json:"yanked_reason"`
		} `json:"info"`
		URLs []wireFile `json:"urls"`
	}
	path := fmt.Sprintf("/pypi/%s/%s/json", url.PathEscape(string(name)), url.PathEscape(version))
	if err := client.get(ctx, path, acceptJSON, &wire); err != nil {
		return nil, notFoundOr(err, "release %s %s", name, version)
	}
	return &Release{
		Name:           name,
		Version:        wire.Info.Version,
		Requires:       wire.Info.RequiresDist,
		RequiresPython: wire.Info.RequiresPython,
		Files:          toFiles(wire.URLs),
		Yanked:         wire.Info.Yanked,
		YankedReason:   wire.Info.YankedReason,
	}, nil
}

// ReleaseFiles fetches the downloadable files of one release.
func (client *Client) ReleaseFiles(ctx context.Context, name pkgname.Name, version string) ([]File, error) {
	release, err := client.Release(ctx, name, version)
	if err != nil {
		return nil, err
	}
	return release.Files, nil
}

// ProjectNames fetches the index's full project list. The result is
// canonicalized and in index order (alphabetical on the public index).
func (client *Client) ProjectNames(ctx context.Context) ([]pkgname.Name, error) {
	var wire struct {
		Projects []struct {
			Name string `json:"name"`
		} `json:"projects"`
	}
	if err := client.get(ctx, "/simple/", acceptSimple, &wire); err != nil {
		return nil, err
	}
	names := make([]pkgname.Name, len(wire.Projects))
	for i, project := range wire.Projects {
		names[i] = pkgname.Canonicalize(project.Name)
	}
	return names, nil
}

// notFoundOr converts a 404 APIError into an ErrNotFound wrap with the
// given subject; other errors pass through.
func notFoundOr(err error, format string, args ...any) error {
	var apiError *APIError
	if errors.As(err, &apiError) && apiError.StatusCode == 404 {
		return fmt.Errorf("index: "+format+": %w", append(args, ErrNotFound)...)
	}
	return err
}
