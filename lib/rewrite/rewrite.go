// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

// Package rewrite rewrites import statements in vendored sources so
// that references between vendored packages go through the vendored
// namespace. It also carries arbitrary configured substitutions for
// the odd package that builds import paths dynamically.
package rewrite

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/baleproject/bale/lib/globpath"
	"github.com/baleproject/bale/lib/pkgname"
)

// Rule is one substitution applied to file content.
type Rule struct {
	Match   *regexp.Regexp
	Replace string
}

// NamespaceRules builds the standard import-shifting rules for a set
// of vendored packages. For each vendored module X under namespace NS:
//
//	import X            ->  from NS import X
//	import X as Y       ->  from NS import X as Y
//	from X import Y     ->  from NS.X import Y
//	from X.sub import Y ->  from NS.X.sub import Y
//
// The "import X" form becomes a from-import so the binding name stays
// X and references in the rest of the file keep working. Rewriting is
// idempotent: a namespaced import no longer starts with the bare
// module name and matches no rule. A module named like the namespace's
// first segment would re-match its own rewrite, so no rules are
// generated for it.
func NamespaceRules(namespace string, vendored []pkgname.Name) []Rule {
	root, _, _ := strings.Cut(namespace, ".")
	var rules []Rule
	for _, name := range vendored {
		module := name.Module()
		if module == root {
			continue
		}
		quoted := regexp.QuoteMeta(module)
		rules = append(rules,
			Rule{
				Match: regexp.MustCompile(
					`(?m)^(\s*)import ` + quoted + `((?:\s+as\s+\w+)?\s*(?:#.*)?)$`),
				Replace: `${1}from ` + namespace + ` import ` + module + `${2}`,
			},
			Rule{
				Match: regexp.MustCompile(
					`(?m)^(\s*)from ` + quoted + `((?:\.[\w.]+)?\s+import\s)`),
				Replace: `${1}from ` + namespace + `.` + module + `${2}`,
			},
		)
	}
	return rules
}

// CompileRule compiles a configured substitution pattern.
func CompileRule(pattern, replace string) (Rule, error) {
	match, err := regexp.Compile(pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("substitute pattern %q: %w", pattern, err)
	}
	return Rule{Match: match, Replace: replace}, nil
}

// Rewriter applies a rule set to the files a glob list selects.
type Rewriter struct {
	rules []Rule
	globs []string
}

// DefaultGlobs selects the files import rewriting normally touches.
var DefaultGlobs = []string{"**/*.py"}

// New builds a Rewriter. Nil globs means DefaultGlobs.
func New(rules []Rule, globs []string) *Rewriter {
	if globs == nil {
		globs = DefaultGlobs
	}
	return &Rewriter{rules: rules, globs: globs}
}

// Rewrite applies the rules to content and reports whether anything
// changed. Content containing a NUL byte is considered binary and
// returned untouched.
func (r *Rewriter) Rewrite(content []byte) ([]byte, bool) {
	if bytes.IndexByte(content, 0) >= 0 {
		return content, false
	}
	out := content
	for _, rule := range r.rules {
		out = rule.Match.ReplaceAll(out, []byte(rule.Replace))
	}
	return out, !bytes.Equal(out, content)
}

// File rewrites one file in place, atomically, preserving its mode.
// It reports whether the file changed.
func (r *Rewriter) File(path string) (bool, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	out, changed := r.Rewrite(content)
	if !changed {
		return false, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	if err := writeAtomic(path, out, info.Mode().Perm()); err != nil {
		return false, fmt.Errorf("rewrite %s: %w", path, err)
	}
	return true, nil
}

// Tree walks root and rewrites every file matching the glob list.
// It returns the root-relative paths of changed files in walk order.
func (r *Rewriter) Tree(root string) ([]string, error) {
	var changed []string
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !globpath.MatchAny(r.globs, rel) {
			return nil
		}
		didChange, err := r.File(path)
		if err != nil {
			return err
		}
		if didChange {
			changed = append(changed, rel)
		}
		return nil
	})
	if err != nil {
		return changed, fmt.Errorf("rewrite tree %s: %w", root, err)
	}
	return changed, nil
}

func writeAtomic(path string, content []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".rewrite-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
