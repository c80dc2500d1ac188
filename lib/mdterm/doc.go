// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

// Package mdterm renders GitHub-flavored markdown as styled terminal
// text. Soft line breaks inside paragraphs become spaces so
// hard-wrapped source reflows to the requested width; fenced code is
// syntax-highlighted with chroma; lists, block quotes, task boxes,
// and tables keep their structure.
//
// bale uses it to display release checklists and release plan step
// descriptions, and its Highlight helper colors unified diffs for
// bale patch show.
package mdterm
