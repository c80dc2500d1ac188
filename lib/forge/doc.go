// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

// Package forge provides a typed client for the GitHub-style REST API
// the release runner talks to: commit statuses and check runs (the CI
// gate), releases and their assets, and git refs.
//
// The client authenticates with a bearer token, handles rate limiting
// (X-RateLimit-* headers with automatic backoff), pagination (RFC 5988
// Link headers), conditional requests (ETags), and structured error
// mapping. It is bound to a single owner/name repository at
// construction; bale never operates across repositories.
//
// All requests are made over HTTPS. The client refuses non-HTTPS base
// URLs.
package forge
