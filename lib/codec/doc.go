// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides bale's standard CBOR encoding configuration.
//
// Bale uses two serialization formats with a clear boundary:
//
//   - JSON for external interfaces: the package index API, forge API,
//     CLI --json output, and human-editable files (release plans).
//   - CBOR for internal on-disk state: the archive cache index and the
//     self-describing header at the front of each cached blob.
//
// This package provides the shared CBOR encoding and decoding modes so
// that every bale package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes, which keeps repeated cache index writes byte-stable.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For a header followed by raw payload bytes in the same buffer:
//
//	rest, err := codec.UnmarshalFirst(data, &header)
//
// # Struct Tag Rules
//
// The struct tag on a type documents its serialization format:
//
//   - `cbor` tag: the type is only ever serialized as CBOR (cache
//     index rows, blob headers).
//   - `json` tag: the type is serialized as JSON (wire documents, CLI
//     output). fxamacker/cbor v2 falls back to `json` tags when `cbor`
//     tags are absent, so a type that must travel both ways needs only
//     the `json` tag.
//
// Never put both tags on the same field; the tag choice documents
// which contract the type participates in.
package codec
