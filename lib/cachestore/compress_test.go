// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package cachestore

import (
	"bytes"
	"crypto/rand"
	"strings"
	"testing"
)

func TestCompressionTagStrings(t *testing.T) {
	t.Parallel()
	cases := []struct {
		tag  CompressionTag
		name string
	}{
		{CompressionNone, "none"},
		{CompressionLZ4, "lz4"},
		{CompressionZstd, "zstd"},
	}
	for _, tc := range cases {
		if got := tc.tag.String(); got != tc.name {
			t.Errorf("%d.String() = %q, want %q", tc.tag, got, tc.name)
		}
		parsed, err := ParseCompressionTag(tc.name)
		if err != nil {
			t.Errorf("ParseCompressionTag(%q): %v", tc.name, err)
		}
		if parsed != tc.tag {
			t.Errorf("ParseCompressionTag(%q) = %d, want %d", tc.name, parsed, tc.tag)
		}
	}

	if _, err := ParseCompressionTag("gzip"); err == nil {
		t.Error("ParseCompressionTag should reject unknown names")
	}
	if got := CompressionTag(7).String(); got != "unknown(7)" {
		t.Errorf("unknown tag String() = %q", got)
	}
}

func TestCompressRoundtrip(t *testing.T) {
	t.Parallel()
	// Repetitive text compresses under both algorithms.
	data := []byte(strings.Repeat("the same requirement line over and over\n", 200))

	for _, tag := range []CompressionTag{CompressionLZ4, CompressionZstd} {
		t.Run(tag.String(), func(t *testing.T) {
			t.Parallel()
			compressed, err := compress(data, tag)
			if err != nil {
				t.Fatalf("compress: %v", err)
			}
			if len(compressed) >= len(data) {
				t.Fatalf("compressed %d bytes to %d, expected shrinkage", len(data), len(compressed))
			}
			restored, err := decompress(compressed, tag, len(data))
			if err != nil {
				t.Fatalf("decompress: %v", err)
			}
			if !bytes.Equal(restored, data) {
				t.Error("roundtrip did not restore the original bytes")
			}
		})
	}
}

func TestCompressNoneIsIdentity(t *testing.T) {
	t.Parallel()
	data := []byte("untouched")
	out, err := compress(data, CompressionNone)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if &out[0] != &data[0] {
		t.Error("CompressionNone should return the input without copying")
	}
	if _, err := decompress(data, CompressionNone, len(data)+1); err == nil {
		t.Error("decompress should reject a size mismatch")
	}
}

func TestIncompressibleData(t *testing.T) {
	t.Parallel()
	data := make([]byte, 4096)
	if _, err := rand.Read(data); err != nil {
		t.Fatal(err)
	}

	for _, tag := range []CompressionTag{CompressionLZ4, CompressionZstd} {
		if _, err := compress(data, tag); err != errIncompressible {
			t.Errorf("%s: compress(random) error = %v, want errIncompressible", tag, err)
		}
	}
}

func TestDecompressSizeMismatch(t *testing.T) {
	t.Parallel()
	data := []byte(strings.Repeat("abcd", 500))

	for _, tag := range []CompressionTag{CompressionLZ4, CompressionZstd} {
		compressed, err := compress(data, tag)
		if err != nil {
			t.Fatalf("%s: compress: %v", tag, err)
		}
		if _, err := decompress(compressed, tag, len(data)/2); err == nil {
			t.Errorf("%s: decompress should reject a wrong raw size", tag)
		}
	}
}
