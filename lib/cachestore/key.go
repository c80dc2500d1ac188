// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package cachestore

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Key is a 32-byte BLAKE3 digest identifying one cached archive.
type Key [32]byte

// keyDomain is the 32-byte key for BLAKE3 keyed hashing. Domain
// separation keeps cache keys from colliding with digests computed
// elsewhere. The bytes are the ASCII domain name zero-padded to 32
// bytes; changing them invalidates every existing cache entry.
var keyDomain = [32]byte{
	'b', 'a', 'l', 'e', '.', 'c', 'a', 'c', 'h', 'e', '.', 'e', 'n', 't', 'r', 'y',
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// KeyFor computes the cache key for an archive: the keyed digest of
// the index URL, the archive filename, and the archive's sha256 hex
// digest. Each field is length-prefixed so field boundaries are
// unambiguous.
func KeyFor(indexURL, filename, sha256Hex string) Key {
	hasher, err := blake3.NewKeyed(keyDomain[:])
	if err != nil {
		panic("cachestore: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	var prefix [binary.MaxVarintLen64]byte
	for _, field := range []string{indexURL, filename, sha256Hex} {
		n := binary.PutUvarint(prefix[:], uint64(len(field)))
		hasher.Write(prefix[:n])
		hasher.Write([]byte(field))
	}
	var key Key
	copy(key[:], hasher.Sum(nil))
	return key
}

// String returns the canonical lowercase hex form.
func (k Key) String() string { return hex.EncodeToString(k[:]) }

// MarshalText implements encoding.TextMarshaler so keys serialize as
// hex strings in the CBOR index.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Key) UnmarshalText(text []byte) error {
	parsed, err := ParseKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKey parses a 64-character hex string into a Key.
func ParseKey(s string) (Key, error) {
	var key Key
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return key, fmt.Errorf("parsing cache key: %w", err)
	}
	if len(decoded) != len(key) {
		return key, fmt.Errorf("cache key is %d bytes, want %d", len(decoded), len(key))
	}
	copy(key[:], decoded)
	return key, nil
}
