// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package cachestore

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// EncryptionKeySize is the required length of Options.EncryptionKey.
const EncryptionKeySize = 32

// sealedVersion is the version byte prepended to every sealed payload.
// It is included in the AAD, so tampering with it fails authentication.
const sealedVersion byte = 0x01

// sealedOverhead is the byte overhead per sealed payload:
// 1 (version) + 24 (XChaCha20-Poly1305 nonce) + 16 (Poly1305 tag).
const sealedOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// hkdfInfoSeal is the HKDF info string for deriving the sealing key
// from the configured encryption key. Changing it invalidates every
// sealed cache entry.
var hkdfInfoSeal = []byte("bale.cache.seal.v1")

// deriveSealKey derives the 32-byte sealing key from the configured
// encryption key via HKDF-SHA256. The salt is nil per RFC 5869: the
// input is required to be full-length key material already.
func deriveSealKey(material []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, material, nil, hkdfInfoSeal)
	derived := make([]byte, EncryptionKeySize)
	if _, err := io.ReadFull(reader, derived); err != nil {
		return nil, fmt.Errorf("deriving sealing key: %w", err)
	}
	return derived, nil
}

// seal encrypts a payload with XChaCha20-Poly1305 in the standard
// sealed format:
//
//	[version: 1 byte] [nonce: 24 bytes (random)] [ciphertext+tag]
//
// The version byte and the entry key are authenticated as AAD, binding
// the ciphertext to its cache slot: a blob moved under a different key
// fails to open.
func seal(plaintext []byte, sealKey []byte, key Key) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(sealKey)
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generating random nonce: %w", err)
	}

	output := make([]byte, 1+chacha20poly1305.NonceSizeX, sealedOverhead+len(plaintext))
	output[0] = sealedVersion
	copy(output[1:], nonce[:])

	// Seal appends the ciphertext+tag to output.
	return aead.Seal(output, nonce[:], plaintext, sealAAD(sealedVersion, key)), nil
}

// unseal decrypts a payload produced by seal. It verifies the version
// byte, extracts the nonce, and authenticates the ciphertext against
// the AAD.
func unseal(sealed []byte, sealKey []byte, key Key) ([]byte, error) {
	if len(sealed) < sealedOverhead {
		return nil, fmt.Errorf("sealed payload is %d bytes, minimum is %d (version + nonce + tag)",
			len(sealed), sealedOverhead)
	}

	version := sealed[0]
	if version != sealedVersion {
		return nil, fmt.Errorf("sealed payload version %d is not supported (expected %d)",
			version, sealedVersion)
	}

	nonce := sealed[1 : 1+chacha20poly1305.NonceSizeX]
	ciphertext := sealed[1+chacha20poly1305.NonceSizeX:]

	aead, err := chacha20poly1305.NewX(sealKey)
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, sealAAD(version, key))
	if err != nil {
		return nil, fmt.Errorf("opening sealed payload (wrong key or tampered data): %w", err)
	}
	return plaintext, nil
}

// sealAAD constructs the additional authenticated data: the version
// byte followed by the entry key.
func sealAAD(version byte, key Key) []byte {
	aad := make([]byte, 1+len(key))
	aad[0] = version
	copy(aad[1:], key[:])
	return aad
}
