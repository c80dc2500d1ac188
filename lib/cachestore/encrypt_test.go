// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package cachestore

import (
	"bytes"
	"testing"
)

func testSealKey(t *testing.T, material string) []byte {
	t.Helper()
	key, err := deriveSealKey(bytes.Repeat([]byte(material), EncryptionKeySize)[:EncryptionKeySize])
	if err != nil {
		t.Fatalf("deriveSealKey: %v", err)
	}
	return key
}

func TestSealUnsealRoundtrip(t *testing.T) {
	t.Parallel()
	sealKey := testSealKey(t, "k")
	slot := KeyFor("https://pypi.org", "demo-1.0.tar.gz", "aa11")
	plaintext := []byte("archive payload")

	sealed, err := seal(plaintext, sealKey, slot)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if len(sealed) != len(plaintext)+sealedOverhead {
		t.Errorf("sealed length %d, want %d", len(sealed), len(plaintext)+sealedOverhead)
	}
	if sealed[0] != sealedVersion {
		t.Errorf("version byte = %d, want %d", sealed[0], sealedVersion)
	}
	if bytes.Contains(sealed, plaintext) {
		t.Error("sealed payload contains the plaintext")
	}

	restored, err := unseal(sealed, sealKey, slot)
	if err != nil {
		t.Fatalf("unseal: %v", err)
	}
	if !bytes.Equal(restored, plaintext) {
		t.Errorf("unseal = %q, want %q", restored, plaintext)
	}
}

func TestUnsealRejectsTampering(t *testing.T) {
	t.Parallel()
	sealKey := testSealKey(t, "k")
	slot := KeyFor("https://pypi.org", "demo-1.0.tar.gz", "aa11")

	sealed, err := seal([]byte("payload"), sealKey, slot)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	flipped := bytes.Clone(sealed)
	flipped[len(flipped)-1] ^= 0x01
	if _, err := unseal(flipped, sealKey, slot); err == nil {
		t.Error("tampered ciphertext must not open")
	}

	versioned := bytes.Clone(sealed)
	versioned[0] = 0x02
	if _, err := unseal(versioned, sealKey, slot); err == nil {
		t.Error("unknown version byte must not open")
	}

	if _, err := unseal(sealed[:sealedOverhead-1], sealKey, slot); err == nil {
		t.Error("truncated payload must not open")
	}
}

func TestUnsealRejectsWrongKeyOrSlot(t *testing.T) {
	t.Parallel()
	sealKey := testSealKey(t, "k")
	otherKey := testSealKey(t, "x")
	slot := KeyFor("https://pypi.org", "demo-1.0.tar.gz", "aa11")
	otherSlot := KeyFor("https://pypi.org", "demo-2.0.tar.gz", "bb22")

	sealed, err := seal([]byte("payload"), sealKey, slot)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	if _, err := unseal(sealed, otherKey, slot); err == nil {
		t.Error("wrong key must not open")
	}
	// The slot is AAD: a blob moved under a different key fails.
	if _, err := unseal(sealed, sealKey, otherSlot); err == nil {
		t.Error("wrong slot must not open")
	}
}

func TestDeriveSealKey(t *testing.T) {
	t.Parallel()
	material := bytes.Repeat([]byte("m"), EncryptionKeySize)

	first, err := deriveSealKey(material)
	if err != nil {
		t.Fatalf("deriveSealKey: %v", err)
	}
	second, err := deriveSealKey(material)
	if err != nil {
		t.Fatalf("deriveSealKey: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("derivation is not deterministic")
	}
	if bytes.Equal(first, material) {
		t.Error("derived key must differ from the input material")
	}
	if len(first) != EncryptionKeySize {
		t.Errorf("derived key is %d bytes, want %d", len(first), EncryptionKeySize)
	}
}
