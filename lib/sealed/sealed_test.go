// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSealUnsealRoundTrip(t *testing.T) {
	store := OpenAt(t.TempDir())
	token := []byte("pypi-AgENdGVzdC5weXBpLm9yZwIkZmFrZQ")

	if err := store.Seal(IndexToken, token); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	got, err := store.Unseal(IndexToken)
	if err != nil {
		t.Fatalf("Unseal: %v", err)
	}
	if string(got) != string(token) {
		t.Errorf("Unseal = %q, want %q", got, token)
	}
}

func TestSealedFileIsCiphertext(t *testing.T) {
	dir := t.TempDir()
	store := OpenAt(dir)
	token := []byte("super-secret-upload-token")

	if err := store.Seal(IndexToken, token); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "index.sealed"))
	if err != nil {
		t.Fatalf("reading sealed file: %v", err)
	}
	if strings.Contains(string(data), "super-secret") {
		t.Error("sealed file contains the plaintext token")
	}
	// Armor-less base64, one line.
	if lines := strings.Count(strings.TrimRight(string(data), "\n"), "\n"); lines != 0 {
		t.Errorf("sealed file has %d extra lines", lines)
	}
}

func TestIdentityGeneratedOnceWithTightMode(t *testing.T) {
	dir := t.TempDir()
	store := OpenAt(dir)

	if store.HasIdentity() {
		t.Fatal("fresh store should have no identity")
	}
	if err := store.Seal(IndexToken, []byte("one")); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !store.HasIdentity() {
		t.Fatal("Seal should generate the identity")
	}

	info, err := os.Stat(store.IdentityPath())
	if err != nil {
		t.Fatal(err)
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		t.Errorf("identity mode = %o, want 600", mode)
	}

	first, err := os.ReadFile(store.IdentityPath())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Seal(ForgeToken, []byte("two")); err != nil {
		t.Fatalf("second Seal: %v", err)
	}
	second, err := os.ReadFile(store.IdentityPath())
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Error("second Seal regenerated the identity")
	}

	// Both entries unseal with the one identity.
	for name, want := range map[string]string{IndexToken: "one", ForgeToken: "two"} {
		got, err := store.Unseal(name)
		if err != nil {
			t.Fatalf("Unseal(%s): %v", name, err)
		}
		if string(got) != want {
			t.Errorf("Unseal(%s) = %q, want %q", name, got, want)
		}
	}
}

func TestUnsealMissingEntry(t *testing.T) {
	store := OpenAt(t.TempDir())
	_, err := store.Unseal(IndexToken)
	if !errors.Is(err, ErrNotSealed) {
		t.Errorf("expected ErrNotSealed, got: %v", err)
	}
}

func TestUnsealWithoutIdentity(t *testing.T) {
	source := OpenAt(t.TempDir())
	if err := source.Seal(IndexToken, []byte("token")); err != nil {
		t.Fatalf("Seal: %v", err)
	}

	// Copy the sealed entry into a store with no identity file.
	orphanDir := t.TempDir()
	data, err := os.ReadFile(filepath.Join(source.Dir(), "index.sealed"))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(orphanDir, "index.sealed"), data, 0o600); err != nil {
		t.Fatal(err)
	}

	_, err = OpenAt(orphanDir).Unseal(IndexToken)
	if err == nil {
		t.Fatal("expected error when identity file is missing")
	}
	if !strings.Contains(err.Error(), "identity") {
		t.Errorf("error should mention the identity: %v", err)
	}
}

func TestRemove(t *testing.T) {
	store := OpenAt(t.TempDir())
	if err := store.Seal(IndexToken, []byte("token")); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !store.Exists(IndexToken) {
		t.Fatal("entry should exist after Seal")
	}
	if err := store.Remove(IndexToken); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if store.Exists(IndexToken) {
		t.Error("entry should be gone after Remove")
	}
	// Removing an absent entry is not an error.
	if err := store.Remove(IndexToken); err != nil {
		t.Errorf("second Remove: %v", err)
	}
}

func TestEntryNameValidation(t *testing.T) {
	store := OpenAt(t.TempDir())
	for _, name := range []string{"", "a/b", `a\b`, "../escape"} {
		if err := store.Seal(name, []byte("x")); err == nil {
			t.Errorf("Seal(%q) should reject the name", name)
		}
		if _, err := store.Unseal(name); err == nil {
			t.Errorf("Unseal(%q) should reject the name", name)
		}
	}
}

func TestRecipientStable(t *testing.T) {
	store := OpenAt(t.TempDir())
	first, err := store.Recipient()
	if err != nil {
		t.Fatalf("Recipient: %v", err)
	}
	if !strings.HasPrefix(first, "age1") {
		t.Errorf("Recipient = %q, want age1... public key", first)
	}
	second, err := store.Recipient()
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("Recipient changed between calls")
	}
}

func TestZero(t *testing.T) {
	token := []byte("sensitive")
	Zero(token)
	for i, b := range token {
		if b != 0 {
			t.Fatalf("byte %d not zeroed", i)
		}
	}
}
