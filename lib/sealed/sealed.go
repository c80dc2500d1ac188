// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed stores upload tokens encrypted at rest.
//
// An age x25519 identity is generated on first use and kept with mode
// 0600 under the user config directory. Tokens are encrypted to that
// identity and stored alongside it as base64 text, one file per entry.
// This keeps tokens out of casual disk reads and backups of dotfiles;
// it is not a defense against an attacker who can read the identity
// file itself.
//
// Decrypted tokens live in ordinary memory. Callers zero them with
// [Zero] as soon as the upload request is built.
package sealed

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
)

// Entry names the CLI seals under.
const (
	// IndexToken is the package index upload token.
	IndexToken = "index"

	// ForgeToken is the forge API token used by CI gates and release
	// publishing.
	ForgeToken = "forge"
)

// ErrNotSealed is returned by Unseal when no entry with the given
// name exists.
var ErrNotSealed = errors.New("no sealed entry")

const (
	identityName = "identity.age"
	sealedSuffix = ".sealed"
)

// Store manages the age identity and sealed token files in one
// directory.
type Store struct {
	dir string
}

// Open returns the default store, under the user config directory
// (for example ~/.config/bale).
func Open() (*Store, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("sealed: locating user config dir: %w", err)
	}
	return &Store{dir: filepath.Join(configDir, "bale")}, nil
}

// OpenAt returns a store rooted at dir.
func OpenAt(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store directory.
func (store *Store) Dir() string { return store.dir }

// IdentityPath returns the identity file path. The file may not exist
// yet; it is created by the first Seal.
func (store *Store) IdentityPath() string {
	return filepath.Join(store.dir, identityName)
}

// HasIdentity reports whether the identity file exists.
func (store *Store) HasIdentity() bool {
	_, err := os.Stat(store.IdentityPath())
	return err == nil
}

// Recipient returns the public key of the store's identity,
// generating the identity on first use.
func (store *Store) Recipient() (string, error) {
	identity, err := store.ensureIdentity()
	if err != nil {
		return "", err
	}
	return identity.Recipient().String(), nil
}

// Seal encrypts token to the store's identity and writes it as
// <name>.sealed. The identity is generated on first use.
func (store *Store) Seal(name string, token []byte) error {
	if err := checkName(name); err != nil {
		return err
	}
	identity, err := store.ensureIdentity()
	if err != nil {
		return err
	}

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, identity.Recipient())
	if err != nil {
		return fmt.Errorf("sealed: encrypting %s: %w", name, err)
	}
	if _, err := writer.Write(token); err != nil {
		return fmt.Errorf("sealed: encrypting %s: %w", name, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("sealed: encrypting %s: %w", name, err)
	}

	encoded := base64.StdEncoding.EncodeToString(ciphertext.Bytes()) + "\n"
	if err := os.WriteFile(store.entryPath(name), []byte(encoded), 0o600); err != nil {
		return fmt.Errorf("sealed: writing %s: %w", name, err)
	}
	return nil
}

// Unseal decrypts the named entry. Returns an error satisfying
// errors.Is(err, ErrNotSealed) when the entry does not exist. The
// caller zeroes the returned bytes when done.
func (store *Store) Unseal(name string) ([]byte, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	encoded, err := os.ReadFile(store.entryPath(name))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("sealed: %w: %s", ErrNotSealed, name)
	}
	if err != nil {
		return nil, fmt.Errorf("sealed: reading %s: %w", name, err)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(encoded)))
	if err != nil {
		return nil, fmt.Errorf("sealed: %s is not valid base64: %w", name, err)
	}

	identity, err := store.loadIdentity()
	if err != nil {
		return nil, err
	}
	reader, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("sealed: decrypting %s: %w", name, err)
	}
	token, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("sealed: decrypting %s: %w", name, err)
	}
	return token, nil
}

// Exists reports whether a sealed entry with the given name exists.
func (store *Store) Exists(name string) bool {
	if checkName(name) != nil {
		return false
	}
	_, err := os.Stat(store.entryPath(name))
	return err == nil
}

// Remove deletes a sealed entry. Removing an absent entry is not an
// error.
func (store *Store) Remove(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := os.Remove(store.entryPath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("sealed: removing %s: %w", name, err)
	}
	return nil
}

// ensureIdentity loads the identity, generating and persisting a new
// one when none exists. The file is written 0600 under a 0700
// directory.
func (store *Store) ensureIdentity() (*age.X25519Identity, error) {
	identity, err := store.loadIdentity()
	if err == nil {
		return identity, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	identity, err = age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("sealed: generating identity: %w", err)
	}
	if err := os.MkdirAll(store.dir, 0o700); err != nil {
		return nil, fmt.Errorf("sealed: creating %s: %w", store.dir, err)
	}
	if err := os.WriteFile(store.IdentityPath(), []byte(identity.String()+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("sealed: writing identity: %w", err)
	}
	return identity, nil
}

// loadIdentity reads the identity file. Unlike ensureIdentity it
// never generates one: unsealing with a fresh identity could not
// decrypt anything sealed before, so a missing file is an error that
// propagates os.ErrNotExist.
func (store *Store) loadIdentity() (*age.X25519Identity, error) {
	data, err := os.ReadFile(store.IdentityPath())
	if err != nil {
		return nil, fmt.Errorf("sealed: reading identity: %w", err)
	}
	identity, err := age.ParseX25519Identity(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("sealed: %s: %w", store.IdentityPath(), err)
	}
	return identity, nil
}

func (store *Store) entryPath(name string) string {
	return filepath.Join(store.dir, name+sealedSuffix)
}

func checkName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("sealed: invalid entry name %q", name)
	}
	return nil
}

// Zero overwrites a token buffer. Call it once the token has been
// used.
func Zero(token []byte) {
	for i := range token {
		token[i] = 0
	}
}
