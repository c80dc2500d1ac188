// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/zeebo/blake3"

	"github.com/baleproject/bale/lib/cachestore"
	"github.com/baleproject/bale/lib/config"
	"github.com/baleproject/bale/lib/forge"
	"github.com/baleproject/bale/lib/pkgindex"
	"github.com/baleproject/bale/lib/sealed"
)

// IndexTokenEnv overrides the sealed index token when set. Intended
// for CI jobs, which have no sealed store.
const IndexTokenEnv = "BALE_INDEX_TOKEN"

// ForgeTokenEnv overrides the sealed forge token when set.
const ForgeTokenEnv = "BALE_FORGE_TOKEN"

// LoadProject loads the project configuration. An explicit path (from
// a --config flag) wins; otherwise BALE_CONFIG and then bale.yaml in
// the current directory are consulted.
func LoadProject(explicit string) (*config.Config, error) {
	if explicit != "" {
		return config.LoadFile(explicit)
	}
	return config.Load()
}

// IndexToken returns the index API token, or "" when none is
// configured. BALE_INDEX_TOKEN wins over the sealed store. Read
// endpoints work without a token; only Upload needs one.
func IndexToken() (string, error) {
	if token := os.Getenv(IndexTokenEnv); token != "" {
		return token, nil
	}
	store, err := sealed.Open()
	if err != nil {
		return "", err
	}
	if !store.Exists(sealed.IndexToken) {
		return "", nil
	}
	token, err := store.Unseal(sealed.IndexToken)
	if err != nil {
		return "", err
	}
	defer sealed.Zero(token)
	return string(token), nil
}

// ForgeToken returns the forge API token. Unlike the index token, a
// missing forge token is an error: every forge call is authenticated.
func ForgeToken() (string, error) {
	if token := os.Getenv(ForgeTokenEnv); token != "" {
		return token, nil
	}
	store, err := sealed.Open()
	if err != nil {
		return "", err
	}
	if !store.Exists(sealed.ForgeToken) {
		return "", fmt.Errorf("no forge token stored (run 'bale auth login --forge' or set %s)", ForgeTokenEnv)
	}
	token, err := store.Unseal(sealed.ForgeToken)
	if err != nil {
		return "", err
	}
	defer sealed.Zero(token)
	return string(token), nil
}

// ForgeClient builds the forge client from the project configuration
// and the stored token.
func ForgeClient(project *config.Config) (*forge.Client, error) {
	token, err := ForgeToken()
	if err != nil {
		return nil, fmt.Errorf("loading forge token: %w", err)
	}
	return forge.NewClient(forge.Config{
		BaseURL:    project.Release.Forge.URL,
		Repository: project.Release.Forge.Repository,
		Token:      token,
	})
}

// IndexClient builds the package index client from the project
// configuration and the stored token.
func IndexClient(project *config.Config) (*pkgindex.Client, error) {
	token, err := IndexToken()
	if err != nil {
		return nil, fmt.Errorf("loading index token: %w", err)
	}
	httpClient := http.DefaultClient
	if project.Index.Timeout != "" {
		timeout, err := time.ParseDuration(project.Index.Timeout)
		if err != nil {
			return nil, fmt.Errorf("config: invalid index timeout %q: %w", project.Index.Timeout, err)
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return pkgindex.NewClient(pkgindex.Config{
		BaseURL:    project.Index.URL,
		Token:      token,
		HTTPClient: httpClient,
	})
}

// OpenCache opens the archive cache configured for the project. With
// encryption enabled the key is derived from the sealed-store
// identity, so the cache is readable only by the user who wrote it.
func OpenCache(project *config.Config) (*cachestore.Store, error) {
	compression, err := cachestore.ParseCompressionTag(project.Cache.Compression)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	options := cachestore.Options{
		Dir:         project.Cache.Dir,
		MaxBytes:    project.Cache.MaxBytes,
		Compression: compression,
	}
	if project.Cache.Encrypt {
		key, err := cacheEncryptionKey()
		if err != nil {
			return nil, err
		}
		options.EncryptionKey = key
	}
	return cachestore.Open(options)
}

// cacheEncryptionKey derives the cache encryption key by hashing the
// sealed-store identity file. The identity is generated on first use,
// so enabling cache encryption needs no separate key management.
func cacheEncryptionKey() ([]byte, error) {
	store, err := sealed.Open()
	if err != nil {
		return nil, fmt.Errorf("cache encryption: %w", err)
	}
	if _, err := store.Recipient(); err != nil {
		return nil, fmt.Errorf("cache encryption: %w", err)
	}
	material, err := os.ReadFile(store.IdentityPath())
	if err != nil {
		return nil, fmt.Errorf("cache encryption: reading identity: %w", err)
	}
	defer sealed.Zero(material)
	sum := blake3.Sum256(material)
	return sum[:], nil
}
