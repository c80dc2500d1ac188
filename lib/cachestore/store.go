// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

// Package cachestore is a content-addressed local cache for downloaded
// archives. Each entry is one file under the cache directory: a short
// self-describing CBOR header behind a magic prefix, followed by the
// payload, compressed per the store's configuration and optionally
// sealed with XChaCha20-Poly1305. A CBOR index file accelerates
// lookups; a missing or corrupt index is rebuilt by scanning the blob
// files.
package cachestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/baleproject/bale/lib/clock"
	"github.com/baleproject/bale/lib/codec"
)

// blobMagic is the 4-byte prefix of every blob file.
const blobMagic = "BACE" // BAle Cache Entry

// blobHeaderVersion is the current blob header format version.
const blobHeaderVersion = 1

// indexVersion is the current index document format version.
const indexVersion = 1

// indexFilename is the index document's name inside the cache
// directory.
const indexFilename = "index.cbor"

// blobsDirName holds the entry files, fanned out by the first two hex
// characters of the key.
const blobsDirName = "blobs"

// blobSuffix is the extension of entry files.
const blobSuffix = ".blob"

// Options configures a Store.
type Options struct {
	// Dir is the cache directory. Required; created if absent.
	Dir string

	// MaxBytes is the on-disk budget enforced by GC. Zero or negative
	// means unlimited.
	MaxBytes int64

	// Compression is applied to payloads written by Put. Entries
	// record the tag they were written with, so changing it later
	// leaves existing entries readable. Defaults to CompressionNone:
	// wheels and sdists are already compressed.
	Compression CompressionTag

	// EncryptionKey, when set, must be exactly EncryptionKeySize
	// bytes. Payloads are sealed with XChaCha20-Poly1305 under a key
	// derived from it. Entries written without encryption stay
	// readable after a key is configured; sealed entries read without
	// a key report a miss.
	EncryptionKey []byte

	// Clock provides time operations. Defaults to clock.Real().
	Clock clock.Clock

	// Logger is used for structured logging. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// Entry describes one cached archive.
type Entry struct {
	Key      Key       `cbor:"key"`
	Filename string    `cbor:"filename,omitempty"`
	StoredAt time.Time `cbor:"stored_at"`

	// Size is the payload length before compression; StoredSize is
	// the blob file's length on disk, the unit GC budgets.
	Size       int64 `cbor:"size"`
	StoredSize int64 `cbor:"stored_size"`

	Compression CompressionTag `cbor:"compression"`
	Encrypted   bool           `cbor:"encrypted,omitempty"`
}

// blobHeader is the CBOR document at the front of every blob file,
// after the magic. It makes blobs self-describing so a lost index can
// be rebuilt by scanning.
type blobHeader struct {
	Version     int            `cbor:"version"`
	Filename    string         `cbor:"filename,omitempty"`
	Size        int64          `cbor:"size"`
	Compression CompressionTag `cbor:"compression"`
	Encrypted   bool           `cbor:"encrypted,omitempty"`
}

// indexDocument is the on-disk index file.
type indexDocument struct {
	Version int     `cbor:"version"`
	Entries []Entry `cbor:"entries"`
}

// Stats summarizes the store's contents.
type Stats struct {
	Entries    int   `json:"entries"`
	TotalBytes int64 `json:"total_bytes"`
	MaxBytes   int64 `json:"max_bytes,omitempty"`
}

// Reclaimed reports what a GC or Purge removed.
type Reclaimed struct {
	Entries int   `json:"entries"`
	Bytes   int64 `json:"bytes"`
}

// Store is the archive cache. Safe for concurrent use within one
// process. Cross-process safety comes from atomic index and blob
// writes plus content addressing: two processes writing the same key
// write the same bytes.
type Store struct {
	dir         string
	maxBytes    int64
	compression CompressionTag
	sealKey     []byte
	clock       clock.Clock
	logger      *slog.Logger

	mu      sync.Mutex
	entries map[Key]Entry
}

// Open opens (or creates) the cache at options.Dir.
func Open(options Options) (*Store, error) {
	if options.Dir == "" {
		return nil, fmt.Errorf("cache: Dir is required")
	}
	if n := len(options.EncryptionKey); n != 0 && n != EncryptionKeySize {
		return nil, fmt.Errorf("cache: encryption key must be %d bytes, got %d", EncryptionKeySize, n)
	}
	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Join(options.Dir, blobsDirName), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	store := &Store{
		dir:         options.Dir,
		maxBytes:    options.MaxBytes,
		compression: options.Compression,
		clock:       clk,
		logger:      logger,
		entries:     make(map[Key]Entry),
	}
	if len(options.EncryptionKey) != 0 {
		sealKey, err := deriveSealKey(options.EncryptionKey)
		if err != nil {
			return nil, err
		}
		store.sealKey = sealKey
	}

	if err := store.loadIndex(); err != nil {
		return nil, err
	}
	return store, nil
}

// Put stores the contents of r under key, recording filename for
// display. An existing entry with the same key is left untouched:
// keys are content-derived, so the stored bytes are already right.
func (s *Store) Put(key Key, filename string, r io.Reader) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[key]; ok {
		if _, err := os.Stat(s.blobPath(key)); err == nil {
			return entry, nil
		}
		delete(s.entries, key)
	}

	payload, err := io.ReadAll(r)
	if err != nil {
		return Entry{}, fmt.Errorf("reading archive for cache: %w", err)
	}
	rawSize := int64(len(payload))

	tag := s.compression
	stored, err := compress(payload, tag)
	if err == errIncompressible {
		stored, tag = payload, CompressionNone
	} else if err != nil {
		return Entry{}, err
	}

	encrypted := s.sealKey != nil
	if encrypted {
		stored, err = seal(stored, s.sealKey, key)
		if err != nil {
			return Entry{}, err
		}
	}

	headerBytes, err := codec.Marshal(blobHeader{
		Version:     blobHeaderVersion,
		Filename:    filename,
		Size:        rawSize,
		Compression: tag,
		Encrypted:   encrypted,
	})
	if err != nil {
		return Entry{}, fmt.Errorf("encoding blob header: %w", err)
	}

	blob := make([]byte, 0, len(blobMagic)+len(headerBytes)+len(stored))
	blob = append(blob, blobMagic...)
	blob = append(blob, headerBytes...)
	blob = append(blob, stored...)

	path := s.blobPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Entry{}, fmt.Errorf("creating blob directory: %w", err)
	}
	if err := writeFileAtomic(path, blob); err != nil {
		return Entry{}, err
	}

	entry := Entry{
		Key:         key,
		Filename:    filename,
		StoredAt:    s.clock.Now().UTC(),
		Size:        rawSize,
		StoredSize:  int64(len(blob)),
		Compression: tag,
		Encrypted:   encrypted,
	}
	s.entries[key] = entry
	if err := s.saveIndex(); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Get opens the payload cached under key. A false return is a miss.
// Entries that cannot be read back (vanished file, corrupt header,
// failed decryption) are dropped from the index and reported as
// misses; the caller re-fetches from the network.
func (s *Store) Get(key Key) (io.ReadCloser, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; !ok {
		return nil, false
	}
	payload, err := s.readBlob(key)
	if err != nil {
		s.logger.Warn("dropping unreadable cache entry", "key", key.String(), "error", err)
		s.dropLocked(key)
		return nil, false
	}
	return io.NopCloser(bytes.NewReader(payload)), true
}

// Contains reports whether key is present without touching the blob.
func (s *Store) Contains(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	return ok
}

// Entries returns a snapshot of all index rows, newest first.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].StoredAt.Equal(entries[j].StoredAt) {
			return entries[i].StoredAt.After(entries[j].StoredAt)
		}
		return bytes.Compare(entries[i].Key[:], entries[j].Key[:]) < 0
	})
	return entries
}

// Stats summarizes current contents.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{Entries: len(s.entries), MaxBytes: s.maxBytes}
	for _, entry := range s.entries {
		stats.TotalBytes += entry.StoredSize
	}
	return stats
}

// GC deletes the oldest entries until the stored bytes fit MaxBytes.
// A store without a budget never evicts. The index reflects whatever
// was removed even when GC stops early on error or cancellation.
func (s *Store) GC(ctx context.Context) (Reclaimed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reclaimed Reclaimed
	if s.maxBytes <= 0 {
		return reclaimed, nil
	}

	var total int64
	entries := make([]Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, entry)
		total += entry.StoredSize
	}
	if total <= s.maxBytes {
		return reclaimed, nil
	}

	// Oldest first; key order breaks ties so repeated runs agree.
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].StoredAt.Equal(entries[j].StoredAt) {
			return entries[i].StoredAt.Before(entries[j].StoredAt)
		}
		return bytes.Compare(entries[i].Key[:], entries[j].Key[:]) < 0
	})

	var failure error
	for _, entry := range entries {
		if total <= s.maxBytes {
			break
		}
		if ctx.Err() != nil {
			break
		}
		if err := os.Remove(s.blobPath(entry.Key)); err != nil && !os.IsNotExist(err) {
			failure = fmt.Errorf("removing cache blob %s: %w", entry.Key, err)
			break
		}
		delete(s.entries, entry.Key)
		total -= entry.StoredSize
		reclaimed.Entries++
		reclaimed.Bytes += entry.StoredSize
	}

	if err := s.saveIndex(); err != nil && failure == nil {
		failure = err
	}
	if failure == nil {
		failure = ctx.Err()
	}
	if reclaimed.Entries > 0 {
		s.logger.Info("cache gc", "removed", reclaimed.Entries, "freed_bytes", reclaimed.Bytes)
	}
	return reclaimed, failure
}

// Purge removes every entry.
func (s *Store) Purge(ctx context.Context) (Reclaimed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reclaimed Reclaimed
	var failure error
	for key, entry := range s.entries {
		if ctx.Err() != nil {
			break
		}
		if err := os.Remove(s.blobPath(key)); err != nil && !os.IsNotExist(err) {
			failure = fmt.Errorf("removing cache blob %s: %w", key, err)
			break
		}
		delete(s.entries, key)
		reclaimed.Entries++
		reclaimed.Bytes += entry.StoredSize
	}

	if err := s.saveIndex(); err != nil && failure == nil {
		failure = err
	}
	if failure == nil {
		failure = ctx.Err()
	}
	return reclaimed, failure
}

// blobPath returns an entry's file path:
// blobs/<first two hex characters>/<hex key>.blob.
func (s *Store) blobPath(key Key) string {
	hexKey := key.String()
	return filepath.Join(s.dir, blobsDirName, hexKey[:2], hexKey+blobSuffix)
}

// readBlob reads, unseals, and decompresses one blob file. The blob's
// own header drives decoding, so entries survive index rebuilds and
// configuration changes.
func (s *Store) readBlob(key Key) ([]byte, error) {
	data, err := os.ReadFile(s.blobPath(key))
	if err != nil {
		return nil, err
	}
	if len(data) < len(blobMagic) || string(data[:len(blobMagic)]) != blobMagic {
		return nil, fmt.Errorf("blob magic mismatch")
	}

	var header blobHeader
	payload, err := codec.UnmarshalFirst(data[len(blobMagic):], &header)
	if err != nil {
		return nil, fmt.Errorf("decoding blob header: %w", err)
	}
	if header.Version != blobHeaderVersion {
		return nil, fmt.Errorf("blob header version %d is not supported", header.Version)
	}

	if header.Encrypted {
		if s.sealKey == nil {
			return nil, fmt.Errorf("entry is sealed but no encryption key is configured")
		}
		payload, err = unseal(payload, s.sealKey, key)
		if err != nil {
			return nil, err
		}
	}
	return decompress(payload, header.Compression, int(header.Size))
}

// dropLocked removes an entry and its blob file. Caller must hold mu.
// Index save failures are logged, not returned: the in-memory state
// is already consistent and the next successful mutation rewrites the
// file.
func (s *Store) dropLocked(key Key) {
	delete(s.entries, key)
	if err := os.Remove(s.blobPath(key)); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("removing cache blob", "key", key.String(), "error", err)
	}
	if err := s.saveIndex(); err != nil {
		s.logger.Warn("saving cache index", "error", err)
	}
}

// loadIndex reads the index document, falling back to a blob scan
// when the file is missing or unreadable.
func (s *Store) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(s.dir, indexFilename))
	if os.IsNotExist(err) {
		return s.rebuildIndex()
	}
	if err != nil {
		return fmt.Errorf("reading cache index: %w", err)
	}

	var document indexDocument
	decodeErr := codec.Unmarshal(data, &document)
	if decodeErr == nil && document.Version != indexVersion {
		decodeErr = fmt.Errorf("index version %d is not supported", document.Version)
	}
	if decodeErr != nil {
		s.logger.Warn("cache index unreadable, rebuilding from blob scan", "error", decodeErr)
		return s.rebuildIndex()
	}

	for _, entry := range document.Entries {
		s.entries[entry.Key] = entry
	}
	return nil
}

// rebuildIndex scans the blob directory and reconstructs index rows
// from each blob's header. StoredAt is taken from file modification
// time; unreadable files are skipped.
func (s *Store) rebuildIndex() error {
	s.entries = make(map[Key]Entry)
	blobsDir := filepath.Join(s.dir, blobsDirName)
	err := filepath.WalkDir(blobsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		name := d.Name()
		if !strings.HasSuffix(name, blobSuffix) {
			return nil
		}
		key, parseErr := ParseKey(strings.TrimSuffix(name, blobSuffix))
		if parseErr != nil {
			return nil
		}
		if entry, ok := s.scanBlob(path, key); ok {
			s.entries[key] = entry
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scanning cache blobs: %w", err)
	}
	return s.saveIndex()
}

// scanBlob reads one blob's magic and header and reconstructs its
// index row.
func (s *Store) scanBlob(path string, key Key) (Entry, bool) {
	file, err := os.Open(path)
	if err != nil {
		return Entry{}, false
	}
	defer file.Close()

	var magic [len(blobMagic)]byte
	if _, err := io.ReadFull(file, magic[:]); err != nil || string(magic[:]) != blobMagic {
		return Entry{}, false
	}
	var header blobHeader
	if err := codec.NewDecoder(file).Decode(&header); err != nil || header.Version != blobHeaderVersion {
		return Entry{}, false
	}
	info, err := file.Stat()
	if err != nil {
		return Entry{}, false
	}

	return Entry{
		Key:         key,
		Filename:    header.Filename,
		StoredAt:    info.ModTime().UTC(),
		Size:        header.Size,
		StoredSize:  info.Size(),
		Compression: header.Compression,
		Encrypted:   header.Encrypted,
	}, true
}

// saveIndex writes the index document atomically. Entries are sorted
// by key so repeated saves of the same contents are byte-identical.
// Caller must hold mu (or have exclusive access during Open).
func (s *Store) saveIndex() error {
	document := indexDocument{
		Version: indexVersion,
		Entries: make([]Entry, 0, len(s.entries)),
	}
	for _, entry := range s.entries {
		document.Entries = append(document.Entries, entry)
	}
	sort.Slice(document.Entries, func(i, j int) bool {
		return bytes.Compare(document.Entries[i].Key[:], document.Entries[j].Key[:]) < 0
	})

	data, err := codec.Marshal(document)
	if err != nil {
		return fmt.Errorf("encoding cache index: %w", err)
	}
	return writeFileAtomic(filepath.Join(s.dir, indexFilename), data)
}

// writeFileAtomic writes data to a temporary file in the target's
// directory and renames it into place. Readers never observe a
// partial file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
