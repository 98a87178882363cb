package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/l3aro/go-nullflow/pkg/types"
)

// FormatVersion changes whenever cached reports could differ for the same
// input, which invalidates every persisted store.
const FormatVersion = "nflow-reports/1"

// DefaultFileName is the store file inside the cache directory.
const DefaultFileName = "reports.msgpack"

// HashBytes returns the hex SHA-256 of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ReportKey identifies the report for one file content analyzed under a
// given configuration fingerprint.
func ReportKey(path string, content []byte, fingerprint string) string {
	return path + "\x00" + HashBytes(content) + "\x00" + fingerprint
}

// ReportStore caches per-file reports and persists them between runs.
type ReportStore struct {
	cache *LRUCache[*types.FileReport]
	mu    sync.Mutex
	path  string
	dirty bool
}

// NewReportStore creates a store holding at most maxEntries reports. An
// empty path disables persistence.
func NewReportStore(path string, maxEntries int) *ReportStore {
	return &ReportStore{
		cache: New(Options[*types.FileReport]{MaxSize: maxEntries}),
		path:  path,
	}
}

// Get returns the cached report for key or ErrKeyNotFound.
func (s *ReportStore) Get(key string) (*types.FileReport, error) {
	return s.cache.Lookup(key)
}

// Put stores a report.
func (s *ReportStore) Put(key string, rep *types.FileReport) {
	s.cache.Set(key, rep)
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
}

// Len returns the number of cached reports.
func (s *ReportStore) Len() int { return s.cache.Len() }

// Stats returns hit and miss counts of this run.
func (s *ReportStore) Stats() Stats { return s.cache.Stats() }

type storeData struct {
	Version string                     `msgpack:"version"`
	Entries []Entry[*types.FileReport] `msgpack:"entries"`
}

// Load restores the store from disk. A missing file, or one written by a
// different format version, leaves the store empty.
func (s *ReportStore) Load() error {
	if s.path == "" {
		return nil
	}
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open cache file: %w", err)
	}
	defer f.Close()
	return s.load(f)
}

func (s *ReportStore) load(r io.Reader) error {
	var data storeData
	if err := newDecoder(r).Decode(&data); err != nil {
		return fmt.Errorf("failed to decode cache: %w", err)
	}
	if data.Version != FormatVersion {
		return nil
	}
	s.cache.mu.Lock()
	s.cache.restore(data.Entries)
	s.cache.mu.Unlock()
	return nil
}

// Save writes the store to disk if anything changed since Load.
func (s *ReportStore) Save() error {
	if s.path == "" {
		return errors.New("no persistence path set")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	if err := s.save(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace cache file: %w", err)
	}
	s.dirty = false
	return nil
}

func (s *ReportStore) save(w io.Writer) error {
	s.cache.mu.RLock()
	data := storeData{Version: FormatVersion, Entries: s.cache.entries()}
	s.cache.mu.RUnlock()
	return newEncoder(w).Encode(data)
}
