// ABOUTME: JSON-file-backed user record store with atomic writes
// ABOUTME: Loads the full mapping at startup and persists every mutation before reporting success

package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FileStore keeps the username -> UserRecord mapping in memory and mirrors
// every mutation to a single JSON file. All access goes through an internal
// mutex, so overlapping saves cannot interleave. Mutations are committed to
// memory only after the file write succeeds.
type FileStore struct {
	path   string
	logger *slog.Logger

	mu    sync.Mutex
	users map[string]*UserRecord
}

// NewFileStore opens (or creates) the store at path. A missing file yields an
// empty mapping. A file that cannot be parsed is reset to empty rather than
// failing startup; the previous content is logged and lost.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path:   path,
		logger: slog.Default().With("component", "store"),
		users:  make(map[string]*UserRecord),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := s.save(); err != nil {
			return nil, fmt.Errorf("initializing store file: %w", err)
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading store file: %w", err)
	}

	var records []*UserRecord
	if err := json.Unmarshal(data, &records); err != nil {
		s.logger.Warn("store file is corrupt, resetting to empty", "path", path, "error", err)
		if err := s.save(); err != nil {
			return nil, fmt.Errorf("resetting store file: %w", err)
		}
		return s, nil
	}

	for _, rec := range records {
		s.users[rec.Username] = rec
	}
	s.logger.Info("store loaded", "path", path, "users", len(s.users))
	return s, nil
}

// Get returns a copy of the record for username.
func (s *FileStore) Get(username string) (*UserRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[username]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Put inserts or replaces the record and persists the mapping. On write
// failure the in-memory mapping is left unchanged and the error is returned.
func (s *FileStore) Put(rec *UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.users[rec.Username]
	s.users[rec.Username] = rec.Clone()
	if err := s.save(); err != nil {
		if had {
			s.users[rec.Username] = prev
		} else {
			delete(s.users, rec.Username)
		}
		return fmt.Errorf("persisting user %q: %w", rec.Username, err)
	}
	return nil
}

// Delete removes the record for username, if present, and persists the
// mapping. Deleting an absent username is a no-op.
func (s *FileStore) Delete(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.users[username]
	if !had {
		return nil
	}
	delete(s.users, username)
	if err := s.save(); err != nil {
		s.users[username] = prev
		return fmt.Errorf("persisting removal of %q: %w", username, err)
	}
	return nil
}

// FindCredentialOwner returns the username owning the given credential ID.
// Used to enforce the global credential-ID namespace at registration time.
func (s *FileStore) FindCredentialOwner(credID []byte) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, rec := range s.users {
		for i := range rec.Credentials {
			if bytes.Equal(rec.Credentials[i].ID, credID) {
				return name, true
			}
		}
	}
	return "", false
}

// All returns copies of every record, sorted by username.
func (s *FileStore) All() []*UserRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]*UserRecord, 0, len(s.users))
	for _, rec := range s.users {
		records = append(records, rec.Clone())
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Username < records[j].Username })
	return records
}

// Count returns the number of stored records.
func (s *FileStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// save writes the full mapping to a temp file and renames it into place.
// Callers must hold s.mu.
func (s *FileStore) save() error {
	records := make([]*UserRecord, 0, len(s.users))
	for _, rec := range s.users {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Username < records[j].Username })

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding records: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing store file: %w", err)
	}
	return nil
}
