package keystore

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// Store owns per-artifact encryption keys. Keys are created lazily the
// first time an artifact id needs encrypting and persisted under the key
// directory, one file per artifact id. Keys are never written into the
// artifacts they protect.
type Store struct {
	dir  string
	mu   sync.Mutex
	keys map[string][]byte
}

// NewStore creates a key store rooted at dir, loading any persisted keys.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}

	store := &Store{
		dir:  dir,
		keys: make(map[string][]byte),
	}

	if err := store.loadExisting(); err != nil {
		return nil, err
	}

	return store, nil
}

// Key returns the encryption key for the given artifact id, generating
// and persisting a new one if none exists yet.
func (s *Store) Key(artifactID string) ([]byte, error) {
	if strings.TrimSpace(artifactID) == "" {
		return nil, fmt.Errorf("artifact id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if key, ok := s.keys[artifactID]; ok {
		return key, nil
	}

	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	if err := s.persist(artifactID, key); err != nil {
		return nil, err
	}

	s.keys[artifactID] = key
	log.Printf("[KeyStore] Created key for artifact %s", artifactID)
	return key, nil
}

// Lookup returns the key for an artifact id without creating one.
func (s *Store) Lookup(artifactID string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[artifactID]
	return key, ok
}

// Delete removes the key for an artifact id from memory and disk.
// Missing keys are not an error.
func (s *Store) Delete(artifactID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.keys, artifactID)

	path := s.keyPath(artifactID)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove key file: %w", err)
	}
	return nil
}

// Count returns the number of keys currently held.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

func (s *Store) persist(artifactID string, key []byte) error {
	encoded := base64.StdEncoding.EncodeToString(key)
	path := s.keyPath(artifactID)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(encoded), 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize key file: %w", err)
	}
	return nil
}

func (s *Store) loadExisting() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read key directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".key") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			log.Printf("[KeyStore] Warning: Failed to read key file %s: %v", entry.Name(), err)
			continue
		}

		key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
		if err != nil || len(key) != KeySize {
			log.Printf("[KeyStore] Warning: Skipping malformed key file %s", entry.Name())
			continue
		}

		artifactID := strings.TrimSuffix(entry.Name(), ".key")
		s.keys[artifactID] = key
	}

	if len(s.keys) > 0 {
		log.Printf("[KeyStore] Loaded %d keys from %s", len(s.keys), s.dir)
	}

	return nil
}

func (s *Store) keyPath(artifactID string) string {
	return filepath.Join(s.dir, artifactID+".key")
}
