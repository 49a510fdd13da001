// Package storage persists ciphertext blobs for confidential values. Blobs
// are content-addressed: the ref of a blob is the hex sha256 of its bytes,
// which also serves as the opaque value handle exposed by the lattice
// backend.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Common errors.
var (
	ErrNotFound    = errors.New("ciphertext not found")
	ErrStorageFull = errors.New("storage capacity exceeded")
	ErrInvalidRef  = errors.New("invalid ciphertext ref")
)

// Ref uniquely identifies a stored ciphertext blob.
type Ref string

// ComputeRef derives the content-addressed ref of a blob.
func ComputeRef(data []byte) Ref {
	sum := sha256.Sum256(data)
	return Ref(hex.EncodeToString(sum[:]))
}

// Store defines the interface for ciphertext blob storage.
type Store interface {
	// Put saves a blob and returns its ref. Storing the same bytes twice
	// is a no-op returning the same ref.
	Put(ctx context.Context, data []byte) (Ref, error)
	// Get retrieves a blob by ref.
	Get(ctx context.Context, ref Ref) ([]byte, error)
	// Has reports whether a blob exists.
	Has(ctx context.Context, ref Ref) (bool, error)
	// Delete removes a blob.
	Delete(ctx context.Context, ref Ref) error
	// Close releases the store.
	Close() error
}

// MemoryStore keeps blobs in process memory, bounded by a byte capacity.
type MemoryStore struct {
	mu       sync.RWMutex
	blobs    map[Ref][]byte
	capacity int64
	size     int64
}

// NewMemoryStore creates an in-memory store holding up to capacityMB of blobs.
func NewMemoryStore(capacityMB int64) *MemoryStore {
	return &MemoryStore{
		blobs:    make(map[Ref][]byte),
		capacity: capacityMB * 1024 * 1024,
	}
}

func (s *MemoryStore) Put(ctx context.Context, data []byte) (Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref := ComputeRef(data)
	if _, ok := s.blobs[ref]; ok {
		return ref, nil
	}
	if s.size+int64(len(data)) > s.capacity {
		return "", ErrStorageFull
	}

	s.blobs[ref] = append([]byte(nil), data...)
	s.size += int64(len(data))
	return ref, nil
}

func (s *MemoryStore) Get(ctx context.Context, ref Ref) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.blobs[ref]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) Has(ctx context.Context, ref Ref) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[ref]
	return ok, nil
}

func (s *MemoryStore) Delete(ctx context.Context, ref Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.blobs[ref]
	if !ok {
		return ErrNotFound
	}
	s.size -= int64(len(data))
	delete(s.blobs, ref)
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs = nil
	s.size = 0
	return nil
}

// FileStore persists blobs on disk, sharded by ref prefix so no single
// directory accumulates every ciphertext.
type FileStore struct {
	baseDir string
}

// NewFileStore creates a file-backed store rooted at baseDir.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0750); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) path(ref Ref) (string, error) {
	r := string(ref)
	if len(r) < 4 {
		return "", ErrInvalidRef
	}
	return filepath.Join(s.baseDir, r[:2], r), nil
}

func (s *FileStore) Put(ctx context.Context, data []byte) (Ref, error) {
	ref := ComputeRef(data)
	path, err := s.path(ref)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(path); err == nil {
		return ref, nil // content-addressed: already present
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return "", fmt.Errorf("create shard dir: %w", err)
	}

	// Write atomically via temp file.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("rename temp file: %w", err)
	}

	return ref, nil
}

func (s *FileStore) Get(ctx context.Context, ref Ref) ([]byte, error) {
	path, err := s.path(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

func (s *FileStore) Has(ctx context.Context, ref Ref) (bool, error) {
	path, err := s.path(ref)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat blob: %w", err)
	}
	return true, nil
}

func (s *FileStore) Delete(ctx context.Context, ref Ref) error {
	path, err := s.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}
