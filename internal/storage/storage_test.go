package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	data := []byte("ciphertext blob")
	ref, err := store.Put(ctx, data)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if ref != ComputeRef(data) {
		t.Errorf("ref = %s, want content hash", ref)
	}

	// Content-addressed: same bytes, same ref.
	again, err := store.Put(ctx, data)
	if err != nil {
		t.Fatalf("repeated put: %v", err)
	}
	if again != ref {
		t.Errorf("repeated put ref = %s, want %s", again, ref)
	}

	got, err := store.Get(ctx, ref)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("get = %q, want %q", got, data)
	}

	ok, err := store.Has(ctx, ref)
	if err != nil || !ok {
		t.Fatalf("has = %v, %v; want true", ok, err)
	}

	if err := store.Delete(ctx, ref); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, ref); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete: got %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, ref); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: got %v, want ErrNotFound", err)
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore(1)
	defer store.Close()
	testStore(t, store)
}

func TestMemoryStoreCapacity(t *testing.T) {
	store := NewMemoryStore(1) // 1 MiB
	defer store.Close()
	ctx := context.Background()

	big := make([]byte, 1<<20+1)
	if _, err := store.Put(ctx, big); !errors.Is(err, ErrStorageFull) {
		t.Fatalf("put over capacity: got %v, want ErrStorageFull", err)
	}

	// Deleting frees capacity.
	half := make([]byte, 1<<19)
	ref, err := store.Put(ctx, half)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Delete(ctx, ref); err != nil {
		t.Fatalf("delete: %v", err)
	}
	other := append(make([]byte, 1<<19), 1)
	if _, err := store.Put(ctx, other); err != nil {
		t.Fatalf("put after delete: %v", err)
	}
}

func TestFileStore(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer store.Close()
	testStore(t, store)
}

func TestFileStoreSharding(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer store.Close()

	data := []byte("sharded blob")
	ref, err := store.Put(context.Background(), data)
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	// Blobs land under a two-character shard directory.
	path := filepath.Join(dir, string(ref)[:2], string(ref))
	if _, err := os.Stat(path); err != nil {
		t.Errorf("blob not at sharded path %s: %v", path, err)
	}
}

func TestFileStoreInvalidRef(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer store.Close()

	if _, err := store.Get(context.Background(), "ab"); !errors.Is(err, ErrInvalidRef) {
		t.Errorf("get short ref: got %v, want ErrInvalidRef", err)
	}
}
