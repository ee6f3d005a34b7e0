package mmap_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pagedb/tsdb/pkg/mmap"
	"golang.org/x/sys/unix"
)

func TestCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	m, created, err := mmap.Create(path, 4096)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer m.Close()

	if !created {
		t.Fatalf("expected a newly created file")
	}
	if m.Len() != 4096 {
		t.Fatalf("expected len 4096, got %d", m.Len())
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("file should exist: %v", err)
	}
	if info.Size() != 4096 {
		t.Fatalf("file size should be 4096, got %d", info.Size())
	}
}

func TestReopenNotCreated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	m, created, err := mmap.Create(path, 4096)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	copy(m.Data()[0:5], []byte("hello"))
	if err := m.Sync(false); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	m2, created2, err := mmap.Create(path, 4096)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer m2.Close()

	if created2 {
		t.Fatalf("expected reopen of existing file to report created=false")
	}
	if string(m2.Data()[0:5]) != "hello" {
		t.Fatalf("expected 'hello', got %q", m2.Data()[0:5])
	}
	_ = created
}

func TestResizeGrowPreservesData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	m, _, err := mmap.Create(path, 4096)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer m.Close()

	copy(m.Data()[0:5], []byte("hello"))

	if err := m.Resize(8192); err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	if m.Len() != 8192 {
		t.Fatalf("expected len 8192, got %d", m.Len())
	}
	if string(m.Data()[0:5]) != "hello" {
		t.Fatalf("data should be preserved across Resize")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() != 8192 {
		t.Fatalf("file size should be 8192, got %d", info.Size())
	}
}

func TestAdviseRangeBounds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	m, _, err := mmap.Create(path, 4096)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer m.Close()

	if err := m.AdviseRange(0, 4096, unix.MADV_DONTNEED); err != nil {
		t.Fatalf("AdviseRange in-bounds failed: %v", err)
	}
	if err := m.AdviseRange(4000, 200, unix.MADV_DONTNEED); err == nil {
		t.Fatalf("expected out-of-bounds AdviseRange to error")
	}
}
