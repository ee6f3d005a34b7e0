package mincore_test

import (
	"os"
	"testing"

	"github.com/pagedb/tsdb/pkg/mincore"
	"golang.org/x/sys/unix"
)

func TestMincoreResident(t *testing.T) {
	pageSize := os.Getpagesize()
	data, err := unix.Mmap(-1, 0, pageSize*2, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		t.Fatalf("mmap failed: %v", err)
	}
	defer unix.Munmap(data)

	// Touch every page so it's faulted in and resident.
	for i := 0; i < len(data); i += pageSize {
		data[i] = 1
	}

	resident, err := mincore.Resident(data)
	if err != nil {
		t.Fatalf("Resident failed: %v", err)
	}
	if !resident {
		t.Fatalf("expected touched pages to be resident")
	}
}

func TestMincoreEmpty(t *testing.T) {
	vec, err := mincore.Mincore(nil)
	if err != nil {
		t.Fatalf("Mincore on empty data should not error: %v", err)
	}
	if vec != nil {
		t.Fatalf("expected nil vector for empty data")
	}
}
