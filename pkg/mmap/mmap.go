// Package mmap provides a read-write memory-mapped file with the
// residency and growth operations the paged storage engine needs:
// madvise hints and mremap-based resize without losing the mapping.
package mmap

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// File is a memory-mapped file opened for shared read-write access.
type File struct {
	f    *os.File
	data []byte
}

// Create opens path for read-write mmap, creating it if necessary and
// truncating it to size. It reports whether the file was newly created.
func Create(path string, size int64) (mf *File, created bool, err error) {
	existed := true
	if _, statErr := os.Stat(path); statErr != nil {
		if !os.IsNotExist(statErr) {
			return nil, false, statErr
		}
		existed = false
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, false, fmt.Errorf("mmap: open %s: %w", path, err)
	}

	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, false, fmt.Errorf("mmap: truncate %s: %w", path, err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, false, fmt.Errorf("mmap: mmap %s: %w", path, err)
	}

	if err := unix.Madvise(data, unix.MADV_RANDOM); err != nil {
		// Not fatal: advisory only.
		_ = err
	}

	return &File{f: f, data: data}, !existed, nil
}

// Data returns the mapped region. The slice is invalidated by Resize
// and Close.
func (m *File) Data() []byte {
	return m.data
}

// Len returns the current size of the mapping.
func (m *File) Len() int {
	return len(m.data)
}

// OSFile returns the underlying descriptor, e.g. for fstat/ftruncate by
// callers that need lower-level control.
func (m *File) OSFile() *os.File {
	return m.f
}

// Resize grows or shrinks the file and remaps it in place via mremap,
// preserving the mapping's base semantics (MAP_SHARED) without an
// intervening unmap/remap window.
func (m *File) Resize(size int64) error {
	if int64(len(m.data)) == size {
		return nil
	}
	if err := m.f.Truncate(size); err != nil {
		return fmt.Errorf("mmap: truncate: %w", err)
	}

	data, err := unix.Mremap(m.data, int(size), unix.MREMAP_MAYMOVE)
	if err != nil {
		return fmt.Errorf("mmap: mremap: %w", err)
	}
	m.data = data
	return nil
}

// Advise issues a madvise hint over the full mapping (e.g. MADV_RANDOM
// at open, MADV_DONTNEED after a page is flushed).
func (m *File) Advise(advice int) error {
	if len(m.data) == 0 {
		return nil
	}
	return unix.Madvise(m.data, advice)
}

// AdviseRange issues a madvise hint over a sub-window of the mapping,
// used to release a single flushed page without touching its siblings.
func (m *File) AdviseRange(offset, length int, advice int) error {
	if offset < 0 || length < 0 || offset+length > len(m.data) {
		return fmt.Errorf("mmap: advise range [%d:%d] out of bounds (len=%d)", offset, offset+length, len(m.data))
	}
	if length == 0 {
		return nil
	}
	return unix.Madvise(m.data[offset:offset+length], advice)
}

// Sync flushes dirty pages to the backing file. async selects MS_ASYNC
// over MS_SYNC.
func (m *File) Sync(async bool) error {
	if len(m.data) == 0 {
		return nil
	}
	flags := unix.MS_SYNC
	if async {
		flags = unix.MS_ASYNC
	}
	return unix.Msync(m.data, flags)
}

// SyncRange flushes a sub-window of the mapping, used by PageManager.Persist
// to sync only the pages that have been bumped since the last persist.
func (m *File) SyncRange(offset, length int, async bool) error {
	if length == 0 {
		return nil
	}
	if offset < 0 || length < 0 || offset+length > len(m.data) {
		return fmt.Errorf("mmap: sync range [%d:%d] out of bounds (len=%d)", offset, offset+length, len(m.data))
	}
	flags := unix.MS_SYNC
	if async {
		flags = unix.MS_ASYNC
	}
	return unix.Msync(m.data[offset:offset+length], flags)
}

// Close unmaps the file and closes its descriptor.
func (m *File) Close() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	if cerr := m.f.Close(); err == nil {
		err = cerr
	}
	return err
}
