//go:build darwin || dragonfly || freebsd || linux || nacl || netbsd || openbsd

package mincore

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Mincore is a wrapper function for mincore(2). Each byte of the returned
// vector has its low bit set if the corresponding system page of data is
// currently resident in memory.
func Mincore(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	vec := make([]byte, (int64(len(data))+int64(os.Getpagesize())-1)/int64(os.Getpagesize()))

	if ret, _, err := unix.Syscall(
		unix.SYS_MINCORE,
		uintptr(unsafe.Pointer(&data[0])),
		uintptr(len(data)),
		uintptr(unsafe.Pointer(&vec[0]))); ret != 0 {
		return nil, err
	}
	return vec, nil
}

// Resident reports whether every system page backing data is currently
// resident.
func Resident(data []byte) (bool, error) {
	vec, err := Mincore(data)
	if err != nil {
		return false, err
	}
	for _, b := range vec {
		if b&1 == 0 {
			return false, nil
		}
	}
	return true, nil
}
