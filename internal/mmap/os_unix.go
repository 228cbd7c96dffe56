//go:build unix

package mmap

import (
	"os"

	"golang.org/x/sys/unix"
)

func osMap(f *os.File, size int, writable bool) ([]byte, func([]byte) error, error) {
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}
	data, err := unix.Mmap(int(f.Fd()), 0, size, prot, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, err
	}
	return data, unix.Munmap, nil
}

func osSync(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return unix.Msync(data, unix.MS_SYNC)
}

func osAdviseRandom(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	// EINVAL only means the kernel ignored the hint.
	if err := unix.Madvise(data, unix.MADV_RANDOM); err != nil && err != unix.EINVAL {
		return err
	}
	return nil
}
