//go:build unix

package syncconfig

import (
	"os"
	"syscall"
)

// tryLock attempts a non-blocking exclusive lock.
func tryLock(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
}

// unlock releases the exclusive lock.
func unlock(f *os.File) {
	syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}
