// Package lockfile provides a single-instance file lock for the server and
// standalone cron binaries, so two copies started against the same state
// directory don't race on the sqlite store.
package lockfile

import (
	"fmt"
	"os"
	"syscall"
)

// Acquire attempts to acquire an exclusive file lock.
// Returns the lock file handle (keep open for process lifetime) or an error.
func Acquire(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("lockfile: open %s: %w", path, err)
	}

	err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("another studybuddyd instance is running (lock: %s)", path)
	}

	// Write our PID for debugging
	f.Truncate(0)
	f.Seek(0, 0)
	fmt.Fprintf(f, "%d\n", os.Getpid())

	return f, nil
}

// Release releases the lock and removes the lock file.
func Release(f *os.File) {
	if f == nil {
		return
	}
	syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	name := f.Name()
	f.Close()
	os.Remove(name)
}
