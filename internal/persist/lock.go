package persist

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// dirLock is a best-effort, advisory, one-open-at-a-time lock on a store's
// base directory: it guards against a second Open of the same directory
// (flock locks belong to the open file, so this holds within one process as
// well as across processes), not against two goroutines sharing one open
// store (that's [sync.Mutex]'s job at the store level). It is advisory only
// -- a process that ignores it can still read and write the files
// underneath.
type dirLock struct {
	file *os.File
}

// acquireDirLock opens (creating if needed) the lock file at path and takes
// a non-blocking exclusive flock on it. If another open file, in this process
// or another one, already holds the lock, it returns ErrLockHeld.
func acquireDirLock(path string) (*dirLock, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o640)
	if err != nil {
		return nil, fmt.Errorf("persist: lock: open %s: %w: %w", path, ErrIO, err)
	}

	err = unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		_ = file.Close()

		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrLockHeld, path)
		}

		return nil, fmt.Errorf("persist: lock: flock %s: %w: %w", path, ErrIO, err)
	}

	return &dirLock{file: file}, nil
}

func (l *dirLock) release() error {
	if l == nil || l.file == nil {
		return nil
	}

	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)

	closeErr := l.file.Close()
	if err != nil {
		return fmt.Errorf("persist: lock: unlock: %w", err)
	}

	if closeErr != nil {
		return fmt.Errorf("persist: lock: close: %w", closeErr)
	}

	return nil
}
