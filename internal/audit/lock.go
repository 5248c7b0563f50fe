package audit

import (
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"codeberg.org/halcyard/taskguard/internal/errors"
)

// dirLock enforces the single-writer invariant for a ledger directory.
// Two concurrent writers computing PreviousHash from the same head would
// corrupt the chain, so acquisition must happen before any append.
type dirLock struct {
	path string
}

// acquireLock takes an exclusive lock file in dir. A lock held by a
// process that no longer exists is considered stale and taken over.
func acquireLock(dir string) (*dirLock, error) {
	errFactory := errors.New()
	path := filepath.Join(dir, lockFileName)

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
		if err == nil {
			if _, werr := f.WriteString(strconv.Itoa(os.Getpid())); werr != nil {
				f.Close()
				os.Remove(path)
				return nil, errFactory.Wrap(ErrInitFailed, werr)
			}
			f.Close()
			return &dirLock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, errFactory.Wrap(ErrInitFailed, err)
		}

		holder, rerr := lockHolder(path)
		if rerr == nil && processAlive(holder) {
			return nil, errFactory.WithData(ErrDirLocked, struct {
				Dir string
				PID int
			}{
				Dir: dir,
				PID: holder,
			})
		}

		// Stale or unreadable lock: remove it and retry once.
		if rerr := os.Remove(path); rerr != nil && !os.IsNotExist(rerr) {
			return nil, errFactory.Wrap(ErrInitFailed, rerr)
		}
	}

	return nil, errFactory.WithData(ErrDirLocked, dir)
}

func (l *dirLock) release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(ErrShutdownFail, err)
	}

	return nil
}

func lockHolder(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	return strconv.Atoi(string(data))
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	return process.Signal(syscall.Signal(0)) == nil
}
