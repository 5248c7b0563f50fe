package audit

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"codeberg.org/halcyard/taskguard/internal/errors"
)

// fileTimeLayout keeps filenames lexicographically ordered by time:
// colons are invalid on some filesystems and fractional seconds are
// fixed-width so rotation within one second still sorts correctly.
const fileTimeLayout = "2006-01-02T15-04-05.000000000Z"

func newFileName(t time.Time) string {
	return "audit_" + t.UTC().Format(fileTimeLayout) + ".log"
}

// fileTime recovers the rotation timestamp from a ledger filename.
func fileTime(name string) (time.Time, bool) {
	s := strings.TrimPrefix(name, "audit_")
	s = strings.TrimSuffix(s, ".gz")
	s = strings.TrimSuffix(s, ".log")

	t, err := time.Parse(fileTimeLayout, s)
	if err != nil {
		return time.Time{}, false
	}

	return t, true
}

// RotateIfNeeded closes the active file and opens a fresh one when the
// size threshold has been reached. Safe to call from a periodic task.
func (l *Logger) RotateIfNeeded() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || l.size < l.cfg.MaxFileSize {
		return nil
	}

	return l.rotateLocked()
}

// rotateLocked swaps in a new active file. State is persisted only once
// the new file exists; compression of the closed file is best-effort and
// never aborts subsequent writes.
func (l *Logger) rotateLocked() error {
	errFactory := errors.New()

	closed := l.state.CurrentFile
	if err := l.file.Close(); err != nil {
		return errFactory.Wrap(ErrRotateFailed, err)
	}

	next := newFileName(l.now())
	path := filepath.Join(l.cfg.Dir, next)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, filePerm)
	if err != nil {
		// Reopen the old file so the ledger keeps accepting writes.
		if rerr := l.openActive(); rerr != nil {
			return rerr
		}
		return errFactory.Wrap(ErrRotateFailed, err)
	}

	l.file = f
	l.size = 0
	l.state.CurrentFile = next
	if err := saveState(l.cfg.Dir, l.state); err != nil {
		return err
	}

	l.log.Info().
		Str("closed", closed).
		Str("active", next).
		Msg("Audit file rotated")

	if l.cfg.Compress {
		if err := compressFile(filepath.Join(l.cfg.Dir, closed)); err != nil {
			l.log.Warn().Str("file", closed).Err(err).Msg("Compression of rotated file failed")
		}
	}

	return nil
}

// compressFile streams src into src.gz and removes the original. The
// source is never loaded into memory whole.
func compressFile(src string) error {
	errFactory := errors.New()

	in, err := os.Open(src)
	if err != nil {
		return errFactory.Wrap(ErrCompressAbort, err)
	}
	defer in.Close()

	out, err := os.OpenFile(src+".gz", os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return errFactory.Wrap(ErrCompressAbort, err)
	}

	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		gz.Close()
		out.Close()
		os.Remove(src + ".gz")
		return errFactory.Wrap(ErrCompressAbort, err)
	}
	if err := gz.Close(); err != nil {
		out.Close()
		os.Remove(src + ".gz")
		return errFactory.Wrap(ErrCompressAbort, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(src + ".gz")
		return errFactory.Wrap(ErrCompressAbort, err)
	}

	return os.Remove(src)
}

// Sweep deletes retained files older than the retention period. The
// state and lock files are exempt, as is the active file. Deleting whole
// files forfeits tamper evidence for their range; that trade-off is the
// retention contract.
func (l *Logger) Sweep() (int, error) {
	l.mu.Lock()
	active := l.state.CurrentFile
	dir := l.cfg.Dir
	cutoff := l.now().UTC().AddDate(0, 0, -l.cfg.RetentionDays)
	l.mu.Unlock()

	names, err := ledgerFiles(dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, name := range names {
		if name == active {
			continue
		}

		ts, ok := fileTime(name)
		if !ok || !ts.Before(cutoff) {
			continue
		}

		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return removed, errors.New().Wrap(ErrSweepFailed, err)
		}
		removed++
		l.log.Info().Str("file", name).Msg("Expired audit file removed")
	}

	return removed, nil
}

// ledgerFiles returns all retained ledger filenames in ascending
// (chronological) order.
func ledgerFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.New().Wrap(ErrScanFailed, err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "audit_") {
			continue
		}
		if !strings.HasSuffix(name, ".log") && !strings.HasSuffix(name, ".log.gz") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	return names, nil
}

// openReader opens a retained ledger file, transparently decompressing
// rotated files.
func openReader(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New().Wrap(ErrScanFailed, err)
	}

	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}

	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, errors.New().Wrap(ErrScanFailed, err)
	}

	return &gzipReadCloser{gz: gz, f: f}, nil
}

type gzipReadCloser struct {
	gz *gzip.Reader
	f  *os.File
}

func (r *gzipReadCloser) Read(p []byte) (int, error) { return r.gz.Read(p) }

func (r *gzipReadCloser) Close() error {
	gerr := r.gz.Close()
	ferr := r.f.Close()
	if gerr != nil {
		return gerr
	}

	return ferr
}
