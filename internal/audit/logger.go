package audit

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"codeberg.org/halcyard/taskguard/internal/errors"
	"codeberg.org/halcyard/taskguard/internal/logger"
)

// Logger is an append-only, hash-chained audit ledger over rotating
// files. One Logger assumes exclusive ownership of its directory,
// enforced by an advisory lock file at initialization.
type Logger struct {
	cfg Config
	log logger.Logger

	mu     sync.Mutex
	state  ChainState
	file   *os.File
	size   int64
	closed bool

	signKey   ed25519.PrivateKey
	verifyKey ed25519.PublicKey
	lock      *dirLock

	now func() time.Time
}

func New(cfg Config, log logger.Logger) (*Logger, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Dir, dirPerm); err != nil {
		return nil, errFactory.Wrap(ErrInitFailed, err)
	}

	lock, err := acquireLock(cfg.Dir)
	if err != nil {
		return nil, err
	}

	l := &Logger{
		cfg:  cfg,
		log:  log,
		lock: lock,
		now:  time.Now,
	}

	if err := l.loadKeys(); err != nil {
		lock.release()
		return nil, err
	}

	state, ok, err := loadState(cfg.Dir)
	if err != nil {
		lock.release()
		return nil, err
	}
	if !ok {
		state = ChainState{
			LastHash:    genesisHash(),
			CurrentFile: newFileName(l.now()),
			Timestamp:   l.now().UTC(),
		}
		if err := saveState(cfg.Dir, state); err != nil {
			lock.release()
			return nil, err
		}
		log.Info().Str("file", state.CurrentFile).Msg("Audit chain initialized")
	}
	l.state = state

	if err := l.openActive(); err != nil {
		lock.release()
		return nil, err
	}

	log.Info().
		Str("dir", cfg.Dir).
		Str("active_file", l.state.CurrentFile).
		Bool("signing", l.signKey != nil).
		Bool("compress", cfg.Compress).
		Msg("Audit logger ready")

	return l, nil
}

// LogEvent appends one entry to the chain. Any I/O failure propagates to
// the caller: audit completeness is a hard requirement and is never
// silently dropped.
func (l *Logger) LogEvent(eventType, resource, action, status string, details map[string]any, meta Metadata) (*Entry, error) {
	errFactory := errors.New()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, errFactory.New(ErrClosed)
	}

	// The size threshold applies to the next write: once the active
	// file has reached it, this entry opens a new file.
	if l.size >= l.cfg.MaxFileSize {
		if err := l.rotateLocked(); err != nil {
			return nil, err
		}
	}

	entry := &Entry{
		ID:            uuid.NewString(),
		Timestamp:     l.now().UTC(),
		EventType:     eventType,
		UserID:        meta.UserID,
		IPAddress:     meta.IPAddress,
		UserAgent:     meta.UserAgent,
		CorrelationID: meta.CorrelationID,
		Resource:      resource,
		Action:        action,
		Status:        status,
		Details:       details,
		PreviousHash:  l.state.LastHash,
		RetentionDays: l.cfg.RetentionDays,
	}
	entry.CurrentHash = entry.ComputeHash()
	if l.signKey != nil {
		entry.sign(l.signKey)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return nil, errFactory.Wrap(ErrAppendFailed, err)
	}
	line = append(line, '\n')

	n, err := l.file.Write(line)
	if err != nil {
		return nil, errFactory.Wrap(ErrAppendFailed, err)
	}
	l.size += int64(n)

	// Advance the head only after the data write succeeded.
	l.state.LastHash = entry.CurrentHash
	l.state.Timestamp = entry.Timestamp
	if err := saveState(l.cfg.Dir, l.state); err != nil {
		return nil, err
	}

	return entry, nil
}

// Head returns the current chain head hash.
func (l *Logger) Head() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.state.LastHash
}

// Close persists the final chain state and releases the directory lock.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	var firstErr error
	if err := saveState(l.cfg.Dir, l.state); err != nil {
		firstErr = err
	}
	if err := l.file.Close(); err != nil && firstErr == nil {
		firstErr = errors.New().Wrap(ErrShutdownFail, err)
	}
	if err := l.lock.release(); err != nil && firstErr == nil {
		firstErr = err
	}

	l.log.Info().Msg("Audit logger closed")

	return firstErr
}

func (l *Logger) openActive() error {
	errFactory := errors.New()

	path := filepath.Join(l.cfg.Dir, l.state.CurrentFile)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, filePerm)
	if err != nil {
		return errFactory.Wrap(ErrInitFailed, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return errFactory.Wrap(ErrInitFailed, err)
	}

	l.file = f
	l.size = info.Size()

	return nil
}

func (l *Logger) loadKeys() error {
	errFactory := errors.New()

	if l.cfg.SigningKeyPath != "" {
		raw, err := readKeyFile(l.cfg.SigningKeyPath)
		if err != nil {
			return err
		}
		if len(raw) != ed25519.PrivateKeySize {
			return errFactory.WithData(ErrInvalidKey, l.cfg.SigningKeyPath)
		}
		l.signKey = ed25519.PrivateKey(raw)
	}

	if l.cfg.VerifyKeyPath != "" {
		raw, err := readKeyFile(l.cfg.VerifyKeyPath)
		if err != nil {
			return err
		}
		if len(raw) != ed25519.PublicKeySize {
			return errFactory.WithData(ErrInvalidKey, l.cfg.VerifyKeyPath)
		}
		l.verifyKey = ed25519.PublicKey(raw)
	}

	return nil
}

func readKeyFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New().Wrap(ErrInvalidKey, err)
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, errors.New().Wrap(ErrInvalidKey, err)
	}

	return raw, nil
}
