package audit

import "codeberg.org/halcyard/taskguard/internal/errors"

const (
	// The ledger directory and chain state are owner-only: the audit
	// trail is the security boundary.
	dirPerm       = 0o700
	filePerm      = 0o600
	statePerm     = 0o600
	defaultDir    = "/var/lib/taskguard/audit"
	stateFileName = "chain_state.json"
	lockFileName  = "audit.lock"

	defaultMaxFileSize   = 10 * 1024 * 1024
	defaultRetentionDays = 365
)

type Config struct {
	Dir           string
	MaxFileSize   int64
	RetentionDays int
	Compress      bool

	// Optional ed25519 keys, base64-encoded raw bytes on disk. A
	// private key enables per-entry signatures; a public key enables
	// signature checks during verification.
	SigningKeyPath string
	VerifyKeyPath  string
}

func DefaultConfig() Config {
	return Config{
		Dir:           defaultDir,
		MaxFileSize:   defaultMaxFileSize,
		RetentionDays: defaultRetentionDays,
		Compress:      true,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.Dir == "" {
		return errFactory.New(ErrInvalidDir)
	}
	if c.MaxFileSize <= 0 {
		return errFactory.WithData(ErrInvalidConfig, "max_file_size must be positive")
	}
	if c.RetentionDays <= 0 {
		return errFactory.WithData(ErrInvalidConfig, "retention_days must be positive")
	}

	return nil
}
