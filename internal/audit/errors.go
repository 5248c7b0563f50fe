package audit

import "codeberg.org/halcyard/taskguard/internal/errors"

const (
	// Configuration errors
	ErrInvalidConfig = errors.ErrorCode("audit_invalid_config")
	ErrInvalidDir    = errors.ErrorCode("audit_invalid_log_dir")
	ErrInvalidKey    = errors.ErrorCode("audit_invalid_signing_key")

	// Lifecycle errors
	ErrInitFailed    = errors.ErrInitFailed
	ErrDirLocked     = errors.ErrAlreadyRunning
	ErrClosed        = errors.ErrorCode("audit_logger_closed")
	ErrShutdownFail  = errors.ErrShutdownFailed
	ErrStatePersist  = errors.ErrorCode("audit_state_persist_failed")
	ErrStateCorrupt  = errors.ErrorCode("audit_state_corrupt")
	ErrRotateFailed  = errors.ErrorCode("audit_rotation_failed")
	ErrSweepFailed   = errors.ErrorCode("audit_retention_sweep_failed")
	ErrCompressAbort = errors.ErrorCode("audit_compression_failed")

	// Write errors
	ErrAppendFailed = errors.ErrLedgerWrite

	// Read errors
	ErrScanFailed    = errors.ErrorCode("audit_scan_failed")
	ErrExportFormat  = errors.ErrorCode("audit_unknown_export_format")
	ErrVerifyAborted = errors.ErrorCode("audit_verification_aborted")
)
