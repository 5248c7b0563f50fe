package monitor

import "codeberg.org/halcyard/taskguard/internal/errors"

const (
	// History storage errors
	ErrInvalidDBPath     = errors.ErrorCode("monitor_invalid_db_path")
	ErrHistoryInit       = errors.ErrInitFailed
	ErrHistoryClose      = errors.ErrShutdownFailed
	ErrSchemaInitFailed  = errors.ErrorCode("monitor_schema_init_failed")
	ErrTransactionFailed = errors.ErrorCode("monitor_transaction_failed")
	ErrHistoryQuery      = errors.ErrorCode("monitor_history_query_failed")

	// Collection errors
	ErrGaugeSample = errors.ErrorCode("monitor_gauge_sample_failed")
)
