package notify

import "codeberg.org/halcyard/taskguard/internal/errors"

const (
	ErrInvalidSeverity = errors.ErrorCode("notify_invalid_severity")
	ErrInvalidChannel  = errors.ErrorCode("notify_invalid_channel")
	ErrNoSender        = errors.ErrorCode("notify_no_sender_for_channel_type")
	ErrDeliveryFailed  = errors.ErrorCode("notify_delivery_failed")
)
