package notify

import (
	"time"

	"codeberg.org/halcyard/taskguard/internal/errors"
)

// Severity ranks alert payloads. Channels only receive payloads whose
// severity meets or exceeds their configured minimum.
type Severity int8

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParseSeverity converts a configuration string into a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "info":
		return SeverityInfo, nil
	case "warning", "warn":
		return SeverityWarning, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return SeverityInfo, errors.New().WithData(ErrInvalidSeverity, s)
	}
}

// ChannelType identifies a delivery transport.
type ChannelType string

const (
	ChannelEmail   ChannelType = "email"
	ChannelWebhook ChannelType = "webhook"
	ChannelChat    ChannelType = "chat"
)

// ChannelConfig describes one notification channel.
type ChannelConfig struct {
	ID          string
	Type        ChannelType
	Enabled     bool
	Target      string
	MinSeverity Severity
}

// Payload is the alert content delivered to a channel.
type Payload struct {
	Severity  Severity
	Title     string
	Message   string
	Details   map[string]string
	Timestamp time.Time
}

// Result reports the outcome of one delivery attempt.
type Result struct {
	ChannelID string
	OK        bool
	Err       error
}

// Sender delivers a payload over one transport. Adapters share this
// contract so the manager stays transport-agnostic; retries, if wanted,
// belong to the adapter.
type Sender interface {
	Send(cfg ChannelConfig, payload Payload) error
}
