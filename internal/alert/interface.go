package alert

import (
	"time"

	"codeberg.org/halcyard/taskguard/internal/monitor"
	"codeberg.org/halcyard/taskguard/internal/notify"
)

// Context is the snapshot a rule set is evaluated against. The caller
// assembles it from the monitor's dashboard state.
type Context struct {
	Stats            monitor.Stats
	ActiveExecutions int
	RecentErrors     int
	CPUPercent       float64
	MemoryPercent    float64
	LoginFailures    int
	Timestamp        time.Time
}

// Rule checks one condition against a context snapshot. Check returns
// nil when the rule is satisfied.
type Rule struct {
	ID       string
	Severity notify.Severity
	Cooldown time.Duration
	Check    func(ctx Context) (*Violation, error)
}

// Violation is one rule breach.
type Violation struct {
	RuleID    string
	Severity  notify.Severity
	Message   string
	Details   map[string]string
	Timestamp time.Time
}

// ActiveAlert is a tracked violation still inside its cooldown window.
// While active, repeat violations of the same rule are suppressed.
type ActiveAlert struct {
	Violation Violation
	ExpiresAt time.Time
}

// Notifier receives surviving violations.
type Notifier interface {
	Notify(payload notify.Payload) []notify.Result
}

// Sink receives a compliance-grade copy of each surviving violation.
type Sink interface {
	Record(eventType, resource, action, status string, details map[string]any) error
}
