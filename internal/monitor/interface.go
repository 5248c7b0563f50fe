package monitor

import (
	"time"

	"codeberg.org/halcyard/taskguard/internal/notify"
)

// ResourceUsage is one resource dimension of an execution.
type ResourceUsage struct {
	Average float64
	Peak    float64
	Total   float64
}

// ExecutionMetrics tracks one in-flight execution. It is created on
// start, mutated by partial updates, and folded into the rolling
// aggregate on end; it is not retained individually.
type ExecutionMetrics struct {
	ExecutionID    string
	SkillID        string
	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
	CPU            ResourceUsage
	Memory         ResourceUsage
	Disk           ResourceUsage
	Network        ResourceUsage
	SecurityEvents int
	Success        bool
	ErrorCode      string
	ErrorMessage   string
}

// Update carries a partial metrics update; nil fields are left as-is.
type Update struct {
	CPU     *ResourceUsage
	Memory  *ResourceUsage
	Disk    *ResourceUsage
	Network *ResourceUsage
}

// SkillStats is the per-skill slice of the rolling aggregate.
type SkillStats struct {
	Total       int64
	Successful  int64
	Failed      int64
	AvgDuration time.Duration
}

// ResourceMaxima are monotonically non-decreasing within one window.
type ResourceMaxima struct {
	MaxCPU     float64
	MaxMemory  float64
	MaxDisk    float64
	MaxNetwork float64
}

// Stats is the rolling aggregate over the current window. The window
// resets wholesale on the hour; consumers wanting history must snapshot
// before the reset.
type Stats struct {
	WindowStart    time.Time
	Total          int64
	Successful     int64
	Failed         int64
	AvgDuration    time.Duration
	Maxima         ResourceMaxima
	Skills         map[string]SkillStats
	ErrorCodes     map[string]int64
	SecurityEvents int64
}

// EventSeverity ranks security events.
type EventSeverity int8

const (
	EventSeverityLow EventSeverity = iota
	EventSeverityMedium
	EventSeverityHigh
)

func (s EventSeverity) String() string {
	switch s {
	case EventSeverityLow:
		return "low"
	case EventSeverityMedium:
		return "medium"
	case EventSeverityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Alert is one entry in the bounded alert history. Acknowledgement only
// flips the flag; history is never removed.
type Alert struct {
	ID           string
	Severity     notify.Severity
	Title        string
	Message      string
	Details      map[string]string
	Timestamp    time.Time
	Acknowledged bool
}

// Gauges are the per-second sampled host counters.
type Gauges struct {
	CPUPercent    float64
	MemoryPercent float64
	MemoryUsedMB  float64
	SampledAt     time.Time
}

// Health summarizes the dashboard state.
type Health string

const (
	HealthHealthy   Health = "healthy"
	HealthDegraded  Health = "degraded"
	HealthUnhealthy Health = "unhealthy"
)

// Dashboard is a point-in-time view for operator surfaces.
type Dashboard struct {
	Timestamp        time.Time
	Stats            Stats
	ActiveExecutions int
	Gauges           Gauges
	RecentErrors     int
	RecentAlerts     []Alert
	Health           Health
}

// EventSink receives compliance-grade copies of security events. The
// entry point wires it to the audit ledger.
type EventSink interface {
	Record(eventType, resource, action, status string, details map[string]any) error
}

// Notifier fans out the hard-coded critical alerts raised for
// high-severity security events.
type Notifier interface {
	Notify(payload notify.Payload) []notify.Result
}
