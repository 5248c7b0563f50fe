package alert

import (
	"fmt"
	"time"

	"codeberg.org/halcyard/taskguard/internal/notify"
)

// Standard rule constructors. Thresholds come from configuration; the
// rules themselves are ordinary Rules and carry no special casing in
// the manager.

// ErrorRateRule fires when the window's failure ratio exceeds the
// threshold (0..1). Windows with no completed executions never fire.
func ErrorRateRule(threshold float64, cooldown time.Duration) Rule {
	return Rule{
		ID:       "error-rate",
		Severity: notify.SeverityWarning,
		Cooldown: cooldown,
		Check: func(ctx Context) (*Violation, error) {
			if ctx.Stats.Total == 0 {
				return nil, nil
			}
			rate := float64(ctx.Stats.Failed) / float64(ctx.Stats.Total)
			if rate <= threshold {
				return nil, nil
			}
			return &Violation{
				Message: fmt.Sprintf("execution error rate %.1f%% exceeds %.1f%%", rate*100, threshold*100),
				Details: map[string]string{
					"failed": fmt.Sprintf("%d", ctx.Stats.Failed),
					"total":  fmt.Sprintf("%d", ctx.Stats.Total),
				},
			}, nil
		},
	}
}

// MeanDurationRule fires when the window's mean execution time exceeds
// the limit.
func MeanDurationRule(limit time.Duration, cooldown time.Duration) Rule {
	return Rule{
		ID:       "mean-duration",
		Severity: notify.SeverityWarning,
		Cooldown: cooldown,
		Check: func(ctx Context) (*Violation, error) {
			if ctx.Stats.Total == 0 || ctx.Stats.AvgDuration <= limit {
				return nil, nil
			}
			return &Violation{
				Message: fmt.Sprintf("mean execution time %s exceeds %s", ctx.Stats.AvgDuration, limit),
			}, nil
		},
	}
}

// MemoryRule fires when host memory usage exceeds the given percentage.
func MemoryRule(percent float64, cooldown time.Duration) Rule {
	return Rule{
		ID:       "host-memory",
		Severity: notify.SeverityWarning,
		Cooldown: cooldown,
		Check: func(ctx Context) (*Violation, error) {
			if ctx.MemoryPercent <= percent {
				return nil, nil
			}
			return &Violation{
				Message: fmt.Sprintf("host memory usage %.1f%% exceeds %.1f%%", ctx.MemoryPercent, percent),
			}, nil
		},
	}
}

// SecurityEventRule fires when the window accumulates too many security
// events.
func SecurityEventRule(limit int64, cooldown time.Duration) Rule {
	return Rule{
		ID:       "security-events",
		Severity: notify.SeverityCritical,
		Cooldown: cooldown,
		Check: func(ctx Context) (*Violation, error) {
			if ctx.Stats.SecurityEvents < limit {
				return nil, nil
			}
			return &Violation{
				Message: fmt.Sprintf("%d security events this window (limit %d)", ctx.Stats.SecurityEvents, limit),
			}, nil
		},
	}
}

// LoginFailureSpikeRule fires when authentication failures in the
// trailing minute reach the threshold.
func LoginFailureSpikeRule(threshold int, cooldown time.Duration) Rule {
	return Rule{
		ID:       "login-failure-spike",
		Severity: notify.SeverityCritical,
		Cooldown: cooldown,
		Check: func(ctx Context) (*Violation, error) {
			if ctx.LoginFailures < threshold {
				return nil, nil
			}
			return &Violation{
				Message: fmt.Sprintf("%d login failures in the last minute (threshold %d)", ctx.LoginFailures, threshold),
				Details: map[string]string{
					"failures": fmt.Sprintf("%d", ctx.LoginFailures),
				},
			}, nil
		},
	}
}
