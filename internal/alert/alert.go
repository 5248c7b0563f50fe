package alert

import (
	"fmt"
	"sync"
	"time"

	"codeberg.org/halcyard/taskguard/internal/logger"
	"codeberg.org/halcyard/taskguard/internal/notify"
)

// Manager evaluates a replaceable rule set against metric snapshots and
// hands surviving violations to the notifier. Repeat violations of a
// rule inside its cooldown window are suppressed entirely.
type Manager struct {
	mu       sync.Mutex
	rules    []Rule
	active   map[string]ActiveAlert
	notifier Notifier
	sink     Sink
	log      logger.Logger

	now func() time.Time
}

// New constructs a Manager. notifier and sink may be nil.
func New(log logger.Logger, notifier Notifier, sink Sink) *Manager {
	return &Manager{
		active:   make(map[string]ActiveAlert),
		notifier: notifier,
		sink:     sink,
		log:      log,
		now:      time.Now,
	}
}

// SetRules replaces the full rule set; there is no incremental merge.
func (m *Manager) SetRules(rules []Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rules = rules
}

// Evaluate runs every rule against the snapshot in registration order.
// A failing rule is isolated and never blocks the remaining rules.
// Suppressed violations are neither returned nor notified.
func (m *Manager) Evaluate(ctx Context) []Violation {
	m.mu.Lock()
	rules := m.rules
	m.mu.Unlock()

	now := m.now().UTC()
	var out []Violation

	for _, rule := range rules {
		violation, err := m.checkRule(rule, ctx)
		if err != nil {
			m.log.Warn().Str("rule", rule.ID).Err(err).Msg("Rule evaluation failed")
			continue
		}
		if violation == nil {
			continue
		}

		violation.RuleID = rule.ID
		violation.Severity = rule.Severity
		if violation.Timestamp.IsZero() {
			violation.Timestamp = now
		}

		m.mu.Lock()
		if tracked, ok := m.active[rule.ID]; ok && tracked.ExpiresAt.After(now) {
			m.mu.Unlock()
			continue
		}
		m.active[rule.ID] = ActiveAlert{
			Violation: *violation,
			ExpiresAt: now.Add(rule.Cooldown),
		}
		m.mu.Unlock()

		out = append(out, *violation)
		m.dispatch(*violation)
	}

	return out
}

// checkRule isolates one rule: a panicking predicate is converted into
// an error instead of aborting the evaluation pass.
func (m *Manager) checkRule(rule Rule, ctx Context) (violation *Violation, err error) {
	defer func() {
		if r := recover(); r != nil {
			violation = nil
			err = fmt.Errorf("rule panicked: %v", r)
		}
	}()

	return rule.Check(ctx)
}

func (m *Manager) dispatch(v Violation) {
	if m.notifier != nil {
		m.notifier.Notify(notify.Payload{
			Severity:  v.Severity,
			Title:     "Alert rule " + v.RuleID,
			Message:   v.Message,
			Details:   v.Details,
			Timestamp: v.Timestamp,
		})
	}

	if m.sink != nil {
		details := map[string]any{
			"rule_id":  v.RuleID,
			"severity": v.Severity.String(),
			"message":  v.Message,
		}
		if err := m.sink.Record("alert.violation", "monitoring", v.RuleID, "raised", details); err != nil {
			m.log.Error().Err(err).Str("rule", v.RuleID).Msg("Failed to record violation in audit ledger")
		}
	}
}

// ActiveAlerts returns tracked alerts still inside their cooldown.
// Expired entries are pruned here, at read time, rather than by a
// background sweep.
func (m *Manager) ActiveAlerts() []ActiveAlert {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	out := make([]ActiveAlert, 0, len(m.active))
	for id, tracked := range m.active {
		if !tracked.ExpiresAt.After(now) {
			delete(m.active, id)
			continue
		}
		out = append(out, tracked)
	}

	return out
}
