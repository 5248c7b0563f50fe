package monitor

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"codeberg.org/halcyard/taskguard/internal/logger"
	"codeberg.org/halcyard/taskguard/internal/notify"
)

const (
	maxAlerts      = 100
	maxEventBuffer = 10000
	recentWindow   = 5 * time.Minute
)

type eventRecord struct {
	Timestamp time.Time
	EventType string
	Failure   bool
}

// Monitor tracks live per-execution metrics, folds completed executions
// into the rolling aggregate, records security events, and raises
// critical alerts for high-severity events independent of any rule
// engine.
type Monitor struct {
	mu       sync.Mutex
	live     map[string]*ExecutionMetrics
	stats    Stats
	alerts   []Alert
	events   []eventRecord
	gauges   Gauges
	log      logger.Logger
	notifier Notifier
	sink     EventSink

	now func() time.Time
}

// New constructs a Monitor. notifier and sink may be nil; the critical
// fast path and ledger copies are then skipped.
func New(log logger.Logger, notifier Notifier, sink EventSink) *Monitor {
	m := &Monitor{
		live:     make(map[string]*ExecutionMetrics),
		log:      log,
		notifier: notifier,
		sink:     sink,
		now:      time.Now,
	}
	m.stats = freshStats(m.now())

	return m
}

func freshStats(now time.Time) Stats {
	return Stats{
		WindowStart: now.UTC().Truncate(time.Hour),
		Skills:      make(map[string]SkillStats),
		ErrorCodes:  make(map[string]int64),
	}
}

// StartExecution initializes a zeroed metrics record. A duplicate id
// overwrites the previous record; duplicate start signals are expected
// from the execution layer.
func (m *Monitor) StartExecution(executionID, skillID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.live[executionID] = &ExecutionMetrics{
		ExecutionID: executionID,
		SkillID:     skillID,
		StartTime:   m.now().UTC(),
	}
}

// UpdateExecutionMetrics merges a partial update into the live record.
// Unknown ids are a silent no-op: updates can arrive out of order.
func (m *Monitor) UpdateExecutionMetrics(executionID string, update Update) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.live[executionID]
	if !ok {
		return
	}

	if update.CPU != nil {
		rec.CPU = *update.CPU
	}
	if update.Memory != nil {
		rec.Memory = *update.Memory
	}
	if update.Disk != nil {
		rec.Disk = *update.Disk
	}
	if update.Network != nil {
		rec.Network = *update.Network
	}
}

// EndExecution finalizes the live record, folds it into the aggregate,
// and discards it. Unknown ids are a no-op.
func (m *Monitor) EndExecution(executionID string, success bool, errorCode, errorMessage string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.live[executionID]
	if !ok {
		return
	}
	delete(m.live, executionID)

	rec.EndTime = m.now().UTC()
	rec.Duration = rec.EndTime.Sub(rec.StartTime)
	rec.Success = success
	rec.ErrorCode = errorCode
	rec.ErrorMessage = errorMessage

	m.foldLocked(rec)
	m.pushEventLocked(eventRecord{
		Timestamp: rec.EndTime,
		EventType: "execution",
		Failure:   !success,
	})
}

// foldLocked applies one completed execution to the rolling aggregate
// using an incremental mean, avoiding any re-scan of history.
func (m *Monitor) foldLocked(rec *ExecutionMetrics) {
	s := &m.stats

	s.Total++
	if rec.Success {
		s.Successful++
	} else {
		s.Failed++
		if rec.ErrorCode != "" {
			s.ErrorCodes[rec.ErrorCode]++
		}
	}

	n := float64(s.Total)
	s.AvgDuration = time.Duration((float64(s.AvgDuration)*(n-1) + float64(rec.Duration)) / n)

	s.Maxima.MaxCPU = max(s.Maxima.MaxCPU, rec.CPU.Peak)
	s.Maxima.MaxMemory = max(s.Maxima.MaxMemory, rec.Memory.Peak)
	s.Maxima.MaxDisk = max(s.Maxima.MaxDisk, rec.Disk.Total)
	s.Maxima.MaxNetwork = max(s.Maxima.MaxNetwork, rec.Network.Total)

	skill := s.Skills[rec.SkillID]
	skill.Total++
	if rec.Success {
		skill.Successful++
	} else {
		skill.Failed++
	}
	sn := float64(skill.Total)
	skill.AvgDuration = time.Duration((float64(skill.AvgDuration)*(sn-1) + float64(rec.Duration)) / sn)
	s.Skills[rec.SkillID] = skill
}

// RecordSecurityEvent increments live and aggregate counters. A high
// severity event always raises a critical alert through the hard-coded
// fast path, bypassing rule evaluation for this one class of event.
func (m *Monitor) RecordSecurityEvent(executionID string, severity EventSeverity, eventType string, details map[string]string) {
	m.mu.Lock()

	if rec, ok := m.live[executionID]; ok {
		rec.SecurityEvents++
	}
	m.stats.SecurityEvents++
	m.pushEventLocked(eventRecord{
		Timestamp: m.now().UTC(),
		EventType: eventType,
		Failure:   severity >= EventSeverityMedium,
	})
	m.mu.Unlock()

	if m.sink != nil {
		auditDetails := map[string]any{"severity": severity.String(), "execution_id": executionID}
		for k, v := range details {
			auditDetails[k] = v
		}
		if err := m.sink.Record("security.event", "execution", eventType, "recorded", auditDetails); err != nil {
			m.log.Error().Err(err).Str("execution_id", executionID).Msg("Failed to record security event in audit ledger")
		}
	}

	if severity == EventSeverityHigh {
		m.RaiseAlert(notify.SeverityCritical, "High-severity security event",
			eventType+" during execution "+executionID, details)
	}
}

// RaiseAlert appends an alert to the bounded history and notifies.
func (m *Monitor) RaiseAlert(severity notify.Severity, title, message string, details map[string]string) Alert {
	alert := Alert{
		ID:        uuid.NewString(),
		Severity:  severity,
		Title:     title,
		Message:   message,
		Details:   details,
		Timestamp: m.now().UTC(),
	}

	m.mu.Lock()
	m.alerts = append(m.alerts, alert)
	if len(m.alerts) > maxAlerts {
		m.alerts = m.alerts[len(m.alerts)-maxAlerts:]
	}
	m.mu.Unlock()

	m.log.Warn().
		Str("severity", severity.String()).
		Str("title", title).
		Msg(message)

	if m.notifier != nil {
		m.notifier.Notify(notify.Payload{
			Severity:  severity,
			Title:     title,
			Message:   message,
			Details:   details,
			Timestamp: alert.Timestamp,
		})
	}

	return alert
}

// AcknowledgeAlert flips the acknowledged flag; the alert stays in
// history.
func (m *Monitor) AcknowledgeAlert(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.alerts {
		if m.alerts[i].ID == id {
			m.alerts[i].Acknowledged = true
			return true
		}
	}

	return false
}

// Alerts returns a copy of the alert history, oldest first.
func (m *Monitor) Alerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Alert, len(m.alerts))
	copy(out, m.alerts)

	return out
}

func (m *Monitor) pushEventLocked(ev eventRecord) {
	m.events = append(m.events, ev)
	if len(m.events) > maxEventBuffer {
		m.events = m.events[len(m.events)-maxEventBuffer:]
	}
}

// RecentFailures counts failed executions in the trailing window.
func (m *Monitor) RecentFailures(window time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.countEventsLocked("", window, true)
}

// RecentEvents counts buffered events of one type in the trailing
// window, regardless of outcome.
func (m *Monitor) RecentEvents(eventType string, window time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.countEventsLocked(eventType, window, false)
}

func (m *Monitor) countEventsLocked(eventType string, window time.Duration, failuresOnly bool) int {
	cutoff := m.now().UTC().Add(-window)
	count := 0
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].Timestamp.Before(cutoff) {
			break
		}
		if failuresOnly && !m.events[i].Failure {
			continue
		}
		if eventType != "" && m.events[i].EventType != eventType {
			continue
		}
		count++
	}

	return count
}

// Snapshot returns a deep copy of the rolling aggregate.
func (m *Monitor) Snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return copyStats(m.stats)
}

func copyStats(s Stats) Stats {
	out := s
	out.Skills = make(map[string]SkillStats, len(s.Skills))
	for k, v := range s.Skills {
		out.Skills[k] = v
	}
	out.ErrorCodes = make(map[string]int64, len(s.ErrorCodes))
	for k, v := range s.ErrorCodes {
		out.ErrorCodes[k] = v
	}

	return out
}

// NeedsReset reports whether the current window's hourly boundary has
// passed.
func (m *Monitor) NeedsReset(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return now.UTC().Truncate(time.Hour).After(m.stats.WindowStart)
}

// ResetWindow discards the aggregate wholesale. No persistence happens
// here; a consumer wanting history must snapshot first.
func (m *Monitor) ResetWindow() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats = freshStats(m.now())
}

// Dashboard assembles the operator-facing snapshot.
func (m *Monitor) Dashboard() Dashboard {
	m.mu.Lock()
	stats := copyStats(m.stats)
	active := len(m.live)
	gauges := m.gauges

	recent := make([]Alert, 0, 10)
	for i := len(m.alerts) - 1; i >= 0 && len(recent) < 10; i-- {
		recent = append(recent, m.alerts[i])
	}
	m.mu.Unlock()

	errors := m.RecentFailures(recentWindow)

	return Dashboard{
		Timestamp:        m.now().UTC(),
		Stats:            stats,
		ActiveExecutions: active,
		Gauges:           gauges,
		RecentErrors:     errors,
		RecentAlerts:     recent,
		Health:           health(recent, errors),
	}
}

func health(recentAlerts []Alert, recentErrors int) Health {
	for _, a := range recentAlerts {
		if a.Severity == notify.SeverityCritical && !a.Acknowledged {
			return HealthUnhealthy
		}
	}
	if recentErrors > 0 {
		return HealthDegraded
	}

	return HealthHealthy
}
