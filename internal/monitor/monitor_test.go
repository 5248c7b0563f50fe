package monitor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/halcyard/taskguard/internal/logger"
	"codeberg.org/halcyard/taskguard/internal/notify"
)

type fakeNotifier struct {
	payloads []notify.Payload
}

func (f *fakeNotifier) Notify(p notify.Payload) []notify.Result {
	f.payloads = append(f.payloads, p)
	return []notify.Result{{ChannelID: "fake", OK: true}}
}

type fakeSink struct {
	events []string
}

func (f *fakeSink) Record(eventType, _, _, _ string, _ map[string]any) error {
	f.events = append(f.events, eventType)
	return nil
}

// testClock drives the monitor's notion of time.
type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time { return c.t }

func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestMonitor() (*Monitor, *testClock, *fakeNotifier, *fakeSink) {
	logger.Init("error", true)

	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	notifier := &fakeNotifier{}
	sink := &fakeSink{}

	m := New(logger.Component("monitor_test"), notifier, sink)
	m.now = clock.now
	m.stats = freshStats(clock.t)

	return m, clock, notifier, sink
}

func runExecution(m *Monitor, clock *testClock, id, skill string, duration time.Duration, peakCPU float64, success bool, errCode string) {
	m.StartExecution(id, skill)
	m.UpdateExecutionMetrics(id, Update{
		CPU:    &ResourceUsage{Average: peakCPU / 2, Peak: peakCPU},
		Memory: &ResourceUsage{Average: 128, Peak: 256},
	})
	clock.advance(duration)
	m.EndExecution(id, success, errCode, "")
}

func TestAggregateConsistency(t *testing.T) {
	m, clock, _, _ := newTestMonitor()

	runExecution(m, clock, "e1", "backup", 2*time.Second, 40, true, "")
	runExecution(m, clock, "e2", "backup", 4*time.Second, 85, true, "")
	runExecution(m, clock, "e3", "cleanup", 6*time.Second, 60, false, "E_TIMEOUT")

	stats := m.Snapshot()
	assert.Equal(t, stats.Total, stats.Successful+stats.Failed)
	assert.EqualValues(t, 3, stats.Total)
	assert.EqualValues(t, 1, stats.Failed)
	assert.Equal(t, 85.0, stats.Maxima.MaxCPU, "maximum peak CPU across completed executions")
	assert.Equal(t, 4*time.Second, stats.AvgDuration, "incremental mean over 2s, 4s, 6s")
	assert.EqualValues(t, 1, stats.ErrorCodes["E_TIMEOUT"])
}

func TestPerSkillStats(t *testing.T) {
	m, clock, _, _ := newTestMonitor()

	runExecution(m, clock, "e1", "backup", 2*time.Second, 10, true, "")
	runExecution(m, clock, "e2", "backup", 4*time.Second, 10, false, "E_IO")
	runExecution(m, clock, "e3", "cleanup", 1*time.Second, 10, true, "")

	stats := m.Snapshot()
	backup := stats.Skills["backup"]
	assert.EqualValues(t, 2, backup.Total)
	assert.EqualValues(t, 1, backup.Failed)
	assert.Equal(t, 3*time.Second, backup.AvgDuration)
	assert.EqualValues(t, 1, stats.Skills["cleanup"].Total)
}

func TestResourceMaximaMonotone(t *testing.T) {
	m, clock, _, _ := newTestMonitor()

	runExecution(m, clock, "e1", "s", time.Second, 90, true, "")
	runExecution(m, clock, "e2", "s", time.Second, 30, true, "")

	stats := m.Snapshot()
	assert.Equal(t, 90.0, stats.Maxima.MaxCPU, "maxima never decrease within a window")
}

func TestUnknownExecutionIsNoop(t *testing.T) {
	m, _, _, _ := newTestMonitor()

	m.UpdateExecutionMetrics("ghost", Update{CPU: &ResourceUsage{Peak: 99}})
	m.EndExecution("ghost", false, "E_GHOST", "")

	stats := m.Snapshot()
	assert.Zero(t, stats.Total)
	assert.Empty(t, stats.ErrorCodes)
}

func TestDuplicateStartOverwrites(t *testing.T) {
	m, clock, _, _ := newTestMonitor()

	m.StartExecution("e1", "first")
	m.StartExecution("e1", "second")
	clock.advance(time.Second)
	m.EndExecution("e1", true, "", "")

	stats := m.Snapshot()
	assert.EqualValues(t, 1, stats.Total)
	assert.Contains(t, stats.Skills, "second")
	assert.NotContains(t, stats.Skills, "first")
}

func TestHighSeverityEventRaisesCriticalAlert(t *testing.T) {
	m, _, notifier, sink := newTestMonitor()

	m.StartExecution("e1", "backup")
	m.RecordSecurityEvent("e1", EventSeverityHigh, "sandbox.escape", map[string]string{"path": "/etc"})

	alerts := m.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, notify.SeverityCritical, alerts[0].Severity)

	require.Len(t, notifier.payloads, 1)
	assert.Equal(t, notify.SeverityCritical, notifier.payloads[0].Severity)

	// The ledger copy is written for every severity.
	assert.Equal(t, []string{"security.event"}, sink.events)
}

func TestLowSeverityEventDoesNotAlert(t *testing.T) {
	m, _, notifier, sink := newTestMonitor()

	m.StartExecution("e1", "backup")
	m.RecordSecurityEvent("e1", EventSeverityLow, "policy.warn", nil)
	m.RecordSecurityEvent("e1", EventSeverityMedium, "policy.block", nil)

	assert.Empty(t, m.Alerts())
	assert.Empty(t, notifier.payloads)
	assert.Len(t, sink.events, 2)

	stats := m.Snapshot()
	assert.EqualValues(t, 2, stats.SecurityEvents)
}

func TestAlertHistoryBounded(t *testing.T) {
	m, _, _, _ := newTestMonitor()

	for i := 0; i < maxAlerts+50; i++ {
		m.RaiseAlert(notify.SeverityInfo, fmt.Sprintf("alert-%d", i), "m", nil)
	}

	alerts := m.Alerts()
	assert.Len(t, alerts, maxAlerts)
	assert.Equal(t, "alert-50", alerts[0].Title, "oldest entries fall off the ring")
}

func TestAcknowledgeKeepsHistory(t *testing.T) {
	m, _, _, _ := newTestMonitor()

	raised := m.RaiseAlert(notify.SeverityWarning, "disk", "filling up", nil)

	require.True(t, m.AcknowledgeAlert(raised.ID))
	assert.False(t, m.AcknowledgeAlert("missing"))

	alerts := m.Alerts()
	require.Len(t, alerts, 1, "acknowledgement never removes history")
	assert.True(t, alerts[0].Acknowledged)
}

func TestRecentFailuresWindow(t *testing.T) {
	m, clock, _, _ := newTestMonitor()

	runExecution(m, clock, "old", "s", time.Second, 10, false, "E_OLD")
	clock.advance(10 * time.Minute)
	runExecution(m, clock, "recent1", "s", time.Second, 10, false, "E_NEW")
	runExecution(m, clock, "recent2", "s", time.Second, 10, true, "")

	assert.Equal(t, 1, m.RecentFailures(5*time.Minute), "only failures inside the trailing window count")
}

func TestRecentEventsByType(t *testing.T) {
	m, clock, _, _ := newTestMonitor()

	m.StartExecution("e1", "s")
	for i := 0; i < 3; i++ {
		m.RecordSecurityEvent("e1", EventSeverityMedium, "auth.login", nil)
		clock.advance(10 * time.Second)
	}
	clock.advance(2 * time.Minute)
	m.RecordSecurityEvent("e1", EventSeverityMedium, "auth.login", nil)

	assert.Equal(t, 1, m.RecentEvents("auth.login", time.Minute))
	assert.Equal(t, 4, m.RecentEvents("auth.login", time.Hour))
}

func TestWindowReset(t *testing.T) {
	m, clock, _, _ := newTestMonitor()

	runExecution(m, clock, "e1", "s", time.Second, 50, true, "")
	assert.False(t, m.NeedsReset(clock.t))

	clock.advance(time.Hour)
	assert.True(t, m.NeedsReset(clock.t))

	m.ResetWindow()
	stats := m.Snapshot()
	assert.Zero(t, stats.Total)
	assert.Zero(t, stats.Maxima.MaxCPU)
	assert.Empty(t, stats.Skills)
	assert.Equal(t, clock.t.Truncate(time.Hour), stats.WindowStart)
}

func TestDashboardHealth(t *testing.T) {
	m, clock, _, _ := newTestMonitor()

	dash := m.Dashboard()
	assert.Equal(t, HealthHealthy, dash.Health)

	runExecution(m, clock, "e1", "s", time.Second, 10, false, "E_X")
	dash = m.Dashboard()
	assert.Equal(t, HealthDegraded, dash.Health)
	assert.Equal(t, 1, dash.RecentErrors)

	alert := m.RaiseAlert(notify.SeverityCritical, "bad", "very bad", nil)
	dash = m.Dashboard()
	assert.Equal(t, HealthUnhealthy, dash.Health)

	m.AcknowledgeAlert(alert.ID)
	dash = m.Dashboard()
	assert.Equal(t, HealthDegraded, dash.Health)
}

func TestRefreshGauges(t *testing.T) {
	m, _, _, _ := newTestMonitor()

	m.RefreshGauges(context.Background())
	g := m.CurrentGauges()

	assert.GreaterOrEqual(t, g.CPUPercent, 0.0)
	assert.Greater(t, g.MemoryPercent, 0.0)
	assert.Greater(t, g.MemoryUsedMB, 0.0)
	assert.False(t, g.SampledAt.IsZero())
}

func TestDashboardActiveExecutions(t *testing.T) {
	m, _, _, _ := newTestMonitor()

	m.StartExecution("e1", "s")
	m.StartExecution("e2", "s")
	assert.Equal(t, 2, m.Dashboard().ActiveExecutions)

	m.EndExecution("e1", true, "", "")
	assert.Equal(t, 1, m.Dashboard().ActiveExecutions)
}
