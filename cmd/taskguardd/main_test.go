package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/halcyard/taskguard/internal/audit"
	"codeberg.org/halcyard/taskguard/internal/logger"
	"codeberg.org/halcyard/taskguard/internal/monitor"
	"codeberg.org/halcyard/taskguard/internal/notify"
)

func testLedger(t *testing.T) *audit.Logger {
	t.Helper()
	logger.Init("error", true)

	ledger, err := audit.New(audit.Config{
		Dir:           filepath.Join(t.TempDir(), "audit"),
		MaxFileSize:   1 << 20,
		RetentionDays: 30,
	}, logger.Component("main_test"))
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	return ledger
}

func TestCountLoginFailures(t *testing.T) {
	ledger := testLedger(t)

	for i := 0; i < 3; i++ {
		_, err := ledger.LogEvent("auth.login", "user", "authenticate", "failure", nil,
			audit.Metadata{UserID: "u1", IPAddress: "10.0.0.1"})
		require.NoError(t, err)
	}
	// Successful logins and unrelated failures never count toward the
	// spike threshold.
	_, err := ledger.LogEvent("auth.login", "user", "authenticate", "success", nil,
		audit.Metadata{UserID: "u1"})
	require.NoError(t, err)
	_, err = ledger.LogEvent("task.run", "execution", "execute", "failure", nil, audit.Metadata{})
	require.NoError(t, err)

	assert.Equal(t, 3, countLoginFailures(ledger, time.Minute))
}

func TestCountLoginFailuresEmptyLedger(t *testing.T) {
	ledger := testLedger(t)

	assert.Zero(t, countLoginFailures(ledger, time.Minute))
}

func TestIntegrityReportHandling(t *testing.T) {
	logger.Init("error", true)
	mon := monitor.New(logger.Component("main_test"), nil, nil)

	handleIntegrityReport(&audit.Report{Files: 3, Entries: 10, Aborted: true}, mon)
	assert.Empty(t, mon.Alerts(), "a cancelled scan with no findings is not a violation")

	handleIntegrityReport(&audit.Report{
		Files:         2,
		Entries:       5,
		Discrepancies: []audit.Discrepancy{{Kind: audit.DiscrepancyHashMismatch, Line: 2}},
	}, mon)

	alerts := mon.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, notify.SeverityCritical, alerts[0].Severity)
}
