package monitor

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/halcyard/taskguard/internal/errors"
	"codeberg.org/halcyard/taskguard/internal/logger"
)

func testHistory(t *testing.T) *History {
	t.Helper()
	logger.Init("error", true)

	h, err := NewHistory(filepath.Join(t.TempDir(), "stats.db"), logger.Component("history_test"))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })

	return h
}

func sampleStats(windowStart time.Time) Stats {
	return Stats{
		WindowStart: windowStart,
		Total:       12,
		Successful:  10,
		Failed:      2,
		AvgDuration: 1500 * time.Millisecond,
		Maxima: ResourceMaxima{
			MaxCPU:    77.5,
			MaxMemory: 512,
		},
		SecurityEvents: 3,
		ErrorCodes:     map[string]int64{"E_TIMEOUT": 2},
		Skills: map[string]SkillStats{
			"backup": {Total: 12, Successful: 10, Failed: 2, AvgDuration: 1500 * time.Millisecond},
		},
	}
}

func TestHistoryRoundTrip(t *testing.T) {
	h := testHistory(t)

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stats := sampleStats(start)
	require.NoError(t, h.Record(stats, start.Add(time.Hour)))

	records, err := h.Latest(5)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, start, rec.WindowStart)
	assert.Equal(t, start.Add(time.Hour), rec.WindowEnd)
	assert.Equal(t, stats.Total, rec.Total)
	assert.Equal(t, stats.Failed, rec.Failed)
	assert.Equal(t, 1500.0, rec.AvgDurationMs)
	assert.Equal(t, 77.5, rec.Maxima.MaxCPU)
	assert.Equal(t, stats.ErrorCodes, rec.ErrorCodes)
	assert.Equal(t, stats.Skills, rec.Skills)
}

func TestHistoryLatestOrderAndLimit(t *testing.T) {
	h := testHistory(t)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		start := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, h.Record(sampleStats(start), start.Add(time.Hour)))
	}

	records, err := h.Latest(2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, base.Add(3*time.Hour), records[0].WindowStart, "newest first")
	assert.Equal(t, base.Add(2*time.Hour), records[1].WindowStart)
}

func TestHistoryReplacesDuplicateWindow(t *testing.T) {
	h := testHistory(t)

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := sampleStats(start)
	require.NoError(t, h.Record(first, start.Add(time.Hour)))

	second := sampleStats(start)
	second.Total = 99
	require.NoError(t, h.Record(second, start.Add(time.Hour)))

	records, err := h.Latest(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.EqualValues(t, 99, records[0].Total)
}

func TestHistoryRejectsEmptyPath(t *testing.T) {
	logger.Init("error", true)

	_, err := NewHistory("", logger.Component("history_test"))
	require.Error(t, err)
	assert.Equal(t, ErrInvalidDBPath, errors.CodeOf(err))
}
