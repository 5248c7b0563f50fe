package audit

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportJSON(t *testing.T) {
	l, err := New(testConfig(t), testLogger())
	require.NoError(t, err)
	defer l.Close()

	mustLog(t, l, "export.event", "success")

	data, err := l.Export(Filter{}, FormatJSON)
	require.NoError(t, err)

	var entries []*Entry
	require.NoError(t, json.Unmarshal(data, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "export.event", entries[0].EventType)
	assert.NotEmpty(t, entries[0].CurrentHash, "structured export keeps full fidelity")
}

func TestExportCSVEscapesQuotes(t *testing.T) {
	l, err := New(testConfig(t), testLogger())
	require.NoError(t, err)
	defer l.Close()

	_, err = l.LogEvent("export.event", "user", "rename", "success", nil,
		Metadata{UserID: `alice "the admin", ops`, IPAddress: "10.0.0.1"})
	require.NoError(t, err)

	data, err := l.Export(Filter{}, FormatCSV)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "timestamp,event_type,resource,action,status,user_id,ip_address", lines[0])
	assert.Contains(t, lines[1], `"alice ""the admin"", ops"`, "embedded quotes and commas must be escaped")
	assert.Contains(t, lines[1], "10.0.0.1")
}

func TestExportText(t *testing.T) {
	l, err := New(testConfig(t), testLogger())
	require.NoError(t, err)
	defer l.Close()

	_, err = l.LogEvent("export.event", "user", "authenticate", "failure", nil, Metadata{UserID: "u1"})
	require.NoError(t, err)

	data, err := l.Export(Filter{}, FormatText)
	require.NoError(t, err)

	text := string(data)
	assert.Contains(t, text, "[export.event]")
	assert.Contains(t, text, "user=u1")
	assert.True(t, strings.HasSuffix(text, "\n"))
}

func TestExportUnknownFormat(t *testing.T) {
	l, err := New(testConfig(t), testLogger())
	require.NoError(t, err)
	defer l.Close()

	_, err = l.Export(Filter{}, Format("yaml"))
	require.Error(t, err)
}

func TestExportRespectsFilter(t *testing.T) {
	l, err := New(testConfig(t), testLogger())
	require.NoError(t, err)
	defer l.Close()

	mustLog(t, l, "wanted.event", "success")
	mustLog(t, l, "other.event", "success")

	data, err := l.Export(Filter{EventType: "wanted.event"}, FormatJSON)
	require.NoError(t, err)

	var entries []*Entry
	require.NoError(t, json.Unmarshal(data, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "wanted.event", entries[0].EventType)
}
