package notify

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/halcyard/taskguard/internal/errors"
	"codeberg.org/halcyard/taskguard/internal/logger"
)

type recordingSender struct {
	sent []Payload
	err  error
}

func (r *recordingSender) Send(_ ChannelConfig, payload Payload) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, payload)
	return nil
}

func newTestManager() *Manager {
	logger.Init("error", true)
	return NewManager(logger.Component("notify_test"))
}

func TestMinSeverityFilter(t *testing.T) {
	m := newTestManager()
	sender := &recordingSender{}
	m.RegisterSender(ChannelWebhook, sender)
	m.ConfigureChannels([]ChannelConfig{
		{ID: "ops", Type: ChannelWebhook, Enabled: true, MinSeverity: SeverityWarning},
	})

	assert.Empty(t, m.Notify(Payload{Severity: SeverityInfo, Title: "noise"}),
		"below the channel minimum, not even attempted")

	results := m.Notify(Payload{Severity: SeverityWarning, Title: "warn"})
	require.Len(t, results, 1)
	assert.True(t, results[0].OK)

	results = m.Notify(Payload{Severity: SeverityCritical, Title: "crit"})
	require.Len(t, results, 1)
	assert.True(t, results[0].OK)

	require.Len(t, sender.sent, 2)
	assert.Equal(t, "warn", sender.sent[0].Title)
	assert.Equal(t, "crit", sender.sent[1].Title)
}

func TestDisabledChannelsDropped(t *testing.T) {
	m := newTestManager()
	sender := &recordingSender{}
	m.RegisterSender(ChannelChat, sender)
	m.ConfigureChannels([]ChannelConfig{
		{ID: "off", Type: ChannelChat, Enabled: false},
		{ID: "on", Type: ChannelChat, Enabled: true},
	})

	results := m.Notify(Payload{Severity: SeverityCritical})
	require.Len(t, results, 1)
	assert.Equal(t, "on", results[0].ChannelID)
}

func TestDeliveryFailureIsolation(t *testing.T) {
	m := newTestManager()
	broken := &recordingSender{err: stderrors.New("connection refused")}
	healthy := &recordingSender{}
	m.RegisterSender(ChannelEmail, broken)
	m.RegisterSender(ChannelWebhook, healthy)
	m.ConfigureChannels([]ChannelConfig{
		{ID: "mail", Type: ChannelEmail, Enabled: true},
		{ID: "hook", Type: ChannelWebhook, Enabled: true},
	})

	results := m.Notify(Payload{Severity: SeverityCritical, Title: "crit"})
	require.Len(t, results, 2)

	assert.Equal(t, "mail", results[0].ChannelID)
	assert.False(t, results[0].OK)
	assert.Equal(t, ErrDeliveryFailed, errors.CodeOf(results[0].Err))

	assert.Equal(t, "hook", results[1].ChannelID)
	assert.True(t, results[1].OK)
	require.Len(t, healthy.sent, 1, "one channel failing never blocks another")
}

func TestUnknownSenderType(t *testing.T) {
	m := newTestManager()
	m.ConfigureChannels([]ChannelConfig{
		{ID: "mystery", Type: ChannelType("pager"), Enabled: true},
	})

	results := m.Notify(Payload{Severity: SeverityCritical})
	require.Len(t, results, 1)
	assert.False(t, results[0].OK)
	assert.Equal(t, ErrNoSender, errors.CodeOf(results[0].Err))
}

func TestConfigureChannelsReplacesWholesale(t *testing.T) {
	m := newTestManager()
	sender := &recordingSender{}
	m.RegisterSender(ChannelChat, sender)

	m.ConfigureChannels([]ChannelConfig{{ID: "old", Type: ChannelChat, Enabled: true}})
	m.ConfigureChannels([]ChannelConfig{{ID: "new", Type: ChannelChat, Enabled: true}})

	results := m.Notify(Payload{Severity: SeverityInfo})
	require.Len(t, results, 1)
	assert.Equal(t, "new", results[0].ChannelID)
}

func TestWebhookSenderPostsJSON(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	s := &webhookSender{}
	err := s.Send(ChannelConfig{Target: srv.URL}, Payload{
		Severity: SeverityCritical,
		Title:    "chain broken",
		Message:  "2 discrepancies",
		Details:  map[string]string{"file": "audit_x.log"},
	})
	require.NoError(t, err)

	assert.Equal(t, "critical", got["severity"])
	assert.Equal(t, "chain broken", got["title"])
	assert.Equal(t, "2 discrepancies", got["message"])
}

func TestWebhookSenderNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := &webhookSender{}
	err := s.Send(ChannelConfig{Target: srv.URL}, Payload{Severity: SeverityInfo})
	require.Error(t, err)
	assert.Equal(t, ErrDeliveryFailed, errors.CodeOf(err))
}

func TestChatSenderFormatsText(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	s := &chatSender{}
	err := s.Send(ChannelConfig{Target: srv.URL}, Payload{
		Severity: SeverityWarning,
		Title:    "error rate",
		Message:  "30% exceeds 25%",
	})
	require.NoError(t, err)
	assert.Equal(t, "[WARNING] error rate: 30% exceeds 25%", got["text"])
}

func TestEmailSenderRejectsBadTarget(t *testing.T) {
	s := &emailSender{}
	for _, target := range []string{
		"",
		"http://mail.internal:25/a/b",
		"smtp://mail.internal:25",
		"smtp://mail.internal:25/only-from",
	} {
		err := s.Send(ChannelConfig{Target: target}, Payload{})
		require.Error(t, err, target)
		assert.Equal(t, ErrInvalidChannel, errors.CodeOf(err), target)
	}
}

func TestParseSeverity(t *testing.T) {
	for in, want := range map[string]Severity{
		"info":     SeverityInfo,
		"warn":     SeverityWarning,
		"warning":  SeverityWarning,
		"critical": SeverityCritical,
	} {
		got, err := ParseSeverity(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseSeverity("high")
	require.Error(t, err)
	assert.Equal(t, ErrInvalidSeverity, errors.CodeOf(err))
}
