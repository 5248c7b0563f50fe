package notify

import (
	"sync"

	"codeberg.org/halcyard/taskguard/internal/errors"
	"codeberg.org/halcyard/taskguard/internal/logger"
)

// Manager fans an alert payload out to every eligible channel. Delivery
// attempts are independent; a failing channel never blocks the others.
type Manager struct {
	mu       sync.RWMutex
	channels []ChannelConfig
	senders  map[ChannelType]Sender
	log      logger.Logger
}

func NewManager(log logger.Logger) *Manager {
	return &Manager{
		senders: map[ChannelType]Sender{
			ChannelEmail:   &emailSender{},
			ChannelWebhook: &webhookSender{},
			ChannelChat:    &chatSender{},
		},
		log: log,
	}
}

// RegisterSender replaces the adapter for a channel type.
func (m *Manager) RegisterSender(t ChannelType, s Sender) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.senders[t] = s
}

// ConfigureChannels replaces the full channel set. Disabled channels are
// dropped here rather than filtered on every notify.
func (m *Manager) ConfigureChannels(channels []ChannelConfig) {
	enabled := make([]ChannelConfig, 0, len(channels))
	for _, ch := range channels {
		if ch.Enabled {
			enabled = append(enabled, ch)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = enabled
}

// Notify delivers the payload to every channel whose minimum severity is
// met. One Result per attempted channel.
func (m *Manager) Notify(payload Payload) []Result {
	m.mu.RLock()
	channels := make([]ChannelConfig, len(m.channels))
	copy(channels, m.channels)
	m.mu.RUnlock()

	errFactory := errors.New()
	results := make([]Result, 0, len(channels))

	for _, ch := range channels {
		if payload.Severity < ch.MinSeverity {
			continue
		}

		sender, ok := m.senders[ch.Type]
		if !ok {
			results = append(results, Result{
				ChannelID: ch.ID,
				Err:       errFactory.WithData(ErrNoSender, ch.Type),
			})
			continue
		}

		if err := sender.Send(ch, payload); err != nil {
			m.log.Warn().
				Str("channel", ch.ID).
				Str("type", string(ch.Type)).
				Err(err).
				Msg("Notification delivery failed")
			results = append(results, Result{
				ChannelID: ch.ID,
				Err:       errFactory.Wrap(ErrDeliveryFailed, err),
			})
			continue
		}

		results = append(results, Result{ChannelID: ch.ID, OK: true})
	}

	return results
}
