package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"net/url"
	"strings"
	"time"

	"codeberg.org/halcyard/taskguard/internal/errors"
)

const httpTimeout = 10 * time.Second

// emailSender delivers via SMTP. Target format:
// smtp://host:port/from@example.com/to@example.com
type emailSender struct{}

func (*emailSender) Send(cfg ChannelConfig, payload Payload) error {
	errFactory := errors.New()

	u, err := url.Parse(cfg.Target)
	if err != nil || u.Scheme != "smtp" || u.Host == "" {
		return errFactory.WithData(ErrInvalidChannel, cfg.Target)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return errFactory.WithData(ErrInvalidChannel, cfg.Target)
	}
	from, to := parts[0], parts[1]

	var body bytes.Buffer
	fmt.Fprintf(&body, "From: %s\r\nTo: %s\r\nSubject: [%s] %s\r\n\r\n",
		from, to, strings.ToUpper(payload.Severity.String()), payload.Title)
	body.WriteString(payload.Message)
	body.WriteString("\r\n")
	for k, v := range payload.Details {
		fmt.Fprintf(&body, "%s: %s\r\n", k, v)
	}

	if err := smtp.SendMail(u.Host, nil, from, []string{to}, body.Bytes()); err != nil {
		return errFactory.Wrap(ErrDeliveryFailed, err)
	}

	return nil
}

// webhookSender posts the full payload as JSON to the target URL.
type webhookSender struct{}

func (*webhookSender) Send(cfg ChannelConfig, payload Payload) error {
	body := struct {
		Severity  string            `json:"severity"`
		Title     string            `json:"title"`
		Message   string            `json:"message"`
		Details   map[string]string `json:"details,omitempty"`
		Timestamp time.Time         `json:"timestamp"`
	}{
		Severity:  payload.Severity.String(),
		Title:     payload.Title,
		Message:   payload.Message,
		Details:   payload.Details,
		Timestamp: payload.Timestamp,
	}

	return postJSON(cfg.Target, body)
}

// chatSender posts a single text field, compatible with common chat
// webhook endpoints.
type chatSender struct{}

func (*chatSender) Send(cfg ChannelConfig, payload Payload) error {
	text := fmt.Sprintf("[%s] %s: %s",
		strings.ToUpper(payload.Severity.String()), payload.Title, payload.Message)

	return postJSON(cfg.Target, struct {
		Text string `json:"text"`
	}{Text: text})
}

func postJSON(target string, body any) error {
	errFactory := errors.New()

	data, err := json.Marshal(body)
	if err != nil {
		return errFactory.Wrap(ErrDeliveryFailed, err)
	}

	client := &http.Client{Timeout: httpTimeout}
	resp, err := client.Post(target, "application/json", bytes.NewReader(data))
	if err != nil {
		return errFactory.Wrap(ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errFactory.WithData(ErrDeliveryFailed, struct {
			Target string
			Status int
		}{
			Target: target,
			Status: resp.StatusCode,
		})
	}

	return nil
}
