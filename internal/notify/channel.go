package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Message is one rendered notification.
type Message struct {
	EventID   string    `json:"event_id,omitempty"`
	EventType string    `json:"event_type"`
	Subject   string    `json:"subject"`
	Recipient string    `json:"recipient,omitempty"`
	Content   string    `json:"content"`
	Data      any       `json:"data,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

// Channel delivers rendered messages.
type Channel interface {
	Send(ctx context.Context, msg Message) error
}

// WebhookChannel posts messages as JSON to a webhook endpoint.
type WebhookChannel struct {
	url    string
	client *http.Client
	header http.Header
}

// WebhookOption configures the webhook channel.
type WebhookOption func(*WebhookChannel)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(ch *WebhookChannel) {
		if client != nil {
			ch.client = client
		}
	}
}

// WithHeader adds a header to every request, e.g. an authorization token.
func WithHeader(key, value string) WebhookOption {
	return func(ch *WebhookChannel) {
		if key != "" && value != "" {
			ch.header.Set(key, value)
		}
	}
}

// NewWebhookChannel constructs a webhook channel.
func NewWebhookChannel(url string, opts ...WebhookOption) (*WebhookChannel, error) {
	if url == "" {
		return nil, errors.New("webhook channel: empty url")
	}
	channel := &WebhookChannel{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		header: make(http.Header),
	}
	for _, opt := range opts {
		opt(channel)
	}
	return channel, nil
}

// Send posts the message.
func (w *WebhookChannel) Send(ctx context.Context, msg Message) error {
	if w == nil || w.url == "" {
		return errors.New("webhook channel: empty url")
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	for key, values := range w.header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	if msg.EventID != "" {
		req.Header.Set("Idempotency-Key", msg.EventID)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook channel: non-2xx response %d", resp.StatusCode)
	}
	return nil
}

// MultiChannel fans a message out to several channels.
type MultiChannel struct {
	channels []Channel
}

// NewMultiChannel constructs a MultiChannel. Nil channels are skipped.
func NewMultiChannel(channels ...Channel) *MultiChannel {
	kept := make([]Channel, 0, len(channels))
	for _, ch := range channels {
		if ch != nil {
			kept = append(kept, ch)
		}
	}
	return &MultiChannel{channels: kept}
}

// Send delivers to every channel and joins their errors.
func (m *MultiChannel) Send(ctx context.Context, msg Message) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, ch := range m.channels {
		if err := ch.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogChannel writes messages to a logger. It is the fallback when no webhook
// is configured.
type LogChannel struct {
	Logf func(format string, args ...any)
}

// Send logs the message.
func (l LogChannel) Send(ctx context.Context, msg Message) error {
	_ = ctx
	if l.Logf == nil {
		return nil
	}
	l.Logf("notification: event=%s recipient=%s subject=%q", msg.EventType, msg.Recipient, msg.Subject)
	return nil
}
