package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/usgin/modelmanager/internal/core/domain"
	"github.com/usgin/modelmanager/internal/core/ports"
)

const defaultWebhookTimeout = 10 * time.Second

// WebhookPublisher posts rewrite rule events to a downstream resolver, for
// example a front-end proxy that mirrors the redirect table. Requests are
// signed with HMAC-SHA256. Non-2xx responses are errors so the outbox
// dispatcher retries them.
type WebhookPublisher struct {
	url    string
	secret []byte
	client *http.Client
}

// NewWebhookPublisher falls back to defaultWebhookTimeout for a zero timeout.
func NewWebhookPublisher(url, secret string, timeout time.Duration) *WebhookPublisher {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &WebhookPublisher{
		url:    url,
		secret: []byte(secret),
		client: &http.Client{Timeout: timeout},
	}
}

// Publish POSTs the event as JSON with these headers:
//
//	X-Modelmanager-Topic:       <topic>
//	X-Modelmanager-Event-Type:  <event.EventType>
//	X-Modelmanager-Aggregate:   <event.AggregateType>/<event.AggregateID>
//	X-Hub-Signature-256:        sha256=<hex HMAC-SHA256 of the body>
func (p *WebhookPublisher) Publish(ctx context.Context, topic string, event domain.EventEnvelope) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	sig := p.sign(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Modelmanager-Topic", topic)
	req.Header.Set("X-Modelmanager-Event-Type", event.EventType)
	req.Header.Set("X-Modelmanager-Aggregate", event.AggregateType+"/"+event.AggregateID)
	req.Header.Set("X-Hub-Signature-256", "sha256="+sig)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s returned status %d", p.url, resp.StatusCode)
	}
	return nil
}

func (p *WebhookPublisher) sign(payload []byte) string {
	mac := hmac.New(sha256.New, p.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

var _ ports.EventPublisher = (*WebhookPublisher)(nil)
