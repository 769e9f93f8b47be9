package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// HeaderWebhookTimestamp carries the unix seconds the payload was signed at.
	HeaderWebhookTimestamp = "X-Webhook-Timestamp"
	// HeaderWebhookSignature carries hex(hmac-sha256(timestamp + "\n" + body)).
	HeaderWebhookSignature = "X-Webhook-Signature"
)

// WebhookAuthMiddleware validates payment gateway webhook signatures.
type WebhookAuthMiddleware struct {
	Secret  []byte
	MaxSkew time.Duration
}

// NewWebhookAuthMiddleware constructs webhook auth middleware.
func NewWebhookAuthMiddleware(secret []byte, maxSkew time.Duration) *WebhookAuthMiddleware {
	return &WebhookAuthMiddleware{Secret: secret, MaxSkew: maxSkew}
}

// Wrap enforces webhook signature validation.
func (m *WebhookAuthMiddleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(m.Secret) == 0 {
			http.Error(w, "webhook auth not configured", http.StatusUnauthorized)
			return
		}
		timestamp := strings.TrimSpace(r.Header.Get(HeaderWebhookTimestamp))
		signature := strings.TrimSpace(r.Header.Get(HeaderWebhookSignature))
		if timestamp == "" || signature == "" {
			http.Error(w, "missing webhook signature", http.StatusUnauthorized)
			return
		}
		ts, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			http.Error(w, "invalid webhook timestamp", http.StatusUnauthorized)
			return
		}
		skew := time.Since(time.Unix(ts, 0))
		if skew < 0 {
			skew = -skew
		}
		if m.MaxSkew > 0 && skew > m.MaxSkew {
			http.Error(w, "webhook signature expired", http.StatusUnauthorized)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "read body error", http.StatusBadRequest)
			return
		}
		_ = r.Body.Close()

		expected := SignWebhook(m.Secret, timestamp, body)
		if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
			http.Error(w, "invalid webhook signature", http.StatusUnauthorized)
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}

// SignWebhook computes the signature a sender must put in HeaderWebhookSignature.
func SignWebhook(secret []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write([]byte(timestamp))
	_, _ = mac.Write([]byte("\n"))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
