package github

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/user/githubalerts/pkg/logger"
)

// maxPayloadBytes is GitHub's documented webhook payload cap.
const maxPayloadBytes = 25 << 20

const signaturePrefix = "sha256="

var (
	errNoSignature  = errors.New("missing signature")
	errBadSignature = errors.New("signature mismatch")
)

// EventPublisher forwards a raw webhook payload to the event stream.
type EventPublisher interface {
	PublishEvent(ctx context.Context, delivery, eventType string, body []byte) error
}

// WebhookHandler accepts GitHub webhook deliveries and publishes each body
// verbatim. Payloads are not parsed here; matching happens downstream.
type WebhookHandler struct {
	secret    []byte
	publisher EventPublisher
}

// NewWebhookHandler creates a handler. With an empty secret deliveries are
// accepted unsigned.
func NewWebhookHandler(secret string, publisher EventPublisher) *WebhookHandler {
	return &WebhookHandler{secret: []byte(secret), publisher: publisher}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		logger.Warn().Err(err).Msg("Rejected webhook body")
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	if len(h.secret) > 0 {
		if err := VerifySignature(h.secret, body, r.Header.Get("X-Hub-Signature-256")); err != nil {
			logger.Warn().Err(err).Msg("Invalid webhook signature")
			http.Error(w, "Invalid signature", http.StatusUnauthorized)
			return
		}
	}

	eventType := r.Header.Get("X-GitHub-Event")
	switch eventType {
	case "":
		http.Error(w, "Missing event type", http.StatusBadRequest)
		return
	case "ping":
		w.Write([]byte("pong"))
		return
	}

	delivery := r.Header.Get("X-GitHub-Delivery")
	if delivery == "" {
		delivery = uuid.NewString()
	}
	log := logger.Get().With().
		Str("event_type", eventType).
		Str("delivery", delivery).
		Logger()

	if err := h.publisher.PublishEvent(r.Context(), delivery, eventType, body); err != nil {
		log.Error().Err(err).Msg("Failed to publish webhook event")
		http.Error(w, "Failed to enqueue event", http.StatusBadGateway)
		return
	}

	log.Info().Int("bytes", len(body)).Msg("Webhook event published")
	w.WriteHeader(http.StatusAccepted)
}

// VerifySignature checks an X-Hub-Signature-256 header against body.
func VerifySignature(secret, body []byte, header string) error {
	hexSig, ok := strings.CutPrefix(header, signaturePrefix)
	if !ok {
		return errNoSignature
	}
	got, err := hex.DecodeString(hexSig)
	if err != nil {
		return errBadSignature
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return errBadSignature
	}
	return nil
}
