package github

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	delivery, eventType string
	body                []byte
}

type fakePublisher struct {
	got []published
	err error
}

func (f *fakePublisher) PublishEvent(_ context.Context, delivery, eventType string, body []byte) error {
	if f.err != nil {
		return f.err
	}
	f.got = append(f.got, published{delivery: delivery, eventType: eventType, body: body})
	return nil
}

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func webhookRequest(body, event, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhook/github", strings.NewReader(body))
	if event != "" {
		req.Header.Set("X-GitHub-Event", event)
	}
	if signature != "" {
		req.Header.Set("X-Hub-Signature-256", signature)
	}
	req.Header.Set("X-GitHub-Delivery", "d-42")
	return req
}

func TestWebhook_PublishesVerbatim(t *testing.T) {
	pub := &fakePublisher{}
	h := NewWebhookHandler("s3cret", pub)
	body := `{"repository":{"full_name":"arrow-kt/arrow"}}`

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, webhookRequest(body, "push", sign("s3cret", body)))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, pub.got, 1)
	assert.Equal(t, published{delivery: "d-42", eventType: "push", body: []byte(body)}, pub.got[0])
}

func TestWebhook_RejectsBadSignature(t *testing.T) {
	pub := &fakePublisher{}
	h := NewWebhookHandler("s3cret", pub)

	for _, sig := range []string{"", "sha256=zz", "sha1=abc", sign("other", "{}")} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, webhookRequest("{}", "push", sig))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, sig)
	}
	assert.Empty(t, pub.got)
}

func TestWebhook_NoSecretSkipsVerification(t *testing.T) {
	pub := &fakePublisher{}
	rec := httptest.NewRecorder()
	NewWebhookHandler("", pub).ServeHTTP(rec, webhookRequest("{}", "issues", ""))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, pub.got, 1)
}

func TestWebhook_PingAndMissingEvent(t *testing.T) {
	pub := &fakePublisher{}
	h := NewWebhookHandler("", pub)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, webhookRequest("{}", "ping", ""))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, webhookRequest("{}", "", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, pub.got)
}

func TestWebhook_PublishFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	NewWebhookHandler("", &fakePublisher{err: errors.New("broker down")}).
		ServeHTTP(rec, webhookRequest("{}", "push", ""))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestWebhook_GeneratesDeliveryID(t *testing.T) {
	pub := &fakePublisher{}
	req := webhookRequest("{}", "push", "")
	req.Header.Del("X-GitHub-Delivery")

	NewWebhookHandler("", pub).ServeHTTP(httptest.NewRecorder(), req)
	require.Len(t, pub.got, 1)
	assert.Len(t, pub.got[0].delivery, 36)
}

func TestVerifySignature(t *testing.T) {
	secret := []byte("s3cret")
	body := []byte(`{"zen":"Keep it logically awesome."}`)

	assert.NoError(t, VerifySignature(secret, body, sign("s3cret", string(body))))
	assert.ErrorIs(t, VerifySignature(secret, body, ""), errNoSignature)
	assert.ErrorIs(t, VerifySignature(secret, body, "sha256=not-hex"), errBadSignature)
	assert.ErrorIs(t, VerifySignature(secret, []byte("tampered"), sign("s3cret", string(body))), errBadSignature)
}
