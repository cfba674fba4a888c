package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/studiare/tuition-billing/internal/models"
	"github.com/studiare/tuition-billing/internal/service"
	"github.com/studiare/tuition-billing/pkg/config"
)

type webhookEventCreatorMock struct {
	created []*models.WebhookEvent
	err     error
}

func (m *webhookEventCreatorMock) Create(ctx context.Context, event *models.WebhookEvent) error {
	if m.err != nil {
		return m.err
	}
	m.created = append(m.created, event)
	return nil
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func newWebhookTestContext(t *testing.T, family string, body []byte, signature string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(http.MethodPost, "/api/v1/webhooks/"+family, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("X-Webhook-Signature", signature)
	}
	c.Request = req
	c.Params = gin.Params{{Key: "family", Value: family}}
	return c, w
}

func webhookCfg(require bool) config.WebhookConfig {
	return config.WebhookConfig{
		SigningSecret:    "topsecret",
		SignatureHeader:  "X-Webhook-Signature",
		RequireSignature: require,
	}
}

func newTestDispatcher() *service.Dispatcher {
	return service.NewDispatcher(nil, nil, nil, nil, zap.NewNop())
}

func TestWebhookReceiveAcceptsSignedEvent(t *testing.T) {
	events := &webhookEventCreatorMock{}
	h := NewWebhookHandler(events, newTestDispatcher(), webhookCfg(true), zap.NewNop())

	body := []byte(`{"event":"invoice.paid","invoice_id":"inv-1"}`)
	c, w := newWebhookTestContext(t, "invoice_status", body, signBody("topsecret", body))

	h.Receive(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, events.created, 1)
	assert.Equal(t, models.WebhookFamilyInvoiceStatus, events.created[0].Family)
	assert.Equal(t, "invoice.paid", events.created[0].ExternalEvent)
	assert.Equal(t, models.WebhookStatusPending, events.created[0].Status)
}

func TestWebhookReceiveRejectsBadSignature(t *testing.T) {
	events := &webhookEventCreatorMock{}
	h := NewWebhookHandler(events, newTestDispatcher(), webhookCfg(true), zap.NewNop())

	body := []byte(`{"event":"invoice.paid"}`)
	c, w := newWebhookTestContext(t, "invoice_status", body, signBody("wrongsecret", body))

	h.Receive(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, events.created, "unsigned events must never be recorded")
}

func TestWebhookReceiveRejectsMissingSignature(t *testing.T) {
	events := &webhookEventCreatorMock{}
	h := NewWebhookHandler(events, newTestDispatcher(), webhookCfg(true), zap.NewNop())

	body := []byte(`{"event":"invoice.paid"}`)
	c, w := newWebhookTestContext(t, "invoice_status", body, "")

	h.Receive(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookReceiveUnknownFamilyIs404(t *testing.T) {
	events := &webhookEventCreatorMock{}
	h := NewWebhookHandler(events, newTestDispatcher(), webhookCfg(false), zap.NewNop())

	body := []byte(`{"event":"x"}`)
	c, w := newWebhookTestContext(t, "mystery", body, "")

	h.Receive(c)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, events.created)
}

func TestWebhookReceiveRejectsPayloadWithoutEvent(t *testing.T) {
	events := &webhookEventCreatorMock{}
	h := NewWebhookHandler(events, newTestDispatcher(), webhookCfg(false), zap.NewNop())

	body := []byte(`{"foo":"bar"}`)
	c, w := newWebhookTestContext(t, "invoice_status", body, "")

	h.Receive(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookReceiveAcceptsPrefixedSignature(t *testing.T) {
	events := &webhookEventCreatorMock{}
	h := NewWebhookHandler(events, newTestDispatcher(), webhookCfg(true), zap.NewNop())

	body := []byte(`{"event":"topup.paid","top_up_id":"topup-1"}`)
	c, w := newWebhookTestContext(t, "wallet_topup", body, "sha256="+signBody("topsecret", body))

	h.Receive(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, events.created, 1)
}
