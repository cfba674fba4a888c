package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studiare/tuition-billing/internal/models"
	"github.com/studiare/tuition-billing/internal/service"
	"github.com/studiare/tuition-billing/pkg/config"
	appErrors "github.com/studiare/tuition-billing/pkg/errors"
	"github.com/studiare/tuition-billing/pkg/response"
)

type webhookEventCreator interface {
	Create(ctx context.Context, event *models.WebhookEvent) error
}

// WebhookHandler ingests gateway notifications: verify, record, enqueue.
// Processing happens asynchronously so the gateway always gets a fast ack.
type WebhookHandler struct {
	events     webhookEventCreator
	dispatcher *service.Dispatcher
	cfg        config.WebhookConfig
	logger     *zap.Logger
}

// NewWebhookHandler constructs WebhookHandler.
func NewWebhookHandler(events webhookEventCreator, dispatcher *service.Dispatcher, cfg config.WebhookConfig, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{events: events, dispatcher: dispatcher, cfg: cfg, logger: logger}
}

// Receive handles POST /webhooks/:family.
func (h *WebhookHandler) Receive(c *gin.Context) {
	family := models.WebhookFamily(strings.ToLower(c.Param("family")))
	if !models.KnownWebhookFamilies[family] {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "unknown webhook family"))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unreadable request body"))
		return
	}

	if h.cfg.RequireSignature {
		signature := c.GetHeader(h.cfg.SignatureHeader)
		if !h.verifySignature(body, signature) {
			response.Error(c, appErrors.ErrInvalidSignature)
			return
		}
	}

	var payload models.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.Event == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "payload must be a JSON object with an event field"))
		return
	}

	event := &models.WebhookEvent{
		ID:            uuid.NewString(),
		Family:        family,
		ExternalEvent: payload.Event,
		Payload:       json.RawMessage(body),
		Status:        models.WebhookStatusPending,
	}
	if err := h.events.Create(c.Request.Context(), event); err != nil {
		response.Error(c, err)
		return
	}

	if err := h.dispatcher.Enqueue(service.JobProcessWebhook, service.ProcessWebhookPayload{WebhookEventID: event.ID}); err != nil {
		// The event is durable; a stalled queue only delays processing.
		h.logger.Error("failed to enqueue webhook job", zap.String("event_id", event.ID), zap.Error(err))
	}

	response.Accepted(c, gin.H{"event_id": event.ID, "status": event.Status})
}

func (h *WebhookHandler) verifySignature(body []byte, signature string) bool {
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	if signature == "" || h.cfg.SigningSecret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.cfg.SigningSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}
