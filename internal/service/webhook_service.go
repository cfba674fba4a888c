package service

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/studiare/tuition-billing/internal/models"
)

type webhookEventStore interface {
	FindByID(ctx context.Context, id string) (*models.WebhookEvent, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, message string) error
}

// FamilyHandler applies one webhook family's domain transition. Handlers
// run after the idempotency gate, receive the durable event, and must keep
// their own writes atomic (the repositories serialize on the target row).
type FamilyHandler interface {
	Family() models.WebhookFamily
	Handle(ctx context.Context, event *models.WebhookEvent) error
}

// WebhookService drives the PENDING -> PROCESSING -> COMPLETED|FAILED state
// machine shared by every event family.
type WebhookService struct {
	events   webhookEventStore
	handlers map[models.WebhookFamily]FamilyHandler
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewWebhookService constructs the driver and registers the handlers.
func NewWebhookService(events webhookEventStore, metrics *MetricsService, logger *zap.Logger, handlers ...FamilyHandler) *WebhookService {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := make(map[models.WebhookFamily]FamilyHandler, len(handlers))
	for _, h := range handlers {
		registry[h.Family()] = h
	}
	return &WebhookService{events: events, handlers: registry, metrics: metrics, logger: logger}
}

// Process consumes one recorded webhook event. A COMPLETED event is a
// guaranteed no-op; any failure between the PROCESSING transition and the
// commit marks the event FAILED and re-throws so the queue retries it.
func (s *WebhookService) Process(ctx context.Context, eventID string) error {
	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		if err == sql.ErrNoRows {
			// The event may have been pruned; treat as consumed.
			s.logger.Info("webhook event missing, ignoring", zap.String("event_id", eventID))
			return nil
		}
		return err
	}

	if event.Status == models.WebhookStatusCompleted {
		s.logger.Debug("webhook already completed", zap.String("event_id", eventID))
		return nil
	}

	if err := s.events.MarkProcessing(ctx, eventID); err != nil {
		return err
	}

	handler, ok := s.handlers[event.Family]
	if !ok {
		// Unknown families must not fail the job: accept and ignore.
		s.logger.Warn("no handler for webhook family, ignoring",
			zap.String("event_id", eventID),
			zap.String("family", string(event.Family)))
		if err := s.events.MarkCompleted(ctx, eventID); err != nil {
			return err
		}
		s.observe(event.Family, "ignored")
		return nil
	}

	if err := handler.Handle(ctx, event); err != nil {
		if markErr := s.events.MarkFailed(ctx, eventID, err.Error()); markErr != nil {
			s.logger.Error("failed to mark webhook failed", zap.String("event_id", eventID), zap.Error(markErr))
		}
		s.observe(event.Family, "failed")
		return err
	}

	if err := s.events.MarkCompleted(ctx, eventID); err != nil {
		return err
	}
	s.observe(event.Family, "completed")
	s.logger.Info("webhook processed",
		zap.String("event_id", eventID),
		zap.String("family", string(event.Family)),
		zap.String("external_event", event.ExternalEvent))
	return nil
}

func (s *WebhookService) observe(family models.WebhookFamily, outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveWebhook(string(family), outcome)
	}
}
