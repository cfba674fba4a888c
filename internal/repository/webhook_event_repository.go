package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/studiare/tuition-billing/internal/models"
)

// WebhookEventRepository handles the durable record of inbound gateway
// notifications.
type WebhookEventRepository struct {
	db *sqlx.DB
}

// NewWebhookEventRepository constructs the repository.
func NewWebhookEventRepository(db *sqlx.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

const webhookColumns = `id, family, external_event, payload, status, attempts,
        processed_at, last_error, created_at`

// Create persists a new PENDING event with its verbatim payload. Ingestion
// always records the event before any processing job is enqueued.
func (r *WebhookEventRepository) Create(ctx context.Context, event *models.WebhookEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Status == "" {
		event.Status = models.WebhookStatusPending
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO webhook_events (id, family, external_event, payload, status, attempts, created_at)
        VALUES (:id, :family, :external_event, :payload, :status, :attempts, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create webhook event: %w", err)
	}
	return nil
}

// FindByID returns a webhook event by its ID.
func (r *WebhookEventRepository) FindByID(ctx context.Context, id string) (*models.WebhookEvent, error) {
	query := fmt.Sprintf("SELECT %s FROM webhook_events WHERE id = $1", webhookColumns)
	var event models.WebhookEvent
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		return nil, err
	}
	return &event, nil
}

// MarkProcessing transitions the event to PROCESSING and bumps the attempt
// counter.
func (r *WebhookEventRepository) MarkProcessing(ctx context.Context, id string) error {
	const query = `UPDATE webhook_events SET status = $2, attempts = attempts + 1 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.WebhookStatusProcessing); err != nil {
		return fmt.Errorf("mark webhook processing: %w", err)
	}
	return nil
}

// MarkCompleted stamps the terminal tombstone and clears any prior error.
func (r *WebhookEventRepository) MarkCompleted(ctx context.Context, id string) error {
	const query = `UPDATE webhook_events SET status = $2, processed_at = $3, last_error = NULL WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.WebhookStatusCompleted, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark webhook completed: %w", err)
	}
	return nil
}

// MarkFailed records the failure message. FAILED events stay retryable.
func (r *WebhookEventRepository) MarkFailed(ctx context.Context, id, message string) error {
	const query = `UPDATE webhook_events SET status = $2, last_error = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.WebhookStatusFailed, message); err != nil {
		return fmt.Errorf("mark webhook failed: %w", err)
	}
	return nil
}
