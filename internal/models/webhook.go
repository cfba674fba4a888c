package models

import (
	"encoding/json"
	"time"
)

// WebhookFamily routes an event to its specialized handler.
type WebhookFamily string

const (
	WebhookFamilyAccountStatus WebhookFamily = "account_status"
	WebhookFamilyInvoiceStatus WebhookFamily = "invoice_status"
	WebhookFamilyTaxDocument   WebhookFamily = "tax_document"
	WebhookFamilyWalletTopUp   WebhookFamily = "wallet_topup"
)

// KnownWebhookFamilies lists the accepted ingestion routes.
var KnownWebhookFamilies = map[WebhookFamily]bool{
	WebhookFamilyAccountStatus: true,
	WebhookFamilyInvoiceStatus: true,
	WebhookFamilyTaxDocument:   true,
	WebhookFamilyWalletTopUp:   true,
}

// WebhookEventStatus is the processing state of a recorded event.
type WebhookEventStatus string

const (
	WebhookStatusPending    WebhookEventStatus = "PENDING"
	WebhookStatusProcessing WebhookEventStatus = "PROCESSING"
	WebhookStatusCompleted  WebhookEventStatus = "COMPLETED"
	WebhookStatusFailed     WebhookEventStatus = "FAILED"
)

// WebhookEvent is the durable record of one inbound gateway notification.
// COMPLETED is a tombstone: any later delivery of the same event is a no-op.
type WebhookEvent struct {
	ID            string             `db:"id" json:"id"`
	Family        WebhookFamily      `db:"family" json:"family"`
	ExternalEvent string             `db:"external_event" json:"external_event"`
	Payload       json.RawMessage    `db:"payload" json:"payload"`
	Status        WebhookEventStatus `db:"status" json:"status"`
	Attempts      int                `db:"attempts" json:"attempts"`
	ProcessedAt   *time.Time         `db:"processed_at" json:"processed_at,omitempty"`
	LastError     *string            `db:"last_error" json:"last_error,omitempty"`
	CreatedAt     time.Time          `db:"created_at" json:"created_at"`
}

// WebhookPayload is the envelope shape shared by all gateway families.
// Family-specific fields live alongside and are simply absent for others.
type WebhookPayload struct {
	Event     string `json:"event"`
	AccountID string `json:"account_id,omitempty"`
	ChargeID  string `json:"charge_id,omitempty"`
	InvoiceID string `json:"invoice_id,omitempty"`
	TopUpID   string `json:"top_up_id,omitempty"`
	Document  string `json:"document,omitempty"`
}
