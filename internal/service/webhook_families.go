package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/studiare/tuition-billing/internal/models"
)

// jobEnqueuer lets family handlers fire post-commit follow-up jobs. Enqueue
// failures are logged only; they never affect the webhook's completion.
type jobEnqueuer interface {
	Enqueue(jobType string, payload interface{}) error
}

type schoolGatewayStore interface {
	UpdateGatewayStatusByAccount(ctx context.Context, accountID string, status models.SchoolGatewayStatus) (bool, error)
}

type settlementInvoiceStore interface {
	FindByID(ctx context.Context, id string) (*models.Invoice, error)
	FindByChargeID(ctx context.Context, chargeID string) (*models.Invoice, error)
	Settle(ctx context.Context, invoiceID string, paidAt time.Time) (bool, error)
	TransitionStatus(ctx context.Context, invoiceID string, newStatus models.InvoiceStatus) (bool, error)
	UpdateTaxDocumentStatus(ctx context.Context, invoiceID, status string) (bool, error)
}

type topUpStore interface {
	FindTopUpByID(ctx context.Context, id string) (*models.WalletTopUp, error)
	FindTopUpByChargeID(ctx context.Context, chargeID string) (*models.WalletTopUp, error)
	ConfirmTopUp(ctx context.Context, topUpID string) (bool, error)
	UpdateTopUpStatus(ctx context.Context, topUpID string, status models.TopUpStatus) (bool, error)
}

func decodePayload(event *models.WebhookEvent) (*models.WebhookPayload, error) {
	var payload models.WebhookPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}
	if payload.Event == "" {
		payload.Event = event.ExternalEvent
	}
	return &payload, nil
}

// AccountStatusHandler folds gateway account notifications into the school's
// gateway standing.
type AccountStatusHandler struct {
	schools schoolGatewayStore
	logger  *zap.Logger
}

// NewAccountStatusHandler constructs the handler.
func NewAccountStatusHandler(schools schoolGatewayStore, logger *zap.Logger) *AccountStatusHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountStatusHandler{schools: schools, logger: logger}
}

// Family implements FamilyHandler.
func (h *AccountStatusHandler) Family() models.WebhookFamily {
	return models.WebhookFamilyAccountStatus
}

// accountStatusMap is the fixed external-to-internal lookup table. Events
// absent from it are accepted and ignored for forward compatibility.
var accountStatusMap = map[string]models.SchoolGatewayStatus{
	"account.approval.approved": models.SchoolGatewayActive,
	"account.approval.pending":  models.SchoolGatewayPending,
	"account.approval.rejected": models.SchoolGatewayRejected,
	"account.blocked":           models.SchoolGatewayBlocked,
}

// Handle implements FamilyHandler.
func (h *AccountStatusHandler) Handle(ctx context.Context, event *models.WebhookEvent) error {
	payload, err := decodePayload(event)
	if err != nil {
		return err
	}

	status, mapped := accountStatusMap[payload.Event]
	if !mapped {
		h.logger.Info("unmapped account event ignored", zap.String("event", payload.Event))
		return nil
	}
	if payload.AccountID == "" {
		return fmt.Errorf("account event %s has no account id", payload.Event)
	}

	found, err := h.schools.UpdateGatewayStatusByAccount(ctx, payload.AccountID, status)
	if err != nil {
		return err
	}
	if !found {
		h.logger.Warn("account event for unknown school ignored", zap.String("account_id", payload.AccountID))
	}
	return nil
}

// InvoiceStatusHandler applies payment and invoice status notifications,
// cascading settlement to the linked payments.
type InvoiceStatusHandler struct {
	invoices settlementInvoiceStore
	enqueue  jobEnqueuer
	logger   *zap.Logger
	now      func() time.Time
}

// NewInvoiceStatusHandler constructs the handler.
func NewInvoiceStatusHandler(invoices settlementInvoiceStore, enqueue jobEnqueuer, logger *zap.Logger) *InvoiceStatusHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvoiceStatusHandler{
		invoices: invoices,
		enqueue:  enqueue,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Family implements FamilyHandler.
func (h *InvoiceStatusHandler) Family() models.WebhookFamily {
	return models.WebhookFamilyInvoiceStatus
}

// invoiceStatusMap maps non-settlement invoice events to internal statuses.
// Settlement events are handled separately because of the payment cascade.
var invoiceStatusMap = map[string]models.InvoiceStatus{
	"invoice.overdue":   models.InvoiceStatusOverdue,
	"invoice.cancelled": models.InvoiceStatusCancelled,
	"invoice.refused":   models.InvoiceStatusCancelled,
}

// invoiceSettledEvents are the gateway events that confirm payment.
var invoiceSettledEvents = map[string]bool{
	"invoice.paid":      true,
	"payment.confirmed": true,
	"payment.received":  true,
}

// Handle implements FamilyHandler.
func (h *InvoiceStatusHandler) Handle(ctx context.Context, event *models.WebhookEvent) error {
	payload, err := decodePayload(event)
	if err != nil {
		return err
	}

	invoice, err := h.resolveInvoice(ctx, payload)
	if err != nil {
		return err
	}
	if invoice == nil {
		h.logger.Info("invoice event for unknown invoice ignored",
			zap.String("event", payload.Event),
			zap.String("invoice_id", payload.InvoiceID),
			zap.String("charge_id", payload.ChargeID))
		return nil
	}

	if invoiceSettledEvents[payload.Event] {
		settled, err := h.invoices.Settle(ctx, invoice.ID, h.now())
		if err != nil {
			return err
		}
		if settled && h.enqueue != nil {
			// Fired after the settlement commit; a lost job only delays the
			// tax document, it cannot corrupt financial state.
			if err := h.enqueue.Enqueue(JobEmitTaxDocument, EmitTaxDocumentPayload{InvoiceID: invoice.ID}); err != nil {
				h.logger.Warn("emit tax document enqueue failed", zap.String("invoice_id", invoice.ID), zap.Error(err))
			}
		}
		return nil
	}

	status, mapped := invoiceStatusMap[payload.Event]
	if !mapped {
		h.logger.Info("unmapped invoice event ignored", zap.String("event", payload.Event))
		return nil
	}

	applied, err := h.invoices.TransitionStatus(ctx, invoice.ID, status)
	if err != nil {
		return err
	}
	if !applied {
		h.logger.Info("invoice transition suppressed",
			zap.String("invoice_id", invoice.ID),
			zap.String("event", payload.Event),
			zap.String("target_status", string(status)))
	}
	return nil
}

func (h *InvoiceStatusHandler) resolveInvoice(ctx context.Context, payload *models.WebhookPayload) (*models.Invoice, error) {
	if payload.InvoiceID != "" {
		invoice, err := h.invoices.FindByID(ctx, payload.InvoiceID)
		if err == nil {
			return invoice, nil
		}
		if err != sql.ErrNoRows {
			return nil, err
		}
	}
	if payload.ChargeID != "" {
		invoice, err := h.invoices.FindByChargeID(ctx, payload.ChargeID)
		if err == nil {
			return invoice, nil
		}
		if err != sql.ErrNoRows {
			return nil, err
		}
	}
	return nil, nil
}

// TaxDocumentHandler records NFS-e emission progress reported by the
// gateway.
type TaxDocumentHandler struct {
	invoices settlementInvoiceStore
	logger   *zap.Logger
}

// NewTaxDocumentHandler constructs the handler.
func NewTaxDocumentHandler(invoices settlementInvoiceStore, logger *zap.Logger) *TaxDocumentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaxDocumentHandler{invoices: invoices, logger: logger}
}

// Family implements FamilyHandler.
func (h *TaxDocumentHandler) Family() models.WebhookFamily {
	return models.WebhookFamilyTaxDocument
}

var taxDocumentStatusMap = map[string]string{
	"tax_document.scheduled": "SCHEDULED",
	"tax_document.issued":    "ISSUED",
	"tax_document.failed":    "FAILED",
	"tax_document.cancelled": "CANCELLED",
}

// Handle implements FamilyHandler.
func (h *TaxDocumentHandler) Handle(ctx context.Context, event *models.WebhookEvent) error {
	payload, err := decodePayload(event)
	if err != nil {
		return err
	}

	status, mapped := taxDocumentStatusMap[payload.Event]
	if !mapped {
		h.logger.Info("unmapped tax document event ignored", zap.String("event", payload.Event))
		return nil
	}
	if payload.InvoiceID == "" {
		return fmt.Errorf("tax document event %s has no invoice id", payload.Event)
	}

	found, err := h.invoices.UpdateTaxDocumentStatus(ctx, payload.InvoiceID, status)
	if err != nil {
		return err
	}
	if !found {
		h.logger.Info("tax document event for unknown invoice ignored", zap.String("invoice_id", payload.InvoiceID))
	}
	return nil
}

// WalletTopUpHandler credits student balances exactly once per confirmed
// top-up. Double-crediting is the single most important bug class here; the
// repository's already-PAID short-circuit guarantees replays are no-ops.
type WalletTopUpHandler struct {
	topUps topUpStore
	logger *zap.Logger
}

// NewWalletTopUpHandler constructs the handler.
func NewWalletTopUpHandler(topUps topUpStore, logger *zap.Logger) *WalletTopUpHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WalletTopUpHandler{topUps: topUps, logger: logger}
}

// Family implements FamilyHandler.
func (h *WalletTopUpHandler) Family() models.WebhookFamily {
	return models.WebhookFamilyWalletTopUp
}

var topUpFailureMap = map[string]models.TopUpStatus{
	"topup.failed":    models.TopUpStatusFailed,
	"topup.refused":   models.TopUpStatusFailed,
	"topup.cancelled": models.TopUpStatusCancelled,
}

var topUpConfirmedEvents = map[string]bool{
	"topup.paid":        true,
	"payment.confirmed": true,
}

// Handle implements FamilyHandler.
func (h *WalletTopUpHandler) Handle(ctx context.Context, event *models.WebhookEvent) error {
	payload, err := decodePayload(event)
	if err != nil {
		return err
	}

	topUp, err := h.resolveTopUp(ctx, payload)
	if err != nil {
		return err
	}
	if topUp == nil {
		h.logger.Info("top-up event for unknown top-up ignored",
			zap.String("event", payload.Event),
			zap.String("top_up_id", payload.TopUpID),
			zap.String("charge_id", payload.ChargeID))
		return nil
	}

	if topUpConfirmedEvents[payload.Event] {
		credited, err := h.topUps.ConfirmTopUp(ctx, topUp.ID)
		if err != nil {
			return err
		}
		if !credited {
			h.logger.Info("top-up already paid, duplicate confirmation ignored", zap.String("top_up_id", topUp.ID))
		}
		return nil
	}

	status, mapped := topUpFailureMap[payload.Event]
	if !mapped {
		h.logger.Info("unmapped top-up event ignored", zap.String("event", payload.Event))
		return nil
	}
	if _, err := h.topUps.UpdateTopUpStatus(ctx, topUp.ID, status); err != nil {
		return err
	}
	return nil
}

func (h *WalletTopUpHandler) resolveTopUp(ctx context.Context, payload *models.WebhookPayload) (*models.WalletTopUp, error) {
	if payload.TopUpID != "" {
		topUp, err := h.topUps.FindTopUpByID(ctx, payload.TopUpID)
		if err == nil {
			return topUp, nil
		}
		if err != sql.ErrNoRows {
			return nil, err
		}
	}
	if payload.ChargeID != "" {
		topUp, err := h.topUps.FindTopUpByChargeID(ctx, payload.ChargeID)
		if err == nil {
			return topUp, nil
		}
		if err != sql.ErrNoRows {
			return nil, err
		}
	}
	return nil, nil
}
