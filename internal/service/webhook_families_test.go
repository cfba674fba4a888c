package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studiare/tuition-billing/internal/models"
)

type mockSchoolStore struct {
	accounts map[string]string // account id -> school id
	statuses map[string]models.SchoolGatewayStatus
}

func (m *mockSchoolStore) UpdateGatewayStatusByAccount(ctx context.Context, accountID string, status models.SchoolGatewayStatus) (bool, error) {
	schoolID, ok := m.accounts[accountID]
	if !ok {
		return false, nil
	}
	if m.statuses == nil {
		m.statuses = make(map[string]models.SchoolGatewayStatus)
	}
	m.statuses[schoolID] = status
	return true, nil
}

type mockSettlementStore struct {
	invoices    map[string]models.Invoice
	byCharge    map[string]string
	settled     []string
	settleAgain bool
	transitions map[string]models.InvoiceStatus
	regressed   map[string]bool
	taxStatus   map[string]string
}

func (m *mockSettlementStore) FindByID(ctx context.Context, id string) (*models.Invoice, error) {
	if inv, ok := m.invoices[id]; ok {
		return &inv, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSettlementStore) FindByChargeID(ctx context.Context, chargeID string) (*models.Invoice, error) {
	if id, ok := m.byCharge[chargeID]; ok {
		return m.FindByID(ctx, id)
	}
	return nil, sql.ErrNoRows
}

func (m *mockSettlementStore) Settle(ctx context.Context, invoiceID string, paidAt time.Time) (bool, error) {
	inv, ok := m.invoices[invoiceID]
	if !ok {
		return false, sql.ErrNoRows
	}
	if inv.Status == models.InvoiceStatusPaid {
		m.settleAgain = true
		return false, nil
	}
	inv.Status = models.InvoiceStatusPaid
	inv.PaidAt = &paidAt
	m.invoices[invoiceID] = inv
	m.settled = append(m.settled, invoiceID)
	return true, nil
}

func (m *mockSettlementStore) TransitionStatus(ctx context.Context, invoiceID string, newStatus models.InvoiceStatus) (bool, error) {
	inv, ok := m.invoices[invoiceID]
	if !ok {
		return false, sql.ErrNoRows
	}
	// PAID is terminal except for cancellation.
	if inv.Status == models.InvoiceStatusPaid && newStatus != models.InvoiceStatusCancelled {
		if m.regressed == nil {
			m.regressed = make(map[string]bool)
		}
		m.regressed[invoiceID] = true
		return false, nil
	}
	inv.Status = newStatus
	m.invoices[invoiceID] = inv
	if m.transitions == nil {
		m.transitions = make(map[string]models.InvoiceStatus)
	}
	m.transitions[invoiceID] = newStatus
	return true, nil
}

func (m *mockSettlementStore) UpdateTaxDocumentStatus(ctx context.Context, invoiceID, status string) (bool, error) {
	if _, ok := m.invoices[invoiceID]; !ok {
		return false, nil
	}
	if m.taxStatus == nil {
		m.taxStatus = make(map[string]string)
	}
	m.taxStatus[invoiceID] = status
	return true, nil
}

type mockTopUpStore struct {
	topUps    map[string]models.WalletTopUp
	byCharge  map[string]string
	confirmed []string
	statuses  map[string]models.TopUpStatus
}

func (m *mockTopUpStore) FindTopUpByID(ctx context.Context, id string) (*models.WalletTopUp, error) {
	if t, ok := m.topUps[id]; ok {
		return &t, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTopUpStore) FindTopUpByChargeID(ctx context.Context, chargeID string) (*models.WalletTopUp, error) {
	if id, ok := m.byCharge[chargeID]; ok {
		return m.FindTopUpByID(ctx, id)
	}
	return nil, sql.ErrNoRows
}

func (m *mockTopUpStore) ConfirmTopUp(ctx context.Context, topUpID string) (bool, error) {
	t, ok := m.topUps[topUpID]
	if !ok {
		return false, sql.ErrNoRows
	}
	if t.Status == models.TopUpStatusPaid {
		return false, nil
	}
	t.Status = models.TopUpStatusPaid
	m.topUps[topUpID] = t
	m.confirmed = append(m.confirmed, topUpID)
	return true, nil
}

func (m *mockTopUpStore) UpdateTopUpStatus(ctx context.Context, topUpID string, status models.TopUpStatus) (bool, error) {
	t, ok := m.topUps[topUpID]
	if !ok {
		return false, nil
	}
	if t.Status == models.TopUpStatusPaid {
		return false, nil
	}
	t.Status = status
	m.topUps[topUpID] = t
	if m.statuses == nil {
		m.statuses = make(map[string]models.TopUpStatus)
	}
	m.statuses[topUpID] = status
	return true, nil
}

type mockEnqueuer struct {
	jobs []string
}

func (m *mockEnqueuer) Enqueue(jobType string, payload interface{}) error {
	m.jobs = append(m.jobs, jobType)
	return nil
}

func eventWithPayload(family models.WebhookFamily, payload interface{}) *models.WebhookEvent {
	raw, _ := json.Marshal(payload)
	return &models.WebhookEvent{
		ID:      "evt-1",
		Family:  family,
		Payload: raw,
		Status:  models.WebhookStatusProcessing,
	}
}

func TestAccountStatusHandlerUpdatesSchool(t *testing.T) {
	schools := &mockSchoolStore{accounts: map[string]string{"acct-1": "school-1"}}
	h := NewAccountStatusHandler(schools, nil)

	event := eventWithPayload(models.WebhookFamilyAccountStatus, map[string]string{
		"event":      "account.approval.approved",
		"account_id": "acct-1",
	})
	require.NoError(t, h.Handle(context.Background(), event))
	assert.Equal(t, models.SchoolGatewayActive, schools.statuses["school-1"])
}

func TestAccountStatusHandlerIgnoresUnmappedEvent(t *testing.T) {
	schools := &mockSchoolStore{accounts: map[string]string{"acct-1": "school-1"}}
	h := NewAccountStatusHandler(schools, nil)

	event := eventWithPayload(models.WebhookFamilyAccountStatus, map[string]string{
		"event":      "account.something.new",
		"account_id": "acct-1",
	})
	require.NoError(t, h.Handle(context.Background(), event))
	assert.Empty(t, schools.statuses)
}

func TestInvoiceStatusHandlerSettlesAndEnqueuesTaxDocument(t *testing.T) {
	store := &mockSettlementStore{invoices: map[string]models.Invoice{
		"inv-1": {ID: "inv-1", Status: models.InvoiceStatusPending},
	}}
	enqueuer := &mockEnqueuer{}
	h := NewInvoiceStatusHandler(store, enqueuer, nil)

	event := eventWithPayload(models.WebhookFamilyInvoiceStatus, map[string]string{
		"event":      "invoice.paid",
		"invoice_id": "inv-1",
	})
	require.NoError(t, h.Handle(context.Background(), event))
	assert.Equal(t, []string{"inv-1"}, store.settled)
	assert.Equal(t, models.InvoiceStatusPaid, store.invoices["inv-1"].Status)
	assert.Equal(t, []string{JobEmitTaxDocument}, enqueuer.jobs)
}

func TestInvoiceStatusHandlerDuplicateSettlementIsNoOp(t *testing.T) {
	paidAt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store := &mockSettlementStore{invoices: map[string]models.Invoice{
		"inv-1": {ID: "inv-1", Status: models.InvoiceStatusPaid, PaidAt: &paidAt},
	}}
	enqueuer := &mockEnqueuer{}
	h := NewInvoiceStatusHandler(store, enqueuer, nil)

	event := eventWithPayload(models.WebhookFamilyInvoiceStatus, map[string]string{
		"event":      "invoice.paid",
		"invoice_id": "inv-1",
	})
	require.NoError(t, h.Handle(context.Background(), event))
	assert.Empty(t, store.settled)
	assert.Empty(t, enqueuer.jobs, "duplicates must not re-trigger the tax document")
}

func TestInvoiceStatusHandlerPaidNeverRegresses(t *testing.T) {
	paidAt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store := &mockSettlementStore{invoices: map[string]models.Invoice{
		"inv-1": {ID: "inv-1", Status: models.InvoiceStatusPaid, PaidAt: &paidAt},
	}}
	h := NewInvoiceStatusHandler(store, nil, nil)

	event := eventWithPayload(models.WebhookFamilyInvoiceStatus, map[string]string{
		"event":      "invoice.overdue",
		"invoice_id": "inv-1",
	})
	require.NoError(t, h.Handle(context.Background(), event))
	assert.Equal(t, models.InvoiceStatusPaid, store.invoices["inv-1"].Status)
	assert.True(t, store.regressed["inv-1"], "the downgrade attempt was suppressed, not applied")
}

func TestInvoiceStatusHandlerResolvesByChargeID(t *testing.T) {
	store := &mockSettlementStore{
		invoices: map[string]models.Invoice{"inv-1": {ID: "inv-1", Status: models.InvoiceStatusPending}},
		byCharge: map[string]string{"charge-7": "inv-1"},
	}
	h := NewInvoiceStatusHandler(store, nil, nil)

	event := eventWithPayload(models.WebhookFamilyInvoiceStatus, map[string]string{
		"event":     "payment.confirmed",
		"charge_id": "charge-7",
	})
	require.NoError(t, h.Handle(context.Background(), event))
	assert.Equal(t, []string{"inv-1"}, store.settled)
}

func TestInvoiceStatusHandlerUnknownInvoiceIsIgnored(t *testing.T) {
	store := &mockSettlementStore{invoices: map[string]models.Invoice{}}
	h := NewInvoiceStatusHandler(store, nil, nil)

	event := eventWithPayload(models.WebhookFamilyInvoiceStatus, map[string]string{
		"event":      "invoice.paid",
		"invoice_id": "inv-404",
	})
	require.NoError(t, h.Handle(context.Background(), event), "unknown invoices are accepted and ignored")
	assert.Empty(t, store.settled)
}

func TestTaxDocumentHandlerRecordsStatus(t *testing.T) {
	store := &mockSettlementStore{invoices: map[string]models.Invoice{
		"inv-1": {ID: "inv-1", Status: models.InvoiceStatusPaid},
	}}
	h := NewTaxDocumentHandler(store, nil)

	event := eventWithPayload(models.WebhookFamilyTaxDocument, map[string]string{
		"event":      "tax_document.issued",
		"invoice_id": "inv-1",
	})
	require.NoError(t, h.Handle(context.Background(), event))
	assert.Equal(t, "ISSUED", store.taxStatus["inv-1"])
}

func TestWalletTopUpHandlerCreditsOnce(t *testing.T) {
	store := &mockTopUpStore{topUps: map[string]models.WalletTopUp{
		"topup-1": {ID: "topup-1", StudentID: "student-1", AmountCents: 5000, Status: models.TopUpStatusPending},
	}}
	h := NewWalletTopUpHandler(store, nil)

	event := eventWithPayload(models.WebhookFamilyWalletTopUp, map[string]string{
		"event":     "topup.paid",
		"top_up_id": "topup-1",
	})
	require.NoError(t, h.Handle(context.Background(), event))
	assert.Equal(t, []string{"topup-1"}, store.confirmed)

	// Replayed confirmation must not credit twice.
	require.NoError(t, h.Handle(context.Background(), event))
	assert.Equal(t, []string{"topup-1"}, store.confirmed, "second delivery is a no-op")
}

func TestWalletTopUpHandlerFailureEvents(t *testing.T) {
	store := &mockTopUpStore{topUps: map[string]models.WalletTopUp{
		"topup-1": {ID: "topup-1", Status: models.TopUpStatusPending},
	}}
	h := NewWalletTopUpHandler(store, nil)

	event := eventWithPayload(models.WebhookFamilyWalletTopUp, map[string]string{
		"event":     "topup.cancelled",
		"top_up_id": "topup-1",
	})
	require.NoError(t, h.Handle(context.Background(), event))
	assert.Equal(t, models.TopUpStatusCancelled, store.statuses["topup-1"])
}

func TestWalletTopUpHandlerResolvesByChargeID(t *testing.T) {
	store := &mockTopUpStore{
		topUps:   map[string]models.WalletTopUp{"topup-1": {ID: "topup-1", Status: models.TopUpStatusPending}},
		byCharge: map[string]string{"charge-3": "topup-1"},
	}
	h := NewWalletTopUpHandler(store, nil)

	event := eventWithPayload(models.WebhookFamilyWalletTopUp, map[string]string{
		"event":     "payment.confirmed",
		"charge_id": "charge-3",
	})
	require.NoError(t, h.Handle(context.Background(), event))
	assert.Equal(t, []string{"topup-1"}, store.confirmed)
}
