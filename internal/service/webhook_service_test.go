package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studiare/tuition-billing/internal/models"
)

type mockWebhookEventStore struct {
	events     map[string]models.WebhookEvent
	processing []string
	completed  []string
	failed     map[string]string
}

func (m *mockWebhookEventStore) FindByID(ctx context.Context, id string) (*models.WebhookEvent, error) {
	if e, ok := m.events[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockWebhookEventStore) MarkProcessing(ctx context.Context, id string) error {
	m.processing = append(m.processing, id)
	e := m.events[id]
	e.Status = models.WebhookStatusProcessing
	e.Attempts++
	m.events[id] = e
	return nil
}

func (m *mockWebhookEventStore) MarkCompleted(ctx context.Context, id string) error {
	m.completed = append(m.completed, id)
	e := m.events[id]
	e.Status = models.WebhookStatusCompleted
	m.events[id] = e
	return nil
}

func (m *mockWebhookEventStore) MarkFailed(ctx context.Context, id, message string) error {
	if m.failed == nil {
		m.failed = make(map[string]string)
	}
	m.failed[id] = message
	e := m.events[id]
	e.Status = models.WebhookStatusFailed
	m.events[id] = e
	return nil
}

type recordingHandler struct {
	family  models.WebhookFamily
	handled []string
	err     error
}

func (h *recordingHandler) Family() models.WebhookFamily { return h.family }

func (h *recordingHandler) Handle(ctx context.Context, event *models.WebhookEvent) error {
	h.handled = append(h.handled, event.ID)
	return h.err
}

func webhookEvent(id string, family models.WebhookFamily, payload string) models.WebhookEvent {
	return models.WebhookEvent{
		ID:      id,
		Family:  family,
		Payload: json.RawMessage(payload),
		Status:  models.WebhookStatusPending,
	}
}

func TestWebhookProcessHappyPath(t *testing.T) {
	store := &mockWebhookEventStore{events: map[string]models.WebhookEvent{
		"evt-1": webhookEvent("evt-1", models.WebhookFamilyAccountStatus, `{"event":"x"}`),
	}}
	handler := &recordingHandler{family: models.WebhookFamilyAccountStatus}
	svc := NewWebhookService(store, nil, nil, handler)

	require.NoError(t, svc.Process(context.Background(), "evt-1"))
	assert.Equal(t, []string{"evt-1"}, store.processing)
	assert.Equal(t, []string{"evt-1"}, handler.handled)
	assert.Equal(t, []string{"evt-1"}, store.completed)
}

func TestWebhookCompletedEventIsNeverReprocessed(t *testing.T) {
	event := webhookEvent("evt-1", models.WebhookFamilyWalletTopUp, `{"event":"topup.paid"}`)
	event.Status = models.WebhookStatusCompleted
	store := &mockWebhookEventStore{events: map[string]models.WebhookEvent{"evt-1": event}}
	handler := &recordingHandler{family: models.WebhookFamilyWalletTopUp}
	svc := NewWebhookService(store, nil, nil, handler)

	require.NoError(t, svc.Process(context.Background(), "evt-1"))
	assert.Empty(t, handler.handled, "completed events act as tombstones")
	assert.Empty(t, store.processing)
}

func TestWebhookHandlerFailureMarksFailedAndRethrows(t *testing.T) {
	store := &mockWebhookEventStore{events: map[string]models.WebhookEvent{
		"evt-1": webhookEvent("evt-1", models.WebhookFamilyInvoiceStatus, `{"event":"invoice.paid"}`),
	}}
	boom := errors.New("db down")
	handler := &recordingHandler{family: models.WebhookFamilyInvoiceStatus, err: boom}
	svc := NewWebhookService(store, nil, nil, handler)

	err := svc.Process(context.Background(), "evt-1")
	require.ErrorIs(t, err, boom, "the error must surface so the queue retries")
	assert.Equal(t, "db down", store.failed["evt-1"])
	assert.Empty(t, store.completed)
}

func TestWebhookUnknownFamilyIsCompleted(t *testing.T) {
	store := &mockWebhookEventStore{events: map[string]models.WebhookEvent{
		"evt-1": webhookEvent("evt-1", "mystery_family", `{"event":"x"}`),
	}}
	svc := NewWebhookService(store, nil, nil)

	require.NoError(t, svc.Process(context.Background(), "evt-1"))
	assert.Equal(t, []string{"evt-1"}, store.completed)
}

func TestWebhookMissingEventIsConsumed(t *testing.T) {
	store := &mockWebhookEventStore{events: map[string]models.WebhookEvent{}}
	svc := NewWebhookService(store, nil, nil)
	require.NoError(t, svc.Process(context.Background(), "evt-404"))
}
