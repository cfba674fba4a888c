package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studiare/tuition-billing/internal/models"
	"github.com/studiare/tuition-billing/pkg/jobs"
)

func TestDispatcherRoutesScheduleJobs(t *testing.T) {
	contract := models.Contract{
		ID:           "contract-1",
		SchoolID:     "school-1",
		PaymentType:  models.PaymentTypeUpfront,
		AmountCents:  60000,
		Installments: 2,
		PaymentDays:  []int64{10},
	}
	enrollment := models.Enrollment{ID: "enroll-1", SchoolID: "school-1", ContractID: strPtr("contract-1")}
	scheduleSvc, payments := newScheduleFixture(contract, enrollment)
	propagationSvc := newPropagationFixture(contract, enrollment, payments)

	d := NewDispatcher(scheduleSvc, propagationSvc, nil, nil, nil)

	err := d.Handle(context.Background(), jobs.Job{Type: JobGenerateSchedule, Payload: GenerateSchedulePayload{EnrollmentID: "enroll-1"}})
	require.NoError(t, err)
	assert.Len(t, payments.created, 2)

	// The mock store does not feed created rows back as mutable ones, so
	// propagation sees an empty schedule and rebuilds all installments.
	err = d.Handle(context.Background(), jobs.Job{Type: JobPropagateChange, Payload: PropagateChangePayload{EnrollmentID: "enroll-1"}})
	require.NoError(t, err)
	assert.Len(t, payments.created, 4)
}

func TestDispatcherRejectsMismatchedPayload(t *testing.T) {
	d := NewDispatcher(nil, nil, nil, nil, nil)

	err := d.Handle(context.Background(), jobs.Job{Type: JobProcessWebhook, Payload: "not-a-payload"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected payload")
}

func TestDispatcherDropsUnknownJobType(t *testing.T) {
	d := NewDispatcher(nil, nil, nil, nil, nil)

	err := d.Handle(context.Background(), jobs.Job{ID: "job-1", Type: "billing.no_such_job"})
	assert.NoError(t, err, "unknown types are dropped, not retried")
}

func TestDispatcherHandlesTaxDocumentJob(t *testing.T) {
	d := NewDispatcher(nil, nil, nil, nil, nil)

	err := d.Handle(context.Background(), jobs.Job{Type: JobEmitTaxDocument, Payload: EmitTaxDocumentPayload{InvoiceID: "inv-1"}})
	assert.NoError(t, err)
}

func TestDispatcherEnqueueRequiresBoundQueue(t *testing.T) {
	d := NewDispatcher(nil, nil, nil, nil, nil)

	err := d.Enqueue(JobMarkOverdue, MarkOverduePayload{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no queue bound")
}
