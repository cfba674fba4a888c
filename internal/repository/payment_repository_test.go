package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/studiare/tuition-billing/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func paymentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "school_id", "enrollment_id", "invoice_id", "billing_type", "status",
		"amount_cents", "total_amount_cents", "month", "year", "due_date",
		"installment_number", "installments", "cancel_reason", "paid_at", "created_at", "updated_at",
	})
}

func TestPaymentRepositoryListMutableByEnrollment(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPaymentRepository(db)
	due := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	rows := paymentRows().
		AddRow("p-2", "school-1", "enroll-1", nil, "COURSE", "PENDING",
			40000, 40000, 4, 2026, due, 2, 3, nil, nil, time.Now(), time.Now())

	mock.ExpectQuery(regexp.QuoteMeta("FROM payments")).
		WithArgs("enroll-1", string(models.PaymentBillingEnrollment), sqlmock.AnyArg()).
		WillReturnRows(rows)

	payments, err := repo.ListMutableByEnrollment(context.Background(), "enroll-1")
	require.NoError(t, err)
	require.Len(t, payments, 1)
	require.Equal(t, "p-2", payments[0].ID)
	require.Equal(t, models.PaymentStatusPending, payments[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryMaxDueDateByEnrollment(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPaymentRepository(db)
	due := time.Date(2026, 6, 5, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT MAX(due_date) FROM payments")).
		WithArgs("enroll-1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(due))

	max, err := repo.MaxDueDateByEnrollment(context.Background(), "enroll-1")
	require.NoError(t, err)
	require.Equal(t, due, max)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryMaxDueDateNoPayments(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPaymentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT MAX(due_date) FROM payments")).
		WithArgs("enroll-1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

	max, err := repo.MaxDueDateByEnrollment(context.Background(), "enroll-1")
	require.NoError(t, err)
	require.True(t, max.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryCreateBatchRunsInOneTx(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPaymentRepository(db)
	enrollmentID := "enroll-1"

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payments")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payments")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	payments := []*models.Payment{
		{SchoolID: "school-1", EnrollmentID: &enrollmentID, BillingType: models.PaymentBillingEnrollment, Status: models.PaymentStatusPending, AmountCents: 40000, TotalAmountCents: 40000, InstallmentNumber: 1, Installments: 2, DueDate: time.Now()},
		{SchoolID: "school-1", EnrollmentID: &enrollmentID, BillingType: models.PaymentBillingCourse, Status: models.PaymentStatusPending, AmountCents: 40000, TotalAmountCents: 40000, InstallmentNumber: 2, Installments: 2, DueDate: time.Now()},
	}
	require.NoError(t, repo.CreateBatch(context.Background(), payments))
	require.NotEmpty(t, payments[0].ID, "missing ids are assigned")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryCreateBatchRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPaymentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payments")).
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	err := repo.CreateBatch(context.Background(), []*models.Payment{{SchoolID: "school-1"}})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryUpdateScheduleGuardsSettledRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPaymentRepository(db)
	due := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE payments")).
		WithArgs("p-2", int64(30000), int64(30000), due, 2, 3, 5, 2026, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateSchedule(context.Background(), "p-2", 30000, 30000, due, 2, 3))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryCancel(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPaymentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE payments SET status")).
		WithArgs("p-9", string(models.PaymentStatusCancelled), "installment count reduced", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Cancel(context.Background(), "p-9", "installment count reduced"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositorySumAmountsByInvoice(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPaymentRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("COALESCE(SUM(amount_cents), 0)")).
		WithArgs("inv-1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(10000))

	sum, err := repo.SumAmountsByInvoice(context.Background(), "inv-1")
	require.NoError(t, err)
	require.Equal(t, int64(10000), sum)
	require.NoError(t, mock.ExpectationsWereMet())
}
