package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/studiare/tuition-billing/internal/models"
)

// PaymentRepository handles persistence of payments.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, school_id, enrollment_id, invoice_id, billing_type, status,
        amount_cents, total_amount_cents, month, year, due_date, installment_number,
        installments, cancel_reason, paid_at, created_at, updated_at`

// ListByEnrollment returns every payment generated for an enrollment.
func (r *PaymentRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Payment, error) {
	query := fmt.Sprintf("SELECT %s FROM payments WHERE enrollment_id = $1 ORDER BY due_date", paymentColumns)
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list payments by enrollment: %w", err)
	}
	return payments, nil
}

// ListMutableByEnrollment returns the still-rewritable non-enrollment-fee
// payments for an enrollment, ordered by due date. These are the rows the
// change propagator may update or cancel.
func (r *PaymentRepository) ListMutableByEnrollment(ctx context.Context, enrollmentID string) ([]models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments
        WHERE enrollment_id = $1 AND billing_type <> $2 AND status = ANY($3)
        ORDER BY due_date`, paymentColumns)
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, enrollmentID, models.PaymentBillingEnrollment, statusArray(models.MutablePaymentStatuses)); err != nil {
		return nil, fmt.Errorf("list mutable payments: %w", err)
	}
	return payments, nil
}

// CountSettledByEnrollment counts the non-enrollment-fee payments that are
// already settled (paid, cancelled, renegotiated, failed).
func (r *PaymentRepository) CountSettledByEnrollment(ctx context.Context, enrollmentID string) (int, error) {
	const query = `SELECT COUNT(*) FROM payments
        WHERE enrollment_id = $1 AND billing_type <> $2 AND NOT (status = ANY($3))`
	var count int
	if err := r.db.GetContext(ctx, &count, query, enrollmentID, models.PaymentBillingEnrollment, statusArray(models.MutablePaymentStatuses)); err != nil {
		return 0, fmt.Errorf("count settled payments: %w", err)
	}
	return count, nil
}

// MaxDueDateByEnrollment returns the latest due date across all of an
// enrollment's payments, settled or not. The zero time means no payments
// exist yet.
func (r *PaymentRepository) MaxDueDateByEnrollment(ctx context.Context, enrollmentID string) (time.Time, error) {
	const query = `SELECT MAX(due_date) FROM payments WHERE enrollment_id = $1`
	var max sql.NullTime
	if err := r.db.GetContext(ctx, &max, query, enrollmentID); err != nil {
		return time.Time{}, fmt.Errorf("max due date by enrollment: %w", err)
	}
	if !max.Valid {
		return time.Time{}, nil
	}
	return max.Time, nil
}

// CreateBatch persists the given payments in one transaction.
func (r *PaymentRepository) CreateBatch(ctx context.Context, payments []*models.Payment) error {
	if len(payments) == 0 {
		return nil
	}
	const query = `INSERT INTO payments (id, school_id, enrollment_id, invoice_id, billing_type, status,
        amount_cents, total_amount_cents, month, year, due_date, installment_number,
        installments, cancel_reason, paid_at, created_at, updated_at)
        VALUES (:id, :school_id, :enrollment_id, :invoice_id, :billing_type, :status,
        :amount_cents, :total_amount_cents, :month, :year, :due_date, :installment_number,
        :installments, :cancel_reason, :paid_at, :created_at, :updated_at)`

	return runInTx(ctx, r.db, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		for _, payment := range payments {
			if payment.ID == "" {
				payment.ID = uuid.NewString()
			}
			if payment.CreatedAt.IsZero() {
				payment.CreatedAt = now
			}
			payment.UpdatedAt = now
			if _, err := tx.NamedExecContext(ctx, query, payment); err != nil {
				return fmt.Errorf("create payment: %w", err)
			}
		}
		return nil
	})
}

// UpdateSchedule rewrites the amount and scheduling fields of a still-mutable
// payment. Settled rows are silently left alone by the status guard.
func (r *PaymentRepository) UpdateSchedule(ctx context.Context, id string, amountCents, totalAmountCents int64, dueDate time.Time, installmentNumber, installments int) error {
	const query = `UPDATE payments
        SET amount_cents = $2, total_amount_cents = $3, due_date = $4,
            installment_number = $5, installments = $6, month = $7, year = $8, updated_at = NOW()
        WHERE id = $1 AND status = ANY($9)`
	if _, err := r.db.ExecContext(ctx, query, id, amountCents, totalAmountCents, dueDate,
		installmentNumber, installments, int(dueDate.Month()), dueDate.Year(), statusArray(models.MutablePaymentStatuses)); err != nil {
		return fmt.Errorf("update payment schedule: %w", err)
	}
	return nil
}

// Cancel transitions a mutable payment to CANCELLED with a reason.
func (r *PaymentRepository) Cancel(ctx context.Context, id, reason string) error {
	const query = `UPDATE payments SET status = $2, cancel_reason = $3, updated_at = NOW()
        WHERE id = $1 AND status = ANY($4)`
	if _, err := r.db.ExecContext(ctx, query, id, models.PaymentStatusCancelled, reason, statusArray(models.MutablePaymentStatuses)); err != nil {
		return fmt.Errorf("cancel payment: %w", err)
	}
	return nil
}

// ListMutableByInvoice returns the still-rewritable payments linked to an
// invoice.
func (r *PaymentRepository) ListMutableByInvoice(ctx context.Context, invoiceID string) ([]models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE invoice_id = $1 AND status = ANY($2) ORDER BY due_date`, paymentColumns)
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, invoiceID, statusArray(models.MutablePaymentStatuses)); err != nil {
		return nil, fmt.Errorf("list invoice payments: %w", err)
	}
	return payments, nil
}

// SumAmountsByInvoice totals the linked payment amounts, used once to freeze
// an invoice's base amount.
func (r *PaymentRepository) SumAmountsByInvoice(ctx context.Context, invoiceID string) (int64, error) {
	const query = `SELECT COALESCE(SUM(amount_cents), 0) FROM payments WHERE invoice_id = $1`
	var sum int64
	if err := r.db.GetContext(ctx, &sum, query, invoiceID); err != nil {
		return 0, fmt.Errorf("sum invoice payments: %w", err)
	}
	return sum, nil
}

// MarkOverdueDue flips pending payments past their due date to OVERDUE,
// optionally scoped to one school. Returns the number of rows updated.
func (r *PaymentRepository) MarkOverdueDue(ctx context.Context, asOf time.Time, schoolID string) (int64, error) {
	query := `UPDATE payments SET status = $1, updated_at = NOW()
        WHERE status = $2 AND due_date < $3`
	args := []interface{}{models.PaymentStatusOverdue, models.PaymentStatusPending, asOf}
	if schoolID != "" {
		query += fmt.Sprintf(" AND school_id = $%d", len(args)+1)
		args = append(args, schoolID)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("mark payments overdue: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark payments overdue rows: %w", err)
	}
	return affected, nil
}

// statusArray converts payment statuses to the pq-compatible text array form.
func statusArray(statuses []models.PaymentStatus) pq.StringArray {
	out := make(pq.StringArray, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
