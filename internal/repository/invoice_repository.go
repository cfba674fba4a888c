package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/studiare/tuition-billing/internal/models"
)

// InvoiceRepository handles persistence of invoices, including the
// transactional writes the accrual processor and webhook settlement rely on.
type InvoiceRepository struct {
	db *sqlx.DB
}

// NewInvoiceRepository constructs the repository.
func NewInvoiceRepository(db *sqlx.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

const invoiceColumns = `id, school_id, contract_id, status, base_amount_cents, fine_amount_cents,
        interest_amount_cents, total_amount_cents, due_date, charge_id, charge_url,
        paid_at, tax_document_status, last_notified_at, created_at, updated_at`

// FindByID returns an invoice by its ID.
func (r *InvoiceRepository) FindByID(ctx context.Context, id string) (*models.Invoice, error) {
	query := fmt.Sprintf("SELECT %s FROM invoices WHERE id = $1", invoiceColumns)
	var invoice models.Invoice
	if err := r.db.GetContext(ctx, &invoice, query, id); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// FindByChargeID resolves an invoice from its external gateway charge id.
func (r *InvoiceRepository) FindByChargeID(ctx context.Context, chargeID string) (*models.Invoice, error) {
	query := fmt.Sprintf("SELECT %s FROM invoices WHERE charge_id = $1", invoiceColumns)
	var invoice models.Invoice
	if err := r.db.GetContext(ctx, &invoice, query, chargeID); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// ListOverdueForAccrual returns the invoices eligible for the daily accrual
// run: overdue, with a positive total and a contract to read the policy from.
// An empty schoolID processes every tenant.
func (r *InvoiceRepository) ListOverdueForAccrual(ctx context.Context, schoolID string) ([]models.Invoice, error) {
	query := fmt.Sprintf(`SELECT %s FROM invoices
        WHERE status = $1 AND total_amount_cents > 0 AND contract_id IS NOT NULL`, invoiceColumns)
	args := []interface{}{models.InvoiceStatusOverdue}
	if schoolID != "" {
		query += fmt.Sprintf(" AND school_id = $%d", len(args)+1)
		args = append(args, schoolID)
	}
	query += " ORDER BY due_date"

	var invoices []models.Invoice
	if err := r.db.SelectContext(ctx, &invoices, query, args...); err != nil {
		return nil, fmt.Errorf("list overdue invoices: %w", err)
	}
	return invoices, nil
}

// ApplyAccrual persists the four amount fields in one transaction. When
// clearCharge is set the external charge reference is cleared in the same
// transaction, so a crash can never leave fresh amounts pointing at a
// stale charge or vice versa.
func (r *InvoiceRepository) ApplyAccrual(ctx context.Context, invoiceID string, amounts models.AccrualAmounts, clearCharge bool) error {
	return runInTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const update = `UPDATE invoices
            SET base_amount_cents = $2, fine_amount_cents = $3, interest_amount_cents = $4,
                total_amount_cents = $5, updated_at = NOW()
            WHERE id = $1`
		if _, err := tx.ExecContext(ctx, update, invoiceID, amounts.BaseCents, amounts.FineCents, amounts.InterestCents, amounts.TotalCents); err != nil {
			return fmt.Errorf("apply accrual amounts: %w", err)
		}
		if clearCharge {
			const clear = `UPDATE invoices SET charge_id = NULL, charge_url = NULL WHERE id = $1`
			if _, err := tx.ExecContext(ctx, clear, invoiceID); err != nil {
				return fmt.Errorf("clear invoice charge: %w", err)
			}
		}
		return nil
	})
}

// Settle marks the invoice PAID and cascades the status to every linked
// payment that is not already cancelled or renegotiated, all in one
// transaction serialized by a row-level lock. It returns false when the
// invoice was already paid, making duplicate settlement webhooks no-ops.
func (r *InvoiceRepository) Settle(ctx context.Context, invoiceID string, paidAt time.Time) (bool, error) {
	settled := false
	err := runInTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var status models.InvoiceStatus
		const lockQuery = `SELECT status FROM invoices WHERE id = $1 FOR UPDATE`
		if err := tx.GetContext(ctx, &status, lockQuery, invoiceID); err != nil {
			return fmt.Errorf("lock invoice: %w", err)
		}
		if status == models.InvoiceStatusPaid {
			return nil
		}

		const updateInvoice = `UPDATE invoices SET status = $2, paid_at = $3, updated_at = NOW() WHERE id = $1`
		if _, err := tx.ExecContext(ctx, updateInvoice, invoiceID, models.InvoiceStatusPaid, paidAt); err != nil {
			return fmt.Errorf("settle invoice: %w", err)
		}

		const cascade = `UPDATE payments SET status = $2, paid_at = $3, updated_at = NOW()
            WHERE invoice_id = $1 AND status NOT IN ($4, $5)`
		if _, err := tx.ExecContext(ctx, cascade, invoiceID, models.PaymentStatusPaid, paidAt,
			models.PaymentStatusCancelled, models.PaymentStatusRenegotiated); err != nil {
			return fmt.Errorf("cascade invoice settlement: %w", err)
		}
		settled = true
		return nil
	})
	return settled, err
}

// TransitionStatus applies a webhook-driven status change under a row lock.
// A paid invoice never regresses to an open-ish status, regardless of event
// delivery order. Returns false when the transition was suppressed.
func (r *InvoiceRepository) TransitionStatus(ctx context.Context, invoiceID string, newStatus models.InvoiceStatus) (bool, error) {
	applied := false
	err := runInTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var status models.InvoiceStatus
		const lockQuery = `SELECT status FROM invoices WHERE id = $1 FOR UPDATE`
		if err := tx.GetContext(ctx, &status, lockQuery, invoiceID); err != nil {
			return fmt.Errorf("lock invoice: %w", err)
		}
		if status == newStatus {
			return nil
		}
		if status == models.InvoiceStatusPaid && newStatus != models.InvoiceStatusCancelled {
			return nil
		}

		const update = `UPDATE invoices SET status = $2, updated_at = NOW() WHERE id = $1`
		if _, err := tx.ExecContext(ctx, update, invoiceID, newStatus); err != nil {
			return fmt.Errorf("transition invoice status: %w", err)
		}
		applied = true
		return nil
	})
	return applied, err
}

// MarkOverdueDue flips open invoices past their due date to OVERDUE,
// optionally scoped to one school.
func (r *InvoiceRepository) MarkOverdueDue(ctx context.Context, asOf time.Time, schoolID string) (int64, error) {
	query := `UPDATE invoices SET status = $1, updated_at = NOW()
        WHERE status IN ($2, $3) AND due_date < $4`
	args := []interface{}{models.InvoiceStatusOverdue, models.InvoiceStatusOpen, models.InvoiceStatusPending, asOf}
	if schoolID != "" {
		query += fmt.Sprintf(" AND school_id = $%d", len(args)+1)
		args = append(args, schoolID)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("mark invoices overdue: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark invoices overdue rows: %w", err)
	}
	return affected, nil
}

// FreezeBaseAmount persists the base amount snapshot the first time it is
// computed, so later accrual runs reuse it even if payments are edited.
func (r *InvoiceRepository) FreezeBaseAmount(ctx context.Context, invoiceID string, baseCents int64) error {
	const query = `UPDATE invoices SET base_amount_cents = $2, updated_at = NOW()
        WHERE id = $1 AND base_amount_cents = 0`
	if _, err := r.db.ExecContext(ctx, query, invoiceID, baseCents); err != nil {
		return fmt.Errorf("freeze invoice base amount: %w", err)
	}
	return nil
}

// UpdateTaxDocumentStatus records the gateway-reported tax document state
// under a row lock.
func (r *InvoiceRepository) UpdateTaxDocumentStatus(ctx context.Context, invoiceID, status string) (bool, error) {
	applied := false
	err := runInTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var id string
		const lockQuery = `SELECT id FROM invoices WHERE id = $1 FOR UPDATE`
		if err := tx.GetContext(ctx, &id, lockQuery, invoiceID); err != nil {
			if err == sql.ErrNoRows {
				return nil
			}
			return fmt.Errorf("lock invoice: %w", err)
		}
		const update = `UPDATE invoices SET tax_document_status = $2, updated_at = NOW() WHERE id = $1`
		if _, err := tx.ExecContext(ctx, update, invoiceID, status); err != nil {
			return fmt.Errorf("update tax document status: %w", err)
		}
		applied = true
		return nil
	})
	return applied, err
}
