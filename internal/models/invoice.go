package models

import "time"

// InvoiceStatus is the gateway-facing state of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusOpen      InvoiceStatus = "OPEN"
	InvoiceStatusPending   InvoiceStatus = "PENDING"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusOverdue   InvoiceStatus = "OVERDUE"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

// Invoice aggregates one or more payments for presentation to the payer.
// The invariant total == base + fine + interest holds after every accrual
// write.
type Invoice struct {
	ID                  string        `db:"id" json:"id"`
	SchoolID            string        `db:"school_id" json:"school_id"`
	ContractID          *string       `db:"contract_id" json:"contract_id,omitempty"`
	Status              InvoiceStatus `db:"status" json:"status"`
	BaseAmountCents     int64         `db:"base_amount_cents" json:"base_amount_cents"`
	FineAmountCents     int64         `db:"fine_amount_cents" json:"fine_amount_cents"`
	InterestAmountCents int64         `db:"interest_amount_cents" json:"interest_amount_cents"`
	TotalAmountCents    int64         `db:"total_amount_cents" json:"total_amount_cents"`
	DueDate             time.Time     `db:"due_date" json:"due_date"`
	ChargeID            *string       `db:"charge_id" json:"charge_id,omitempty"`
	ChargeURL           *string       `db:"charge_url" json:"charge_url,omitempty"`
	PaidAt              *time.Time    `db:"paid_at" json:"paid_at,omitempty"`
	TaxDocumentStatus   *string       `db:"tax_document_status" json:"tax_document_status,omitempty"`
	LastNotifiedAt      *time.Time    `db:"last_notified_at" json:"last_notified_at,omitempty"`
	CreatedAt           time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time     `db:"updated_at" json:"updated_at"`
}

// HasCharge reports whether the invoice currently references an external
// gateway charge.
func (i *Invoice) HasCharge() bool {
	return i != nil && i.ChargeID != nil && *i.ChargeID != ""
}

// AccrualAmounts is the frozen outcome of one accrual computation.
type AccrualAmounts struct {
	BaseCents     int64
	FineCents     int64
	InterestCents int64
	TotalCents    int64
}

// Matches reports whether the stored invoice amounts already equal the
// computed ones, which makes the accrual run a no-op.
func (a AccrualAmounts) Matches(inv *Invoice) bool {
	if inv == nil {
		return false
	}
	return inv.BaseAmountCents == a.BaseCents &&
		inv.FineAmountCents == a.FineCents &&
		inv.InterestAmountCents == a.InterestCents &&
		inv.TotalAmountCents == a.TotalCents
}
