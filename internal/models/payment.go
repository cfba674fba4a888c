package models

import "time"

// PaymentBillingType classifies what a payment charges for.
type PaymentBillingType string

const (
	PaymentBillingEnrollment PaymentBillingType = "ENROLLMENT"
	PaymentBillingTuition    PaymentBillingType = "TUITION"
	PaymentBillingCourse     PaymentBillingType = "COURSE"
	PaymentBillingExtraClass PaymentBillingType = "EXTRA_CLASS"
)

// PaymentStatus is the settlement state of one payment.
type PaymentStatus string

const (
	PaymentStatusPending      PaymentStatus = "PENDING"
	PaymentStatusPaid         PaymentStatus = "PAID"
	PaymentStatusOverdue      PaymentStatus = "OVERDUE"
	PaymentStatusCancelled    PaymentStatus = "CANCELLED"
	PaymentStatusRenegotiated PaymentStatus = "RENEGOTIATED"
	PaymentStatusFailed       PaymentStatus = "FAILED"
	// PaymentStatusNotPaid is a legacy alias still present in old rows.
	// Accepted on read, never written.
	PaymentStatusNotPaid PaymentStatus = "NOT_PAID"
)

// MutablePaymentStatuses are the statuses billing jobs may still rewrite.
// Everything else counts as settled.
var MutablePaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusNotPaid,
	PaymentStatusOverdue,
}

// Mutable reports whether the status still allows amount or schedule changes.
func (s PaymentStatus) Mutable() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusNotPaid, PaymentStatusOverdue:
		return true
	}
	return false
}

// Payment is one billing obligation. Rows are never deleted, only
// status-transitioned.
type Payment struct {
	ID                string             `db:"id" json:"id"`
	SchoolID          string             `db:"school_id" json:"school_id"`
	EnrollmentID      *string            `db:"enrollment_id" json:"enrollment_id,omitempty"`
	InvoiceID         *string            `db:"invoice_id" json:"invoice_id,omitempty"`
	BillingType       PaymentBillingType `db:"billing_type" json:"billing_type"`
	Status            PaymentStatus      `db:"status" json:"status"`
	AmountCents       int64              `db:"amount_cents" json:"amount_cents"`
	TotalAmountCents  int64              `db:"total_amount_cents" json:"total_amount_cents"`
	Month             int                `db:"month" json:"month"`
	Year              int                `db:"year" json:"year"`
	DueDate           time.Time          `db:"due_date" json:"due_date"`
	InstallmentNumber int                `db:"installment_number" json:"installment_number"`
	Installments      int                `db:"installments" json:"installments"`
	CancelReason      *string            `db:"cancel_reason" json:"cancel_reason,omitempty"`
	PaidAt            *time.Time         `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt         time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time          `db:"updated_at" json:"updated_at"`
}
