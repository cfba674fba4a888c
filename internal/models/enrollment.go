package models

import "time"

// PaymentMethod is the payer-chosen settlement channel.
type PaymentMethod string

const (
	PaymentMethodBoleto     PaymentMethod = "BOLETO"
	PaymentMethodCreditCard PaymentMethod = "CREDIT_CARD"
	PaymentMethodPix        PaymentMethod = "PIX"
)

// Enrollment is a student's billing-relevant registration in a level and
// period. It owns the lifecycle of its generated payments.
type Enrollment struct {
	ID                   string        `db:"id" json:"id"`
	SchoolID             string        `db:"school_id" json:"school_id"`
	StudentID            string        `db:"student_id" json:"student_id"`
	AcademicPeriodID     *string       `db:"academic_period_id" json:"academic_period_id,omitempty"`
	ContractID           *string       `db:"contract_id" json:"contract_id,omitempty"`
	ScholarshipID        *string       `db:"scholarship_id" json:"scholarship_id,omitempty"`
	PaymentDay           *int          `db:"payment_day" json:"payment_day,omitempty"`
	InstallmentsOverride *int          `db:"installments_override" json:"installments_override,omitempty"`
	PaymentMethod        PaymentMethod `db:"payment_method" json:"payment_method"`
	CreatedAt            time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time     `db:"updated_at" json:"updated_at"`
	DeletedAt            *time.Time    `db:"deleted_at" json:"deleted_at,omitempty"`
}

// Deleted reports whether the enrollment was soft-deleted.
func (e *Enrollment) Deleted() bool {
	return e != nil && e.DeletedAt != nil
}

// ResolveInstallments returns the enrollment override when present,
// otherwise the contract's installment count.
func (e *Enrollment) ResolveInstallments(contract *Contract) int {
	if e != nil && e.InstallmentsOverride != nil && *e.InstallmentsOverride > 0 {
		return *e.InstallmentsOverride
	}
	if contract != nil {
		return contract.Installments
	}
	return 0
}

// Scholarship discounts an enrollment's payments. Fee and tuition carry
// separately configurable percentages and flat deductions; the flat part
// comes off after the percentage.
type Scholarship struct {
	ID                  string  `db:"id" json:"id"`
	SchoolID            string  `db:"school_id" json:"school_id"`
	Name                string  `db:"name" json:"name"`
	TuitionPercent      float64 `db:"tuition_percent" json:"tuition_percent"`
	EnrollmentPercent   float64 `db:"enrollment_percent" json:"enrollment_percent"`
	TuitionFlatCents    int64   `db:"tuition_flat_cents" json:"tuition_flat_cents"`
	EnrollmentFlatCents int64   `db:"enrollment_flat_cents" json:"enrollment_flat_cents"`
}

// IndividualDiscount is a per-student discount applied after the
// scholarship, multiplicatively. An empty validity window means always valid.
type IndividualDiscount struct {
	ID                  string     `db:"id" json:"id"`
	EnrollmentID        string     `db:"enrollment_id" json:"enrollment_id"`
	TuitionPercent      float64    `db:"tuition_percent" json:"tuition_percent"`
	EnrollmentPercent   float64    `db:"enrollment_percent" json:"enrollment_percent"`
	TuitionFlatCents    int64      `db:"tuition_flat_cents" json:"tuition_flat_cents"`
	EnrollmentFlatCents int64      `db:"enrollment_flat_cents" json:"enrollment_flat_cents"`
	ValidFrom           *time.Time `db:"valid_from" json:"valid_from,omitempty"`
	ValidUntil          *time.Time `db:"valid_until" json:"valid_until,omitempty"`
}

// ValidAt reports whether the discount applies on the given date.
func (d *IndividualDiscount) ValidAt(at time.Time) bool {
	if d == nil {
		return false
	}
	if d.ValidFrom != nil && at.Before(*d.ValidFrom) {
		return false
	}
	if d.ValidUntil != nil && at.After(*d.ValidUntil) {
		return false
	}
	return true
}
