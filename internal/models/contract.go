package models

import (
	"time"

	"github.com/lib/pq"
)

// PaymentType determines how a contract is billed.
type PaymentType string

const (
	PaymentTypeMonthly PaymentType = "MONTHLY"
	PaymentTypeUpfront PaymentType = "UPFRONT"
)

// DefaultPaymentDay is used when neither the enrollment nor the contract
// configures a payment day.
const DefaultPaymentDay = 5

// MaxPaymentDay clamps due dates so that month-length edge cases (29-31)
// cannot shift an installment into the next month.
const MaxPaymentDay = 28

// Contract is the school-level billing template an enrollment points at.
// Amounts are integer minor currency units (cents).
type Contract struct {
	ID                     string        `db:"id" json:"id"`
	SchoolID               string        `db:"school_id" json:"school_id"`
	Name                   string        `db:"name" json:"name"`
	PaymentType            PaymentType   `db:"payment_type" json:"payment_type"`
	AmountCents            int64         `db:"amount_cents" json:"amount_cents"`
	Installments           int           `db:"installments" json:"installments"`
	EnrollmentValueCents   int64         `db:"enrollment_value_cents" json:"enrollment_value_cents"`
	EnrollmentInstallments int           `db:"enrollment_installments" json:"enrollment_installments"`
	PaymentDays            pq.Int64Array `db:"payment_days" json:"payment_days"`
	FinePercent            float64       `db:"fine_percent" json:"fine_percent"`
	DailyInterestCents     int64         `db:"daily_interest_cents" json:"daily_interest_cents"`
	CreatedAt              time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time     `db:"updated_at" json:"updated_at"`
}

// FirstPaymentDay resolves the first configured payment day, or zero when
// the contract does not configure any.
func (c *Contract) FirstPaymentDay() int {
	if c == nil || len(c.PaymentDays) == 0 {
		return 0
	}
	return int(c.PaymentDays[0])
}

// HasAccrualPolicy reports whether overdue invoices under this contract
// accrue fine or interest at all.
func (c *Contract) HasAccrualPolicy() bool {
	return c != nil && (c.FinePercent > 0 || c.DailyInterestCents > 0)
}

// AcademicPeriod bounds the months a MONTHLY schedule spans.
type AcademicPeriod struct {
	ID        string    `db:"id" json:"id"`
	SchoolID  string    `db:"school_id" json:"school_id"`
	Name      string    `db:"name" json:"name"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
}
