package models

import "time"

// TopUpStatus is the settlement state of a wallet top-up.
type TopUpStatus string

const (
	TopUpStatusPending   TopUpStatus = "PENDING"
	TopUpStatusPaid      TopUpStatus = "PAID"
	TopUpStatusFailed    TopUpStatus = "FAILED"
	TopUpStatusCancelled TopUpStatus = "CANCELLED"
)

// WalletTopUp is a pending balance credit awaiting gateway confirmation.
type WalletTopUp struct {
	ID          string      `db:"id" json:"id"`
	SchoolID    string      `db:"school_id" json:"school_id"`
	StudentID   string      `db:"student_id" json:"student_id"`
	AmountCents int64       `db:"amount_cents" json:"amount_cents"`
	Status      TopUpStatus `db:"status" json:"status"`
	ChargeID    *string     `db:"charge_id" json:"charge_id,omitempty"`
	PaidAt      *time.Time  `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// StudentWallet holds a student's prepaid balance (canteen, extras).
type StudentWallet struct {
	ID           string    `db:"id" json:"id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	BalanceCents int64     `db:"balance_cents" json:"balance_cents"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// WalletTransaction is the audit trail row appended with every balance
// mutation, in the same transaction as the balance write.
type WalletTransaction struct {
	ID                string    `db:"id" json:"id"`
	WalletID          string    `db:"wallet_id" json:"wallet_id"`
	TopUpID           *string   `db:"top_up_id" json:"top_up_id,omitempty"`
	AmountCents       int64     `db:"amount_cents" json:"amount_cents"`
	BalanceAfterCents int64     `db:"balance_after_cents" json:"balance_after_cents"`
	Description       string    `db:"description" json:"description"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}
