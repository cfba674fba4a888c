package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/studiare/tuition-billing/internal/models"
)

// WalletRepository handles student wallets and their pending top-ups.
type WalletRepository struct {
	db *sqlx.DB
}

// NewWalletRepository constructs the repository.
func NewWalletRepository(db *sqlx.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

const topUpColumns = `id, school_id, student_id, amount_cents, status, charge_id,
        paid_at, created_at, updated_at`

// FindTopUpByID returns a wallet top-up by its ID.
func (r *WalletRepository) FindTopUpByID(ctx context.Context, id string) (*models.WalletTopUp, error) {
	query := fmt.Sprintf("SELECT %s FROM wallet_top_ups WHERE id = $1", topUpColumns)
	var topUp models.WalletTopUp
	if err := r.db.GetContext(ctx, &topUp, query, id); err != nil {
		return nil, err
	}
	return &topUp, nil
}

// FindTopUpByChargeID resolves a top-up from its gateway charge id.
func (r *WalletRepository) FindTopUpByChargeID(ctx context.Context, chargeID string) (*models.WalletTopUp, error) {
	query := fmt.Sprintf("SELECT %s FROM wallet_top_ups WHERE charge_id = $1", topUpColumns)
	var topUp models.WalletTopUp
	if err := r.db.GetContext(ctx, &topUp, query, chargeID); err != nil {
		return nil, err
	}
	return &topUp, nil
}

// FindWalletByStudent returns a student's wallet.
func (r *WalletRepository) FindWalletByStudent(ctx context.Context, studentID string) (*models.StudentWallet, error) {
	const query = `SELECT id, student_id, balance_cents, updated_at FROM student_wallets WHERE student_id = $1`
	var wallet models.StudentWallet
	if err := r.db.GetContext(ctx, &wallet, query, studentID); err != nil {
		return nil, err
	}
	return &wallet, nil
}

// ConfirmTopUp credits the student balance exactly once. The top-up row is
// locked first; an already-PAID top-up short-circuits so a duplicate
// confirmation webhook can never double-credit. The balance write and the
// audit row land in the same transaction as the status flip.
func (r *WalletRepository) ConfirmTopUp(ctx context.Context, topUpID string) (bool, error) {
	credited := false
	err := runInTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var topUp models.WalletTopUp
		lockTopUp := fmt.Sprintf("SELECT %s FROM wallet_top_ups WHERE id = $1 FOR UPDATE", topUpColumns)
		if err := tx.GetContext(ctx, &topUp, lockTopUp, topUpID); err != nil {
			return fmt.Errorf("lock top-up: %w", err)
		}
		if topUp.Status == models.TopUpStatusPaid {
			return nil
		}
		if topUp.Status == models.TopUpStatusCancelled || topUp.Status == models.TopUpStatusFailed {
			return fmt.Errorf("top-up %s is %s, cannot confirm", topUpID, topUp.Status)
		}

		var wallet models.StudentWallet
		const lockWallet = `SELECT id, student_id, balance_cents, updated_at
            FROM student_wallets WHERE student_id = $1 FOR UPDATE`
		err := tx.GetContext(ctx, &wallet, lockWallet, topUp.StudentID)
		if err == sql.ErrNoRows {
			wallet = models.StudentWallet{ID: uuid.NewString(), StudentID: topUp.StudentID}
			const insertWallet = `INSERT INTO student_wallets (id, student_id, balance_cents, updated_at)
                VALUES ($1, $2, 0, NOW())`
			if _, err := tx.ExecContext(ctx, insertWallet, wallet.ID, wallet.StudentID); err != nil {
				return fmt.Errorf("create wallet: %w", err)
			}
		} else if err != nil {
			return fmt.Errorf("lock wallet: %w", err)
		}

		newBalance := wallet.BalanceCents + topUp.AmountCents
		const updateBalance = `UPDATE student_wallets SET balance_cents = $2, updated_at = NOW() WHERE id = $1`
		if _, err := tx.ExecContext(ctx, updateBalance, wallet.ID, newBalance); err != nil {
			return fmt.Errorf("credit wallet: %w", err)
		}

		const insertTxn = `INSERT INTO wallet_transactions (id, wallet_id, top_up_id, amount_cents, balance_after_cents, description, created_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7)`
		if _, err := tx.ExecContext(ctx, insertTxn, uuid.NewString(), wallet.ID, topUp.ID,
			topUp.AmountCents, newBalance, "gateway top-up confirmed", time.Now().UTC()); err != nil {
			return fmt.Errorf("record wallet transaction: %w", err)
		}

		const paidTopUp = `UPDATE wallet_top_ups SET status = $2, paid_at = $3, updated_at = NOW() WHERE id = $1`
		if _, err := tx.ExecContext(ctx, paidTopUp, topUp.ID, models.TopUpStatusPaid, time.Now().UTC()); err != nil {
			return fmt.Errorf("mark top-up paid: %w", err)
		}
		credited = true
		return nil
	})
	return credited, err
}

// UpdateTopUpStatus applies a non-crediting status change (FAILED,
// CANCELLED) under a row lock. Terminal PAID rows are never downgraded.
func (r *WalletRepository) UpdateTopUpStatus(ctx context.Context, topUpID string, status models.TopUpStatus) (bool, error) {
	applied := false
	err := runInTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var current models.TopUpStatus
		const lockQuery = `SELECT status FROM wallet_top_ups WHERE id = $1 FOR UPDATE`
		if err := tx.GetContext(ctx, &current, lockQuery, topUpID); err != nil {
			return fmt.Errorf("lock top-up: %w", err)
		}
		if current == models.TopUpStatusPaid || current == status {
			return nil
		}
		const update = `UPDATE wallet_top_ups SET status = $2, updated_at = NOW() WHERE id = $1`
		if _, err := tx.ExecContext(ctx, update, topUpID, status); err != nil {
			return fmt.Errorf("update top-up status: %w", err)
		}
		applied = true
		return nil
	})
	return applied, err
}
