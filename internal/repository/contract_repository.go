package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/studiare/tuition-billing/internal/models"
)

// ContractRepository handles persistence of billing contracts.
type ContractRepository struct {
	db *sqlx.DB
}

// NewContractRepository constructs the repository.
func NewContractRepository(db *sqlx.DB) *ContractRepository {
	return &ContractRepository{db: db}
}

const contractColumns = `id, school_id, name, payment_type, amount_cents, installments,
        enrollment_value_cents, enrollment_installments, payment_days, fine_percent,
        daily_interest_cents, created_at, updated_at`

// FindByID returns a contract by its ID.
func (r *ContractRepository) FindByID(ctx context.Context, id string) (*models.Contract, error) {
	query := fmt.Sprintf("SELECT %s FROM contracts WHERE id = $1", contractColumns)
	var contract models.Contract
	if err := r.db.GetContext(ctx, &contract, query, id); err != nil {
		return nil, err
	}
	return &contract, nil
}
