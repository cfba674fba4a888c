package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/studiare/tuition-billing/internal/models"
)

// SchoolRepository handles the gateway-account slice of the tenant record.
type SchoolRepository struct {
	db *sqlx.DB
}

// NewSchoolRepository constructs the repository.
func NewSchoolRepository(db *sqlx.DB) *SchoolRepository {
	return &SchoolRepository{db: db}
}

// FindByID returns a school by its ID.
func (r *SchoolRepository) FindByID(ctx context.Context, id string) (*models.School, error) {
	const query = `SELECT id, name, gateway_status, account_id, updated_at FROM schools WHERE id = $1`
	var school models.School
	if err := r.db.GetContext(ctx, &school, query, id); err != nil {
		return nil, err
	}
	return &school, nil
}

// UpdateGatewayStatusByAccount applies an account-status webhook transition
// under a row lock. Returns false when no school carries the account id,
// which callers treat as an ignorable event.
func (r *SchoolRepository) UpdateGatewayStatusByAccount(ctx context.Context, accountID string, status models.SchoolGatewayStatus) (bool, error) {
	found := false
	err := runInTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var id string
		const lockQuery = `SELECT id FROM schools WHERE account_id = $1 FOR UPDATE`
		if err := tx.GetContext(ctx, &id, lockQuery, accountID); err != nil {
			if err == sql.ErrNoRows {
				return nil
			}
			return fmt.Errorf("lock school: %w", err)
		}
		const update = `UPDATE schools SET gateway_status = $2, updated_at = NOW() WHERE id = $1`
		if _, err := tx.ExecContext(ctx, update, id, status); err != nil {
			return fmt.Errorf("update school gateway status: %w", err)
		}
		found = true
		return nil
	})
	return found, err
}
