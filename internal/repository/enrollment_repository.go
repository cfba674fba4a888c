package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/studiare/tuition-billing/internal/models"
)

// EnrollmentRepository handles persistence of enrollments and the discount
// entities hanging off them.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `id, school_id, student_id, academic_period_id, contract_id,
        scholarship_id, payment_day, installments_override, payment_method,
        created_at, updated_at, deleted_at`

// FindByID returns an enrollment by its ID, soft-deleted rows included so
// callers can distinguish "missing" from "deleted".
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf("SELECT %s FROM enrollments WHERE id = $1", enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindScholarship returns the scholarship referenced by an enrollment, or
// nil when none is configured.
func (r *EnrollmentRepository) FindScholarship(ctx context.Context, scholarshipID string) (*models.Scholarship, error) {
	const query = `SELECT id, school_id, name, tuition_percent, enrollment_percent,
        tuition_flat_cents, enrollment_flat_cents
        FROM scholarships WHERE id = $1`
	var scholarship models.Scholarship
	if err := r.db.GetContext(ctx, &scholarship, query, scholarshipID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find scholarship: %w", err)
	}
	return &scholarship, nil
}

// ListDiscounts returns all individual discounts for an enrollment,
// validity-window filtering is left to the caller.
func (r *EnrollmentRepository) ListDiscounts(ctx context.Context, enrollmentID string) ([]models.IndividualDiscount, error) {
	const query = `SELECT id, enrollment_id, tuition_percent, enrollment_percent,
        tuition_flat_cents, enrollment_flat_cents, valid_from, valid_until
        FROM individual_discounts WHERE enrollment_id = $1 ORDER BY created_at`
	var discounts []models.IndividualDiscount
	if err := r.db.SelectContext(ctx, &discounts, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list discounts: %w", err)
	}
	return discounts, nil
}

// FindAcademicPeriod returns the academic period referenced by an enrollment.
func (r *EnrollmentRepository) FindAcademicPeriod(ctx context.Context, periodID string) (*models.AcademicPeriod, error) {
	const query = `SELECT id, school_id, name, start_date, end_date FROM academic_periods WHERE id = $1`
	var period models.AcademicPeriod
	if err := r.db.GetContext(ctx, &period, query, periodID); err != nil {
		return nil, err
	}
	return &period, nil
}
