package service

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/studiare/tuition-billing/internal/models"
)

type propagationPaymentStore interface {
	ListMutableByEnrollment(ctx context.Context, enrollmentID string) ([]models.Payment, error)
	CountSettledByEnrollment(ctx context.Context, enrollmentID string) (int, error)
	MaxDueDateByEnrollment(ctx context.Context, enrollmentID string) (time.Time, error)
	CreateBatch(ctx context.Context, payments []*models.Payment) error
	UpdateSchedule(ctx context.Context, id string, amountCents, totalAmountCents int64, dueDate time.Time, installmentNumber, installments int) error
	Cancel(ctx context.Context, id, reason string) error
}

// PropagationResult reports the three-way diff outcome of one propagation.
type PropagationResult struct {
	Updated   int
	Created   int
	Cancelled int
	Skipped   bool
	Reason    string
}

// PropagationService reconciles an existing payment schedule against changed
// enrollment terms. Settled payments are never mutated.
type PropagationService struct {
	enrollments enrollmentReader
	contracts   contractReader
	payments    propagationPaymentStore
	logger      *zap.Logger
	now         func() time.Time
}

// NewPropagationService constructs the propagator.
func NewPropagationService(enrollments enrollmentReader, contracts contractReader, payments propagationPaymentStore, logger *zap.Logger) *PropagationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PropagationService{
		enrollments: enrollments,
		contracts:   contracts,
		payments:    payments,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Propagate recomputes the payment day and discount exactly as the
// generator does, then folds the changes into the still-mutable payments.
func (s *PropagationService) Propagate(ctx context.Context, enrollmentID string) (*PropagationResult, error) {
	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			s.logger.Warn("propagation skipped: enrollment missing", zap.String("enrollment_id", enrollmentID))
			return &PropagationResult{Skipped: true, Reason: "enrollment not found"}, nil
		}
		return nil, err
	}
	if enrollment.Deleted() {
		return &PropagationResult{Skipped: true, Reason: "enrollment deleted"}, nil
	}
	if enrollment.ContractID == nil {
		s.logger.Warn("propagation skipped: no contract", zap.String("enrollment_id", enrollmentID))
		return &PropagationResult{Skipped: true, Reason: "enrollment has no contract"}, nil
	}

	contract, err := s.contracts.FindByID(ctx, *enrollment.ContractID)
	if err != nil {
		if err == sql.ErrNoRows {
			s.logger.Warn("propagation skipped: contract missing", zap.String("enrollment_id", enrollmentID))
			return &PropagationResult{Skipped: true, Reason: "contract not found"}, nil
		}
		return nil, err
	}

	paymentDay := resolvePaymentDayFor(enrollment, contract)
	tuition, err := s.resolveTuitionDiscounts(ctx, enrollment)
	if err != nil {
		return nil, err
	}

	mutable, err := s.payments.ListMutableByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}

	switch contract.PaymentType {
	case models.PaymentTypeUpfront:
		return s.propagateUpfront(ctx, enrollment, contract, mutable, paymentDay, tuition)
	case models.PaymentTypeMonthly:
		return s.propagateMonthly(ctx, contract, mutable, paymentDay, tuition)
	default:
		return &PropagationResult{Skipped: true, Reason: "unknown payment type"}, nil
	}
}

// propagateUpfront performs the three-way diff: update the first
// desired-settled mutable payments in place, create continuations when the
// schedule grew, cancel the surplus when it shrank.
func (s *PropagationService) propagateUpfront(ctx context.Context, enrollment *models.Enrollment, contract *models.Contract, mutable []models.Payment, paymentDay int, tuition Discount) (*PropagationResult, error) {
	desired := enrollment.ResolveInstallments(contract)
	if desired <= 0 {
		return &PropagationResult{Skipped: true, Reason: "contract has no installments"}, nil
	}

	settled, err := s.payments.CountSettledByEnrollment(ctx, enrollment.ID)
	if err != nil {
		return nil, err
	}

	remaining := desired - settled
	if remaining < 0 {
		remaining = 0
	}

	parts := SplitInstallments(contract.AmountCents, desired)
	result := &PropagationResult{}

	updateCount := remaining
	if updateCount > len(mutable) {
		updateCount = len(mutable)
	}

	// Continuation payments follow the monthly cadence from the latest due
	// date across the whole schedule, settled rows included. Only a schedule
	// with no payments at all starts from today.
	lastDueDate, err := s.payments.MaxDueDateByEnrollment(ctx, enrollment.ID)
	if err != nil {
		return nil, err
	}
	if lastDueDate.IsZero() {
		lastDueDate = s.now()
	}

	for i := 0; i < updateCount; i++ {
		installmentNumber := settled + i + 1
		partIdx := installmentNumber - 1
		if partIdx >= len(parts) {
			partIdx = len(parts) - 1
		}
		total := parts[partIdx]
		amount := tuition.Apply(total)
		dueDate := MonthlyDueDate(mutable[i].DueDate.Year(), mutable[i].DueDate.Month(), paymentDay)
		if err := s.payments.UpdateSchedule(ctx, mutable[i].ID, amount, total, dueDate, installmentNumber, desired); err != nil {
			return nil, err
		}
		result.Updated++
	}

	if remaining > len(mutable) {
		var created []*models.Payment
		for i := len(mutable); i < remaining; i++ {
			installmentNumber := settled + i + 1
			partIdx := installmentNumber - 1
			if partIdx >= len(parts) {
				partIdx = len(parts) - 1
			}
			total := parts[partIdx]
			dueDate := NextMonthlyDueDate(lastDueDate, i-len(mutable)+1, paymentDay)
			created = append(created, &models.Payment{
				SchoolID:          enrollment.SchoolID,
				EnrollmentID:      &enrollment.ID,
				BillingType:       models.PaymentBillingCourse,
				Status:            models.PaymentStatusPending,
				AmountCents:       tuition.Apply(total),
				TotalAmountCents:  total,
				Month:             int(dueDate.Month()),
				Year:              dueDate.Year(),
				DueDate:           dueDate,
				InstallmentNumber: installmentNumber,
				Installments:      desired,
			})
		}
		if err := s.payments.CreateBatch(ctx, created); err != nil {
			return nil, err
		}
		result.Created = len(created)
	}

	for i := remaining; i < len(mutable); i++ {
		if err := s.payments.Cancel(ctx, mutable[i].ID, "installment count reduced"); err != nil {
			return nil, err
		}
		result.Cancelled++
	}

	s.logger.Info("upfront schedule propagated",
		zap.String("enrollment_id", enrollment.ID),
		zap.Int("updated", result.Updated),
		zap.Int("created", result.Created),
		zap.Int("cancelled", result.Cancelled))
	return result, nil
}

// propagateMonthly rewrites every mutable payment in place. The payment
// count is schedule-driven, so nothing is created or cancelled.
func (s *PropagationService) propagateMonthly(ctx context.Context, contract *models.Contract, mutable []models.Payment, paymentDay int, tuition Discount) (*PropagationResult, error) {
	amount := tuition.Apply(contract.AmountCents)
	result := &PropagationResult{}
	for i := range mutable {
		dueDate := MonthlyDueDate(mutable[i].DueDate.Year(), mutable[i].DueDate.Month(), paymentDay)
		if err := s.payments.UpdateSchedule(ctx, mutable[i].ID, amount, contract.AmountCents, dueDate, mutable[i].InstallmentNumber, mutable[i].Installments); err != nil {
			return nil, err
		}
		result.Updated++
	}
	s.logger.Info("monthly schedule propagated", zap.Int("updated", result.Updated))
	return result, nil
}

// resolveTuitionDiscounts mirrors the generator's discount chain for
// recurring amounts.
func (s *PropagationService) resolveTuitionDiscounts(ctx context.Context, enrollment *models.Enrollment) (Discount, error) {
	var tuition Discount
	if enrollment.ScholarshipID != nil {
		scholarship, err := s.enrollments.FindScholarship(ctx, *enrollment.ScholarshipID)
		if err != nil {
			return Discount{}, err
		}
		if scholarship != nil {
			tuition.Percents = append(tuition.Percents, scholarship.TuitionPercent)
			tuition.FlatCents += scholarship.TuitionFlatCents
		}
	}
	discounts, err := s.enrollments.ListDiscounts(ctx, enrollment.ID)
	if err != nil {
		return Discount{}, err
	}
	now := s.now()
	for i := range discounts {
		if discounts[i].ValidAt(now) {
			tuition.Percents = append(tuition.Percents, discounts[i].TuitionPercent)
			tuition.FlatCents += discounts[i].TuitionFlatCents
		}
	}
	return tuition, nil
}

// resolvePaymentDayFor is shared by the generator and the propagator so both
// resolve the due day identically.
func resolvePaymentDayFor(enrollment *models.Enrollment, contract *models.Contract) int {
	if enrollment.PaymentDay != nil && *enrollment.PaymentDay > 0 {
		return ClampPaymentDay(*enrollment.PaymentDay)
	}
	if day := contract.FirstPaymentDay(); day > 0 {
		return ClampPaymentDay(day)
	}
	return models.DefaultPaymentDay
}
