package service

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/studiare/tuition-billing/internal/models"
)

type enrollmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindScholarship(ctx context.Context, scholarshipID string) (*models.Scholarship, error)
	ListDiscounts(ctx context.Context, enrollmentID string) ([]models.IndividualDiscount, error)
	FindAcademicPeriod(ctx context.Context, periodID string) (*models.AcademicPeriod, error)
}

type contractReader interface {
	FindByID(ctx context.Context, id string) (*models.Contract, error)
}

type schedulePaymentStore interface {
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Payment, error)
	CreateBatch(ctx context.Context, payments []*models.Payment) error
}

// GenerateResult reports the outcome of one schedule generation. A business
// skip is a successful run with Generated false and a Reason; only technical
// failures surface as errors and trigger job retries.
type GenerateResult struct {
	Generated bool
	Created   int
	Reason    string
}

// ScheduleService materializes a payment schedule from an enrollment's
// contract.
type ScheduleService struct {
	enrollments enrollmentReader
	contracts   contractReader
	payments    schedulePaymentStore
	metrics     *MetricsService
	logger      *zap.Logger
	now         func() time.Time
}

// NewScheduleService constructs the generator.
func NewScheduleService(enrollments enrollmentReader, contracts contractReader, payments schedulePaymentStore, metrics *MetricsService, logger *zap.Logger) *ScheduleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{
		enrollments: enrollments,
		contracts:   contracts,
		payments:    payments,
		metrics:     metrics,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Generate builds the full installment plan for one enrollment. Re-running
// it for an already-generated enrollment is a no-op by construction.
func (s *ScheduleService) Generate(ctx context.Context, enrollmentID string) (*GenerateResult, error) {
	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			s.logger.Warn("schedule not generated: enrollment missing", zap.String("enrollment_id", enrollmentID))
			return &GenerateResult{Reason: "enrollment not found"}, nil
		}
		return nil, err
	}
	if enrollment.Deleted() {
		s.logger.Info("schedule not generated: enrollment deleted", zap.String("enrollment_id", enrollmentID))
		return &GenerateResult{Reason: "enrollment deleted"}, nil
	}
	if enrollment.ContractID == nil {
		s.logger.Warn("schedule not generated: no contract", zap.String("enrollment_id", enrollmentID))
		return &GenerateResult{Reason: "enrollment has no contract"}, nil
	}

	contract, err := s.contracts.FindByID(ctx, *enrollment.ContractID)
	if err != nil {
		if err == sql.ErrNoRows {
			s.logger.Warn("schedule not generated: contract missing", zap.String("enrollment_id", enrollmentID), zap.String("contract_id", *enrollment.ContractID))
			return &GenerateResult{Reason: "contract not found"}, nil
		}
		return nil, err
	}

	paymentDay := resolvePaymentDayFor(enrollment, contract)
	tuition, fee, err := s.resolveDiscounts(ctx, enrollment)
	if err != nil {
		return nil, err
	}

	existing, err := s.payments.ListByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}

	switch contract.PaymentType {
	case models.PaymentTypeUpfront:
		return s.generateUpfront(ctx, enrollment, contract, existing, paymentDay, tuition, fee)
	case models.PaymentTypeMonthly:
		return s.generateMonthly(ctx, enrollment, contract, existing, paymentDay, tuition)
	default:
		s.logger.Warn("schedule not generated: unknown payment type", zap.String("enrollment_id", enrollmentID), zap.String("payment_type", string(contract.PaymentType)))
		return &GenerateResult{Reason: "unknown payment type"}, nil
	}
}

// resolveDiscounts returns the discount chains for tuition-like and
// enrollment-fee amounts: scholarship first, then currently-valid individual
// discounts, percentages applied multiplicatively in that order with the
// flat deductions taken off the percentage result.
func (s *ScheduleService) resolveDiscounts(ctx context.Context, enrollment *models.Enrollment) (Discount, Discount, error) {
	var tuition, fee Discount
	if enrollment.ScholarshipID != nil {
		scholarship, err := s.enrollments.FindScholarship(ctx, *enrollment.ScholarshipID)
		if err != nil {
			return Discount{}, Discount{}, err
		}
		if scholarship != nil {
			tuition.Percents = append(tuition.Percents, scholarship.TuitionPercent)
			tuition.FlatCents += scholarship.TuitionFlatCents
			fee.Percents = append(fee.Percents, scholarship.EnrollmentPercent)
			fee.FlatCents += scholarship.EnrollmentFlatCents
		}
	}

	discounts, err := s.enrollments.ListDiscounts(ctx, enrollment.ID)
	if err != nil {
		return Discount{}, Discount{}, err
	}
	now := s.now()
	for i := range discounts {
		if !discounts[i].ValidAt(now) {
			continue
		}
		tuition.Percents = append(tuition.Percents, discounts[i].TuitionPercent)
		tuition.FlatCents += discounts[i].TuitionFlatCents
		fee.Percents = append(fee.Percents, discounts[i].EnrollmentPercent)
		fee.FlatCents += discounts[i].EnrollmentFlatCents
	}
	return tuition, fee, nil
}

func (s *ScheduleService) generateUpfront(ctx context.Context, enrollment *models.Enrollment, contract *models.Contract, existing []models.Payment, paymentDay int, tuition, fee Discount) (*GenerateResult, error) {
	for i := range existing {
		if existing[i].BillingType == models.PaymentBillingEnrollment || existing[i].BillingType == models.PaymentBillingCourse {
			s.logger.Info("schedule already generated", zap.String("enrollment_id", enrollment.ID))
			return &GenerateResult{Reason: "payments already exist"}, nil
		}
	}

	installments := enrollment.ResolveInstallments(contract)
	if installments <= 0 {
		s.logger.Warn("schedule not generated: zero installments", zap.String("enrollment_id", enrollment.ID))
		return &GenerateResult{Reason: "contract has no installments"}, nil
	}

	parts := SplitInstallments(contract.AmountCents, installments)
	today := s.now()

	enrollmentBase := contract.EnrollmentValueCents
	if enrollmentBase <= 0 {
		enrollmentBase = parts[0]
	}

	payments := make([]*models.Payment, 0, installments)
	payments = append(payments, &models.Payment{
		SchoolID:          enrollment.SchoolID,
		EnrollmentID:      &enrollment.ID,
		BillingType:       models.PaymentBillingEnrollment,
		Status:            models.PaymentStatusPending,
		AmountCents:       fee.Apply(enrollmentBase),
		TotalAmountCents:  enrollmentBase,
		Month:             int(today.Month()),
		Year:              today.Year(),
		DueDate:           time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC),
		InstallmentNumber: 1,
		Installments:      installments,
	})

	for i := 2; i <= installments; i++ {
		dueDate := NextMonthlyDueDate(today, i-1, paymentDay)
		payments = append(payments, &models.Payment{
			SchoolID:          enrollment.SchoolID,
			EnrollmentID:      &enrollment.ID,
			BillingType:       models.PaymentBillingCourse,
			Status:            models.PaymentStatusPending,
			AmountCents:       tuition.Apply(parts[i-1]),
			TotalAmountCents:  parts[i-1],
			Month:             int(dueDate.Month()),
			Year:              dueDate.Year(),
			DueDate:           dueDate,
			InstallmentNumber: i,
			Installments:      installments,
		})
	}

	if err := s.payments.CreateBatch(ctx, payments); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.AddPaymentsGenerated(len(payments))
	}
	s.logger.Info("upfront schedule generated",
		zap.String("enrollment_id", enrollment.ID),
		zap.Int("installments", installments),
		zap.Int("created", len(payments)))
	return &GenerateResult{Generated: true, Created: len(payments)}, nil
}

func (s *ScheduleService) generateMonthly(ctx context.Context, enrollment *models.Enrollment, contract *models.Contract, existing []models.Payment, paymentDay int, tuition Discount) (*GenerateResult, error) {
	if enrollment.AcademicPeriodID == nil {
		s.logger.Warn("schedule not generated: no academic period", zap.String("enrollment_id", enrollment.ID))
		return &GenerateResult{Reason: "enrollment has no academic period"}, nil
	}
	period, err := s.enrollments.FindAcademicPeriod(ctx, *enrollment.AcademicPeriodID)
	if err != nil {
		if err == sql.ErrNoRows {
			s.logger.Warn("schedule not generated: academic period missing", zap.String("enrollment_id", enrollment.ID))
			return &GenerateResult{Reason: "academic period not found"}, nil
		}
		return nil, err
	}

	// Months that already carry a tuition payment are skipped, so re-runs
	// only fill gaps.
	covered := make(map[int]bool)
	for i := range existing {
		if existing[i].BillingType == models.PaymentBillingTuition {
			covered[existing[i].Year*100+existing[i].Month] = true
		}
	}

	now := s.now()
	cursor := MonthStart(now)
	if periodStart := MonthStart(period.StartDate); cursor.Before(periodStart) {
		cursor = periodStart
	}
	amount := tuition.Apply(contract.AmountCents)

	var payments []*models.Payment
	for !cursor.After(period.EndDate) {
		key := cursor.Year()*100 + int(cursor.Month())
		if !covered[key] {
			dueDate := MonthlyDueDate(cursor.Year(), cursor.Month(), paymentDay)
			payments = append(payments, &models.Payment{
				SchoolID:          enrollment.SchoolID,
				EnrollmentID:      &enrollment.ID,
				BillingType:       models.PaymentBillingTuition,
				Status:            models.PaymentStatusPending,
				AmountCents:       amount,
				TotalAmountCents:  contract.AmountCents,
				Month:             int(cursor.Month()),
				Year:              cursor.Year(),
				DueDate:           dueDate,
				InstallmentNumber: len(payments) + 1,
				Installments:      0,
			})
		}
		cursor = cursor.AddDate(0, 1, 0)
	}

	for i := range payments {
		payments[i].Installments = len(payments)
	}

	if len(payments) == 0 {
		s.logger.Info("monthly schedule already complete", zap.String("enrollment_id", enrollment.ID))
		return &GenerateResult{Reason: "all months already billed"}, nil
	}

	if err := s.payments.CreateBatch(ctx, payments); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.AddPaymentsGenerated(len(payments))
	}
	s.logger.Info("monthly schedule generated",
		zap.String("enrollment_id", enrollment.ID),
		zap.Int("created", len(payments)))
	return &GenerateResult{Generated: true, Created: len(payments)}, nil
}
