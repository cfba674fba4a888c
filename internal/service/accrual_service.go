package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/studiare/tuition-billing/internal/models"
	"github.com/studiare/tuition-billing/pkg/gateway"
	"github.com/studiare/tuition-billing/pkg/lock"
)

type accrualInvoiceStore interface {
	ListOverdueForAccrual(ctx context.Context, schoolID string) ([]models.Invoice, error)
	FindByID(ctx context.Context, id string) (*models.Invoice, error)
	ApplyAccrual(ctx context.Context, invoiceID string, amounts models.AccrualAmounts, clearCharge bool) error
	FreezeBaseAmount(ctx context.Context, invoiceID string, baseCents int64) error
	MarkOverdueDue(ctx context.Context, asOf time.Time, schoolID string) (int64, error)
}

type accrualPaymentStore interface {
	ListMutableByInvoice(ctx context.Context, invoiceID string) ([]models.Payment, error)
	SumAmountsByInvoice(ctx context.Context, invoiceID string) (int64, error)
	MarkOverdueDue(ctx context.Context, asOf time.Time, schoolID string) (int64, error)
}

// AccrualReport summarises one batch run. NoOps are invoices whose stored
// amounts already matched the computed ones; Skipped covers locks held
// elsewhere and invoices with nothing to accrue.
type AccrualReport struct {
	Processed int
	Updated   int
	NoOps     int
	Skipped   int
	Failed    int
}

// AccrualService applies fines and interest to overdue invoices, once per
// day, idempotently and safely under concurrent runs.
type AccrualService struct {
	invoices  accrualInvoiceStore
	payments  accrualPaymentStore
	contracts contractReader
	locker    lock.Locker
	gateway   gateway.ChargeCanceller
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewAccrualService constructs the processor.
func NewAccrualService(invoices accrualInvoiceStore, payments accrualPaymentStore, contracts contractReader, locker lock.Locker, charger gateway.ChargeCanceller, metrics *MetricsService, logger *zap.Logger) *AccrualService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccrualService{
		invoices:  invoices,
		payments:  payments,
		contracts: contracts,
		locker:    locker,
		gateway:   charger,
		metrics:   metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run processes every eligible overdue invoice, optionally scoped to one
// school. A single invoice's failure never aborts the batch.
func (s *AccrualService) Run(ctx context.Context, schoolID string) (*AccrualReport, error) {
	started := s.now()
	invoices, err := s.invoices.ListOverdueForAccrual(ctx, schoolID)
	if err != nil {
		return nil, err
	}

	report := &AccrualReport{}
	for i := range invoices {
		report.Processed++
		outcome, err := s.processInvoice(ctx, invoices[i].ID)
		if err != nil {
			report.Failed++
			s.logger.Error("invoice accrual failed", zap.String("invoice_id", invoices[i].ID), zap.Error(err))
			continue
		}
		switch outcome {
		case accrualUpdated:
			report.Updated++
		case accrualNoOp:
			report.NoOps++
		default:
			report.Skipped++
		}
	}

	if s.metrics != nil {
		s.metrics.ObserveAccrualRun(report.Updated, report.NoOps, report.Failed, s.now().Sub(started))
	}
	s.logger.Info("accrual run finished",
		zap.String("school_id", schoolID),
		zap.Int("processed", report.Processed),
		zap.Int("updated", report.Updated),
		zap.Int("noops", report.NoOps),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed))
	return report, nil
}

type accrualOutcome int

const (
	accrualSkipped accrualOutcome = iota
	accrualNoOp
	accrualUpdated
)

func (s *AccrualService) processInvoice(ctx context.Context, invoiceID string) (accrualOutcome, error) {
	handle, acquired, err := s.locker.Acquire(ctx, "invoice:accrual:"+invoiceID)
	if err != nil {
		return accrualSkipped, err
	}
	if !acquired {
		// Another worker owns this invoice right now; its run covers today.
		s.logger.Debug("accrual lock held elsewhere", zap.String("invoice_id", invoiceID))
		return accrualSkipped, nil
	}
	defer func() {
		if err := s.locker.Release(ctx, handle); err != nil {
			s.logger.Warn("accrual lock release failed", zap.String("invoice_id", invoiceID), zap.Error(err))
		}
	}()

	// Re-read inside the lock; the listing snapshot may be stale.
	invoice, err := s.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		if err == sql.ErrNoRows {
			return accrualSkipped, nil
		}
		return accrualSkipped, err
	}
	if invoice.Status != models.InvoiceStatusOverdue || invoice.ContractID == nil {
		return accrualSkipped, nil
	}

	mutable, err := s.payments.ListMutableByInvoice(ctx, invoiceID)
	if err != nil {
		return accrualSkipped, err
	}
	if len(mutable) == 0 {
		return accrualSkipped, nil
	}

	contract, err := s.contracts.FindByID(ctx, *invoice.ContractID)
	if err != nil {
		if err == sql.ErrNoRows {
			s.logger.Warn("accrual skipped: contract missing", zap.String("invoice_id", invoiceID))
			return accrualSkipped, nil
		}
		return accrualSkipped, err
	}
	if !contract.HasAccrualPolicy() {
		return accrualSkipped, nil
	}

	daysOverdue := DaysOverdue(invoice.DueDate, s.now())
	if daysOverdue <= 0 {
		return accrualSkipped, nil
	}

	// The base amount is a frozen snapshot: computed once from the linked
	// payments and reused on every later run even if payments are edited.
	base := invoice.BaseAmountCents
	if base == 0 {
		base, err = s.payments.SumAmountsByInvoice(ctx, invoiceID)
		if err != nil {
			return accrualSkipped, err
		}
		if err := s.invoices.FreezeBaseAmount(ctx, invoiceID, base); err != nil {
			return accrualSkipped, err
		}
	}

	amounts := models.AccrualAmounts{
		BaseCents:     base,
		FineCents:     FineAmount(base, contract.FinePercent),
		InterestCents: InterestAmount(contract.DailyInterestCents, daysOverdue),
	}
	amounts.TotalCents = amounts.BaseCents + amounts.FineCents + amounts.InterestCents

	if amounts.Matches(invoice) {
		return accrualNoOp, nil
	}

	clearCharge := invoice.HasCharge() && amounts.TotalCents != invoice.TotalAmountCents
	if err := s.invoices.ApplyAccrual(ctx, invoiceID, amounts, clearCharge); err != nil {
		return accrualSkipped, err
	}

	// The charge reference is already cleared in the committed transaction,
	// so a failed cancel here only leaves an orphan charge on the gateway
	// side; the invoice will be re-issued regardless.
	if clearCharge && s.gateway != nil {
		if err := s.gateway.CancelCharge(ctx, *invoice.ChargeID); err != nil {
			s.logger.Warn("stale charge cancel failed",
				zap.String("invoice_id", invoiceID),
				zap.String("charge_id", *invoice.ChargeID),
				zap.Error(err))
		}
	}

	s.logger.Info("invoice accrued",
		zap.String("invoice_id", invoiceID),
		zap.Int("days_overdue", daysOverdue),
		zap.Int64("base_cents", amounts.BaseCents),
		zap.Int64("fine_cents", amounts.FineCents),
		zap.Int64("interest_cents", amounts.InterestCents),
		zap.Int64("total_cents", amounts.TotalCents))
	return accrualUpdated, nil
}

// MarkOverdue flips pending payments and open invoices past their due date
// to OVERDUE, the daily prerequisite for the accrual pass.
func (s *AccrualService) MarkOverdue(ctx context.Context, schoolID string) error {
	asOf := s.now()
	paymentCount, err := s.payments.MarkOverdueDue(ctx, asOf, schoolID)
	if err != nil {
		return fmt.Errorf("mark payments overdue: %w", err)
	}
	invoiceCount, err := s.invoices.MarkOverdueDue(ctx, asOf, schoolID)
	if err != nil {
		return fmt.Errorf("mark invoices overdue: %w", err)
	}
	s.logger.Info("overdue sweep finished",
		zap.String("school_id", schoolID),
		zap.Int64("payments", paymentCount),
		zap.Int64("invoices", invoiceCount))
	return nil
}
