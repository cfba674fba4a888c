package service

import (
	"time"

	"github.com/studiare/tuition-billing/internal/models"
)

// Money helpers work exclusively on integer minor currency units (cents).
// Percentages are carried as basis points internally so no floating point
// ever touches an amount.

// basisPoints converts a human percentage (5.5 == 5.5%) to basis points.
func basisPoints(percent float64) int64 {
	if percent <= 0 {
		return 0
	}
	return int64(percent*100 + 0.5)
}

// ApplyDiscountPercent returns the amount after discounting by percent,
// rounded to the nearest cent.
func ApplyDiscountPercent(amountCents int64, percent float64) int64 {
	bps := basisPoints(percent)
	if bps <= 0 {
		return amountCents
	}
	if bps >= 10000 {
		return 0
	}
	return (amountCents*(10000-bps) + 5000) / 10000
}

// StackDiscounts applies the percentages multiplicatively in sequence,
// scholarship first, then individual discounts. 10% then 10% yields 81%
// of the original, not 80%.
func StackDiscounts(amountCents int64, percents ...float64) int64 {
	result := amountCents
	for _, pct := range percents {
		result = ApplyDiscountPercent(result, pct)
	}
	return result
}

// Discount is a resolved discount chain for one amount kind. Percentages
// stack multiplicatively in order, then the flat deduction comes off the
// result, floored at zero.
type Discount struct {
	Percents  []float64
	FlatCents int64
}

// Apply runs an amount through the full chain.
func (d Discount) Apply(amountCents int64) int64 {
	result := StackDiscounts(amountCents, d.Percents...)
	result -= d.FlatCents
	if result < 0 {
		result = 0
	}
	return result
}

// SplitInstallments divides a total into n equal parts using integer floor
// division. The remainder cents are absorbed into the first installment,
// never spread.
func SplitInstallments(totalCents int64, n int) []int64 {
	if n <= 0 {
		return nil
	}
	per := totalCents / int64(n)
	parts := make([]int64, n)
	for i := range parts {
		parts[i] = per
	}
	parts[0] += totalCents - per*int64(n)
	return parts
}

// FineAmount computes the one-time overdue fine, rounded to the nearest cent.
func FineAmount(baseCents int64, finePercent float64) int64 {
	bps := basisPoints(finePercent)
	if bps <= 0 {
		return 0
	}
	return (baseCents*bps + 5000) / 10000
}

// InterestAmount computes linear, uncapped per-day interest.
func InterestAmount(dailyInterestCents int64, daysOverdue int) int64 {
	if dailyInterestCents <= 0 || daysOverdue <= 0 {
		return 0
	}
	return dailyInterestCents * int64(daysOverdue)
}

// DaysOverdue returns the whole days elapsed since the due date, zero or
// negative when it has not passed yet.
func DaysOverdue(dueDate, asOf time.Time) int {
	due := time.Date(dueDate.Year(), dueDate.Month(), dueDate.Day(), 0, 0, 0, 0, time.UTC)
	now := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	return int(now.Sub(due).Hours() / 24)
}

// ClampPaymentDay limits a payment day to [1, MaxPaymentDay] so month-length
// edge cases cannot shift a due date into the next month.
func ClampPaymentDay(day int) int {
	if day < 1 {
		return models.DefaultPaymentDay
	}
	if day > models.MaxPaymentDay {
		return models.MaxPaymentDay
	}
	return day
}

// MonthlyDueDate builds the due date for the given year/month at the clamped
// payment day. time.Date normalizes month overflow, so month may exceed
// December.
func MonthlyDueDate(year int, month time.Month, paymentDay int) time.Time {
	return time.Date(year, month, ClampPaymentDay(paymentDay), 0, 0, 0, 0, time.UTC)
}

// NextMonthlyDueDate advances a due date by the given number of months,
// re-clamping the payment day.
func NextMonthlyDueDate(from time.Time, months int, paymentDay int) time.Time {
	return MonthlyDueDate(from.Year(), from.Month()+time.Month(months), paymentDay)
}

// MonthStart truncates a time to the first instant of its month.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
