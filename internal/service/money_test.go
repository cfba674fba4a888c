package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSplitInstallments(t *testing.T) {
	parts := SplitInstallments(120000, 3)
	assert.Equal(t, []int64{40000, 40000, 40000}, parts)

	parts = SplitInstallments(100000, 3)
	assert.Equal(t, []int64{33334, 33333, 33333}, parts)

	var sum int64
	for _, p := range parts {
		sum += p
	}
	assert.Equal(t, int64(100000), sum, "split must conserve the total")

	assert.Nil(t, SplitInstallments(100000, 0))
}

func TestApplyDiscountPercent(t *testing.T) {
	assert.Equal(t, int64(9000), ApplyDiscountPercent(10000, 10))
	assert.Equal(t, int64(10000), ApplyDiscountPercent(10000, 0))
	assert.Equal(t, int64(0), ApplyDiscountPercent(10000, 100))
	// 5.5% of 10000 = 550, rounded to nearest cent.
	assert.Equal(t, int64(9450), ApplyDiscountPercent(10000, 5.5))
}

func TestStackDiscountsIsMultiplicative(t *testing.T) {
	// 10% then 10% leaves 81%, not 80%.
	assert.Equal(t, int64(8100), StackDiscounts(10000, 10, 10))
	assert.Equal(t, int64(10000), StackDiscounts(10000))
}

func TestDiscountFlatAppliesAfterPercents(t *testing.T) {
	d := Discount{Percents: []float64{10}, FlatCents: 2000}
	// 10000 -10% = 9000, then -2000 flat.
	assert.Equal(t, int64(7000), d.Apply(10000))

	assert.Equal(t, int64(0), Discount{FlatCents: 5000}.Apply(3000), "flat deduction floors at zero")
	assert.Equal(t, int64(10000), Discount{}.Apply(10000))
}

func TestFineAndInterest(t *testing.T) {
	assert.Equal(t, int64(500), FineAmount(10000, 5))
	assert.Equal(t, int64(0), FineAmount(10000, 0))

	assert.Equal(t, int64(500), InterestAmount(50, 10))
	assert.Equal(t, int64(0), InterestAmount(50, 0))
	assert.Equal(t, int64(0), InterestAmount(0, 10))
}

func TestAccrualTotalExample(t *testing.T) {
	base := int64(10000)
	fine := FineAmount(base, 5)
	interest := InterestAmount(50, 10)
	assert.Equal(t, int64(500), fine)
	assert.Equal(t, int64(500), interest)
	assert.Equal(t, int64(11000), base+fine+interest)
}

func TestDaysOverdue(t *testing.T) {
	due := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, DaysOverdue(due, due))
	assert.Equal(t, 0, DaysOverdue(due, due.Add(23*time.Hour)))
	assert.Equal(t, 1, DaysOverdue(due, due.AddDate(0, 0, 1)))
	assert.Equal(t, 10, DaysOverdue(due, due.AddDate(0, 0, 10)))
	assert.Equal(t, -1, DaysOverdue(due, due.AddDate(0, 0, -1)))
}

func TestClampPaymentDay(t *testing.T) {
	assert.Equal(t, 5, ClampPaymentDay(0))
	assert.Equal(t, 5, ClampPaymentDay(-3))
	assert.Equal(t, 15, ClampPaymentDay(15))
	assert.Equal(t, 28, ClampPaymentDay(28))
	assert.Equal(t, 28, ClampPaymentDay(31))
}

func TestMonthlyDueDateNeverOverflowsMonth(t *testing.T) {
	// Day 31 clamps to 28 so February stays February.
	due := MonthlyDueDate(2026, time.February, 31)
	assert.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), due)
}

func TestNextMonthlyDueDate(t *testing.T) {
	from := time.Date(2026, 11, 10, 0, 0, 0, 0, time.UTC)
	next := NextMonthlyDueDate(from, 2, 10)
	assert.Equal(t, time.Date(2027, 1, 10, 0, 0, 0, 0, time.UTC), next)
}

func TestMonthStart(t *testing.T) {
	assert.Equal(t,
		time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		MonthStart(time.Date(2026, 8, 28, 13, 45, 0, 0, time.UTC)))
}
