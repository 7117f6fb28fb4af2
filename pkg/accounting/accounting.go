// Package accounting computes simple-interest loan figures. Nothing in this
// package performs I/O or mutates its inputs; identical inputs always give
// identical outputs.
package accounting

import (
	"fmt"
	"sort"

	"github.com/mcclellann/loanLedger/pkg/models"
	"github.com/shopspring/decimal"
)

const monthsPerYear = 12

var hundred = decimal.NewFromInt(100)

// Origination is the set of figures fixed at loan creation.
type Origination struct {
	Interest          decimal.Decimal
	TotalPayable      decimal.Decimal
	InstallmentAmount decimal.Decimal
}

// Round2 rounds to cents, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ComputeOrigination returns the simple interest, total payable and monthly
// installment for a loan. Principal must be positive, the rate non-negative
// and the term at least one year.
func ComputeOrigination(principal, ratePercent decimal.Decimal, termYears int) (Origination, error) {
	if !principal.IsPositive() {
		return Origination{}, fmt.Errorf("%w: principal must be positive, got %s", models.ErrInvalidTerms, principal)
	}
	if ratePercent.IsNegative() {
		return Origination{}, fmt.Errorf("%w: rate must not be negative, got %s", models.ErrInvalidTerms, ratePercent)
	}
	if termYears <= 0 {
		return Origination{}, fmt.Errorf("%w: term must be at least one year, got %d", models.ErrInvalidTerms, termYears)
	}

	years := decimal.NewFromInt(int64(termYears))
	interest := Round2(principal.Mul(years).Mul(ratePercent).Div(hundred))
	total := Round2(principal.Add(interest))
	months := decimal.NewFromInt(int64(termYears) * monthsPerYear)

	return Origination{
		Interest:          interest,
		TotalPayable:      total,
		InstallmentAmount: Round2(total.Div(months)),
	}, nil
}

// DeriveStatus folds a loan's payment history into its current standing.
// The balance is clamped at zero; overpayment is absorbed. Only the sum of
// the payments matters, so their order is irrelevant.
func DeriveStatus(totalPayable, installment decimal.Decimal, payments []*models.Payment) (models.Standing, error) {
	paid := decimal.Zero
	for _, p := range payments {
		paid = paid.Add(p.Amount)
	}
	paid = Round2(paid)

	balance := Round2(totalPayable.Sub(paid))
	if balance.IsNegative() {
		balance = decimal.Zero
	}

	st := models.Standing{
		AmountPaid: paid,
		Balance:    balance,
		Satisfied:  balance.IsZero(),
	}
	if st.Satisfied {
		return st, nil
	}
	if !installment.IsPositive() {
		return st, fmt.Errorf("%w: %s with balance %s outstanding", models.ErrDegenerateInstallment, installment, balance)
	}
	q, r := balance.QuoRem(installment, 0)
	if r.IsPositive() {
		q = q.Add(decimal.NewFromInt(1))
	}
	st.InstallmentsRemaining = q.IntPart()
	return st, nil
}

// OrderPayments sorts payments by timestamp, falling back to insertion
// sequence when timestamps are equal.
func OrderPayments(payments []*models.Payment) {
	sort.SliceStable(payments, func(i, j int) bool {
		a, b := payments[i], payments[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.Seq < b.Seq
	})
}
