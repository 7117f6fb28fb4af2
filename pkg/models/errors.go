package models

import "errors"

// Domain errors. The HTTP layer maps each one to a status code; none of
// them is retried.
var (
	ErrInvalidTerms       = errors.New("invalid loan terms")
	ErrLoanNotFound       = errors.New("loan not found")
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrInvalidPaymentType = errors.New("payment type must be EMI or LUMP_SUM")
	ErrLoanAlreadySettled = errors.New("loan is already paid off")
	ErrNoLoansForCustomer = errors.New("no loans found for customer")

	// ErrDegenerateInstallment is reported instead of dividing by a zero
	// installment while a balance is still owed.
	ErrDegenerateInstallment = errors.New("installment amount is not positive")
)
