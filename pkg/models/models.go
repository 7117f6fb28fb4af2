package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LoanStatus string

const (
	LoanStatusActive  LoanStatus = "ACTIVE"
	LoanStatusPaidOff LoanStatus = "PAID_OFF"
)

type PaymentType string

const (
	PaymentTypeEMI     PaymentType = "EMI"
	PaymentTypeLumpSum PaymentType = "LUMP_SUM"
)

// Valid reports whether t is one of the recognised payment types.
func (t PaymentType) Valid() bool {
	return t == PaymentTypeEMI || t == PaymentTypeLumpSum
}

type Customer struct {
	ID        string    `json:"customer_id"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Loan holds the immutable origination terms. Status is the only field
// that changes after creation.
type Loan struct {
	ID                uuid.UUID       `json:"loan_id"`
	CustomerID        string          `json:"customer_id"`
	Principal         decimal.Decimal `json:"principal"`
	InterestRate      decimal.Decimal `json:"annual_rate_percent"`
	TermYears         int             `json:"term_years"`
	TotalInterest     decimal.Decimal `json:"total_interest"`
	TotalPayable      decimal.Decimal `json:"total_amount_payable"`
	InstallmentAmount decimal.Decimal `json:"monthly_installment"`
	Status            LoanStatus      `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
}

type Payment struct {
	ID        uuid.UUID       `json:"id"`
	LoanID    uuid.UUID       `json:"loan_id"`
	Seq       int64           `json:"seq"` // assigned by the store on insert
	Amount    decimal.Decimal `json:"amount"`
	Type      PaymentType     `json:"type"`
	Timestamp time.Time       `json:"date"`
}

// Standing is the derived repayment position of a loan. It is never stored.
type Standing struct {
	AmountPaid            decimal.Decimal `json:"amount_paid"`
	Balance               decimal.Decimal `json:"balance_amount"`
	InstallmentsRemaining int64           `json:"installments_remaining"`
	Satisfied             bool            `json:"satisfied"`
}

type PaymentReceipt struct {
	PaymentID             uuid.UUID       `json:"payment_id"`
	LoanID                uuid.UUID       `json:"loan_id"`
	Message               string          `json:"message"`
	RemainingBalance      decimal.Decimal `json:"remaining_balance"`
	InstallmentsRemaining int64           `json:"installments_remaining"`
	Status                LoanStatus      `json:"status"`
}

type LedgerView struct {
	Loan         Loan       `json:"loan"`
	Standing                // amount_paid, balance_amount, installments_remaining
	Status       LoanStatus `json:"status"`
	Transactions []Payment  `json:"transactions"`
}

type LoanSummary struct {
	LoanID            uuid.UUID       `json:"loan_id"`
	Principal         decimal.Decimal `json:"principal"`
	TotalInterest     decimal.Decimal `json:"total_interest"`
	TotalPayable      decimal.Decimal `json:"total_amount_payable"`
	InstallmentAmount decimal.Decimal `json:"monthly_installment"`
	Status            LoanStatus      `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	Standing
}

type CustomerOverview struct {
	CustomerID string        `json:"customer_id"`
	TotalLoans int           `json:"total_loans"`
	Loans      []LoanSummary `json:"loans"`
}
