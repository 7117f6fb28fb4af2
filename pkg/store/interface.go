package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/mcclellann/loanLedger/pkg/models"
)

// Tx is the set of operations available inside a unit of work. Everything
// done through a Tx is committed together or not at all.
type Tx interface {
	UpsertCustomer(ctx context.Context, customer *models.Customer) error
	InsertLoan(ctx context.Context, loan *models.Loan) error
	GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error)
	ListPayments(ctx context.Context, loanID uuid.UUID) ([]*models.Payment, error)
	// InsertPayment stores the payment and sets its Seq.
	InsertPayment(ctx context.Context, payment *models.Payment) error
	UpdateLoanStatus(ctx context.Context, id uuid.UUID, status models.LoanStatus) error
}

// Storage defines the interface for database operations related to
// customers, loans and payments.
type Storage interface {
	GetCustomer(ctx context.Context, id string) (*models.Customer, error)
	GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error)
	ListLoans(ctx context.Context) ([]*models.Loan, error)
	// ListLoansByCustomer returns the customer's loans, most recent first.
	ListLoansByCustomer(ctx context.Context, customerID string) ([]*models.Loan, error)
	ListPayments(ctx context.Context, loanID uuid.UUID) ([]*models.Payment, error)
	// LoanWithPayments reads a loan and its payments from one snapshot, so
	// the loan's status always reflects exactly the payments returned.
	LoanWithPayments(ctx context.Context, loanID uuid.UUID) (*models.Loan, []*models.Payment, error)
	// LatestPaymentSeq returns the highest payment Seq recorded for the
	// loan, or 0 when it has none.
	LatestPaymentSeq(ctx context.Context, loanID uuid.UUID) (int64, error)

	// WithinTx runs fn in a transaction. Transactions are serialized against
	// each other; fn's error aborts and is returned unchanged.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}
