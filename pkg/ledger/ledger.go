package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loanLedger/pkg/accounting"
	"github.com/mcclellann/loanLedger/pkg/cache"
	"github.com/mcclellann/loanLedger/pkg/models"
	"github.com/mcclellann/loanLedger/pkg/store"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	msgPaymentRecorded = "Payment recorded"
	msgLoanPaidOff     = "Payment recorded; loan paid off"
)

// Ledger handles the business logic for loans and payments. Balances are
// always derived from the payment history and never stored.
type Ledger struct {
	storage store.Storage
	cache   cache.LedgerCache // optional
	log     zerolog.Logger
	now     func() time.Time
}

type Option func(*Ledger)

func WithCache(c cache.LedgerCache) Option {
	return func(l *Ledger) { l.cache = c }
}

func WithLogger(log zerolog.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// WithClock replaces the time source used to stamp new records.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage, opts ...Option) *Ledger {
	l := &Ledger{
		storage: s,
		log:     zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type CreateLoanRequest struct {
	CustomerID   string
	CustomerName string
	Principal    decimal.Decimal
	RatePercent  decimal.Decimal
	TermYears    int
}

// CreateLoan originates a loan, creating the customer on first use. The
// customer and the loan are written in one transaction.
func (l *Ledger) CreateLoan(ctx context.Context, req CreateLoanRequest) (*models.Loan, error) {
	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer id is required", models.ErrInvalidTerms)
	}
	orig, err := accounting.ComputeOrigination(req.Principal, req.RatePercent, req.TermYears)
	if err != nil {
		return nil, err
	}

	now := l.now().UTC()
	loan := &models.Loan{
		ID:                uuid.New(),
		CustomerID:        customerID,
		Principal:         req.Principal,
		InterestRate:      req.RatePercent,
		TermYears:         req.TermYears,
		TotalInterest:     orig.Interest,
		TotalPayable:      orig.TotalPayable,
		InstallmentAmount: orig.InstallmentAmount,
		Status:            models.LoanStatusActive,
		CreatedAt:         now,
	}
	customer := &models.Customer{
		ID:        customerID,
		Name:      strings.TrimSpace(req.CustomerName),
		CreatedAt: now,
	}

	err = l.storage.WithinTx(ctx, func(tx store.Tx) error {
		if err := tx.UpsertCustomer(ctx, customer); err != nil {
			return err
		}
		return tx.InsertLoan(ctx, loan)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store loan: %w", err)
	}

	l.log.Info().
		Str("loan_id", loan.ID.String()).
		Str("customer_id", customerID).
		Str("principal", loan.Principal.StringFixed(2)).
		Str("total_payable", loan.TotalPayable.StringFixed(2)).
		Str("installment", loan.InstallmentAmount.StringFixed(2)).
		Msg("loan originated")
	return loan, nil
}

// RecordPayment appends a payment to a loan and marks the loan paid off once
// the payments cover the total payable. The insert, the recomputation and the
// status change share one transaction.
func (l *Ledger) RecordPayment(ctx context.Context, loanID uuid.UUID, amount decimal.Decimal, typ models.PaymentType) (*models.PaymentReceipt, error) {
	var (
		payment  *models.Payment
		standing models.Standing
		status   models.LoanStatus
	)
	err := l.storage.WithinTx(ctx, func(tx store.Tx) error {
		loan, err := tx.GetLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if !amount.IsPositive() {
			return fmt.Errorf("%w: got %s", models.ErrInvalidAmount, amount)
		}
		if !typ.Valid() {
			return fmt.Errorf("%w: got %q", models.ErrInvalidPaymentType, typ)
		}
		if loan.Status == models.LoanStatusPaidOff {
			return models.ErrLoanAlreadySettled
		}

		payment = &models.Payment{
			ID:        uuid.New(),
			LoanID:    loan.ID,
			Amount:    amount,
			Type:      typ,
			Timestamp: l.now().UTC(),
		}
		if err := tx.InsertPayment(ctx, payment); err != nil {
			return err
		}
		payments, err := tx.ListPayments(ctx, loan.ID)
		if err != nil {
			return err
		}
		standing, err = accounting.DeriveStatus(loan.TotalPayable, loan.InstallmentAmount, payments)
		if err != nil {
			return err
		}

		status = loan.Status
		if standing.Satisfied {
			if err := tx.UpdateLoanStatus(ctx, loan.ID, models.LoanStatusPaidOff); err != nil {
				return err
			}
			status = models.LoanStatusPaidOff
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	receipt := &models.PaymentReceipt{
		PaymentID:             payment.ID,
		LoanID:                loanID,
		Message:               msgPaymentRecorded,
		RemainingBalance:      standing.Balance,
		InstallmentsRemaining: standing.InstallmentsRemaining,
		Status:                status,
	}
	ev := l.log.Info().
		Str("loan_id", loanID.String()).
		Str("payment_id", payment.ID.String()).
		Str("amount", amount.StringFixed(2)).
		Str("type", string(typ)).
		Str("balance", standing.Balance.StringFixed(2))
	if status == models.LoanStatusPaidOff {
		receipt.Message = msgLoanPaidOff
		ev.Msg("payment recorded; loan paid off")
	} else {
		ev.Msg("payment recorded")
	}
	return receipt, nil
}

// GetLoan retrieves a loan by its ID.
func (l *Ledger) GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	return l.storage.GetLoan(ctx, id)
}

// GetLedger returns the loan, its derived standing and its payments in the
// order they occurred.
func (l *Ledger) GetLedger(ctx context.Context, loanID uuid.UUID) (*models.LedgerView, error) {
	if l.cache != nil {
		if view, ok := l.cachedLedger(ctx, loanID); ok {
			return view, nil
		}
	}

	loan, payments, err := l.storage.LoanWithPayments(ctx, loanID)
	if err != nil {
		return nil, err
	}
	accounting.OrderPayments(payments)
	standing, err := accounting.DeriveStatus(loan.TotalPayable, loan.InstallmentAmount, payments)
	if err != nil {
		return nil, err
	}

	view := &models.LedgerView{
		Loan:         *loan,
		Standing:     standing,
		Status:       loan.Status,
		Transactions: make([]models.Payment, 0, len(payments)),
	}
	var latest int64
	for _, p := range payments {
		view.Transactions = append(view.Transactions, *p)
		if p.Seq > latest {
			latest = p.Seq
		}
	}

	if l.cache != nil {
		if (view.Status == models.LoanStatusPaidOff) != view.Satisfied {
			// status and history disagree; caching would pin the mismatch
			// until the entry expires
			l.log.Debug().Str("loan_id", loanID.String()).Str("status", string(view.Status)).
				Bool("satisfied", view.Satisfied).Msg("inconsistent ledger read not cached")
			return view, nil
		}
		// keyed by what was actually read, not by the earlier lookup
		key := cache.LedgerKey(loanID, latest)
		if err := l.cache.Set(ctx, key, view); err != nil {
			l.log.Warn().Err(err).Str("key", key).Msg("ledger cache write failed")
		}
	}
	return view, nil
}

func (l *Ledger) cachedLedger(ctx context.Context, loanID uuid.UUID) (*models.LedgerView, bool) {
	seq, err := l.storage.LatestPaymentSeq(ctx, loanID)
	if err != nil {
		l.log.Warn().Err(err).Str("loan_id", loanID.String()).Msg("ledger cache lookup skipped")
		return nil, false
	}
	key := cache.LedgerKey(loanID, seq)
	view, ok, err := l.cache.Get(ctx, key)
	if err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("ledger cache read failed")
		return nil, false
	}
	return view, ok
}

// GetCustomerOverview summarises every loan of a customer, most recent first.
func (l *Ledger) GetCustomerOverview(ctx context.Context, customerID string) (*models.CustomerOverview, error) {
	customerID = strings.TrimSpace(customerID)
	loans, err := l.storage.ListLoansByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if len(loans) == 0 {
		return nil, fmt.Errorf("%w: %s", models.ErrNoLoansForCustomer, customerID)
	}
	summaries, err := l.summarize(ctx, loans)
	if err != nil {
		return nil, err
	}
	return &models.CustomerOverview{
		CustomerID: customerID,
		TotalLoans: len(summaries),
		Loans:      summaries,
	}, nil
}

// ListLoans summarises all loans, most recent first.
func (l *Ledger) ListLoans(ctx context.Context) ([]models.LoanSummary, error) {
	loans, err := l.storage.ListLoans(ctx)
	if err != nil {
		return nil, err
	}
	return l.summarize(ctx, loans)
}

func (l *Ledger) summarize(ctx context.Context, loans []*models.Loan) ([]models.LoanSummary, error) {
	out := make([]models.LoanSummary, 0, len(loans))
	for _, listed := range loans {
		// status must pair with the payments it was derived from
		loan, payments, err := l.storage.LoanWithPayments(ctx, listed.ID)
		if err != nil {
			return nil, err
		}
		standing, err := accounting.DeriveStatus(loan.TotalPayable, loan.InstallmentAmount, payments)
		if err != nil {
			return nil, err
		}
		out = append(out, models.LoanSummary{
			LoanID:            loan.ID,
			Principal:         loan.Principal,
			TotalInterest:     loan.TotalInterest,
			TotalPayable:      loan.TotalPayable,
			InstallmentAmount: loan.InstallmentAmount,
			Status:            loan.Status,
			CreatedAt:         loan.CreatedAt,
			Standing:          standing,
		})
	}
	return out, nil
}
