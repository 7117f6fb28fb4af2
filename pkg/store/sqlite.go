package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loanLedger/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

// ErrCustomerNotFound is returned by GetCustomer for an unknown id.
var ErrCustomerNotFound = errors.New("customer not found")

// Connection options. Immediate transactions take the write lock on BEGIN,
// so two payment transactions on the same database never both read the
// pre-payment state.
const sqliteOptions = "_txlock=immediate&_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"

var (
	_ Storage = (*SQLiteStore)(nil)
	_ Tx      = (*sqliteTx)(nil)
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
	queries
}

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", withOptions(dataSourceName))
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	if strings.Contains(dataSourceName, ":memory:") {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db, queries: queries{q: db}}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	return s, nil
}

func withOptions(dsn string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + sqliteOptions
	}
	return dsn + "?" + sqliteOptions
}

// initSchema creates the database tables if they don't already exist.
// We use TEXT for decimal fields in SQLite to ensure no precision is lost.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		principal TEXT NOT NULL,
		interest_rate TEXT NOT NULL,
		term_years INTEGER NOT NULL,
		total_interest TEXT NOT NULL,
		total_payable TEXT NOT NULL,
		installment_amount TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY(customer_id) REFERENCES customers(id)
	);
	CREATE INDEX IF NOT EXISTS idx_loans_customer ON loans(customer_id, created_at);
	CREATE TABLE IF NOT EXISTS payments (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		loan_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		type TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	CREATE INDEX IF NOT EXISTS idx_payments_loan ON payments(loan_id, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// WithinTx runs fn inside a single database transaction.
func (s *SQLiteStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqliteTx{queries{q: tx}}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LoanWithPayments reads the loan and its payments inside one deferred read
// transaction. In WAL mode the reader sees a single snapshot and does not
// take the write lock, so payments keep committing while it runs.
func (s *SQLiteStore) LoanWithPayments(ctx context.Context, loanID uuid.UUID) (*models.Loan, []*models.Payment, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	// BeginTx would honour _txlock=immediate
	if _, err := conn.ExecContext(ctx, `BEGIN DEFERRED`); err != nil {
		return nil, nil, fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer conn.ExecContext(context.Background(), `ROLLBACK`)

	q := queries{q: conn}
	loan, err := q.GetLoan(ctx, loanID)
	if err != nil {
		return nil, nil, err
	}
	payments, err := q.ListPayments(ctx, loanID)
	if err != nil {
		return nil, nil, err
	}
	return loan, payments, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteTx struct {
	queries
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	q queryer
}

const loanColumns = `id, customer_id, principal, interest_rate, term_years, total_interest, total_payable, installment_amount, status, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(row rowScanner) (*models.Loan, error) {
	var loan models.Loan
	err := row.Scan(&loan.ID, &loan.CustomerID, &loan.Principal, &loan.InterestRate, &loan.TermYears,
		&loan.TotalInterest, &loan.TotalPayable, &loan.InstallmentAmount, &loan.Status, &loan.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

func (q queries) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	var c models.Customer
	err := q.q.QueryRowContext(ctx, `SELECT id, name, created_at FROM customers WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return &c, nil
}

// UpsertCustomer inserts the customer unless one with the same id exists.
func (q queries) UpsertCustomer(ctx context.Context, c *models.Customer) error {
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO customers (id, name, created_at) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		c.ID, c.Name, c.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert customer: %w", err)
	}
	return nil
}

// InsertLoan inserts a new loan into the database.
func (q queries) InsertLoan(ctx context.Context, loan *models.Loan) error {
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO loans (`+loanColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID.String(), loan.CustomerID, loan.Principal, loan.InterestRate, loan.TermYears,
		loan.TotalInterest, loan.TotalPayable, loan.InstallmentAmount, loan.Status, loan.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

// GetLoan retrieves a loan by its ID.
func (q queries) GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	loan, err := scanLoan(q.q.QueryRowContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrLoanNotFound
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

// ListLoans retrieves all loans, most recent first.
func (q queries) ListLoans(ctx context.Context) ([]*models.Loan, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT `+loanColumns+` FROM loans ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all loans: %w", err)
	}
	defer rows.Close()

	return scanLoans(rows)
}

func (q queries) ListLoansByCustomer(ctx context.Context, customerID string) ([]*models.Loan, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE customer_id = ? ORDER BY created_at DESC, rowid DESC`, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get loans for customer %s: %w", customerID, err)
	}
	defer rows.Close()

	return scanLoans(rows)
}

func scanLoans(rows *sql.Rows) ([]*models.Loan, error) {
	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

// UpdateLoanStatus sets the status of an existing loan.
func (q queries) UpdateLoanStatus(ctx context.Context, id uuid.UUID, status models.LoanStatus) error {
	result, err := q.q.ExecContext(ctx, `UPDATE loans SET status = ? WHERE id = ?`, status, id.String())
	if err != nil {
		return fmt.Errorf("failed to update loan status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return models.ErrLoanNotFound
	}
	return nil
}

// InsertPayment appends a payment and records the sequence number the
// database assigned to it.
func (q queries) InsertPayment(ctx context.Context, p *models.Payment) error {
	result, err := q.q.ExecContext(ctx,
		`INSERT INTO payments (id, loan_id, amount, type, timestamp) VALUES (?, ?, ?, ?, ?)`,
		p.ID.String(), p.LoanID.String(), p.Amount, p.Type, p.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read payment sequence: %w", err)
	}
	p.Seq = seq
	return nil
}

// ListPayments retrieves all payments for a loan in the order they occurred.
func (q queries) ListPayments(ctx context.Context, loanID uuid.UUID) ([]*models.Payment, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT seq, id, loan_id, amount, type, timestamp FROM payments WHERE loan_id = ? ORDER BY timestamp ASC, seq ASC`,
		loanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get payments for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		var p models.Payment
		var timestamp time.Time
		if err := rows.Scan(&p.Seq, &p.ID, &p.LoanID, &p.Amount, &p.Type, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		p.Timestamp = timestamp.UTC()
		payments = append(payments, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for loan payments: %w", err)
	}
	return payments, nil
}

func (q queries) LatestPaymentSeq(ctx context.Context, loanID uuid.UUID) (int64, error) {
	var seq int64
	err := q.q.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM payments WHERE loan_id = ?`, loanID.String()).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest payment for loan %s: %w", loanID, err)
	}
	return seq, nil
}
