package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/mcclellann/loanLedger/pkg/accounting"
	"github.com/mcclellann/loanLedger/pkg/models"
)

var _ Storage = (*MemoryStore)(nil)

// MemoryStore is an in-process Storage. A transaction works on a copy of
// the state that replaces the live state only on commit. Records handed
// out are copies, so callers cannot change stored data.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memState
}

type memState struct {
	customers map[string]*models.Customer
	loans     map[uuid.UUID]*models.Loan
	loanOrder []uuid.UUID // insertion order
	payments  map[uuid.UUID][]*models.Payment
	seq       int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		customers: make(map[string]*models.Customer),
		loans:     make(map[uuid.UUID]*models.Loan),
		payments:  make(map[uuid.UUID][]*models.Payment),
	}}
}

// clone copies the containers. Records are never modified in place, so the
// pointers can be shared.
func (st *memState) clone() *memState {
	c := &memState{
		customers: make(map[string]*models.Customer, len(st.customers)),
		loans:     make(map[uuid.UUID]*models.Loan, len(st.loans)),
		loanOrder: append([]uuid.UUID(nil), st.loanOrder...),
		payments:  make(map[uuid.UUID][]*models.Payment, len(st.payments)),
		seq:       st.seq,
	}
	for k, v := range st.customers {
		c.customers[k] = v
	}
	for k, v := range st.loans {
		c.loans[k] = v
	}
	for k, v := range st.payments {
		c.payments[k] = append([]*models.Payment(nil), v...)
	}
	return c
}

func (st *memState) getLoan(id uuid.UUID) (*models.Loan, error) {
	loan, ok := st.loans[id]
	if !ok {
		return nil, models.ErrLoanNotFound
	}
	cp := *loan
	return &cp, nil
}

func (st *memState) listPayments(loanID uuid.UUID) []*models.Payment {
	src := st.payments[loanID]
	out := make([]*models.Payment, 0, len(src))
	for _, p := range src {
		cp := *p
		out = append(out, &cp)
	}
	accounting.OrderPayments(out)
	return out
}

// listLoans returns the loans matching keep, most recent first, later
// insertions first among equal creation times.
func (st *memState) listLoans(keep func(*models.Loan) bool) []*models.Loan {
	var out []*models.Loan
	for i := len(st.loanOrder) - 1; i >= 0; i-- {
		loan := st.loans[st.loanOrder[i]]
		if keep(loan) {
			cp := *loan
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *MemoryStore) GetCustomer(_ context.Context, id string) (*models.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.customers[id]
	if !ok {
		return nil, ErrCustomerNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) GetLoan(_ context.Context, id uuid.UUID) (*models.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.getLoan(id)
}

func (s *MemoryStore) ListLoans(_ context.Context) ([]*models.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.listLoans(func(*models.Loan) bool { return true }), nil
}

func (s *MemoryStore) ListLoansByCustomer(_ context.Context, customerID string) ([]*models.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.listLoans(func(l *models.Loan) bool { return l.CustomerID == customerID }), nil
}

func (s *MemoryStore) ListPayments(_ context.Context, loanID uuid.UUID) ([]*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.listPayments(loanID), nil
}

func (s *MemoryStore) LoanWithPayments(_ context.Context, loanID uuid.UUID) (*models.Loan, []*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loan, err := s.state.getLoan(loanID)
	if err != nil {
		return nil, nil, err
	}
	return loan, s.state.listPayments(loanID), nil
}

func (s *MemoryStore) LatestPaymentSeq(_ context.Context, loanID uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest int64
	for _, p := range s.state.payments[loanID] {
		if p.Seq > latest {
			latest = p.Seq
		}
	}
	return latest, nil
}

// WithinTx holds the write lock for the whole of fn.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	if err := fn(&memTx{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

type memTx struct {
	st *memState
}

func (t *memTx) UpsertCustomer(_ context.Context, c *models.Customer) error {
	if _, ok := t.st.customers[c.ID]; ok {
		return nil
	}
	cp := *c
	t.st.customers[c.ID] = &cp
	return nil
}

func (t *memTx) InsertLoan(_ context.Context, loan *models.Loan) error {
	if _, ok := t.st.customers[loan.CustomerID]; !ok {
		return ErrCustomerNotFound
	}
	cp := *loan
	t.st.loans[loan.ID] = &cp
	t.st.loanOrder = append(t.st.loanOrder, loan.ID)
	return nil
}

func (t *memTx) GetLoan(_ context.Context, id uuid.UUID) (*models.Loan, error) {
	return t.st.getLoan(id)
}

func (t *memTx) ListPayments(_ context.Context, loanID uuid.UUID) ([]*models.Payment, error) {
	return t.st.listPayments(loanID), nil
}

func (t *memTx) InsertPayment(_ context.Context, p *models.Payment) error {
	if _, ok := t.st.loans[p.LoanID]; !ok {
		return models.ErrLoanNotFound
	}
	t.st.seq++
	p.Seq = t.st.seq
	cp := *p
	t.st.payments[p.LoanID] = append(t.st.payments[p.LoanID], &cp)
	return nil
}

func (t *memTx) UpdateLoanStatus(_ context.Context, id uuid.UUID, status models.LoanStatus) error {
	loan, ok := t.st.loans[id]
	if !ok {
		return models.ErrLoanNotFound
	}
	cp := *loan
	cp.Status = status
	t.st.loans[id] = &cp
	return nil
}
