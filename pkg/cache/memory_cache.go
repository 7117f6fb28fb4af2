package cache

import (
	"context"
	"sync"
	"time"

	"github.com/mcclellann/loanLedger/pkg/models"
)

var _ LedgerCache = (*MemoryCache)(nil)

type memoryEntry struct {
	view    models.LedgerView
	expires time.Time
}

// MemoryCache is a map-backed LedgerCache. A zero ttl keeps entries forever.
type MemoryCache struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	data map[string]memoryEntry
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:  ttl,
		now:  time.Now,
		data: make(map[string]memoryEntry),
	}
}

func (m *MemoryCache) Get(_ context.Context, key string) (*models.LedgerView, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && m.now().After(e.expires) {
		delete(m.data, key)
		return nil, false, nil
	}
	view := copyView(e.view)
	return &view, true, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, view *models.LedgerView) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := memoryEntry{view: copyView(*view)}
	if m.ttl > 0 {
		e.expires = m.now().Add(m.ttl)
	}
	m.data[key] = e
	return nil
}

func copyView(v models.LedgerView) models.LedgerView {
	v.Transactions = append([]models.Payment(nil), v.Transactions...)
	return v
}
