// Package cache stores rendered loan ledgers.
//
// Keys name a loan together with the sequence number of its latest payment.
// Payments are append-only, so a key always describes the same payment
// history and a cached view can never go stale; entries expire only to
// reclaim memory.
package cache

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcclellann/loanLedger/pkg/models"
)

type LedgerCache interface {
	Get(ctx context.Context, key string) (*models.LedgerView, bool, error)
	Set(ctx context.Context, key string, view *models.LedgerView) error
}

// LedgerKey builds the cache key for a loan whose latest payment has the given sequence.
func LedgerKey(loanID uuid.UUID, latestSeq int64) string {
	return fmt.Sprintf("ledger:%s:%d", loanID, latestSeq)
}
