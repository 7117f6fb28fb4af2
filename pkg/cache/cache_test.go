package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/mcclellann/loanLedger/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleView() *models.LedgerView {
	loanID := uuid.New()
	return &models.LedgerView{
		Loan: models.Loan{
			ID:                loanID,
			CustomerID:        "cust",
			Principal:         decimal.NewFromInt(1000),
			InterestRate:      decimal.NewFromInt(10),
			TermYears:         1,
			TotalInterest:     decimal.NewFromInt(100),
			TotalPayable:      decimal.NewFromInt(1100),
			InstallmentAmount: decimal.RequireFromString("91.67"),
			Status:            models.LoanStatusActive,
			CreatedAt:         time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC),
		},
		Standing: models.Standing{
			AmountPaid:            decimal.RequireFromString("91.67"),
			Balance:               decimal.RequireFromString("1008.33"),
			InstallmentsRemaining: 11,
		},
		Status: models.LoanStatusActive,
		Transactions: []models.Payment{{
			ID:        uuid.New(),
			LoanID:    loanID,
			Seq:       1,
			Amount:    decimal.RequireFromString("91.67"),
			Type:      models.PaymentTypeEMI,
			Timestamp: time.Date(2025, 3, 3, 4, 5, 6, 0, time.UTC),
		}},
	}
}

func TestLedgerKey(t *testing.T) {
	id := uuid.MustParse("6f1c1c1e-5d38-4d53-9a6b-6f9b1f0f6b11")
	assert.Equal(t, "ledger:6f1c1c1e-5d38-4d53-9a6b-6f9b1f0f6b11:7", LedgerKey(id, 7))
	assert.NotEqual(t, LedgerKey(id, 7), LedgerKey(id, 8))
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewRedisCache(mr.Addr(), time.Minute)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))

	_, ok, err := c.Get(ctx, "ledger:missing:0")
	require.NoError(t, err)
	assert.False(t, ok)

	view := sampleView()
	key := LedgerKey(view.Loan.ID, 1)
	require.NoError(t, c.Set(ctx, key, view))

	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, view.Loan.ID, got.Loan.ID)
	assert.True(t, got.Balance.Equal(view.Balance))
	assert.Equal(t, int64(11), got.InstallmentsRemaining)
	require.Len(t, got.Transactions, 1)
	assert.Equal(t, int64(1), got.Transactions[0].Seq)
	assert.True(t, got.Transactions[0].Timestamp.Equal(view.Transactions[0].Timestamp))

	mr.FastForward(2 * time.Minute)
	_, ok, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_UnreachableServer(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewRedisCache(mr.Addr(), time.Minute)
	defer c.Close()
	mr.Close()

	_, _, err := c.Get(context.Background(), "ledger:any:0")
	assert.Error(t, err)
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	view := sampleView()
	key := LedgerKey(view.Loan.ID, 1)
	require.NoError(t, c.Set(ctx, key, view))

	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, *view, *got)

	got.Transactions[0].Amount = decimal.NewFromInt(1)
	again, _, _ := c.Get(ctx, key)
	assert.True(t, again.Transactions[0].Amount.Equal(view.Transactions[0].Amount))

	now = now.Add(2 * time.Minute)
	_, ok, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}
