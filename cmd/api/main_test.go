package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/mcclellann/loanLedger/pkg/cache"
	"github.com/gorilla/mux"
	"github.com/mcclellann/loanLedger/pkg/models"
	"github.com/mcclellann/loanLedger/pkg/store"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestServer(t *testing.T) *mux.Router {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test_api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return NewServer(s, zerolog.Nop()).routes()
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func createLoan(t *testing.T, router http.Handler, customer string) models.Loan {
	t.Helper()
	rr := do(t, router, "POST", "/loans", map[string]any{
		"customer_id":         customer,
		"principal":           100000,
		"term_years":          1,
		"annual_rate_percent": 10,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var loan models.Loan
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &loan))
	return loan
}

func TestAPI_CreateAndGetLoan(t *testing.T) {
	router := setupTestServer(t)

	created := createLoan(t, router, "test_cust")
	assert.True(t, created.TotalInterest.Equal(decimal.NewFromInt(10000)))
	assert.True(t, created.TotalPayable.Equal(decimal.NewFromInt(110000)))
	assert.True(t, created.InstallmentAmount.Equal(decimal.RequireFromString("9166.67")))

	rr := do(t, router, "GET", "/loans/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var fetched models.Loan
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &fetched))
	assert.Equal(t, created.ID, fetched.ID)

	rr = do(t, router, "GET", "/loans", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var summaries []models.LoanSummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &summaries))
	assert.Len(t, summaries, 1)
}

func TestAPI_CreateLoanValidation(t *testing.T) {
	router := setupTestServer(t)

	rr := do(t, router, "POST", "/loans", map[string]any{
		"customer_id":         "c",
		"principal":           -100,
		"term_years":          1,
		"annual_rate_percent": 10,
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req := httptest.NewRequest("POST", "/loans", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_RecordPaymentAndLedger(t *testing.T) {
	router := setupTestServer(t)
	loan := createLoan(t, router, "test_cust")
	paymentsPath := "/loans/" + loan.ID.String() + "/payments"

	rr := do(t, router, "POST", paymentsPath, map[string]any{"amount": "9166.67", "type": "EMI"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var receipt models.PaymentReceipt
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &receipt))
	assert.True(t, receipt.RemainingBalance.Equal(decimal.RequireFromString("100833.33")))
	assert.Equal(t, int64(11), receipt.InstallmentsRemaining)

	rr = do(t, router, "POST", paymentsPath, map[string]any{"amount": "100833.33", "type": "lump_sum"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &receipt))
	assert.True(t, receipt.RemainingBalance.IsZero())
	assert.Equal(t, models.LoanStatusPaidOff, receipt.Status)

	rr = do(t, router, "POST", paymentsPath, map[string]any{"amount": "1", "type": "EMI"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, router, "GET", "/loans/"+loan.ID.String()+"/ledger", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var view models.LedgerView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	assert.Equal(t, models.LoanStatusPaidOff, view.Status)
	assert.True(t, view.AmountPaid.Equal(decimal.NewFromInt(110000)))
	require.Len(t, view.Transactions, 2)
	assert.Equal(t, models.PaymentTypeEMI, view.Transactions[0].Type)
	assert.Equal(t, models.PaymentTypeLumpSum, view.Transactions[1].Type)
}

func TestAPI_PaymentErrors(t *testing.T) {
	router := setupTestServer(t)
	loan := createLoan(t, router, "test_cust")
	paymentsPath := "/loans/" + loan.ID.String() + "/payments"

	for _, tc := range []struct {
		name   string
		path   string
		body   map[string]any
		status int
	}{
		{"bad id", "/loans/not-a-uuid/payments", map[string]any{"amount": 1, "type": "EMI"}, http.StatusBadRequest},
		{"unknown loan", "/loans/" + uuid.NewString() + "/payments", map[string]any{"amount": 1, "type": "EMI"}, http.StatusNotFound},
		{"zero amount", paymentsPath, map[string]any{"amount": 0, "type": "EMI"}, http.StatusBadRequest},
		{"unknown type", paymentsPath, map[string]any{"amount": 1, "type": "BALLOON"}, http.StatusBadRequest},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, router, "POST", tc.path, tc.body)
			assert.Equal(t, tc.status, rr.Code, rr.Body.String())

			var body map[string]string
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestAPI_CustomerOverview(t *testing.T) {
	router := setupTestServer(t)

	rr := do(t, router, "GET", "/customers/nobody/overview", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	createLoan(t, router, "alice")
	createLoan(t, router, "alice")

	rr = do(t, router, "GET", "/customers/alice/overview", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var overview models.CustomerOverview
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &overview))
	assert.Equal(t, "alice", overview.CustomerID)
	assert.Equal(t, 2, overview.TotalLoans)
	assert.Len(t, overview.Loans, 2)
}

func TestAPI_LedgerNotFound(t *testing.T) {
	router := setupTestServer(t)

	rr := do(t, router, "GET", "/loans/"+uuid.NewString()+"/ledger", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestOpenCache(t *testing.T) {
	ctx := context.Background()

	c, closeCache, err := openCache(ctx, Config{CacheTTL: time.Minute})
	require.NoError(t, err)
	assert.IsType(t, &cache.MemoryCache{}, c)
	assert.NoError(t, closeCache())

	mr := miniredis.RunT(t)
	c, closeCache, err = openCache(ctx, Config{RedisAddr: mr.Addr(), CacheTTL: time.Minute})
	require.NoError(t, err)
	assert.IsType(t, &cache.RedisCache{}, c)
	assert.NoError(t, closeCache())
}

func TestRun_UnreachableRedisClosesStore(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	dbPath := filepath.Join(t.TempDir(), "run.db")
	cfg := Config{
		Addr:            "127.0.0.1:0",
		DBPath:          dbPath,
		RedisAddr:       addr,
		CacheTTL:        time.Minute,
		ShutdownTimeout: time.Second,
	}

	err := run(context.Background(), cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")

	// closing the last connection checkpoints and removes the WAL file
	assert.FileExists(t, dbPath)
	assert.NoFileExists(t, dbPath+"-wal")
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := Config{
		Addr:            "127.0.0.1:0",
		DBPath:          filepath.Join(t.TempDir(), "run.db"),
		CacheTTL:        time.Minute,
		ShutdownTimeout: time.Second,
	}
	assert.NoError(t, run(ctx, cfg, zerolog.Nop()))
}
