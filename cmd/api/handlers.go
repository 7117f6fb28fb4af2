package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/loanLedger/pkg/ledger"
	"github.com/mcclellann/loanLedger/pkg/models"
	"github.com/mcclellann/loanLedger/pkg/store"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Server holds the ledger instance.
type Server struct {
	ledger  *ledger.Ledger
	storage store.Storage // Keep a reference to the storage to close it
	log     zerolog.Logger
}

func NewServer(s store.Storage, log zerolog.Logger, opts ...ledger.Option) *Server {
	opts = append([]ledger.Option{ledger.WithLogger(log)}, opts...)
	return &Server{
		ledger:  ledger.NewLedger(s, opts...),
		storage: s,
		log:     log,
	}
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.accessLog)

	router.HandleFunc("/loans", s.listLoansHandler).Methods("GET")
	router.HandleFunc("/loans", s.createLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}", s.getLoanHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/payments", s.recordPaymentHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/ledger", s.getLedgerHandler).Methods("GET")
	router.HandleFunc("/customers/{id}/overview", s.customerOverviewHandler).Methods("GET")
	return router
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidTerms),
		errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrInvalidPaymentType):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrLoanNotFound),
		errors.Is(err, models.ErrNoLoansForCustomer):
		return http.StatusNotFound
	case errors.Is(err, models.ErrLoanAlreadySettled):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func loanIDFrom(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	return id, err == nil
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CustomerID   string          `json:"customer_id"`
		CustomerName string          `json:"customer_name"`
		Principal    decimal.Decimal `json:"principal"`
		TermYears    int             `json:"term_years"`
		RatePercent  decimal.Decimal `json:"annual_rate_percent"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	loan, err := s.ledger.CreateLoan(r.Context(), ledger.CreateLoanRequest{
		CustomerID:   req.CustomerID,
		CustomerName: req.CustomerName,
		Principal:    req.Principal,
		RatePercent:  req.RatePercent,
		TermYears:    req.TermYears,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, loan)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := loanIDFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid loan ID")
		return
	}

	loan, err := s.ledger.GetLoan(r.Context(), loanID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	loans, err := s.ledger.ListLoans(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loans)
}

func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := loanIDFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid loan ID")
		return
	}

	var req struct {
		Amount decimal.Decimal `json:"amount"`
		Type   string          `json:"type"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	typ := models.PaymentType(strings.ToUpper(strings.TrimSpace(req.Type)))
	receipt, err := s.ledger.RecordPayment(r.Context(), loanID, req.Amount, typ)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, receipt)
}

func (s *Server) getLedgerHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := loanIDFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid loan ID")
		return
	}

	view, err := s.ledger.GetLedger(r.Context(), loanID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

func (s *Server) customerOverviewHandler(w http.ResponseWriter, r *http.Request) {
	overview, err := s.ledger.GetCustomerOverview(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, overview)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
