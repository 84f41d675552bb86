package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/mcclellann/saccoLoan/pkg/amortization"
	"github.com/mcclellann/saccoLoan/pkg/auth"
	"github.com/mcclellann/saccoLoan/pkg/bonus"
	"github.com/mcclellann/saccoLoan/pkg/ledger"
	"github.com/mcclellann/saccoLoan/pkg/logger"
	"github.com/mcclellann/saccoLoan/pkg/members"
	"github.com/mcclellann/saccoLoan/pkg/models"
	"github.com/mcclellann/saccoLoan/pkg/store"
	"github.com/shopspring/decimal"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

// writeError maps service errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, ledger.ErrPaymentExceedsDue),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, members.ErrInvalidAmount),
		errors.Is(err, members.ErrInvalidFund),
		errors.Is(err, members.ErrInvalidMember),
		errors.Is(err, amortization.ErrInvalidPrincipal),
		errors.Is(err, amortization.ErrInvalidRate),
		errors.Is(err, amortization.ErrInvalidTerm):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrInvalidTransition),
		errors.Is(err, ledger.ErrAlreadyPaid),
		errors.Is(err, ledger.ErrMemberNotApproved),
		errors.Is(err, ledger.ErrNoPaymentsRecorded),
		errors.Is(err, members.ErrInvalidTransition),
		errors.Is(err, members.ErrMemberNotApproved),
		errors.Is(err, bonus.ErrAlreadyApproved):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		logger.Error("Request failed", "error", err)
	}
	http.Error(w, err.Error(), status)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// sessionMiddleware carries the bearer token into the request context for the receipt gate.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := auth.BearerToken(r.Header.Get("Authorization")); token != "" {
			r = r.WithContext(auth.WithToken(r.Context(), token))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) protect(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.sessions.Authorize(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		h(w, r)
	}
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}
	token, err := s.sessions.Login(req.Username, req.Password)
	if err != nil {
		logger.Warn("Login failed", "username", req.Username)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) calculatorHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	principal, err := decimal.NewFromString(q.Get("principal"))
	if err != nil {
		http.Error(w, "Invalid principal", http.StatusBadRequest)
		return
	}
	rate, err := decimal.NewFromString(q.Get("rate"))
	if err != nil {
		http.Error(w, "Invalid rate", http.StatusBadRequest)
		return
	}
	term, err := strconv.Atoi(q.Get("term"))
	if err != nil {
		http.Error(w, "Invalid term", http.StatusBadRequest)
		return
	}

	schedule, err := amortization.Generate(principal, rate, term)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schedule)
}

func (s *Server) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := s.dashboard.Summary(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Members

func (s *Server) registerMemberHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FullName string `json:"full_name"`
		Email    string `json:"email"`
		Phone    string `json:"phone"`
	}
	if !decode(w, r, &req) {
		return
	}
	member, err := s.members.Register(r.Context(), req.FullName, req.Email, req.Phone)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

func (s *Server) listMembersHandler(w http.ResponseWriter, r *http.Request) {
	list, err := s.members.List(r.Context(), models.MemberStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getMemberHandler(w http.ResponseWriter, r *http.Request) {
	profile, err := s.members.Profile(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) approveMemberHandler(w http.ResponseWriter, r *http.Request) {
	member, err := s.members.Approve(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (s *Server) rejectMemberHandler(w http.ResponseWriter, r *http.Request) {
	member, err := s.members.Reject(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (s *Server) addContributionHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Fund   models.Fund     `json:"fund"`
		Amount decimal.Decimal `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	c, err := s.members.AddContribution(r.Context(), mux.Vars(r)["id"], req.Fund, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) memberPerformanceHandler(w http.ResponseWriter, r *http.Request) {
	p, err := s.bonuses.Performance(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) performanceTableHandler(w http.ResponseWriter, r *http.Request) {
	table, err := s.bonuses.PerformanceTable(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

// Applications

func (s *Server) submitApplicationHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MemberID string          `json:"member_id"`
		Amount   decimal.Decimal `json:"amount"`
		Purpose  string          `json:"purpose"`
	}
	if !decode(w, r, &req) {
		return
	}
	app, err := s.ledger.SubmitApplication(r.Context(), req.MemberID, req.Amount, req.Purpose)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

func (s *Server) listApplicationsHandler(w http.ResponseWriter, r *http.Request) {
	apps, err := s.ledger.ListApplications(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apps)
}

func (s *Server) approveApplicationHandler(w http.ResponseWriter, r *http.Request) {
	result, err := s.ledger.ApproveApplication(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) rejectApplicationHandler(w http.ResponseWriter, r *http.Request) {
	app, err := s.ledger.RejectApplication(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

// Loans

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	loans, err := s.ledger.GetAllLoans(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	loan, err := s.ledger.GetLoan(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) listInstallmentsHandler(w http.ResponseWriter, r *http.Request) {
	insts, err := s.ledger.InstallmentsForLoan(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, insts)
}

func (s *Server) regenerateScheduleHandler(w http.ResponseWriter, r *http.Request) {
	insts, err := s.ledger.RegenerateSchedule(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, insts)
}

func (s *Server) markDefaultedHandler(w http.ResponseWriter, r *http.Request) {
	loan, err := s.ledger.MarkDefaulted(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

// Installments

func (s *Server) repaymentDetailsHandler(w http.ResponseWriter, r *http.Request) {
	details, err := s.ledger.RepaymentDetails(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

// paymentRequest reads a payment body; the installment comes from the path.
func paymentRequest(w http.ResponseWriter, r *http.Request) (ledger.PaymentRequest, bool) {
	var req ledger.PaymentRequest
	if !decode(w, r, &req) {
		return req, false
	}
	req.InstallmentID = mux.Vars(r)["id"]
	if req.Date.IsZero() {
		req.Date = time.Now().UTC()
	}
	return req, true
}

func (s *Server) previewPaymentHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := paymentRequest(w, r)
	if !ok {
		return
	}
	plan, err := s.ledger.PreviewPayment(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := paymentRequest(w, r)
	if !ok {
		return
	}
	result, err := s.ledger.RecordPayment(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) reprintReceiptHandler(w http.ResponseWriter, r *http.Request) {
	rec, err := s.ledger.ReprintReceipt(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Bonuses

func (s *Server) listBonusesHandler(w http.ResponseWriter, r *http.Request) {
	bonuses, err := s.bonuses.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bonuses)
}

func (s *Server) recomputeBonusesHandler(w http.ResponseWriter, r *http.Request) {
	result, err := s.bonuses.Recompute(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) approveBonusHandler(w http.ResponseWriter, r *http.Request) {
	b, rec, err := s.bonuses.Approve(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Bonus   *models.Bonus   `json:"bonus"`
		Receipt *models.Receipt `json:"receipt,omitempty"`
	}{b, rec})
}
