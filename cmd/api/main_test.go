package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/mcclellann/saccoLoan/pkg/auth"
	"github.com/mcclellann/saccoLoan/pkg/bonus"
	"github.com/mcclellann/saccoLoan/pkg/config"
	"github.com/mcclellann/saccoLoan/pkg/dashboard"
	"github.com/mcclellann/saccoLoan/pkg/ledger"
	"github.com/mcclellann/saccoLoan/pkg/members"
	"github.com/mcclellann/saccoLoan/pkg/models"
	"github.com/mcclellann/saccoLoan/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	t        *testing.T
	router   *mux.Router
	receipts *bytes.Buffer
	token    string
}

func setupTestServer(t *testing.T) *testAPI {
	t.Helper()
	hash, err := auth.HashPassword("admin123")
	require.NoError(t, err)

	cfg, err := config.Parse([]byte(`
auth:
  admin_password_hash: "` + hash + `"
  session_secret: "0123456789abcdef0123456789abcdef"
loan:
  interest_rate_percent: 10
  term_months: 12
`))
	require.NoError(t, err)

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test_api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	receipts := &bytes.Buffer{}
	server := NewServer(cfg, s, receipts)
	return &testAPI{t: t, router: server.Router(), receipts: receipts}
}

func (a *testAPI) do(method, path string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func (a *testAPI) decode(rr *httptest.ResponseRecorder, v any) {
	a.t.Helper()
	require.NoError(a.t, json.Unmarshal(rr.Body.Bytes(), v), rr.Body.String())
}

func (a *testAPI) login() {
	a.t.Helper()
	rr := a.do("POST", "/login", map[string]string{"username": "admin", "password": "admin123"})
	require.Equal(a.t, http.StatusOK, rr.Code, rr.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	a.decode(rr, &resp)
	a.token = resp.Token
}

// approvedMember registers and approves a member with one savings contribution.
func (a *testAPI) approvedMember(name string) *models.Member {
	a.t.Helper()
	rr := a.do("POST", "/members", map[string]string{"full_name": name})
	require.Equal(a.t, http.StatusCreated, rr.Code, rr.Body.String())
	var member models.Member
	a.decode(rr, &member)

	rr = a.do("POST", "/members/"+member.ID+"/approve", nil)
	require.Equal(a.t, http.StatusOK, rr.Code, rr.Body.String())

	rr = a.do("POST", "/members/"+member.ID+"/contributions", map[string]string{"fund": "savings", "amount": "10000"})
	require.Equal(a.t, http.StatusCreated, rr.Code, rr.Body.String())
	return &member
}

func (a *testAPI) approvedLoan(memberID, amount string) *ledger.ApprovalResult {
	a.t.Helper()
	rr := a.do("POST", "/applications", map[string]string{"member_id": memberID, "amount": amount, "purpose": "dairy cows"})
	require.Equal(a.t, http.StatusCreated, rr.Code, rr.Body.String())
	var app models.LoanApplication
	a.decode(rr, &app)

	rr = a.do("POST", "/applications/"+app.ID+"/approve", nil)
	require.Equal(a.t, http.StatusOK, rr.Code, rr.Body.String())
	var result ledger.ApprovalResult
	a.decode(rr, &result)
	return &result
}

func TestAPI_Login(t *testing.T) {
	api := setupTestServer(t)

	rr := api.do("POST", "/login", map[string]string{"username": "admin", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = api.do("POST", "/members", map[string]string{"full_name": "Achieng Otieno"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	api.login()
	assert.NotEmpty(t, api.token)

	rr = api.do("POST", "/members", map[string]string{"full_name": "Achieng Otieno"})
	assert.Equal(t, http.StatusCreated, rr.Code)
}

func TestAPI_LoanLifecycle(t *testing.T) {
	api := setupTestServer(t)
	api.login()

	member := api.approvedMember("Achieng Otieno")
	approval := api.approvedLoan(member.ID, "120000")
	require.Len(t, approval.Schedule, 12)
	assert.Equal(t, "10549.91", approval.Schedule[0].Amount.StringFixed(2))

	rr := api.do("GET", "/loans/"+approval.Loan.ID+"/installments", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var insts []*models.RepaymentInstallment
	api.decode(rr, &insts)
	require.Len(t, insts, 12)
	first := insts[0]

	// overpayment without rollover is refused
	rr = api.do("POST", "/installments/"+first.ID+"/payments/preview", map[string]any{"amount": "20000", "method": "mpesa"})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = api.do("POST", "/installments/"+first.ID+"/payments/preview", map[string]any{"amount": "5000", "method": "mpesa"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var plan ledger.PaymentPlan
	api.decode(rr, &plan)
	assert.Equal(t, "5549.91", plan.Allocations[0].Remaining.StringFixed(2))
	assert.Equal(t, "Achieng Otieno", plan.MemberName)

	rr = api.do("POST", "/installments/"+first.ID+"/payments", map[string]any{"amount": "5000", "method": "mpesa", "reference": "QWE123"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var result ledger.PaymentResult
	api.decode(rr, &result)
	assert.Equal(t, models.InstallmentStatusPartial, result.Installment.Status)
	assert.Equal(t, "5000.00", result.Loan.PaidAmount.StringFixed(2))
	assert.Contains(t, api.receipts.String(), `"kind":"loan_payment"`)

	rr = api.do("POST", "/installments/"+first.ID+"/payments", map[string]any{
		"amount": "6000", "method": "mpesa", "allow_rollover": true,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	api.decode(rr, &result)
	assert.Equal(t, models.InstallmentStatusPaid, result.Installment.Status)
	require.Len(t, result.RolledOver, 1)
	assert.Equal(t, insts[1].ID, result.RolledOver[0].ID)

	rr = api.do("GET", "/installments/"+first.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var details ledger.RepaymentDetails
	api.decode(rr, &details)
	assert.Equal(t, "10549.91", details.TotalPaid.StringFixed(2))
	assert.True(t, details.Remaining.IsZero())

	rr = api.do("POST", "/installments/"+first.ID+"/receipt", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = api.do("POST", "/loans/"+approval.Loan.ID+"/default", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var loan models.ApprovedLoan
	api.decode(rr, &loan)
	assert.Equal(t, models.LoanStatusDefaulted, loan.Status)
}

func TestAPI_NotFoundAndConflict(t *testing.T) {
	api := setupTestServer(t)
	api.login()

	rr := api.do("GET", "/loans/LOAN404", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = api.do("POST", "/installments/REP404/payments", map[string]any{"amount": "10", "method": "cash"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	member := api.approvedMember("Baraka Mwangi")
	rr = api.do("POST", "/members/"+member.ID+"/approve", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = api.do("POST", "/applications", map[string]string{"member_id": member.ID, "amount": "0"})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = api.do("POST", "/applications", strings.Repeat("x", 3))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_Bonuses(t *testing.T) {
	api := setupTestServer(t)
	api.login()
	member := api.approvedMember("Achieng Otieno")

	rr := api.do("POST", "/bonuses/recompute", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var result bonus.RecomputeResult
	api.decode(rr, &result)
	require.Len(t, result.Bonuses, 1)
	assert.Equal(t, member.ID, result.Bonuses[0].MemberID)
	assert.True(t, result.Bonuses[0].Amount.Equal(decimal.NewFromInt(750)))

	rr = api.do("POST", "/bonuses/"+result.Bonuses[0].ID+"/approve", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, api.receipts.String(), `"kind":"bonus"`)

	rr = api.do("POST", "/bonuses/"+result.Bonuses[0].ID+"/approve", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = api.do("GET", "/bonuses", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var bonuses []*models.Bonus
	api.decode(rr, &bonuses)
	require.Len(t, bonuses, 1)
	assert.Equal(t, models.BonusStatusApproved, bonuses[0].Status)

	rr = api.do("GET", "/members/"+member.ID+"/performance", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var perf bonus.Performance
	api.decode(rr, &perf)
	assert.Equal(t, bonus.TierNone, perf.Tier)
}

func TestAPI_Calculator(t *testing.T) {
	api := setupTestServer(t)

	rr := api.do("GET", "/calculator?principal=1200&rate=0&term=12", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp struct {
		MonthlyPayment decimal.Decimal `json:"monthly_payment"`
		Schedule       []struct {
			Month int `json:"month"`
		} `json:"schedule"`
	}
	api.decode(rr, &resp)
	assert.Equal(t, "100", resp.MonthlyPayment.String())
	assert.Len(t, resp.Schedule, 12)

	rr = api.do("GET", "/calculator?principal=1200&rate=10&term=0", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = api.do("GET", "/calculator?principal=1000&rate=10&term=100000000", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = api.do("GET", "/calculator?principal=abc&rate=10&term=12", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_MembersAndDashboard(t *testing.T) {
	api := setupTestServer(t)
	api.login()

	member := api.approvedMember("Achieng Otieno")
	rr := api.do("POST", "/members", map[string]string{"full_name": "Baraka Mwangi"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	approval := api.approvedLoan(member.ID, "120000")

	rr = api.do("GET", "/members?status=approved", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list []*models.Member
	api.decode(rr, &list)
	require.Len(t, list, 1)
	assert.Equal(t, member.ID, list[0].ID)

	rr = api.do("GET", "/members?status=pending", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	api.decode(rr, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "Baraka Mwangi", list[0].FullName)

	rr = api.do("GET", "/members?status=suspended", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = api.do("GET", "/members/"+member.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var profile members.Profile
	api.decode(rr, &profile)
	assert.Equal(t, "Achieng Otieno", profile.FullName)
	assert.Equal(t, "10000.00", profile.TotalContributions.StringFixed(2))

	first := approval.Schedule[0]
	rr = api.do("POST", "/installments/"+first.ID+"/payments", map[string]any{"amount": first.Amount.String(), "method": "cash"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = api.do("GET", "/dashboard", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var summary dashboard.Summary
	api.decode(rr, &summary)
	assert.Equal(t, 1, summary.ApprovedMembers)
	assert.Equal(t, 1, summary.ActiveLoans)
	assert.Equal(t, "10000.00", summary.TotalContributions.StringFixed(2))
	assert.Equal(t, "120000.00", summary.TotalLent.StringFixed(2))
	assert.Equal(t, dashboard.Repayments{OnTime: 1, Pending: 11}, summary.Repayments)
}
