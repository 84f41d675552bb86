package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type MemberStatus string

const (
	MemberStatusPending  MemberStatus = "pending"
	MemberStatusApproved MemberStatus = "approved"
	MemberStatusRejected MemberStatus = "rejected"
)

// Member is owned by the member directory. The loan ledger only looks members up by ID.
type Member struct {
	ID               string       `json:"id"` // MEM-YYYYMM-XXXX
	FullName         string       `json:"full_name"`
	Email            string       `json:"email,omitempty"`
	Phone            string       `json:"phone,omitempty"`
	Status           MemberStatus `json:"status"`
	RegistrationDate time.Time    `json:"registration_date"`
	ApprovalDate     *time.Time   `json:"approval_date,omitempty"`
}

type Fund string

const (
	FundSavings    Fund = "savings"
	FundCondolence Fund = "condolence"
	FundEducation  Fund = "education"
	FundHealth     Fund = "health"
)

// Funds lists every contribution fund in display order.
var Funds = []Fund{FundSavings, FundCondolence, FundEducation, FundHealth}

func (f Fund) Valid() bool {
	for _, known := range Funds {
		if f == known {
			return true
		}
	}
	return false
}

type Contribution struct {
	ID        string          `json:"id"`
	MemberID  string          `json:"member_id"`
	Fund      Fund            `json:"fund"`
	Amount    decimal.Decimal `json:"amount"`
	Date      time.Time       `json:"date"`
	ReceiptNo string          `json:"receipt_no"`
}

type ApplicationStatus string

const (
	ApplicationStatusPending  ApplicationStatus = "pending"
	ApplicationStatusApproved ApplicationStatus = "approved"
	ApplicationStatusRejected ApplicationStatus = "rejected"
)

type LoanApplication struct {
	ID       string            `json:"id"` // LOAN<timestamp>
	MemberID string            `json:"member_id"`
	Amount   decimal.Decimal   `json:"amount"`
	Purpose  string            `json:"purpose"`
	Status   ApplicationStatus `json:"status"`
	Date     time.Time         `json:"date"`
}

type LoanStatus string

const (
	LoanStatusActive    LoanStatus = "active"
	LoanStatusCompleted LoanStatus = "completed"
	LoanStatusDefaulted LoanStatus = "defaulted" // only ever set manually
)

// ApprovedLoan is the aggregate view of a loan. PaidAmount and RemainingAmount are
// only changed by the repayment ledger.
type ApprovedLoan struct {
	ID              string          `json:"id"` // inherited from the application
	MemberID        string          `json:"member_id"`
	Amount          decimal.Decimal `json:"amount"` // original principal
	Purpose         string          `json:"purpose"`
	ApprovalDate    time.Time       `json:"approval_date"`
	Status          LoanStatus      `json:"status"`
	PaidAmount      decimal.Decimal `json:"paid_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type InstallmentStatus string

const (
	InstallmentStatusPending InstallmentStatus = "pending"
	InstallmentStatusPartial InstallmentStatus = "partial"
	InstallmentStatusPaid    InstallmentStatus = "paid"
)

// RolloverNote tags payment events credited from an overpaid earlier installment.
const RolloverNote = "Automatic rollover from previous installment"

type Payment struct {
	Amount    decimal.Decimal `json:"amount"`
	Date      time.Time       `json:"date"`
	Method    string          `json:"method"`
	Reference string          `json:"reference,omitempty"`
	Note      string          `json:"note,omitempty"`
}

// RepaymentInstallment is one scheduled period of an approved loan.
type RepaymentInstallment struct {
	ID              string              `json:"id"`
	LoanID          string              `json:"loan_id"`
	MemberID        string              `json:"member_id"`
	Month           int                 `json:"month"`
	Amount          decimal.Decimal     `json:"amount"` // fixed scheduled amount, 2dp
	DueDate         time.Time           `json:"due_date"`
	Status          InstallmentStatus   `json:"status"`
	RemainingAmount decimal.NullDecimal `json:"remaining_amount"` // set once a payment has touched it
	PaymentDate     *time.Time          `json:"payment_date,omitempty"`
	PaymentMethod   string              `json:"payment_method,omitempty"`
	Reference       string              `json:"reference,omitempty"`
	Payments        []Payment           `json:"payments"`
}

// Due is the amount still owed on the installment.
func (r *RepaymentInstallment) Due() decimal.Decimal {
	if r.RemainingAmount.Valid {
		return r.RemainingAmount.Decimal
	}
	return r.Amount
}

// TotalPaid sums the recorded payment events, rollover credits included.
func (r *RepaymentInstallment) TotalPaid() decimal.Decimal {
	total := decimal.Zero
	for _, p := range r.Payments {
		total = total.Add(p.Amount)
	}
	return total
}

// Clone returns a deep copy so callers can compute a new state without touching the original.
func (r *RepaymentInstallment) Clone() *RepaymentInstallment {
	c := *r
	if r.PaymentDate != nil {
		d := *r.PaymentDate
		c.PaymentDate = &d
	}
	c.Payments = append([]Payment(nil), r.Payments...)
	return &c
}

type BonusStatus string

const (
	BonusStatusCalculated BonusStatus = "calculated"
	BonusStatusApproved   BonusStatus = "approved"
)

type BonusDetails struct {
	BaseBonus          decimal.Decimal `json:"base_bonus"`
	RepaymentBonus     decimal.Decimal `json:"repayment_bonus"`
	TotalContributions decimal.Decimal `json:"total_contributions"`
	RepaymentScore     decimal.Decimal `json:"repayment_score"`
}

type Bonus struct {
	ID                string          `json:"id"`
	MemberID          string          `json:"member_id"`
	Period            string          `json:"period"` // YYYY-MM of the scoring run
	Amount            decimal.Decimal `json:"amount"`
	ContributionTotal decimal.Decimal `json:"contribution_total"`
	RepaymentScore    decimal.Decimal `json:"repayment_score"` // 0.0 - 1.0
	Date              time.Time       `json:"date"`
	Status            BonusStatus     `json:"status"`
	ApprovalDate      *time.Time      `json:"approval_date,omitempty"`
	Details           BonusDetails    `json:"details"`
}

// Settings drives schedule generation.
type Settings struct {
	InterestRatePercent decimal.Decimal `json:"interest_rate_percent"`
	LoanTermMonths      int             `json:"loan_term_months"`
}

type ReceiptKind string

const (
	ReceiptKindLoanPayment  ReceiptKind = "loan_payment"
	ReceiptKindBonus        ReceiptKind = "bonus"
	ReceiptKindContribution ReceiptKind = "contribution"
)

type Receipt struct {
	ReceiptNo       string              `json:"receipt_no"`
	Date            time.Time           `json:"date"`
	MemberID        string              `json:"member_id"`
	MemberName      string              `json:"member_name"`
	Amount          decimal.Decimal     `json:"amount"`
	RemainingAmount decimal.NullDecimal `json:"remaining_amount"`
	Method          string              `json:"method,omitempty"`
	Reference       string              `json:"reference,omitempty"`
	LoanID          string              `json:"loan_id,omitempty"`
}

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Collection names, shared by the store and change notifications.
const (
	CollectionMembers          = "members"
	CollectionContributions    = "contributions"
	CollectionLoanApplications = "loanApplications"
	CollectionApprovedLoans    = "approvedLoans"
	CollectionLoanRepayments   = "loanRepayments"
	CollectionBonuses          = "bonuses"
)

// Change lists the collections a committed operation wrote.
type Change struct {
	Collections []string `json:"collections"`
}
