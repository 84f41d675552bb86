package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/mcclellann/saccoLoan/pkg/models"
	"github.com/mcclellann/saccoLoan/pkg/receipt"
	"github.com/mcclellann/saccoLoan/pkg/store"
	"github.com/shopspring/decimal"
)

// PaymentRequest is a payment against one installment. Overpayments are refused
// unless AllowRollover is set, in which case the surplus moves to later installments.
type PaymentRequest struct {
	InstallmentID string          `json:"installment_id"`
	Amount        decimal.Decimal `json:"amount"`
	Date          time.Time       `json:"date"`
	Method        string          `json:"method"`
	Reference     string          `json:"reference,omitempty"`
	AllowRollover bool            `json:"allow_rollover"`
}

// Allocation is the share of a payment credited to one installment.
type Allocation struct {
	InstallmentID string                   `json:"installment_id"`
	DueDate       time.Time                `json:"due_date"`
	Amount        decimal.Decimal          `json:"amount"`
	Rollover      bool                     `json:"rollover"`
	Status        models.InstallmentStatus `json:"status"`
	Remaining     decimal.Decimal          `json:"remaining"`
}

// PaymentPlan describes what recording a payment would do, without doing it.
type PaymentPlan struct {
	InstallmentID       string            `json:"installment_id"`
	LoanID              string            `json:"loan_id"`
	MemberID            string            `json:"member_id"`
	MemberName          string            `json:"member_name"`
	Due                 decimal.Decimal   `json:"due"`
	Amount              decimal.Decimal   `json:"amount"`
	Overpayment         decimal.Decimal   `json:"overpayment"`
	Absorbed            decimal.Decimal   `json:"absorbed"` // surplus with no later pending installment
	Allocations         []Allocation      `json:"allocations"`
	LoanPaidAmount      decimal.Decimal   `json:"loan_paid_amount"`
	LoanRemainingAmount decimal.Decimal   `json:"loan_remaining_amount"`
	LoanStatus          models.LoanStatus `json:"loan_status"`
}

type PaymentResult struct {
	Plan        *PaymentPlan                   `json:"plan"`
	Installment *models.RepaymentInstallment   `json:"installment"`
	RolledOver  []*models.RepaymentInstallment `json:"rolled_over"`
	Loan        *models.ApprovedLoan           `json:"loan"`
	Receipt     models.Receipt                 `json:"receipt"`
	Change      models.Change                  `json:"change"`
}

// RepaymentDetails is the read model behind an installment's detail view.
type RepaymentDetails struct {
	Installment *models.RepaymentInstallment `json:"installment"`
	Loan        *models.ApprovedLoan         `json:"loan"`
	Member      *models.Member               `json:"member"`
	TotalPaid   decimal.Decimal              `json:"total_paid"`
	Remaining   decimal.Decimal              `json:"remaining"`
}

// paymentContext holds everything loaded for one payment.
type paymentContext struct {
	installment *models.RepaymentInstallment
	loan        *models.ApprovedLoan
	member      *models.Member
	siblings    []*models.RepaymentInstallment
}

func (l *Ledger) loadPaymentContext(ctx context.Context, installmentID string) (*paymentContext, error) {
	inst, err := l.storage.GetInstallment(ctx, installmentID)
	if err != nil {
		return nil, err
	}
	loan, err := l.storage.GetLoan(ctx, inst.LoanID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("installment %s references loan %s: %w", inst.ID, inst.LoanID, ErrInconsistentState)
		}
		return nil, err
	}
	member, err := l.resolveMember(ctx, inst.MemberID, ErrInconsistentState)
	if err != nil {
		return nil, err
	}
	siblings, err := l.storage.ListInstallmentsForLoan(ctx, loan.ID)
	if err != nil {
		return nil, err
	}
	return &paymentContext{installment: inst, loan: loan, member: member, siblings: siblings}, nil
}

// PreviewPayment validates a payment and describes its effect without writing anything.
func (l *Ledger) PreviewPayment(ctx context.Context, req PaymentRequest) (*PaymentPlan, error) {
	pc, err := l.loadPaymentContext(ctx, req.InstallmentID)
	if err != nil {
		return nil, err
	}
	applied, err := applyPayment(pc.loan, pc.installment, pc.siblings, req)
	if err != nil {
		return nil, err
	}
	applied.plan.MemberName = pc.member.FullName
	return applied.plan, nil
}

// RecordPayment applies a payment to an installment, rolls any allowed surplus forward,
// updates the loan aggregate and persists installments and loan together.
func (l *Ledger) RecordPayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error) {
	if req.Date.IsZero() {
		req.Date = l.now()
	}

	l.mu.Lock()
	pc, err := l.loadPaymentContext(ctx, req.InstallmentID)
	if err != nil {
		l.mu.Unlock()
		l.log.Warn("Payment rejected", "installment_id", req.InstallmentID, "error", err)
		return nil, err
	}
	applied, err := applyPayment(pc.loan, pc.installment, pc.siblings, req)
	if err != nil {
		l.mu.Unlock()
		l.log.Warn("Payment rejected", "installment_id", req.InstallmentID, "error", err)
		return nil, err
	}
	applied.loan.UpdatedAt = l.now()
	if err := l.storage.SavePayment(ctx, applied.loan, applied.touched()); err != nil {
		l.mu.Unlock()
		l.log.Error("Failed to persist payment", "installment_id", req.InstallmentID, "loan_id", pc.loan.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	l.mu.Unlock()

	plan := applied.plan
	plan.MemberName = pc.member.FullName
	l.log.Info("Payment recorded",
		"installment_id", req.InstallmentID,
		"loan_id", pc.loan.ID,
		"amount", req.Amount.StringFixed(2),
		"status", applied.installment.Status,
		"rolled_over", len(applied.rolledOver),
		"absorbed", plan.Absorbed.StringFixed(2),
		"loan_status", applied.loan.Status,
	)
	change := l.publish(models.CollectionLoanRepayments, models.CollectionApprovedLoans)

	rec := models.Receipt{
		ReceiptNo:       receipt.Number("LP", l.now()),
		Date:            req.Date,
		MemberID:        pc.member.ID,
		MemberName:      pc.member.FullName,
		Amount:          req.Amount,
		RemainingAmount: applied.installment.RemainingAmount,
		Method:          req.Method,
		Reference:       req.Reference,
		LoanID:          pc.loan.ID,
	}
	l.emitReceipt(ctx, rec, models.ReceiptKindLoanPayment)
	l.notify(ctx, "Payment recorded successfully", models.SeveritySuccess)

	return &PaymentResult{
		Plan:        plan,
		Installment: applied.installment,
		RolledOver:  applied.rolledOver,
		Loan:        applied.loan,
		Receipt:     rec,
		Change:      change,
	}, nil
}

// RepaymentDetails returns an installment with its loan, member and payment totals.
func (l *Ledger) RepaymentDetails(ctx context.Context, installmentID string) (*RepaymentDetails, error) {
	pc, err := l.loadPaymentContext(ctx, installmentID)
	if err != nil {
		return nil, err
	}
	return &RepaymentDetails{
		Installment: pc.installment,
		Loan:        pc.loan,
		Member:      pc.member,
		TotalPaid:   pc.installment.TotalPaid(),
		Remaining:   pc.installment.Due(),
	}, nil
}

// ReprintReceipt emits a receipt for the most recent payment on an installment.
func (l *Ledger) ReprintReceipt(ctx context.Context, installmentID string) (*models.Receipt, error) {
	pc, err := l.loadPaymentContext(ctx, installmentID)
	if err != nil {
		return nil, err
	}
	if len(pc.installment.Payments) == 0 {
		return nil, fmt.Errorf("installment %s: %w", installmentID, ErrNoPaymentsRecorded)
	}
	last := pc.installment.Payments[len(pc.installment.Payments)-1]
	rec := models.Receipt{
		ReceiptNo:  receipt.Number("LP", l.now()),
		Date:       last.Date,
		MemberID:   pc.member.ID,
		MemberName: pc.member.FullName,
		Amount:     last.Amount,
		Method:     last.Method,
		Reference:  last.Reference,
		LoanID:     pc.loan.ID,

		RemainingAmount: pc.installment.RemainingAmount,
	}
	if l.receipts != nil {
		if err := l.receipts.Emit(ctx, rec, models.ReceiptKindLoanPayment); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}

type appliedPayment struct {
	plan        *PaymentPlan
	installment *models.RepaymentInstallment
	rolledOver  []*models.RepaymentInstallment
	loan        *models.ApprovedLoan
}

func (a *appliedPayment) touched() []*models.RepaymentInstallment {
	return append([]*models.RepaymentInstallment{a.installment}, a.rolledOver...)
}

// applyPayment computes the new state of the installment, any rollover targets and the loan.
// Inputs are never modified; the result holds copies.
func applyPayment(loan *models.ApprovedLoan, target *models.RepaymentInstallment, siblings []*models.RepaymentInstallment, req PaymentRequest) (*appliedPayment, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if target.Status == models.InstallmentStatusPaid {
		return nil, fmt.Errorf("installment %s: %w", target.ID, ErrAlreadyPaid)
	}

	due := target.Due()
	newRemaining := due.Sub(req.Amount)
	if newRemaining.IsNegative() && !req.AllowRollover {
		return nil, fmt.Errorf("installment %s: paying %s against %s due: %w",
			target.ID, req.Amount.StringFixed(2), due.StringFixed(2), ErrPaymentExceedsDue)
	}

	inst := target.Clone()
	applied := decimal.Min(req.Amount, due)
	surplus := decimal.Zero

	switch {
	case newRemaining.IsPositive():
		inst.Status = models.InstallmentStatusPartial
		inst.RemainingAmount = decimal.NewNullDecimal(newRemaining)
	default:
		inst.Status = models.InstallmentStatusPaid
		inst.RemainingAmount = decimal.NewNullDecimal(decimal.Zero)
		surplus = newRemaining.Neg()
	}
	paidOn := req.Date
	inst.PaymentDate = &paidOn
	inst.PaymentMethod = req.Method
	inst.Reference = req.Reference
	inst.Payments = append(inst.Payments, models.Payment{
		Amount:    applied,
		Date:      req.Date,
		Method:    req.Method,
		Reference: req.Reference,
	})

	plan := &PaymentPlan{
		InstallmentID: inst.ID,
		LoanID:        loan.ID,
		MemberID:      inst.MemberID,
		Due:           due,
		Amount:        req.Amount,
		Overpayment:   surplus,
		Absorbed:      decimal.Zero,
		Allocations: []Allocation{{
			InstallmentID: inst.ID,
			DueDate:       inst.DueDate,
			Amount:        applied,
			Status:        inst.Status,
			Remaining:     inst.RemainingAmount.Decimal,
		}},
	}

	var rolledOver []*models.RepaymentInstallment
	for _, next := range rolloverTargets(target, siblings) {
		if !surplus.IsPositive() {
			break
		}
		credited := next.Clone()
		credit := decimal.Min(surplus, credited.Amount)
		remaining := credited.Amount.Sub(credit)
		if remaining.IsPositive() {
			credited.Status = models.InstallmentStatusPartial
		} else {
			credited.Status = models.InstallmentStatusPaid
			credited.PaymentDate = &paidOn
			credited.PaymentMethod = req.Method
			credited.Reference = req.Reference
		}
		credited.RemainingAmount = decimal.NewNullDecimal(remaining)
		credited.Payments = append(credited.Payments, models.Payment{
			Amount:    credit,
			Date:      req.Date,
			Method:    req.Method,
			Reference: req.Reference,
			Note:      models.RolloverNote,
		})
		surplus = surplus.Sub(credit)

		rolledOver = append(rolledOver, credited)
		plan.Allocations = append(plan.Allocations, Allocation{
			InstallmentID: credited.ID,
			DueDate:       credited.DueDate,
			Amount:        credit,
			Rollover:      true,
			Status:        credited.Status,
			Remaining:     remaining,
		})
	}
	plan.Absorbed = surplus

	updatedLoan := *loan
	updatedLoan.PaidAmount = loan.PaidAmount.Add(req.Amount)
	deriveLoanState(&updatedLoan)
	plan.LoanPaidAmount = updatedLoan.PaidAmount
	plan.LoanRemainingAmount = updatedLoan.RemainingAmount
	plan.LoanStatus = updatedLoan.Status

	return &appliedPayment{plan: plan, installment: inst, rolledOver: rolledOver, loan: &updatedLoan}, nil
}

// rolloverTargets lists pending installments of the same loan due strictly after target,
// earliest first; ties keep stored order.
func rolloverTargets(target *models.RepaymentInstallment, siblings []*models.RepaymentInstallment) []*models.RepaymentInstallment {
	var targets []*models.RepaymentInstallment
	for _, s := range siblings {
		if s.ID == target.ID || s.LoanID != target.LoanID {
			continue
		}
		if s.Status == models.InstallmentStatusPending && s.DueDate.After(target.DueDate) {
			targets = append(targets, s)
		}
	}
	sort.SliceStable(targets, func(i, j int) bool {
		return targets[i].DueDate.Before(targets[j].DueDate)
	})
	return targets
}

// deriveLoanState recomputes the remaining amount and status from PaidAmount.
// Overpaid loans report zero remaining rather than a negative balance. A manually
// defaulted loan stays defaulted until it is paid off.
func deriveLoanState(loan *models.ApprovedLoan) {
	remaining := loan.Amount.Sub(loan.PaidAmount)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	loan.RemainingAmount = remaining

	switch {
	case !remaining.IsPositive():
		loan.Status = models.LoanStatusCompleted
	case loan.Status == models.LoanStatusDefaulted:
	default:
		loan.Status = models.LoanStatusActive
	}
}
