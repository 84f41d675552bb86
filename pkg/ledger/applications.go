package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcclellann/saccoLoan/pkg/amortization"
	"github.com/mcclellann/saccoLoan/pkg/models"
	"github.com/shopspring/decimal"
)

// ApprovalResult describes everything an approval created.
type ApprovalResult struct {
	Application *models.LoanApplication        `json:"application"`
	Loan        *models.ApprovedLoan           `json:"loan"`
	Schedule    []*models.RepaymentInstallment `json:"installments"`
	Plan        *amortization.Schedule         `json:"amortization"`
	Change      models.Change                  `json:"change"`
}

// SubmitApplication records a pending loan request for an approved member.
func (l *Ledger) SubmitApplication(ctx context.Context, memberID string, amount decimal.Decimal, purpose string) (*models.LoanApplication, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	member, err := l.resolveMember(ctx, memberID, ErrNotFound)
	if err != nil {
		return nil, err
	}
	if member.Status != models.MemberStatusApproved {
		return nil, fmt.Errorf("member %s: %w", memberID, ErrMemberNotApproved)
	}

	app, err := l.createApplication(ctx, memberID, amount, purpose)
	if err != nil {
		return nil, err
	}
	l.log.Info("Loan application submitted", "application_id", app.ID, "member_id", memberID, "amount", amount.StringFixed(2))
	l.publish(models.CollectionLoanApplications)
	return app, nil
}

func (l *Ledger) createApplication(ctx context.Context, memberID string, amount decimal.Decimal, purpose string) (*models.LoanApplication, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	app := &models.LoanApplication{
		ID:       fmt.Sprintf("LOAN%d", l.nextStamp()),
		MemberID: memberID,
		Amount:   amount,
		Purpose:  purpose,
		Status:   models.ApplicationStatusPending,
		Date:     l.now(),
	}
	if err := l.storage.CreateApplication(ctx, app); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return app, nil
}

func (l *Ledger) ListApplications(ctx context.Context) ([]*models.LoanApplication, error) {
	return l.storage.ListApplications(ctx)
}

// ApproveApplication turns a pending application into an active loan with a full repayment schedule.
func (l *Ledger) ApproveApplication(ctx context.Context, applicationID string) (*ApprovalResult, error) {
	result, err := l.approveApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	result.Change = l.publish(models.CollectionLoanApplications, models.CollectionApprovedLoans, models.CollectionLoanRepayments)

	loan := result.Loan
	name := loan.MemberID
	if member, err := l.members.GetMember(ctx, loan.MemberID); err == nil {
		name = member.FullName
	}
	l.notify(ctx, fmt.Sprintf("Loan approved for %s - Amount: %s", name, loan.Amount.StringFixed(2)), models.SeveritySuccess)
	return result, nil
}

func (l *Ledger) approveApplication(ctx context.Context, applicationID string) (*ApprovalResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	app, err := l.pendingApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	now := l.now()
	loan := &models.ApprovedLoan{
		ID:              app.ID,
		MemberID:        app.MemberID,
		Amount:          app.Amount,
		Purpose:         app.Purpose,
		ApprovalDate:    now,
		Status:          models.LoanStatusActive,
		PaidAmount:      decimal.Zero,
		RemainingAmount: app.Amount,
		UpdatedAt:       now,
	}

	plan, schedule, err := l.buildSchedule(loan)
	if err != nil {
		return nil, err
	}

	approved := *app
	approved.Status = models.ApplicationStatusApproved
	if err := l.storage.ApproveApplication(ctx, &approved, loan, schedule); err != nil {
		l.log.Error("Failed to approve loan", "application_id", applicationID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	l.log.Info("Loan approved", "loan_id", loan.ID, "member_id", loan.MemberID, "installments", len(schedule),
		"monthly_payment", plan.InstallmentAmount().StringFixed(2))
	return &ApprovalResult{Application: &approved, Loan: loan, Schedule: schedule, Plan: plan}, nil
}

// RejectApplication closes a pending application. Rejection is terminal.
func (l *Ledger) RejectApplication(ctx context.Context, applicationID string) (*models.LoanApplication, error) {
	app, err := l.rejectApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	l.log.Info("Loan application rejected", "application_id", applicationID)
	l.publish(models.CollectionLoanApplications)
	return app, nil
}

func (l *Ledger) rejectApplication(ctx context.Context, applicationID string) (*models.LoanApplication, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	app, err := l.storage.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.Status != models.ApplicationStatusPending {
		return nil, fmt.Errorf("application %s is %s: %w", applicationID, app.Status, ErrInvalidTransition)
	}

	app.Status = models.ApplicationStatusRejected
	if err := l.storage.UpdateApplication(ctx, app); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return app, nil
}

func (l *Ledger) pendingApplication(ctx context.Context, id string) (*models.LoanApplication, error) {
	app, err := l.storage.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.Status != models.ApplicationStatusPending {
		return nil, fmt.Errorf("no pending application %s: %w", id, ErrNotFound)
	}
	return app, nil
}

// RegenerateSchedule rebuilds a loan's installments from its approval date and the current settings.
// Every existing installment of the loan is replaced.
func (l *Ledger) RegenerateSchedule(ctx context.Context, loanID string) ([]*models.RepaymentInstallment, error) {
	schedule, err := l.regenerateSchedule(ctx, loanID)
	if err != nil {
		return nil, err
	}
	l.log.Info("Repayment schedule regenerated", "loan_id", loanID, "installments", len(schedule))
	l.publish(models.CollectionLoanRepayments)
	return schedule, nil
}

func (l *Ledger) regenerateSchedule(ctx context.Context, loanID string) ([]*models.RepaymentInstallment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	loan, err := l.storage.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	_, schedule, err := l.buildSchedule(loan)
	if err != nil {
		return nil, err
	}
	if err := l.storage.ReplaceSchedule(ctx, loanID, schedule); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return schedule, nil
}

// buildSchedule creates one pending installment per amortization row, due n calendar months after approval.
func (l *Ledger) buildSchedule(loan *models.ApprovedLoan) (*amortization.Schedule, []*models.RepaymentInstallment, error) {
	settings := l.settings.Settings()
	plan, err := amortization.Generate(loan.Amount, settings.InterestRatePercent, settings.LoanTermMonths)
	if err != nil {
		return nil, nil, fmt.Errorf("generate schedule for loan %s: %w", loan.ID, err)
	}

	amount := plan.InstallmentAmount()
	schedule := make([]*models.RepaymentInstallment, 0, len(plan.Rows))
	for _, row := range plan.Rows {
		schedule = append(schedule, &models.RepaymentInstallment{
			ID:       "REP-" + uuid.NewString(),
			LoanID:   loan.ID,
			MemberID: loan.MemberID,
			Month:    row.Month,
			Amount:   amount,
			DueDate:  loan.ApprovalDate.AddDate(0, row.Month, 0),
			Status:   models.InstallmentStatusPending,
			Payments: []models.Payment{},
		})
	}
	return plan, schedule, nil
}
