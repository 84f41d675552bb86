package store

import (
	"context"
	"errors"

	"github.com/mcclellann/saccoLoan/pkg/models"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("not found")

type MemberStore interface {
	CreateMember(ctx context.Context, member *models.Member) error
	GetMember(ctx context.Context, id string) (*models.Member, error)
	UpdateMember(ctx context.Context, member *models.Member) error
	ListMembersByStatus(ctx context.Context, status models.MemberStatus) ([]*models.Member, error)
}

type ContributionStore interface {
	CreateContribution(ctx context.Context, contribution *models.Contribution) error
	// SumContributionsByMember totals a member's contributions across every fund.
	SumContributionsByMember(ctx context.Context, memberID string) (decimal.Decimal, error)
	SumContributions(ctx context.Context) (decimal.Decimal, error)
}

type LoanStore interface {
	CreateApplication(ctx context.Context, app *models.LoanApplication) error
	GetApplication(ctx context.Context, id string) (*models.LoanApplication, error)
	UpdateApplication(ctx context.Context, app *models.LoanApplication) error
	ListApplications(ctx context.Context) ([]*models.LoanApplication, error)

	// ApproveApplication stores the approved application, the new loan and its schedule in one transaction.
	ApproveApplication(ctx context.Context, app *models.LoanApplication, loan *models.ApprovedLoan, schedule []*models.RepaymentInstallment) error
	GetLoan(ctx context.Context, id string) (*models.ApprovedLoan, error)
	UpdateLoan(ctx context.Context, loan *models.ApprovedLoan) error
	ListLoans(ctx context.Context) ([]*models.ApprovedLoan, error)

	// ReplaceSchedule deletes every installment of the loan and inserts the given ones.
	ReplaceSchedule(ctx context.Context, loanID string, schedule []*models.RepaymentInstallment) error
	GetInstallment(ctx context.Context, id string) (*models.RepaymentInstallment, error)
	ListInstallmentsForLoan(ctx context.Context, loanID string) ([]*models.RepaymentInstallment, error)
	ListInstallments(ctx context.Context) ([]*models.RepaymentInstallment, error)
	// SavePayment writes the loan aggregate and the touched installments atomically.
	SavePayment(ctx context.Context, loan *models.ApprovedLoan, installments []*models.RepaymentInstallment) error
}

type BonusStore interface {
	// ReplaceCalculatedBonuses drops every bonus still in the calculated state and inserts the given ones.
	ReplaceCalculatedBonuses(ctx context.Context, bonuses []*models.Bonus) error
	GetBonus(ctx context.Context, id string) (*models.Bonus, error)
	UpdateBonus(ctx context.Context, bonus *models.Bonus) error
	ListBonuses(ctx context.Context) ([]*models.Bonus, error)
}

// Storage defines the interface for every persisted collection.
type Storage interface {
	MemberStore
	ContributionStore
	LoanStore
	BonusStore

	Close() error
}
