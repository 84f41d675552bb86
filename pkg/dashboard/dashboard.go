package dashboard

import (
	"context"
	"log/slog"
	"time"

	"github.com/mcclellann/saccoLoan/pkg/bonus"
	"github.com/mcclellann/saccoLoan/pkg/logger"
	"github.com/mcclellann/saccoLoan/pkg/models"
	"github.com/shopspring/decimal"
)

type Store interface {
	ListLoans(ctx context.Context) ([]*models.ApprovedLoan, error)
	ListInstallments(ctx context.Context) ([]*models.RepaymentInstallment, error)
	SumContributions(ctx context.Context) (decimal.Decimal, error)
}

type MemberLister interface {
	List(ctx context.Context, status models.MemberStatus) ([]*models.Member, error)
}

// Repayments counts installments by how they were settled.
type Repayments struct {
	OnTime  int `json:"on_time"`
	Late    int `json:"late"`
	Pending int `json:"pending"`
}

// Summary is the association-wide overview shown on the dashboard cards.
type Summary struct {
	ApprovedMembers    int             `json:"approved_members"`
	ActiveLoans        int             `json:"active_loans"`
	TotalContributions decimal.Decimal `json:"total_contributions"`
	TotalLent          decimal.Decimal `json:"total_lent"`
	Repayments         Repayments      `json:"repayments"`
	GeneratedAt        time.Time       `json:"generated_at"`
}

type Service struct {
	store   Store
	members MemberLister
	now     func() time.Time
	log     *slog.Logger
}

func NewService(s Store, members MemberLister) *Service {
	return &Service{
		store:   s,
		members: members,
		now:     time.Now,
		log:     logger.WithService("dashboard"),
	}
}

// Summarize aggregates the collections into a Summary.
// Partial installments are neither settled nor pending.
func Summarize(approvedMembers int, loans []*models.ApprovedLoan, contributions decimal.Decimal, installments []*models.RepaymentInstallment) Summary {
	sum := Summary{
		ApprovedMembers:    approvedMembers,
		TotalContributions: contributions,
		TotalLent:          decimal.Zero,
	}
	for _, loan := range loans {
		if loan.Status == models.LoanStatusActive {
			sum.ActiveLoans++
		}
		sum.TotalLent = sum.TotalLent.Add(loan.Amount)
	}
	for _, inst := range installments {
		switch {
		case bonus.OnTime(inst):
			sum.Repayments.OnTime++
		case bonus.Late(inst):
			sum.Repayments.Late++
		case inst.Status == models.InstallmentStatusPending:
			sum.Repayments.Pending++
		}
	}
	return sum
}

func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	approved, err := s.members.List(ctx, models.MemberStatusApproved)
	if err != nil {
		return nil, err
	}
	loans, err := s.store.ListLoans(ctx)
	if err != nil {
		return nil, err
	}
	contributions, err := s.store.SumContributions(ctx)
	if err != nil {
		return nil, err
	}
	installments, err := s.store.ListInstallments(ctx)
	if err != nil {
		return nil, err
	}

	sum := Summarize(len(approved), loans, contributions, installments)
	sum.GeneratedAt = s.now().UTC()
	s.log.Debug("Dashboard summary built", "approved_members", sum.ApprovedMembers, "active_loans", sum.ActiveLoans)
	return &sum, nil
}
