package bonus

import (
	"context"

	"github.com/mcclellann/saccoLoan/pkg/models"
	"github.com/shopspring/decimal"
)

type Tier string

const (
	TierExcellent Tier = "excellent"
	TierFair      Tier = "fair"
	TierPoor      Tier = "poor"
	TierNone      Tier = "none"
)

// Performance summarizes how a member has repaid their installments.
type Performance struct {
	MemberID     string          `json:"member_id"`
	MemberName   string          `json:"member_name"`
	Installments int             `json:"installments"`
	OnTime       int             `json:"on_time"`
	Late         int             `json:"late"`
	Outstanding  int             `json:"outstanding"`
	ScorePercent decimal.Decimal `json:"score_percent"` // one decimal place
	Tier         Tier            `json:"tier"`
	Rating       string          `json:"rating"`
}

// Evaluate builds a member's performance from their installments.
func Evaluate(member *models.Member, installments []*models.RepaymentInstallment) *Performance {
	p := &Performance{
		MemberID:     member.ID,
		MemberName:   member.FullName,
		Installments: len(installments),
		ScorePercent: decimal.Zero,
	}
	for _, inst := range installments {
		switch {
		case OnTime(inst):
			p.OnTime++
		case Late(inst):
			p.Late++
		}
		if inst.Status != models.InstallmentStatusPaid {
			p.Outstanding++
		}
	}

	if p.Installments == 0 {
		p.Tier = TierNone
		p.Rating = "Poor"
		return p
	}

	hundred := decimal.NewFromInt(100)
	p.ScorePercent = decimal.NewFromInt(int64(p.OnTime)).Mul(hundred).Div(decimal.NewFromInt(int64(p.Installments))).Round(1)

	share := decimal.NewFromInt(int64(p.OnTime)).Div(decimal.NewFromInt(int64(p.Installments)))
	switch {
	case share.GreaterThanOrEqual(decimal.RequireFromString("0.8")):
		p.Tier = TierExcellent
	case share.GreaterThanOrEqual(decimal.RequireFromString("0.5")):
		p.Tier = TierFair
	default:
		p.Tier = TierPoor
	}

	switch {
	case p.ScorePercent.GreaterThanOrEqual(decimal.NewFromInt(80)):
		p.Rating = "Excellent"
	case p.ScorePercent.GreaterThanOrEqual(decimal.NewFromInt(60)):
		p.Rating = "Good"
	case p.ScorePercent.GreaterThanOrEqual(decimal.NewFromInt(40)):
		p.Rating = "Average"
	default:
		p.Rating = "Poor"
	}
	return p
}

// Performance reports one member's repayment record.
func (s *Service) Performance(ctx context.Context, memberID string) (*Performance, error) {
	member, err := s.store.GetMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	ledger, err := s.store.ListInstallments(ctx)
	if err != nil {
		return nil, err
	}
	return Evaluate(member, installmentsOf(ledger, memberID)), nil
}

// PerformanceTable reports every approved member.
func (s *Service) PerformanceTable(ctx context.Context) ([]*Performance, error) {
	members, err := s.store.ListMembersByStatus(ctx, models.MemberStatusApproved)
	if err != nil {
		return nil, err
	}
	ledger, err := s.store.ListInstallments(ctx)
	if err != nil {
		return nil, err
	}
	table := make([]*Performance, 0, len(members))
	for _, m := range members {
		table = append(table, Evaluate(m, installmentsOf(ledger, m.ID)))
	}
	return table, nil
}

func installmentsOf(ledger []*models.RepaymentInstallment, memberID string) []*models.RepaymentInstallment {
	var out []*models.RepaymentInstallment
	for _, inst := range ledger {
		if inst.MemberID == memberID {
			out = append(out, inst)
		}
	}
	return out
}
