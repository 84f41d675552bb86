package bonus

import (
	"fmt"
	"time"

	"github.com/mcclellann/saccoLoan/pkg/models"
	"github.com/shopspring/decimal"
)

var (
	baseRate       = decimal.RequireFromString("0.05")
	repaymentShare = decimal.RequireFromString("0.5")
)

// OnTime reports whether an installment was paid no later than its due date.
// Dates are compared by calendar day in UTC, so paying on the due date counts.
func OnTime(inst *models.RepaymentInstallment) bool {
	if inst.Status != models.InstallmentStatusPaid || inst.PaymentDate == nil {
		return false
	}
	return !day(*inst.PaymentDate).After(day(inst.DueDate))
}

// Late reports whether an installment was paid after its due date.
func Late(inst *models.RepaymentInstallment) bool {
	if inst.Status != models.InstallmentStatusPaid || inst.PaymentDate == nil {
		return false
	}
	return day(*inst.PaymentDate).After(day(inst.DueDate))
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// RepaymentScore is the share of a member's installments paid on time.
// A member with no loan history scores 1.
func RepaymentScore(installments []*models.RepaymentInstallment) decimal.Decimal {
	if len(installments) == 0 {
		return decimal.NewFromInt(1)
	}
	onTime := 0
	for _, inst := range installments {
		if OnTime(inst) {
			onTime++
		}
	}
	return decimal.NewFromInt(int64(onTime)).Div(decimal.NewFromInt(int64(len(installments))))
}

// Compute applies the bonus formula: 5% of contributions, plus up to half of that again
// scaled by the repayment score. Only the total is rounded.
func Compute(contributions, score decimal.Decimal) (models.BonusDetails, decimal.Decimal) {
	base := contributions.Mul(baseRate)
	repayment := base.Mul(score.Mul(repaymentShare))
	details := models.BonusDetails{
		BaseBonus:          base,
		RepaymentBonus:     repayment,
		TotalContributions: contributions,
		RepaymentScore:     score,
	}
	return details, base.Add(repayment).Round(2)
}

// Period names the scoring run a bonus belongs to.
func Period(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// RecomputeAll scores every given member against the full repayment ledger.
// Members missing from contributionTotals are scored on zero contributions.
func RecomputeAll(members []*models.Member, contributionTotals map[string]decimal.Decimal, ledger []*models.RepaymentInstallment, now time.Time) []*models.Bonus {
	byMember := make(map[string][]*models.RepaymentInstallment)
	for _, inst := range ledger {
		byMember[inst.MemberID] = append(byMember[inst.MemberID], inst)
	}

	bonuses := make([]*models.Bonus, 0, len(members))
	for _, member := range members {
		if member.Status != models.MemberStatusApproved {
			continue
		}
		total := contributionTotals[member.ID]
		score := RepaymentScore(byMember[member.ID])
		details, amount := Compute(total, score)
		bonuses = append(bonuses, &models.Bonus{
			ID:                fmt.Sprintf("BON%d-%s", now.UnixMilli(), member.ID),
			MemberID:          member.ID,
			Period:            Period(now),
			Amount:            amount,
			ContributionTotal: total,
			RepaymentScore:    score,
			Date:              now,
			Status:            models.BonusStatusCalculated,
			Details:           details,
		})
	}
	return bonuses
}
