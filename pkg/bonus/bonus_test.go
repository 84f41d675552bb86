package bonus

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mcclellann/saccoLoan/pkg/models"
	"github.com/mcclellann/saccoLoan/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	members       []*models.Member
	contributions map[string]decimal.Decimal
	installments  []*models.RepaymentInstallment
	bonuses       []*models.Bonus
	replaceErr    error
}

func (f *fakeStore) GetMember(_ context.Context, id string) (*models.Member, error) {
	for _, m := range f.members {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, fmt.Errorf("member %s: %w", id, store.ErrNotFound)
}

func (f *fakeStore) ListMembersByStatus(_ context.Context, status models.MemberStatus) ([]*models.Member, error) {
	var out []*models.Member
	for _, m := range f.members {
		if m.Status == status {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) SumContributionsByMember(_ context.Context, memberID string) (decimal.Decimal, error) {
	return f.contributions[memberID], nil
}

func (f *fakeStore) ListInstallments(_ context.Context) ([]*models.RepaymentInstallment, error) {
	return f.installments, nil
}

func (f *fakeStore) ReplaceCalculatedBonuses(_ context.Context, bonuses []*models.Bonus) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	kept := []*models.Bonus{}
	for _, b := range f.bonuses {
		if b.Status != models.BonusStatusCalculated {
			kept = append(kept, b)
		}
	}
	f.bonuses = append(kept, bonuses...)
	return nil
}

func (f *fakeStore) GetBonus(_ context.Context, id string) (*models.Bonus, error) {
	for _, b := range f.bonuses {
		if b.ID == id {
			c := *b
			return &c, nil
		}
	}
	return nil, fmt.Errorf("bonus %s: %w", id, store.ErrNotFound)
}

func (f *fakeStore) UpdateBonus(_ context.Context, bonus *models.Bonus) error {
	for i, b := range f.bonuses {
		if b.ID == bonus.ID {
			c := *bonus
			f.bonuses[i] = &c
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) ListBonuses(_ context.Context) ([]*models.Bonus, error) {
	return f.bonuses, nil
}

type recordingReceipts struct {
	kinds []models.ReceiptKind
	recs  []models.Receipt
}

func (r *recordingReceipts) Emit(_ context.Context, rec models.Receipt, kind models.ReceiptKind) error {
	r.kinds = append(r.kinds, kind)
	r.recs = append(r.recs, rec)
	return nil
}

type recordingNotifier struct {
	messages []string
}

func (r *recordingNotifier) Notify(_ context.Context, message string, _ models.Severity) {
	r.messages = append(r.messages, message)
}

var runTime = time.Date(2024, 6, 30, 18, 0, 0, 0, time.UTC)

func due(month time.Month) time.Time {
	return time.Date(2024, month, 1, 0, 0, 0, 0, time.UTC)
}

func paidInstallment(memberID string, dueDate, paidOn time.Time) *models.RepaymentInstallment {
	return &models.RepaymentInstallment{
		ID:          fmt.Sprintf("REP-%s-%s", memberID, dueDate.Format("0102")),
		MemberID:    memberID,
		Amount:      decimal.NewFromInt(1000),
		DueDate:     dueDate,
		Status:      models.InstallmentStatusPaid,
		PaymentDate: &paidOn,
	}
}

func TestComputeNoLoanHistory(t *testing.T) {
	score := RepaymentScore(nil)
	assert.True(t, score.Equal(decimal.NewFromInt(1)))

	details, total := Compute(decimal.NewFromInt(10000), score)
	assert.Equal(t, "500", details.BaseBonus.String())
	assert.Equal(t, "250", details.RepaymentBonus.String())
	assert.Equal(t, "750.00", total.StringFixed(2))
}

func TestComputeWithRepaymentHistory(t *testing.T) {
	insts := []*models.RepaymentInstallment{
		paidInstallment("M1", due(1), due(1)),                    // on the due date
		paidInstallment("M1", due(2), due(2).Add(-48*time.Hour)), // early
		paidInstallment("M1", due(3), due(3).Add(20*time.Hour)),  // later the same day
		paidInstallment("M1", due(4), due(4).AddDate(0, 0, 3)),   // late
	}
	score := RepaymentScore(insts)
	assert.Equal(t, "0.75", score.String())

	contributions := decimal.NewFromInt(10000)
	details, total := Compute(contributions, score)
	want := details.BaseBonus.Mul(decimal.NewFromInt(1).Add(decimal.RequireFromString("0.5").Mul(score)))
	assert.True(t, total.Equal(want.Round(2)), "total %s want %s", total, want)
	assert.Equal(t, "687.50", total.StringFixed(2))
}

func TestRepaymentScoreCountsUnpaidAgainstMember(t *testing.T) {
	insts := []*models.RepaymentInstallment{
		paidInstallment("M1", due(1), due(1)),
		{MemberID: "M1", DueDate: due(2), Status: models.InstallmentStatusPartial},
		{MemberID: "M1", DueDate: due(3), Status: models.InstallmentStatusPending},
		{MemberID: "M1", DueDate: due(4), Status: models.InstallmentStatusPaid}, // no payment date
	}
	assert.Equal(t, "0.25", RepaymentScore(insts).String())
}

func TestRecomputeAll(t *testing.T) {
	members := []*models.Member{
		{ID: "M1", FullName: "Achieng Otieno", Status: models.MemberStatusApproved},
		{ID: "M2", FullName: "Baraka Mwangi", Status: models.MemberStatusApproved},
		{ID: "M3", FullName: "Chebet Kiprop", Status: models.MemberStatusPending},
	}
	totals := map[string]decimal.Decimal{"M1": decimal.NewFromInt(10000)}
	ledger := []*models.RepaymentInstallment{
		paidInstallment("M2", due(1), due(1).AddDate(0, 0, 10)),
	}

	bonuses := RecomputeAll(members, totals, ledger, runTime)
	require.Len(t, bonuses, 2)

	assert.Equal(t, "M1", bonuses[0].MemberID)
	assert.Equal(t, "750.00", bonuses[0].Amount.StringFixed(2))
	assert.Equal(t, "2024-06", bonuses[0].Period)
	assert.Equal(t, models.BonusStatusCalculated, bonuses[0].Status)
	assert.Equal(t, fmt.Sprintf("BON%d-M1", runTime.UnixMilli()), bonuses[0].ID)

	assert.Equal(t, "M2", bonuses[1].MemberID)
	assert.True(t, bonuses[1].RepaymentScore.IsZero())
	assert.True(t, bonuses[1].Amount.IsZero())
}

func newTestService(s *fakeStore) (*Service, *recordingReceipts, *recordingNotifier) {
	receipts := &recordingReceipts{}
	notifier := &recordingNotifier{}
	svc := NewService(s, receipts, notifier)
	svc.now = func() time.Time { return runTime }
	return svc, receipts, notifier
}

func TestServiceRecomputePreservesApproved(t *testing.T) {
	approvedAt := runTime.AddDate(0, -1, 0)
	s := &fakeStore{
		members: []*models.Member{
			{ID: "M1", FullName: "Achieng Otieno", Status: models.MemberStatusApproved},
			{ID: "M2", FullName: "Baraka Mwangi", Status: models.MemberStatusApproved},
		},
		contributions: map[string]decimal.Decimal{"M1": decimal.NewFromInt(10000), "M2": decimal.NewFromInt(2000)},
		bonuses: []*models.Bonus{
			{ID: "OLD-CALC", MemberID: "M1", Period: "2024-05", Status: models.BonusStatusCalculated},
			{ID: "OLD-APPROVED", MemberID: "M1", Period: "2024-05", Status: models.BonusStatusApproved, ApprovalDate: &approvedAt},
			{ID: "THIS-PERIOD", MemberID: "M2", Period: "2024-06", Status: models.BonusStatusApproved, ApprovalDate: &approvedAt},
		},
	}
	svc, _, _ := newTestService(s)

	var changes []models.Change
	svc.Subscribe(func(c models.Change) { changes = append(changes, c) })

	result, err := svc.Recompute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Preserved)
	require.Len(t, result.Bonuses, 1)
	assert.Equal(t, "M1", result.Bonuses[0].MemberID)

	ids := []string{}
	for _, b := range s.bonuses {
		ids = append(ids, b.ID)
	}
	assert.ElementsMatch(t, []string{"OLD-APPROVED", "THIS-PERIOD", result.Bonuses[0].ID}, ids)
	require.Len(t, changes, 1)
	assert.Equal(t, []string{models.CollectionBonuses}, changes[0].Collections)

	// a rerun replaces its own calculated bonuses rather than stacking them
	_, err = svc.Recompute(context.Background())
	require.NoError(t, err)
	assert.Len(t, s.bonuses, 3)
}

func TestServiceRecomputePersistenceFailure(t *testing.T) {
	s := &fakeStore{replaceErr: errors.New("database is locked")}
	svc, _, _ := newTestService(s)

	_, err := svc.Recompute(context.Background())
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestServiceApprove(t *testing.T) {
	s := &fakeStore{
		members: []*models.Member{{ID: "M1", FullName: "Achieng Otieno", Status: models.MemberStatusApproved}},
		bonuses: []*models.Bonus{{ID: "B1", MemberID: "M1", Amount: decimal.RequireFromString("750.00"), Status: models.BonusStatusCalculated}},
	}
	svc, receipts, notifier := newTestService(s)
	ctx := context.Background()

	b, rec, err := svc.Approve(ctx, "B1")
	require.NoError(t, err)
	assert.Equal(t, models.BonusStatusApproved, b.Status)
	require.NotNil(t, b.ApprovalDate)
	require.NotNil(t, rec)
	assert.Regexp(t, `^BON\d{6}$`, rec.ReceiptNo)
	assert.Equal(t, []models.ReceiptKind{models.ReceiptKindBonus}, receipts.kinds)
	assert.Equal(t, []string{"Bonus approved for Achieng Otieno - Amount: 750.00"}, notifier.messages)

	stored, err := s.GetBonus(ctx, "B1")
	require.NoError(t, err)
	assert.Equal(t, models.BonusStatusApproved, stored.Status)

	_, _, err = svc.Approve(ctx, "B1")
	assert.ErrorIs(t, err, ErrAlreadyApproved)

	_, _, err = svc.Approve(ctx, "B404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEvaluatePerformance(t *testing.T) {
	member := &models.Member{ID: "M1", FullName: "Achieng Otieno"}

	none := Evaluate(member, nil)
	assert.Equal(t, TierNone, none.Tier)
	assert.True(t, none.ScorePercent.IsZero())

	insts := []*models.RepaymentInstallment{
		paidInstallment("M1", due(1), due(1)),
		paidInstallment("M1", due(2), due(2)),
		paidInstallment("M1", due(3), due(3).AddDate(0, 0, 5)),
		{MemberID: "M1", DueDate: due(4), Status: models.InstallmentStatusPending},
	}
	p := Evaluate(member, insts)
	assert.Equal(t, 4, p.Installments)
	assert.Equal(t, 2, p.OnTime)
	assert.Equal(t, 1, p.Late)
	assert.Equal(t, 1, p.Outstanding)
	assert.Equal(t, "50", p.ScorePercent.String())
	assert.Equal(t, TierFair, p.Tier)
	assert.Equal(t, "Average", p.Rating)

	allOnTime := Evaluate(member, insts[:2])
	assert.Equal(t, TierExcellent, allOnTime.Tier)
	assert.Equal(t, "Excellent", allOnTime.Rating)
}

func TestServicePerformanceTable(t *testing.T) {
	s := &fakeStore{
		members: []*models.Member{
			{ID: "M1", FullName: "Achieng Otieno", Status: models.MemberStatusApproved},
			{ID: "M2", FullName: "Baraka Mwangi", Status: models.MemberStatusPending},
		},
		installments: []*models.RepaymentInstallment{paidInstallment("M1", due(1), due(1).AddDate(0, 0, 1))},
	}
	svc, _, _ := newTestService(s)

	table, err := svc.PerformanceTable(context.Background())
	require.NoError(t, err)
	require.Len(t, table, 1)
	assert.Equal(t, TierPoor, table[0].Tier)
	assert.Equal(t, 1, table[0].Late)

	_, err = svc.Performance(context.Background(), "M404")
	assert.ErrorIs(t, err, ErrNotFound)
}
