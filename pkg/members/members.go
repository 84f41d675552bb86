package members

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/saccoLoan/pkg/logger"
	"github.com/mcclellann/saccoLoan/pkg/models"
	"github.com/mcclellann/saccoLoan/pkg/receipt"
	"github.com/mcclellann/saccoLoan/pkg/store"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = store.ErrNotFound
	ErrInvalidMember     = errors.New("invalid member")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidFund       = errors.New("unknown contribution fund")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrMemberNotApproved = errors.New("member is not approved")
	ErrIDExhausted       = errors.New("no free member id")
)

// maxIDAttempts bounds retries when a random member id is already taken.
const maxIDAttempts = 10

type Store interface {
	store.MemberStore
	store.ContributionStore
}

type ReceiptEmitter interface {
	Emit(ctx context.Context, rec models.Receipt, kind models.ReceiptKind) error
}

// Directory manages member registration and contributions.
type Directory struct {
	store    Store
	receipts ReceiptEmitter
	now      func() time.Time
	intn     func(n int) int
	log      *slog.Logger
}

func NewDirectory(s Store, receipts ReceiptEmitter) *Directory {
	return &Directory{
		store:    s,
		receipts: receipts,
		now:      time.Now,
		intn:     rand.Intn,
		log:      logger.WithService("members"),
	}
}

// NewID formats a member id as MEM-YYYYMM-XXXX.
func NewID(t time.Time, n int) string {
	return fmt.Sprintf("MEM-%s-%04d", t.Format("200601"), n%10000)
}

// Register adds a pending member.
func (d *Directory) Register(ctx context.Context, fullName, email, phone string) (*models.Member, error) {
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return nil, fmt.Errorf("%w: full name is required", ErrInvalidMember)
	}

	now := d.now()
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := NewID(now, d.intn(10000))
		if _, err := d.store.GetMember(ctx, id); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}

		member := &models.Member{
			ID:               id,
			FullName:         fullName,
			Email:            strings.TrimSpace(email),
			Phone:            strings.TrimSpace(phone),
			Status:           models.MemberStatusPending,
			RegistrationDate: now,
		}
		if err := d.store.CreateMember(ctx, member); err != nil {
			return nil, err
		}
		d.log.Info("Member registered", "member_id", id)
		return member, nil
	}
	return nil, ErrIDExhausted
}

func (d *Directory) GetMember(ctx context.Context, id string) (*models.Member, error) {
	return d.store.GetMember(ctx, id)
}

// List returns members in the given status; an empty status means approved.
func (d *Directory) List(ctx context.Context, status models.MemberStatus) ([]*models.Member, error) {
	switch status {
	case "":
		status = models.MemberStatusApproved
	case models.MemberStatusPending, models.MemberStatusApproved, models.MemberStatusRejected:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidMember, status)
	}
	return d.store.ListMembersByStatus(ctx, status)
}

// Profile is a member together with their contribution total.
type Profile struct {
	*models.Member
	TotalContributions decimal.Decimal `json:"total_contributions"`
}

func (d *Directory) Profile(ctx context.Context, id string) (*Profile, error) {
	member, err := d.store.GetMember(ctx, id)
	if err != nil {
		return nil, err
	}
	total, err := d.TotalContributions(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Profile{Member: member, TotalContributions: total}, nil
}

// Approve moves a pending member to approved.
func (d *Directory) Approve(ctx context.Context, id string) (*models.Member, error) {
	return d.transition(ctx, id, models.MemberStatusApproved)
}

// Reject moves a pending member to rejected.
func (d *Directory) Reject(ctx context.Context, id string) (*models.Member, error) {
	return d.transition(ctx, id, models.MemberStatusRejected)
}

func (d *Directory) transition(ctx context.Context, id string, to models.MemberStatus) (*models.Member, error) {
	member, err := d.store.GetMember(ctx, id)
	if err != nil {
		return nil, err
	}
	if member.Status != models.MemberStatusPending {
		return nil, fmt.Errorf("member %s is %s: %w", id, member.Status, ErrInvalidTransition)
	}

	member.Status = to
	if to == models.MemberStatusApproved {
		approvedAt := d.now()
		member.ApprovalDate = &approvedAt
	}
	if err := d.store.UpdateMember(ctx, member); err != nil {
		return nil, err
	}
	d.log.Info("Member status changed", "member_id", id, "status", to)
	return member, nil
}

// AddContribution records a payment into one of the member's funds and prints its receipt.
func (d *Directory) AddContribution(ctx context.Context, memberID string, fund models.Fund, amount decimal.Decimal) (*models.Contribution, error) {
	if !fund.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFund, fund)
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	member, err := d.store.GetMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if member.Status != models.MemberStatusApproved {
		return nil, fmt.Errorf("member %s: %w", memberID, ErrMemberNotApproved)
	}

	now := d.now()
	c := &models.Contribution{
		ID:        "CONT-" + uuid.NewString(),
		MemberID:  memberID,
		Fund:      fund,
		Amount:    amount,
		Date:      now,
		ReceiptNo: receipt.Number("RCP", now),
	}
	if err := d.store.CreateContribution(ctx, c); err != nil {
		return nil, err
	}
	d.log.Info("Contribution recorded", "member_id", memberID, "fund", fund, "amount", amount.StringFixed(2))

	if d.receipts != nil {
		rec := models.Receipt{
			ReceiptNo:  c.ReceiptNo,
			Date:       now,
			MemberID:   member.ID,
			MemberName: member.FullName,
			Amount:     amount,
			Method:     string(fund),
		}
		if err := d.receipts.Emit(ctx, rec, models.ReceiptKindContribution); err != nil {
			d.log.Warn("Receipt not printed", "receipt_no", rec.ReceiptNo, "error", err)
		}
	}
	return c, nil
}

// TotalContributions sums a member's contributions across every fund.
func (d *Directory) TotalContributions(ctx context.Context, memberID string) (decimal.Decimal, error) {
	return d.store.SumContributionsByMember(ctx, memberID)
}
