package bonus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mcclellann/saccoLoan/pkg/logger"
	"github.com/mcclellann/saccoLoan/pkg/models"
	"github.com/mcclellann/saccoLoan/pkg/receipt"
	"github.com/mcclellann/saccoLoan/pkg/store"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = store.ErrNotFound
	ErrAlreadyApproved = errors.New("bonus already approved")
	ErrPersistence     = errors.New("failed to persist bonuses")
)

// Store is the slice of storage the bonus service reads and writes.
type Store interface {
	store.BonusStore
	GetMember(ctx context.Context, id string) (*models.Member, error)
	ListMembersByStatus(ctx context.Context, status models.MemberStatus) ([]*models.Member, error)
	SumContributionsByMember(ctx context.Context, memberID string) (decimal.Decimal, error)
	ListInstallments(ctx context.Context) ([]*models.RepaymentInstallment, error)
}

type ReceiptEmitter interface {
	Emit(ctx context.Context, rec models.Receipt, kind models.ReceiptKind) error
}

type Notifier interface {
	Notify(ctx context.Context, message string, severity models.Severity)
}

// Service runs bonus scoring over persisted members, contributions and installments.
type Service struct {
	store    Store
	receipts ReceiptEmitter
	notifier Notifier
	now      func() time.Time
	log      *slog.Logger

	mu        sync.Mutex
	listeners []func(models.Change)
}

// RecomputeResult reports a scoring run. Preserved counts approved bonuses left untouched.
type RecomputeResult struct {
	Bonuses   []*models.Bonus `json:"bonuses"`
	Preserved int             `json:"preserved"`
	Change    models.Change   `json:"change"`
}

func NewService(s Store, receipts ReceiptEmitter, notifier Notifier) *Service {
	return &Service{
		store:    s,
		receipts: receipts,
		notifier: notifier,
		now:      time.Now,
		log:      logger.WithService("bonus"),
	}
}

// Subscribe registers a listener called after bonuses are written.
func (s *Service) Subscribe(fn func(models.Change)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Service) publish() models.Change {
	change := models.Change{Collections: []string{models.CollectionBonuses}}
	for _, fn := range s.listeners {
		fn(change)
	}
	return change
}

// Recompute replaces every calculated bonus with a fresh scoring run. Approved bonuses
// are kept, and members already holding an approved bonus for this period are skipped.
func (s *Service) Recompute(ctx context.Context) (*RecomputeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	period := Period(now)

	existing, err := s.store.ListBonuses(ctx)
	if err != nil {
		return nil, err
	}
	settled := make(map[string]bool)
	preserved := 0
	for _, b := range existing {
		if b.Status != models.BonusStatusApproved {
			continue
		}
		preserved++
		if b.Period == period {
			settled[b.MemberID] = true
		}
	}

	members, err := s.store.ListMembersByStatus(ctx, models.MemberStatusApproved)
	if err != nil {
		return nil, err
	}
	eligible := make([]*models.Member, 0, len(members))
	totals := make(map[string]decimal.Decimal, len(members))
	for _, m := range members {
		if settled[m.ID] {
			continue
		}
		total, err := s.store.SumContributionsByMember(ctx, m.ID)
		if err != nil {
			return nil, fmt.Errorf("sum contributions for %s: %w", m.ID, err)
		}
		eligible = append(eligible, m)
		totals[m.ID] = total
	}

	ledger, err := s.store.ListInstallments(ctx)
	if err != nil {
		return nil, err
	}

	bonuses := RecomputeAll(eligible, totals, ledger, now)
	if err := s.store.ReplaceCalculatedBonuses(ctx, bonuses); err != nil {
		s.log.Error("Failed to store bonuses", "period", period, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	s.log.Info("Bonuses recomputed", "period", period, "calculated", len(bonuses), "preserved", preserved)
	return &RecomputeResult{Bonuses: bonuses, Preserved: preserved, Change: s.publish()}, nil
}

func (s *Service) List(ctx context.Context) ([]*models.Bonus, error) {
	return s.store.ListBonuses(ctx)
}

// Approve marks a calculated bonus approved and prints its receipt.
func (s *Service) Approve(ctx context.Context, id string) (*models.Bonus, *models.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.store.GetBonus(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if b.Status == models.BonusStatusApproved {
		return nil, nil, fmt.Errorf("bonus %s: %w", id, ErrAlreadyApproved)
	}

	approvedAt := s.now()
	b.Status = models.BonusStatusApproved
	b.ApprovalDate = &approvedAt
	if err := s.store.UpdateBonus(ctx, b); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	s.log.Info("Bonus approved", "bonus_id", id, "member_id", b.MemberID, "amount", b.Amount.StringFixed(2))
	s.publish()

	member, err := s.store.GetMember(ctx, b.MemberID)
	if err != nil {
		// approval stands even when the member record is gone
		s.log.Warn("Bonus member not found, skipping receipt", "bonus_id", id, "member_id", b.MemberID)
		return b, nil, nil
	}

	if s.notifier != nil {
		s.notifier.Notify(ctx, fmt.Sprintf("Bonus approved for %s - Amount: %s", member.FullName, b.Amount.StringFixed(2)), models.SeveritySuccess)
	}
	rec := &models.Receipt{
		ReceiptNo:  receipt.Number("BON", approvedAt),
		Date:       approvedAt,
		MemberID:   member.ID,
		MemberName: member.FullName,
		Amount:     b.Amount,
	}
	if s.receipts != nil {
		if err := s.receipts.Emit(ctx, *rec, models.ReceiptKindBonus); err != nil {
			s.log.Warn("Receipt not printed", "receipt_no", rec.ReceiptNo, "error", err)
		}
	}
	return b, rec, nil
}
