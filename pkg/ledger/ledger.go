package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mcclellann/saccoLoan/pkg/logger"
	"github.com/mcclellann/saccoLoan/pkg/models"
	"github.com/mcclellann/saccoLoan/pkg/store"
)

// MemberDirectory resolves members by ID. The ledger never writes members.
type MemberDirectory interface {
	GetMember(ctx context.Context, id string) (*models.Member, error)
}

// SettingsProvider supplies the rate and term used when a schedule is generated.
type SettingsProvider interface {
	Settings() models.Settings
}

// StaticSettings serves fixed settings, typically loaded from configuration.
type StaticSettings models.Settings

func (s StaticSettings) Settings() models.Settings {
	return models.Settings(s)
}

type ReceiptEmitter interface {
	Emit(ctx context.Context, rec models.Receipt, kind models.ReceiptKind) error
}

type Notifier interface {
	Notify(ctx context.Context, message string, severity models.Severity)
}

// ChangeListener is called after a write has been committed.
type ChangeListener func(models.Change)

// Ledger handles the business logic for loan applications, schedules and repayments.
type Ledger struct {
	storage  store.LoanStore
	members  MemberDirectory
	settings SettingsProvider
	receipts ReceiptEmitter
	notifier Notifier
	now      func() time.Time
	log      *slog.Logger

	// mu serializes writes: payments on a loan must apply in the order they are recorded.
	mu        sync.Mutex
	lastStamp int64

	listenersMu sync.RWMutex
	listeners   []ChangeListener
}

type Option func(*Ledger)

func WithReceipts(r ReceiptEmitter) Option {
	return func(l *Ledger) { l.receipts = r }
}

func WithNotifier(n Notifier) Option {
	return func(l *Ledger) { l.notifier = n }
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// NewLedger creates a new Ledger over the given store and collaborators.
func NewLedger(s store.LoanStore, members MemberDirectory, settings SettingsProvider, opts ...Option) *Ledger {
	l := &Ledger{
		storage:  s,
		members:  members,
		settings: settings,
		now:      time.Now,
		log:      logger.WithService("ledger"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Subscribe registers a listener for committed changes.
func (l *Ledger) Subscribe(fn ChangeListener) {
	l.listenersMu.Lock()
	defer l.listenersMu.Unlock()
	l.listeners = append(l.listeners, fn)
}

func (l *Ledger) publish(collections ...string) models.Change {
	change := models.Change{Collections: collections}
	l.listenersMu.RLock()
	defer l.listenersMu.RUnlock()
	for _, fn := range l.listeners {
		fn(change)
	}
	return change
}

func (l *Ledger) notify(ctx context.Context, message string, severity models.Severity) {
	if l.notifier != nil {
		l.notifier.Notify(ctx, message, severity)
	}
}

// emitReceipt never fails the caller; a receipt that cannot be printed is only logged.
func (l *Ledger) emitReceipt(ctx context.Context, rec models.Receipt, kind models.ReceiptKind) {
	if l.receipts == nil {
		return
	}
	if err := l.receipts.Emit(ctx, rec, kind); err != nil {
		l.log.Warn("Receipt not printed", "receipt_no", rec.ReceiptNo, "error", err)
	}
}

// nextStamp returns a millisecond timestamp that is strictly increasing across calls.
func (l *Ledger) nextStamp() int64 {
	ts := l.now().UnixMilli()
	if ts <= l.lastStamp {
		ts = l.lastStamp + 1
	}
	l.lastStamp = ts
	return ts
}

// GetLoan retrieves a loan by its ID.
func (l *Ledger) GetLoan(ctx context.Context, id string) (*models.ApprovedLoan, error) {
	return l.storage.GetLoan(ctx, id)
}

// GetAllLoans retrieves all loans.
func (l *Ledger) GetAllLoans(ctx context.Context) ([]*models.ApprovedLoan, error) {
	return l.storage.ListLoans(ctx)
}

func (l *Ledger) InstallmentsForLoan(ctx context.Context, loanID string) ([]*models.RepaymentInstallment, error) {
	if _, err := l.storage.GetLoan(ctx, loanID); err != nil {
		return nil, err
	}
	return l.storage.ListInstallmentsForLoan(ctx, loanID)
}

// MarkDefaulted is the manual path to the defaulted status; nothing in the ledger sets it on its own.
func (l *Ledger) MarkDefaulted(ctx context.Context, loanID string) (*models.ApprovedLoan, error) {
	loan, err := l.markDefaulted(ctx, loanID)
	if err != nil {
		return nil, err
	}
	l.log.Warn("Loan marked as defaulted", "loan_id", loanID, "member_id", loan.MemberID)
	l.publish(models.CollectionApprovedLoans)
	return loan, nil
}

func (l *Ledger) markDefaulted(ctx context.Context, loanID string) (*models.ApprovedLoan, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	loan, err := l.storage.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status == models.LoanStatusCompleted {
		return nil, fmt.Errorf("loan %s is completed: %w", loanID, ErrInvalidTransition)
	}

	loan.Status = models.LoanStatusDefaulted
	loan.UpdatedAt = l.now()
	if err := l.storage.UpdateLoan(ctx, loan); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return loan, nil
}

// resolveMember maps a missing member onto the given sentinel.
func (l *Ledger) resolveMember(ctx context.Context, id string, missing error) (*models.Member, error) {
	member, err := l.members.GetMember(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("member %s: %w", id, missing)
		}
		return nil, err
	}
	return member, nil
}
