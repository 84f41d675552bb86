package ledger

import (
	"errors"

	"github.com/mcclellann/saccoLoan/pkg/store"
)

var (
	// ErrNotFound covers missing installments, loans, members and pending applications.
	ErrNotFound = store.ErrNotFound
	// ErrPaymentExceedsDue rejects a payment above the installment's current due amount.
	ErrPaymentExceedsDue = errors.New("payment exceeds amount due")
	// ErrInconsistentState means an installment references a loan or member that cannot be resolved.
	ErrInconsistentState = errors.New("inconsistent ledger state")
	// ErrPersistence wraps store write failures; nothing was committed.
	ErrPersistence = errors.New("failed to persist ledger")

	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrAlreadyPaid        = errors.New("installment already paid")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrMemberNotApproved  = errors.New("member is not approved")
	ErrNoPaymentsRecorded = errors.New("no payments recorded")
)
