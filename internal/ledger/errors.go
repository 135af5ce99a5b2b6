package ledger

import (
	"errors"
	"fmt"
)

// Kind classifies ledger failures. A Kind is itself an error so callers can
// match on it with errors.Is(err, ledger.ErrState).
type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuthorization
	KindState
	KindResourceLimit
	KindTransfer
)

var (
	ErrValidation    error = KindValidation
	ErrAuthorization error = KindAuthorization
	ErrState         error = KindState
	ErrResourceLimit error = KindResourceLimit
	ErrTransfer      error = KindTransfer
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	case KindResourceLimit:
		return "resource limit"
	case KindTransfer:
		return "transfer"
	default:
		return "unknown"
	}
}

func (k Kind) Error() string { return k.String() + " error" }

// Reasons. Each failure wraps exactly one of these.
var (
	ErrInvalidScore       = errors.New("score must be between 1 and 5")
	ErrInvalidStake       = errors.New("stake must be greater than zero")
	ErrEmptyMetadata      = errors.New("metadata reference is empty")
	ErrEmptyCaller        = errors.New("caller identity is empty")
	ErrIndexOutOfRange    = errors.New("rating index out of range")
	ErrInvalidRange       = errors.New("range start is after end")
	ErrEmptyIndices       = errors.New("no rating indices given")
	ErrInvalidPageSize    = errors.New("page size must be greater than zero")
	ErrNotAdmin           = errors.New("caller is not an administrator")
	ErrNotRater           = errors.New("caller is not the original rater")
	ErrDuplicateRating    = errors.New("rater already has an active rating for this entity")
	ErrNoRating           = errors.New("rater has no rating for this entity")
	ErrRatingSlashed      = errors.New("rating has been slashed")
	ErrAlreadySlashed     = errors.New("rating is already slashed")
	ErrNotSlashed         = errors.New("rating is not slashed")
	ErrAlreadyMarked      = errors.New("refund already marked")
	ErrNotMarked          = errors.New("refund not marked")
	ErrAlreadyClaimed     = errors.New("refund already claimed")
	ErrNotClaimed         = errors.New("refund has not been claimed")
	ErrNothingToRefund    = errors.New("rating has no stake to refund")
	ErrPaused             = errors.New("ledger is paused")
	ErrNotPaused          = errors.New("ledger is not paused")
	ErrReentrantCall      = errors.New("ledger called from inside a refund transfer")
	ErrStakeAboveMax      = errors.New("stake exceeds the per-rating maximum")
	ErrCeilingOutOfRange  = errors.New("stake ceiling outside the configured bounds")
	ErrWindowTooLarge     = errors.New("requested window exceeds the page size limit")
	ErrCollectionTooLarge = errors.New("collection too large for an unbounded read, use a ranged read")
	ErrTransferFailed     = errors.New("collateral transfer failed")

	errAggregateUnderflow = errors.New("aggregate underflow")
)

// Error is returned by every failed ledger operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ledger: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the error's Kind.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

func fail(kind Kind, op string, reason error) error {
	return &Error{Kind: kind, Op: op, Err: reason}
}

// KindOf returns the Kind of err, or 0 when err is not a ledger error.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return 0
}
