package ledger

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidDate         = errors.New("invalid date")
	ErrInsufficientBalance = errors.New("insufficient investment balance")
	ErrAlreadyLocked       = errors.New("already locked")
	ErrAssociationMissing  = errors.New("association missing")
	ErrZeroAllocation      = errors.New("zero allocation")
	ErrCollaboratorFailure = errors.New("collaborator failure")
)

// Error is returned by every engine operation. Reason names the concrete
// numbers or dates that caused the failure.
type Error struct {
	Kind    error
	Account string
	Reason  string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: account %s: %s", e.Kind, e.Account, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func fail(kind error, account, format string, args ...any) error {
	return &Error{Kind: kind, Account: account, Reason: fmt.Sprintf(format, args...)}
}

// collaboratorFailure wraps an error from storage, Slurm, or the notifier.
func collaboratorFailure(account, step string, err error) error {
	return &Error{Kind: ErrCollaboratorFailure, Account: account, Reason: step, Err: err}
}
