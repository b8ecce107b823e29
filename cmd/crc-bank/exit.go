package main

import (
	"errors"

	"crcbank/internal/ledger"
)

// usageError is a malformed command line.
type usageError string

func (e usageError) Error() string { return string(e) }

// exitCode maps an error to the process status. An account that is already
// locked is not a failure for cron callers.
func exitCode(err error) int {
	var usage usageError
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ledger.ErrAlreadyLocked):
		return 0
	case errors.As(err, &usage):
		return 2
	case errors.Is(err, ledger.ErrCollaboratorFailure):
		return 3
	case errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, ledger.ErrAlreadyExists),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidDate),
		errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrAssociationMissing),
		errors.Is(err, ledger.ErrZeroAllocation):
		return 2
	default:
		return 1
	}
}
