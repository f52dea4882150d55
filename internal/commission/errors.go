package commission

import "errors"

var (
	// ErrProfileNotFound is returned by a Registry when the identity has no profile.
	ErrProfileNotFound = errors.New("profile not found")

	ErrInvalidAmount = errors.New("purchase amount must not be negative")
	ErrInvalidRate   = errors.New("invalid commission rate")

	// ErrWalletUpdate and ErrLedgerAppend mark hard failures: the whole walk
	// was rolled back and no level was paid.
	ErrWalletUpdate = errors.New("wallet update failed")
	ErrLedgerAppend = errors.New("ledger append failed")
)

// IsHardFailure reports whether err aborted a distribution.
func IsHardFailure(err error) bool {
	return errors.Is(err, ErrWalletUpdate) || errors.Is(err, ErrLedgerAppend)
}
