package booking

import "errors"

// Domain-level error values returned by the booking service.
var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrEventAlreadyFinalized = errors.New("event already finalized")
	// ErrConsistencyFailure marks a ledger write that failed after a roster
	// mutation inside the same transaction. The transaction is rolled back,
	// so the two stores never diverge, but the failure is surfaced hard and
	// logged distinctly for operator alerting.
	ErrConsistencyFailure = errors.New("roster and ledger consistency failure")
	ErrInvalidConfig      = errors.New("invalid booking service config")
)
