package funding

import "errors"

// Domain-level error values returned by the funding service.
var (
	ErrDepositNotFound      = errors.New("deposit not found")
	ErrDepositNotActive     = errors.New("deposit not active")
	ErrInvalidDepositStatus = errors.New("invalid deposit status")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrInvalidConfig        = errors.New("invalid funding service config")
)
