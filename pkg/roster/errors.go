package roster

import "errors"

// Domain-level error values returned by the roster service.
var (
	ErrEventNotFound      = errors.New("event not found")
	ErrEventNotOpen       = errors.New("event not open")
	ErrCutoffPassed       = errors.New("registration cutoff passed")
	ErrAlreadyRegistered  = errors.New("already registered")
	ErrNotRegistered      = errors.New("not registered")
	ErrInvalidEventInput  = errors.New("invalid event input")
	ErrInvalidEventStatus = errors.New("invalid event status")
	ErrInvalidUserID      = errors.New("invalid user id")
	ErrInvalidStoreConfig = errors.New("invalid store config")
)
