package roster

import (
	"context"
	"fmt"
	"strings"
)

// EventStatus defines the event lifecycle. Closed and canceled are terminal;
// the roster is immutable once either is reached.
type EventStatus string

const (
	EventStatusOpen     EventStatus = "open"
	EventStatusClosed   EventStatus = "closed"
	EventStatusCanceled EventStatus = "canceled"
)

// ParseEventStatus validates an event status string.
func ParseEventStatus(raw string) (EventStatus, error) {
	switch EventStatus(raw) {
	case EventStatusOpen, EventStatusClosed, EventStatusCanceled:
		return EventStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidEventStatus, raw)
}

// String returns the status name.
func (status EventStatus) String() string {
	return string(status)
}

// Event is a capacity-bounded schedulable occasion.
type Event struct {
	EventID        string
	Name           string
	Status         EventStatus
	StartsAtUTC    int64
	MaxPlayers     int
	CourtCount     int
	PriceCents     int64
	CutoffSeconds  int64  // 0 means registration stays open until start
	FloorCents     *int64 // per-event negative balance limit override
	ChargeOnEntry  bool   // charge confirmed seats at registration time
	CreatedBy      string
	CreatedUnixUTC int64
}

// CutoffPassed reports whether the registration cutoff lies before at.
func (event Event) CutoffPassed(atUnixUTC int64) bool {
	if event.CutoffSeconds <= 0 {
		return false
	}
	return atUnixUTC > event.StartsAtUTC-event.CutoffSeconds
}

// EnsureMutable rejects roster mutation on non-open events and after the
// cutoff. The cutoff blocks cancellation as well, so a seat cannot be dropped
// when it is too late to refill it.
func (event Event) EnsureMutable(atUnixUTC int64) error {
	if event.Status != EventStatusOpen {
		return ErrEventNotOpen
	}
	if event.CutoffPassed(atUnixUTC) {
		return ErrCutoffPassed
	}
	return nil
}

// EventInput describes a new event.
type EventInput struct {
	Name          string
	StartsAtUTC   int64
	MaxPlayers    int
	CourtCount    int
	PriceCents    int64
	CutoffSeconds int64
	FloorCents    *int64
	ChargeOnEntry bool
	CreatedBy     string
}

// Validate normalizes and checks an event input.
func (input *EventInput) Validate() error {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidEventInput)
	}
	if input.StartsAtUTC <= 0 {
		return fmt.Errorf("%w: start time is required", ErrInvalidEventInput)
	}
	if input.MaxPlayers <= 0 {
		return fmt.Errorf("%w: max players must be positive", ErrInvalidEventInput)
	}
	if input.CourtCount < 0 {
		return fmt.Errorf("%w: court count must not be negative", ErrInvalidEventInput)
	}
	if input.PriceCents < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidEventInput)
	}
	if input.CutoffSeconds < 0 {
		return fmt.Errorf("%w: cutoff must not be negative", ErrInvalidEventInput)
	}
	return nil
}

// RegistrationStatus defines the registration lifecycle. Canceled records are
// retained as history, never deleted.
type RegistrationStatus string

const (
	StatusRegistered RegistrationStatus = "registered"
	StatusWaitlisted RegistrationStatus = "waitlisted"
	StatusCanceled   RegistrationStatus = "canceled"
)

// String returns the status name.
func (status RegistrationStatus) String() string {
	return string(status)
}

// Active reports whether the registration still occupies a position.
func (status RegistrationStatus) Active() bool {
	return status == StatusRegistered || status == StatusWaitlisted
}

// Registration is one user's place on an event roster. Position is the
// 1-based arrival rank; a registration is confirmed iff its position fits
// within the event capacity.
type Registration struct {
	RegistrationID string
	EventID        string
	UserID         string
	Status         RegistrationStatus
	Position       int
	RegisteredAt   int64
	StatusChanged  int64
}

// Confirmed reports whether the registration holds a real seat.
func (registration Registration) Confirmed(maxPlayers int) bool {
	return registration.Status == StatusRegistered && registration.Position <= maxPlayers
}

// TxStore is the row-level persistence contract for events and registrations.
type TxStore interface {
	InsertEvent(ctx context.Context, event Event) error
	GetEvent(ctx context.Context, eventID string) (Event, error)
	// GetEventForUpdate locks the event row for the rest of the transaction,
	// serializing roster mutations per event.
	GetEventForUpdate(ctx context.Context, eventID string) (Event, error)
	// UpdateEventStatus transitions status only when the current status
	// matches from, reporting whether a row changed.
	UpdateEventStatus(ctx context.Context, eventID string, from EventStatus, to EventStatus) (bool, error)
	ListEvents(ctx context.Context) ([]Event, error)
	ActiveRegistration(ctx context.Context, eventID string, userID string) (Registration, bool, error)
	CountActiveRegistrations(ctx context.Context, eventID string) (int, error)
	InsertRegistration(ctx context.Context, registration Registration) error
	// TransitionRegistration rewrites status, position, and the status-change
	// timestamp of one registration record.
	TransitionRegistration(ctx context.Context, registrationID string, to RegistrationStatus, position int, atUnixUTC int64) error
	// ShiftPositionsAfter moves every active registration behind the freed
	// position up by one, keeping positions dense and arrival-ordered.
	ShiftPositionsAfter(ctx context.Context, eventID string, freedPosition int) error
	EarliestWaitlisted(ctx context.Context, eventID string) (Registration, bool, error)
	ListActiveByPosition(ctx context.Context, eventID string) ([]Registration, error)
	ListRegistrationHistory(ctx context.Context, eventID string) ([]Registration, error)
}

// Store is the persistence contract used by Service.
type Store interface {
	TxStore
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore TxStore) error) error
}
