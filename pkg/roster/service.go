package roster

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Service contains the roster domain logic over a Store. The roster owns all
// registration state exclusively; other components mutate it only through the
// Admit and Vacate transaction helpers.
type Service struct {
	store Store
	nowFn func() int64
}

// NewService wires a Service.
func NewService(store Store, now func() int64) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidStoreConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidStoreConfig)
	}
	return &Service{store: store, nowFn: now}, nil
}

// CreateEvent inserts a new open event.
func (service *Service) CreateEvent(ctx context.Context, input EventInput) (Event, error) {
	if err := input.Validate(); err != nil {
		return Event{}, err
	}
	event := Event{
		EventID:        uuid.NewString(),
		Name:           input.Name,
		Status:         EventStatusOpen,
		StartsAtUTC:    input.StartsAtUTC,
		MaxPlayers:     input.MaxPlayers,
		CourtCount:     input.CourtCount,
		PriceCents:     input.PriceCents,
		CutoffSeconds:  input.CutoffSeconds,
		FloorCents:     input.FloorCents,
		ChargeOnEntry:  input.ChargeOnEntry,
		CreatedBy:      input.CreatedBy,
		CreatedUnixUTC: service.nowFn(),
	}
	if err := service.store.InsertEvent(ctx, event); err != nil {
		return Event{}, err
	}
	return event, nil
}

// Event returns one event.
func (service *Service) Event(ctx context.Context, eventID string) (Event, error) {
	return service.store.GetEvent(ctx, eventID)
}

// ListEvents returns all events, newest first.
func (service *Service) ListEvents(ctx context.Context) ([]Event, error) {
	return service.store.ListEvents(ctx)
}

// Add registers a user onto the event, waitlisting beyond capacity.
func (service *Service) Add(ctx context.Context, eventID string, userID string) (Registration, error) {
	var registration Registration
	err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore TxStore) error {
		event, err := transactionStore.GetEventForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		registration, err = Admit(ctx, transactionStore, event, userID, service.nowFn())
		return err
	})
	return registration, err
}

// Cancel withdraws a user's active registration, promoting the earliest
// waitlisted registration when a confirmed seat frees up.
func (service *Service) Cancel(ctx context.Context, eventID string, userID string) (Vacated, error) {
	var vacated Vacated
	err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore TxStore) error {
		event, err := transactionStore.GetEventForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		vacated, err = Vacate(ctx, transactionStore, event, userID, service.nowFn())
		return err
	})
	return vacated, err
}

// Attendees returns the active roster ordered by position: confirmed seats
// first, then the waitlist.
func (service *Service) Attendees(ctx context.Context, eventID string) ([]Registration, error) {
	if _, err := service.store.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return service.store.ListActiveByPosition(ctx, eventID)
}

// History returns every registration record for the event, canceled ones
// included.
func (service *Service) History(ctx context.Context, eventID string) ([]Registration, error) {
	if _, err := service.store.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return service.store.ListRegistrationHistory(ctx, eventID)
}

// Vacated reports the outcome of a cancellation.
type Vacated struct {
	Canceled      Registration
	FreedPosition int
	WasConfirmed  bool
	Promoted      *Registration
}

// Admit appends a registration inside an open transaction. Position is the
// arrival rank: active count plus one. The caller must have locked the event
// row via GetEventForUpdate.
func Admit(ctx context.Context, transactionStore TxStore, event Event, userID string, nowUnixUTC int64) (Registration, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Registration{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	if err := event.EnsureMutable(nowUnixUTC); err != nil {
		return Registration{}, err
	}
	if _, active, err := transactionStore.ActiveRegistration(ctx, event.EventID, userID); err != nil {
		return Registration{}, err
	} else if active {
		return Registration{}, ErrAlreadyRegistered
	}
	activeCount, err := transactionStore.CountActiveRegistrations(ctx, event.EventID)
	if err != nil {
		return Registration{}, err
	}
	position := activeCount + 1
	status := StatusRegistered
	if position > event.MaxPlayers {
		status = StatusWaitlisted
	}
	registration := Registration{
		RegistrationID: uuid.NewString(),
		EventID:        event.EventID,
		UserID:         userID,
		Status:         status,
		Position:       position,
		RegisteredAt:   nowUnixUTC,
		StatusChanged:  nowUnixUTC,
	}
	if err := transactionStore.InsertRegistration(ctx, registration); err != nil {
		return Registration{}, err
	}
	return registration, nil
}

// Vacate cancels a registration inside an open transaction. When the canceled
// registration held a confirmed seat, the remaining active registrations are
// re-ranked and the earliest waitlisted one crosses into the confirmed range,
// all before the transaction commits. Promotion is strictly by arrival order.
func Vacate(ctx context.Context, transactionStore TxStore, event Event, userID string, nowUnixUTC int64) (Vacated, error) {
	if err := event.EnsureMutable(nowUnixUTC); err != nil {
		return Vacated{}, err
	}
	registration, active, err := transactionStore.ActiveRegistration(ctx, event.EventID, userID)
	if err != nil {
		return Vacated{}, err
	}
	if !active {
		return Vacated{}, ErrNotRegistered
	}
	wasConfirmed := registration.Confirmed(event.MaxPlayers)
	vacated := Vacated{
		Canceled:      registration,
		FreedPosition: registration.Position,
		WasConfirmed:  wasConfirmed,
	}
	var promotable *Registration
	if wasConfirmed {
		earliest, found, err := transactionStore.EarliestWaitlisted(ctx, event.EventID)
		if err != nil {
			return Vacated{}, err
		}
		if found {
			promotable = &earliest
		}
	}
	if err := transactionStore.TransitionRegistration(ctx, registration.RegistrationID, StatusCanceled, registration.Position, nowUnixUTC); err != nil {
		return Vacated{}, err
	}
	if err := transactionStore.ShiftPositionsAfter(ctx, event.EventID, registration.Position); err != nil {
		return Vacated{}, err
	}
	if promotable != nil {
		promotedPosition := promotable.Position - 1
		if err := transactionStore.TransitionRegistration(ctx, promotable.RegistrationID, StatusRegistered, promotedPosition, nowUnixUTC); err != nil {
			return Vacated{}, err
		}
		promoted := *promotable
		promoted.Status = StatusRegistered
		promoted.Position = promotedPosition
		promoted.StatusChanged = nowUnixUTC
		vacated.Promoted = &promoted
	}
	return vacated, nil
}
