package roster

import (
	"context"
	"sort"
	"testing"
)

// stubStore is an in-memory Store for the roster service tests.
type stubStore struct {
	events        map[string]Event
	registrations []Registration
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{events: map[string]Event{}}
}

func (store *stubStore) InsertEvent(_ context.Context, event Event) error {
	store.events[event.EventID] = event
	return nil
}

func (store *stubStore) GetEvent(_ context.Context, eventID string) (Event, error) {
	event, ok := store.events[eventID]
	if !ok {
		return Event{}, ErrEventNotFound
	}
	return event, nil
}

func (store *stubStore) GetEventForUpdate(ctx context.Context, eventID string) (Event, error) {
	return store.GetEvent(ctx, eventID)
}

func (store *stubStore) UpdateEventStatus(_ context.Context, eventID string, from EventStatus, to EventStatus) (bool, error) {
	event, ok := store.events[eventID]
	if !ok || event.Status != from {
		return false, nil
	}
	event.Status = to
	store.events[eventID] = event
	return true, nil
}

func (store *stubStore) ListEvents(_ context.Context) ([]Event, error) {
	events := make([]Event, 0, len(store.events))
	for _, event := range store.events {
		events = append(events, event)
	}
	sort.Slice(events, func(left, right int) bool {
		return events[left].StartsAtUTC > events[right].StartsAtUTC
	})
	return events, nil
}

func (store *stubStore) ActiveRegistration(_ context.Context, eventID string, userID string) (Registration, bool, error) {
	for _, registration := range store.registrations {
		if registration.EventID == eventID && registration.UserID == userID && registration.Status.Active() {
			return registration, true, nil
		}
	}
	return Registration{}, false, nil
}

func (store *stubStore) CountActiveRegistrations(_ context.Context, eventID string) (int, error) {
	count := 0
	for _, registration := range store.registrations {
		if registration.EventID == eventID && registration.Status.Active() {
			count++
		}
	}
	return count, nil
}

func (store *stubStore) InsertRegistration(_ context.Context, registration Registration) error {
	store.registrations = append(store.registrations, registration)
	return nil
}

func (store *stubStore) TransitionRegistration(_ context.Context, registrationID string, to RegistrationStatus, position int, atUnixUTC int64) error {
	for index := range store.registrations {
		if store.registrations[index].RegistrationID == registrationID {
			store.registrations[index].Status = to
			store.registrations[index].Position = position
			store.registrations[index].StatusChanged = atUnixUTC
			return nil
		}
	}
	return ErrNotRegistered
}

func (store *stubStore) ShiftPositionsAfter(_ context.Context, eventID string, freedPosition int) error {
	for index := range store.registrations {
		registration := store.registrations[index]
		if registration.EventID == eventID && registration.Status.Active() && registration.Position > freedPosition {
			store.registrations[index].Position--
		}
	}
	return nil
}

func (store *stubStore) EarliestWaitlisted(_ context.Context, eventID string) (Registration, bool, error) {
	found := false
	var earliest Registration
	for _, registration := range store.registrations {
		if registration.EventID != eventID || registration.Status != StatusWaitlisted {
			continue
		}
		if !found || registration.Position < earliest.Position {
			earliest = registration
			found = true
		}
	}
	return earliest, found, nil
}

func (store *stubStore) ListActiveByPosition(_ context.Context, eventID string) ([]Registration, error) {
	active := []Registration{}
	for _, registration := range store.registrations {
		if registration.EventID == eventID && registration.Status.Active() {
			active = append(active, registration)
		}
	}
	sort.Slice(active, func(left, right int) bool {
		return active[left].Position < active[right].Position
	})
	return active, nil
}

func (store *stubStore) ListRegistrationHistory(_ context.Context, eventID string) ([]Registration, error) {
	history := []Registration{}
	for _, registration := range store.registrations {
		if registration.EventID == eventID {
			history = append(history, registration)
		}
	}
	sort.Slice(history, func(left, right int) bool {
		return history[left].RegisteredAt < history[right].RegisteredAt
	})
	return history, nil
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore TxStore) error) error {
	return fn(ctx, store)
}

const testClockStart = int64(1700000000)

func mustNewService(test *testing.T, store Store) *Service {
	test.Helper()
	clock := testClockStart
	service, err := NewService(store, func() int64 {
		clock++
		return clock
	})
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustCreateEvent(test *testing.T, service *Service, input EventInput) Event {
	test.Helper()
	event, err := service.CreateEvent(context.Background(), input)
	if err != nil {
		test.Fatalf("create event: %v", err)
	}
	return event
}

func openEventInput(maxPlayers int) EventInput {
	return EventInput{
		Name:        "tuesday night",
		StartsAtUTC: testClockStart + 86400,
		MaxPlayers:  maxPlayers,
		CourtCount:  2,
		PriceCents:  1500,
		CreatedBy:   "admin-1",
	}
}
