package booking

import (
	"context"
	"sort"
	"testing"

	"github.com/MarkoPoloResearchLab/courtclub/pkg/ledger"
	"github.com/MarkoPoloResearchLab/courtclub/pkg/roster"
	"go.uber.org/zap"
)

// stubStore implements the combined roster and ledger row contracts in
// memory. The service tests exercise the full register, cancel, and finalize
// flows against it.
type stubStore struct {
	events        map[string]roster.Event
	registrations []roster.Registration
	users         map[string]ledger.User
	entries       []ledger.Entry
	idempotency   map[string]struct{}
	insertEntryErr error
	// callOrder records the ledger calls whose relative order the tests
	// assert on.
	callOrder []string
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		events:      map[string]roster.Event{},
		users:       map[string]ledger.User{},
		idempotency: map[string]struct{}{},
	}
}

func (store *stubStore) addUser(test *testing.T, userID string, balanceCents int64) {
	test.Helper()
	store.users[userID] = ledger.User{UserID: userID, Role: ledger.RoleMember, CreatedUnixUTC: 1}
	if balanceCents != 0 {
		store.entries = append(store.entries, ledger.Entry{
			EntryID:        "seed-" + userID,
			UserID:         userID,
			Type:           ledger.EntryManualAdjustment,
			AmountCents:    ledger.AmountCents(balanceCents),
			IdempotencyKey: "seed:" + userID,
			CreatedUnixUTC: 1,
		})
	}
}

func (store *stubStore) addEvent(test *testing.T, event roster.Event) {
	test.Helper()
	store.events[event.EventID] = event
}

func (store *stubStore) balance(test *testing.T, userID string) int64 {
	test.Helper()
	total, err := store.SumEntries(context.Background(), userID)
	if err != nil {
		test.Fatalf("sum entries: %v", err)
	}
	return total.Int64()
}

func (store *stubStore) entriesOfType(entryType ledger.EntryType) []ledger.Entry {
	matched := []ledger.Entry{}
	for _, entry := range store.entries {
		if entry.Type == entryType {
			matched = append(matched, entry)
		}
	}
	return matched
}

// roster rows

func (store *stubStore) InsertEvent(_ context.Context, event roster.Event) error {
	store.events[event.EventID] = event
	return nil
}

func (store *stubStore) GetEvent(_ context.Context, eventID string) (roster.Event, error) {
	event, ok := store.events[eventID]
	if !ok {
		return roster.Event{}, roster.ErrEventNotFound
	}
	return event, nil
}

func (store *stubStore) GetEventForUpdate(ctx context.Context, eventID string) (roster.Event, error) {
	return store.GetEvent(ctx, eventID)
}

func (store *stubStore) UpdateEventStatus(_ context.Context, eventID string, from roster.EventStatus, to roster.EventStatus) (bool, error) {
	event, ok := store.events[eventID]
	if !ok || event.Status != from {
		return false, nil
	}
	event.Status = to
	store.events[eventID] = event
	return true, nil
}

func (store *stubStore) ListEvents(_ context.Context) ([]roster.Event, error) {
	events := make([]roster.Event, 0, len(store.events))
	for _, event := range store.events {
		events = append(events, event)
	}
	return events, nil
}

func (store *stubStore) ActiveRegistration(_ context.Context, eventID string, userID string) (roster.Registration, bool, error) {
	for _, registration := range store.registrations {
		if registration.EventID == eventID && registration.UserID == userID && registration.Status.Active() {
			return registration, true, nil
		}
	}
	return roster.Registration{}, false, nil
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

func (store *stubStore) InsertRegistration(_ context.Context, registration roster.Registration) error {
	store.registrations = append(store.registrations, registration)
	return nil
}

func (store *stubStore) TransitionRegistration(_ context.Context, registrationID string, to roster.RegistrationStatus, position int, atUnixUTC int64) error {
	for index := range store.registrations {
		if store.registrations[index].RegistrationID == registrationID {
			store.registrations[index].Status = to
			store.registrations[index].Position = position
			store.registrations[index].StatusChanged = atUnixUTC
			return nil
		}
	}
	return roster.ErrNotRegistered
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

func (store *stubStore) EarliestWaitlisted(_ context.Context, eventID string) (roster.Registration, bool, error) {
	found := false
	var earliest roster.Registration
	for _, registration := range store.registrations {
		if registration.EventID != eventID || registration.Status != roster.StatusWaitlisted {
			continue
		}
		if !found || registration.Position < earliest.Position {
			earliest = registration
			found = true
		}
	}
	return earliest, found, nil
}

func (store *stubStore) ListActiveByPosition(_ context.Context, eventID string) ([]roster.Registration, error) {
	active := []roster.Registration{}
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

func (store *stubStore) ListRegistrationHistory(_ context.Context, eventID string) ([]roster.Registration, error) {
	history := []roster.Registration{}
	for _, registration := range store.registrations {
		if registration.EventID == eventID {
			history = append(history, registration)
		}
	}
	return history, nil
}

// ledger rows

func (store *stubStore) GetOrCreateUser(_ context.Context, userID string, role ledger.Role) (ledger.User, error) {
	if user, ok := store.users[userID]; ok {
		return user, nil
	}
	user := ledger.User{UserID: userID, Role: role, CreatedUnixUTC: 1}
	store.users[userID] = user
	return user, nil
}

func (store *stubStore) UserExists(_ context.Context, userID string) (bool, error) {
	_, ok := store.users[userID]
	return ok, nil
}

func (store *stubStore) LockUser(_ context.Context, userID string) error {
	store.callOrder = append(store.callOrder, "lock_user:"+userID)
	if _, ok := store.users[userID]; !ok {
		return ledger.ErrUserNotFound
	}
	return nil
}

func (store *stubStore) InsertEntry(_ context.Context, entry ledger.Entry) error {
	if store.insertEntryErr != nil {
		return store.insertEntryErr
	}
	if _, taken := store.idempotency[entry.IdempotencyKey]; taken {
		return ledger.ErrDuplicateIdempotencyKey
	}
	store.idempotency[entry.IdempotencyKey] = struct{}{}
	store.entries = append(store.entries, entry)
	return nil
}

func (store *stubStore) SumEntries(_ context.Context, userID string) (ledger.AmountCents, error) {
	store.callOrder = append(store.callOrder, "sum_entries:"+userID)
	var total ledger.AmountCents
	for _, entry := range store.entries {
		if entry.UserID == userID {
			total += entry.AmountCents
		}
	}
	return total, nil
}

func (store *stubStore) GetEntry(_ context.Context, entryID string) (ledger.Entry, error) {
	for _, entry := range store.entries {
		if entry.EntryID == entryID {
			return entry, nil
		}
	}
	return ledger.Entry{}, ledger.ErrEntryNotFound
}

func (store *stubStore) UpdateEntryAmount(_ context.Context, entryID string, amount ledger.AmountCents, correctedBy string, correctedAtUnixUTC int64) error {
	for index := range store.entries {
		if store.entries[index].EntryID == entryID {
			store.entries[index].AmountCents = amount
			store.entries[index].CorrectedBy = correctedBy
			store.entries[index].CorrectedAtUTC = correctedAtUnixUTC
			return nil
		}
	}
	return ledger.ErrEntryNotFound
}

func (store *stubStore) ListEntries(_ context.Context, userID string, filter ledger.EntryFilter) ([]ledger.Entry, error) {
	matched := []ledger.Entry{}
	for _, entry := range store.entries {
		if entry.UserID == userID {
			matched = append(matched, entry)
		}
	}
	return matched, nil
}

func (store *stubStore) ListEventEntries(_ context.Context, eventID string, userID string) ([]ledger.Entry, error) {
	matched := []ledger.Entry{}
	for _, entry := range store.entries {
		if entry.EventID != eventID {
			continue
		}
		if userID != "" && entry.UserID != userID {
			continue
		}
		matched = append(matched, entry)
	}
	return matched, nil
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore TxStore) error) error {
	return fn(ctx, store)
}

const testClockStart = int64(1700000000)

func mustNewService(test *testing.T, store Store, floorCents int64) *Service {
	test.Helper()
	clock := testClockStart
	service, err := NewService(store, func() int64 {
		clock++
		return clock
	}, zap.NewNop(), floorCents)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func openEvent(eventID string, maxPlayers int, priceCents int64, chargeOnEntry bool) roster.Event {
	return roster.Event{
		EventID:        eventID,
		Name:           "weekly session",
		Status:         roster.EventStatusOpen,
		StartsAtUTC:    testClockStart + 86400,
		MaxPlayers:     maxPlayers,
		CourtCount:     2,
		PriceCents:     priceCents,
		ChargeOnEntry:  chargeOnEntry,
		CreatedBy:      "admin-1",
		CreatedUnixUTC: testClockStart,
	}
}
