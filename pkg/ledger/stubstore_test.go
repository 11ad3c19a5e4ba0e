package ledger

import (
	"context"
	"testing"
)

// stubStore is an in-memory Store used by the service tests. Error fields
// inject failures per method.
type stubStore struct {
	users          map[string]User
	entries        []Entry
	idempotency    map[string]struct{}
	userExistsErr  error
	lockUserErr    error
	insertEntryErr error
	sumEntriesErr  error
	getEntryErr    error
	updateEntryErr error
	listEntriesErr error
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		users:       map[string]User{},
		idempotency: map[string]struct{}{},
	}
}

func (store *stubStore) addUser(test *testing.T, userID string, role Role) {
	test.Helper()
	store.users[userID] = User{UserID: userID, Role: role, CreatedUnixUTC: 1}
}

func (store *stubStore) GetOrCreateUser(_ context.Context, userID string, role Role) (User, error) {
	if user, ok := store.users[userID]; ok {
		return user, nil
	}
	user := User{UserID: userID, Role: role, CreatedUnixUTC: 1}
	store.users[userID] = user
	return user, nil
}

func (store *stubStore) UserExists(_ context.Context, userID string) (bool, error) {
	if store.userExistsErr != nil {
		return false, store.userExistsErr
	}
	_, ok := store.users[userID]
	return ok, nil
}

func (store *stubStore) LockUser(_ context.Context, userID string) error {
	if store.lockUserErr != nil {
		return store.lockUserErr
	}
	if _, ok := store.users[userID]; !ok {
		return ErrUserNotFound
	}
	return nil
}

func (store *stubStore) InsertEntry(_ context.Context, entry Entry) error {
	if store.insertEntryErr != nil {
		return store.insertEntryErr
	}
	if _, taken := store.idempotency[entry.IdempotencyKey]; taken {
		return ErrDuplicateIdempotencyKey
	}
	store.idempotency[entry.IdempotencyKey] = struct{}{}
	store.entries = append(store.entries, entry)
	return nil
}

func (store *stubStore) SumEntries(_ context.Context, userID string) (AmountCents, error) {
	if store.sumEntriesErr != nil {
		return 0, store.sumEntriesErr
	}
	var total AmountCents
	for _, entry := range store.entries {
		if entry.UserID == userID {
			total += entry.AmountCents
		}
	}
	return total, nil
}

func (store *stubStore) GetEntry(_ context.Context, entryID string) (Entry, error) {
	if store.getEntryErr != nil {
		return Entry{}, store.getEntryErr
	}
	for _, entry := range store.entries {
		if entry.EntryID == entryID {
			return entry, nil
		}
	}
	return Entry{}, ErrEntryNotFound
}

func (store *stubStore) UpdateEntryAmount(_ context.Context, entryID string, amount AmountCents, correctedBy string, correctedAtUnixUTC int64) error {
	if store.updateEntryErr != nil {
		return store.updateEntryErr
	}
	for index := range store.entries {
		if store.entries[index].EntryID == entryID {
			store.entries[index].AmountCents = amount
			store.entries[index].CorrectedBy = correctedBy
			store.entries[index].CorrectedAtUTC = correctedAtUnixUTC
			return nil
		}
	}
	return ErrEntryNotFound
}

func (store *stubStore) ListEntries(_ context.Context, userID string, filter EntryFilter) ([]Entry, error) {
	if store.listEntriesErr != nil {
		return nil, store.listEntriesErr
	}
	matched := []Entry{}
	for index := len(store.entries) - 1; index >= 0; index-- {
		entry := store.entries[index]
		if entry.UserID != userID {
			continue
		}
		if len(filter.Types) > 0 && !containsType(filter.Types, entry.Type) {
			continue
		}
		if filter.FromUnixUTC > 0 && entry.CreatedUnixUTC < filter.FromUnixUTC {
			continue
		}
		if filter.BeforeUnixUTC > 0 && entry.CreatedUnixUTC >= filter.BeforeUnixUTC {
			continue
		}
		matched = append(matched, entry)
		if filter.Limit > 0 && len(matched) == filter.Limit {
			break
		}
	}
	return matched, nil
}

func (store *stubStore) ListEventEntries(_ context.Context, eventID string, userID string) ([]Entry, error) {
	matched := []Entry{}
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

func containsType(types []EntryType, candidate EntryType) bool {
	for _, entryType := range types {
		if entryType == candidate {
			return true
		}
	}
	return false
}

func mustNewService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, func() int64 { return 1700000000 }, options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}
